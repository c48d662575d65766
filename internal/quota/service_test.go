package quota

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytebuddy/internal/database"
	"bytebuddy/internal/database/memstore"
	"bytebuddy/internal/events"
	"bytebuddy/internal/usage"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newAccount(t *testing.T, store *memstore.Store, name string, period usage.Period) *database.Account {
	t.Helper()
	acct := &database.Account{
		Username: name,
		Email:    name + "@example.com",
		IsActive: true,
		Usage:    usage.NewLedger(period),
	}
	require.NoError(t, store.CreateAccount(context.Background(), acct))
	return acct
}

type brokenStore struct{}

func (brokenStore) ConsumeUsage(context.Context, string, database.UsageRequest) (*database.UsageResult, error) {
	return nil, errors.New("connection reset")
}

func (brokenStore) RolloverUsage(context.Context, string, usage.Period) (*database.UsageResult, error) {
	return nil, errors.New("connection reset")
}

func TestMonthlyScenario(t *testing.T) {
	store := memstore.New()
	clk := &clock{t: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	svc := NewService(store, nil, WithClock(clk.Now))
	acct := newAccount(t, store, "alice", "2024-01")
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		d, err := svc.TryConsume(ctx, acct, usage.FeatureQuizzes)
		require.NoError(t, err, "call %d", i)
		assert.True(t, d.Admitted)
		assert.Equal(t, i, d.Used)
		assert.Equal(t, int64(5), d.Limit)
	}

	_, err := svc.TryConsume(ctx, acct, usage.FeatureQuizzes)
	require.ErrorIs(t, err, ErrQuotaExceeded)
	var denial *Denial
	require.True(t, errors.As(err, &denial))
	assert.Equal(t, int64(5), denial.Used)
	assert.Equal(t, int64(5), denial.Limit)
	assert.Equal(t, usage.Period("2024-01"), denial.Period)

	stored, err := store.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), stored.Usage.Used(usage.FeatureQuizzes))

	clk.Set(time.Date(2024, 2, 1, 0, 0, 1, 0, time.UTC))
	d, err := svc.TryConsume(ctx, acct, usage.FeatureQuizzes)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Used)
	assert.Equal(t, usage.Period("2024-02"), d.Period)
}

func TestRolloverResetsEveryCounter(t *testing.T) {
	store := memstore.New()
	clk := &clock{t: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)}
	svc := NewService(store, nil, WithClock(clk.Now))
	acct := newAccount(t, store, "bob", "2024-01")
	ctx := context.Background()

	for _, f := range usage.AllFeatures() {
		_, err := svc.TryConsume(ctx, acct, f)
		require.NoError(t, err)
	}

	clk.Set(time.Date(2024, 2, 3, 0, 0, 0, 0, time.UTC))
	_, err := svc.TryConsume(ctx, acct, usage.FeatureNotes)
	require.NoError(t, err)

	assert.Equal(t, usage.Period("2024-02"), acct.Usage.Period)
	for _, f := range usage.AllFeatures() {
		want := int64(0)
		if f == usage.FeatureNotes {
			want = 1
		}
		assert.Equal(t, want, acct.Usage.Used(f), string(f))
	}
}

func TestBoundary(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil)
	ledger := usage.NewLedger(usage.PeriodOf(time.Now()))
	ledger.Counters[usage.FeatureQuizzes] = 4
	acct := &database.Account{Username: "carol", Email: "carol@example.com", IsActive: true, Usage: ledger}
	require.NoError(t, store.CreateAccount(context.Background(), acct))

	d, err := svc.TryConsume(context.Background(), acct, usage.FeatureQuizzes)
	require.NoError(t, err)
	assert.Equal(t, int64(5), d.Used)
	assert.Equal(t, int64(0), d.Remaining)

	_, err = svc.TryConsume(context.Background(), acct, usage.FeatureQuizzes)
	assert.ErrorIs(t, err, ErrQuotaExceeded)
	assert.Equal(t, int64(5), acct.Usage.Used(usage.FeatureQuizzes))
}

func TestUnknownFeatureIsConfigurationError(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil)
	acct := newAccount(t, store, "dave", usage.PeriodOf(time.Now()))

	_, err := svc.TryConsume(context.Background(), acct, usage.Feature("uploads"))
	assert.ErrorIs(t, err, ErrConfiguration)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)
}

func TestStorageFailureIsNotDenial(t *testing.T) {
	svc := NewService(brokenStore{}, nil)
	acct := &database.Account{ID: "acct-1"}

	_, err := svc.TryConsume(context.Background(), acct, usage.FeatureNotes)
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.NotErrorIs(t, err, ErrQuotaExceeded)

	_, err = svc.Snapshot(context.Background(), acct)
	assert.ErrorIs(t, err, ErrCheckFailed)
}

func TestUnknownAccountFailsClosed(t *testing.T) {
	svc := NewService(memstore.New(), nil)
	_, err := svc.TryConsume(context.Background(), &database.Account{ID: "missing"}, usage.FeatureNotes)
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.ErrorIs(t, err, database.ErrAccountNotFound)
}

func TestLiveTierIsUsed(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil)
	ctx := context.Background()
	acct := newAccount(t, store, "erin", usage.PeriodOf(time.Now()))

	for i := 0; i < 3; i++ {
		_, err := svc.TryConsume(ctx, acct, usage.FeatureCareer)
		require.NoError(t, err)
	}
	_, err := svc.TryConsume(ctx, acct, usage.FeatureCareer)
	require.ErrorIs(t, err, ErrQuotaExceeded)

	// the handle still says free; the store says premium
	require.NoError(t, store.UpdateSubscription(ctx, acct.ID, usage.TierPremium, nil))
	stale := &database.Account{ID: acct.ID, SubscriptionTier: usage.TierFree, Usage: acct.Usage}

	d, err := svc.TryConsume(ctx, stale, usage.FeatureCareer)
	require.NoError(t, err)
	assert.Equal(t, usage.TierPremium, d.Tier)
	assert.Equal(t, int64(100), d.Limit)
	assert.Equal(t, usage.TierPremium, stale.SubscriptionTier)
}

func TestConcurrentLastSlot(t *testing.T) {
	policy, err := usage.DefaultPolicy().WithOverrides(map[string]int64{"free.careerSessions": 1})
	require.NoError(t, err)

	for run := 0; run < 50; run++ {
		store := memstore.New()
		svc := NewService(store, policy)
		acct := newAccount(t, store, "frank", usage.PeriodOf(time.Now()))

		var admitted, denied int32
		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				handle := &database.Account{ID: acct.ID}
				_, err := svc.TryConsume(context.Background(), handle, usage.FeatureCareer)
				if err == nil {
					atomic.AddInt32(&admitted, 1)
				} else if errors.Is(err, ErrQuotaExceeded) {
					atomic.AddInt32(&denied, 1)
				}
			}()
		}
		close(start)
		wg.Wait()

		require.Equal(t, int32(1), admitted, "run %d", run)
		require.Equal(t, int32(1), denied, "run %d", run)
	}
}

func TestRandomConcurrentNeverExceedsLimit(t *testing.T) {
	store := memstore.New()
	svc := NewService(store, nil)
	acct := newAccount(t, store, "gina", usage.PeriodOf(time.Now()))
	features := usage.AllFeatures()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 40; i++ {
				f := features[rng.Intn(len(features))]
				_, _ = svc.TryConsume(context.Background(), &database.Account{ID: acct.ID}, f)
			}
		}(int64(w))
	}
	wg.Wait()

	stored, err := store.GetAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	for _, f := range features {
		limit, err := svc.Policy().Limit(usage.TierFree, f)
		require.NoError(t, err)
		assert.LessOrEqual(t, stored.Usage.Used(f), limit, string(f))
	}
}

func TestSnapshot(t *testing.T) {
	store := memstore.New()
	clk := &clock{t: time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)}
	svc := NewService(store, nil, WithClock(clk.Now))
	ledger := usage.NewLedger("2024-02")
	ledger.Counters[usage.FeatureNotes] = 7
	acct := &database.Account{Username: "hank", Email: "hank@example.com", IsActive: true, Usage: ledger}
	require.NoError(t, store.CreateAccount(context.Background(), acct))

	snap, err := svc.Snapshot(context.Background(), acct)
	require.NoError(t, err)
	assert.Equal(t, usage.Period("2024-03"), snap.Period)
	assert.Len(t, snap.Features, 6)
	assert.Equal(t, FeatureUsage{Used: 0, Limit: 10, Remaining: 10}, snap.Features[usage.FeatureNotes])
}

func TestEventsPublished(t *testing.T) {
	store := memstore.New()
	bus := events.NewEventBus()
	got := make(chan events.Event, 4)
	bus.SubscribeAll(func(e events.Event) { got <- e })

	svc := NewService(store, nil, WithEventBus(bus))
	acct := newAccount(t, store, "ivy", usage.PeriodOf(time.Now()))

	_, err := svc.TryConsume(context.Background(), acct, usage.FeatureHabits)
	require.NoError(t, err)

	select {
	case e := <-got:
		assert.Equal(t, events.EventUsageConsumed, e.Type)
		assert.Equal(t, acct.ID, e.AccountID)
		assert.Equal(t, "habitEntries", e.Data["feature"])
	case <-time.After(time.Second):
		t.Fatal("no event received")
	}
}
