package cache

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytebuddy/config"
	"bytebuddy/internal/database"
	"bytebuddy/internal/database/memstore"
	"bytebuddy/internal/usage"
)

// MockCache is an in-memory Cache
type MockCache struct {
	mu      sync.Mutex
	data    map[string]string
	getErr    error
	setErr    error
	deleteErr error
	gets      int
	deletes   []string
}

func NewMockCache() *MockCache {
	return &MockCache{data: make(map[string]string)}
}

func (m *MockCache) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.data[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return v, nil
}

func (m *MockCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.setErr != nil {
		return m.setErr
	}
	switch v := value.(type) {
	case string:
		m.data[key] = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		m.data[key] = string(b)
	}
	return nil
}

func (m *MockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes = append(m.deletes, key)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.data, key)
	return nil
}

func (m *MockCache) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok
}

// countingStore counts primary lookups
type countingStore struct {
	*memstore.Store
	mu      sync.Mutex
	lookups int
}

func (s *countingStore) GetAccountByID(ctx context.Context, id string) (*database.Account, error) {
	s.mu.Lock()
	s.lookups++
	s.mu.Unlock()
	return s.Store.GetAccountByID(ctx, id)
}

func setup(t *testing.T) (*AccountCache, *MockCache, *countingStore, *database.Account) {
	t.Helper()
	store := &countingStore{Store: memstore.New()}
	acct := &database.Account{Username: "alice", Email: "alice@example.com", PasswordHash: "hash", IsActive: true}
	require.NoError(t, store.CreateAccount(context.Background(), acct))
	mc := NewMockCache()
	return NewAccountCache(store, mc, time.Minute), mc, store, acct
}

func TestPrincipalLookupCachesAndStripsHash(t *testing.T) {
	ac, mc, store, acct := setup(t)
	ctx := context.Background()
	lookup := ac.Principals()

	first, err := lookup.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash", first.PasswordHash)
	assert.True(t, mc.has(PrincipalKey(acct.ID)))

	second, err := lookup.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, second.ID)
	assert.True(t, second.IsActive)
	assert.Empty(t, second.PasswordHash)
	assert.Equal(t, 1, store.lookups)
}

func TestDeactivationEvictsPrincipal(t *testing.T) {
	ac, mc, _, acct := setup(t)
	ctx := context.Background()
	lookup := ac.Principals()

	_, err := lookup.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)

	require.NoError(t, ac.SetAccountActive(ctx, acct.ID, false))
	assert.False(t, mc.has(PrincipalKey(acct.ID)))
	assert.Contains(t, mc.deletes, PrincipalKey(acct.ID))

	got, err := lookup.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestFailedDeleteRefreshesPrincipal(t *testing.T) {
	ac, mc, _, acct := setup(t)
	ctx := context.Background()
	lookup := ac.Principals()

	_, err := lookup.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)

	mc.deleteErr = ErrUnavailable
	require.NoError(t, ac.SetAccountActive(ctx, acct.ID, false))

	got, err := lookup.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestDeactivationReportsFailedEviction(t *testing.T) {
	ac, mc, store, acct := setup(t)
	ctx := context.Background()

	_, err := ac.Principals().GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)

	mc.deleteErr = ErrUnavailable
	mc.setErr = ErrUnavailable
	err = ac.SetAccountActive(ctx, acct.ID, false)
	assert.ErrorIs(t, err, ErrEvictionFailed)

	stored, err := store.Store.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	// rerun once the cache recovers
	mc.deleteErr = nil
	mc.setErr = nil
	require.NoError(t, ac.SetAccountActive(ctx, acct.ID, false))
	got, err := ac.Principals().GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	assert.NoError(t, ac.UpdateSubscription(ctx, acct.ID, usage.TierPremium, nil))
}

func TestPasswordChangeToleratesFailedEviction(t *testing.T) {
	ac, mc, _, acct := setup(t)
	mc.deleteErr = ErrUnavailable
	mc.setErr = ErrUnavailable
	assert.NoError(t, ac.UpdatePassword(context.Background(), acct.ID, "new-hash"))
}

func TestSubscriptionChangeEvictsPrincipal(t *testing.T) {
	ac, mc, _, acct := setup(t)
	ctx := context.Background()

	_, err := ac.Principals().GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	require.NoError(t, ac.UpdateSubscription(ctx, acct.ID, usage.TierPremium, nil))
	assert.False(t, mc.has(PrincipalKey(acct.ID)))
}

func TestCacheFailureFallsThrough(t *testing.T) {
	ac, mc, store, acct := setup(t)
	mc.getErr = ErrUnavailable
	mc.setErr = errors.New("boom")

	got, err := ac.Principals().GetAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, 1, store.lookups)
}

func TestMissingAccountNotCached(t *testing.T) {
	ac, mc, _, _ := setup(t)
	_, err := ac.Principals().GetAccountByID(context.Background(), "missing")
	assert.ErrorIs(t, err, database.ErrAccountNotFound)
	assert.False(t, mc.has(PrincipalKey("missing")))
}

func TestCorruptEntryIsReloaded(t *testing.T) {
	ac, mc, store, acct := setup(t)
	require.NoError(t, mc.Set(context.Background(), PrincipalKey(acct.ID), "{not json", time.Minute))

	got, err := ac.Principals().GetAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, acct.ID, got.ID)
	assert.Equal(t, 1, store.lookups)
}

func TestNilCacheUsesStore(t *testing.T) {
	store := &countingStore{Store: memstore.New()}
	acct := &database.Account{Username: "bob", Email: "bob@example.com", IsActive: true}
	require.NoError(t, store.CreateAccount(context.Background(), acct))

	ac := NewAccountCache(store, nil, 0)
	_, err := ac.Principals().GetAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	_, err = ac.Principals().GetAccountByID(context.Background(), acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, store.lookups)
	assert.NoError(t, ac.Invalidate(context.Background(), acct.ID))
}

func TestNewCacheServiceDisabled(t *testing.T) {
	_, err := NewCacheService(config.RedisConfig{Enabled: false})
	assert.Error(t, err)
}

func TestCircuitBreaker(t *testing.T) {
	cs := newCacheService(nil, config.RedisConfig{Address: "localhost:6379", PoolSize: 4})
	cs.healthy = true
	cs.lastCheck = time.Now()

	for i := 0; i < 2; i++ {
		cs.recordFailure()
	}
	assert.True(t, cs.IsHealthy())

	cs.recordFailure()
	assert.False(t, cs.IsHealthy())

	_, err := cs.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, cs.Set(context.Background(), "k", "v", time.Second), ErrUnavailable)

	cs.recordSuccess()
	stats := cs.GetStats()
	assert.True(t, stats.Healthy)
	assert.Equal(t, 0, stats.FailureCount)
	assert.Equal(t, "localhost:6379", stats.Address)
}
