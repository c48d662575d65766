package memstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bytebuddy/internal/database"
	"bytebuddy/internal/usage"
)

func newAccount(t *testing.T, s *Store, name string) *database.Account {
	t.Helper()
	acct := &database.Account{Username: name, Email: name + "@example.com", PasswordHash: "h", IsActive: true}
	require.NoError(t, s.CreateAccount(context.Background(), acct))
	return acct
}

func TestCreateAccountUniqueness(t *testing.T) {
	s := New()
	ctx := context.Background()
	newAccount(t, s, "alice")

	err := s.CreateAccount(ctx, &database.Account{Username: "ALICE", Email: "x@example.com"})
	assert.ErrorIs(t, err, database.ErrAccountExists)

	err = s.CreateAccount(ctx, &database.Account{Username: "someone", Email: "Alice@Example.com"})
	assert.ErrorIs(t, err, database.ErrAccountExists)
}

func TestLookupReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := newAccount(t, s, "bob")

	got, err := s.GetAccountByLogin(ctx, "BOB@example.com")
	require.NoError(t, err)
	got.Usage.Counters[usage.FeatureNotes] = 99
	got.IsActive = false

	again, err := s.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.Zero(t, again.Usage.Used(usage.FeatureNotes))
	assert.True(t, again.IsActive)

	_, err = s.GetAccountByID(ctx, "missing")
	assert.ErrorIs(t, err, database.ErrAccountNotFound)
}

func TestConsumeUsageBoundary(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := newAccount(t, s, "carol")
	req := database.UsageRequest{
		Feature: usage.FeatureCareer,
		Period:  acct.Usage.Period,
		Limits:  usage.TierLimits{Free: 5, Premium: 10, Enterprise: 20},
	}
	for i := 0; i < 4; i++ {
		_, err := s.ConsumeUsage(ctx, acct.ID, req)
		require.NoError(t, err)
	}

	res, err := s.ConsumeUsage(ctx, acct.ID, req)
	require.NoError(t, err)
	assert.Equal(t, int64(5), res.Ledger.Used(usage.FeatureCareer))

	res, err = s.ConsumeUsage(ctx, acct.ID, req)
	assert.ErrorIs(t, err, database.ErrLimitReached)
	assert.Equal(t, int64(5), res.Ledger.Used(usage.FeatureCareer))
}

func TestConsumeUsageReadsLiveTier(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := newAccount(t, s, "dave")
	req := database.UsageRequest{
		Feature: usage.FeatureNotes,
		Period:  acct.Usage.Period,
		Limits:  usage.TierLimits{Free: 1, Premium: 2, Enterprise: 3},
	}

	_, err := s.ConsumeUsage(ctx, acct.ID, req)
	require.NoError(t, err)
	_, err = s.ConsumeUsage(ctx, acct.ID, req)
	require.ErrorIs(t, err, database.ErrLimitReached)

	require.NoError(t, s.UpdateSubscription(ctx, acct.ID, usage.TierPremium, nil))
	res, err := s.ConsumeUsage(ctx, acct.ID, req)
	require.NoError(t, err)
	assert.Equal(t, usage.TierPremium, res.Tier)
	assert.Equal(t, int64(2), res.Ledger.Used(usage.FeatureNotes))
}

func TestConsumeUsageRollsOverEveryCounter(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := newAccount(t, s, "erin")
	limits := usage.TierLimits{Free: 100, Premium: 100, Enterprise: 100}
	for _, f := range usage.AllFeatures() {
		_, err := s.ConsumeUsage(ctx, acct.ID, database.UsageRequest{Feature: f, Period: "2024-01", Limits: limits})
		require.NoError(t, err)
	}

	res, err := s.ConsumeUsage(ctx, acct.ID, database.UsageRequest{Feature: usage.FeatureHabits, Period: "2024-02", Limits: limits})
	require.NoError(t, err)
	assert.Equal(t, usage.Period("2024-02"), res.Ledger.Period)
	for _, f := range usage.AllFeatures() {
		want := int64(0)
		if f == usage.FeatureHabits {
			want = 1
		}
		assert.Equal(t, want, res.Ledger.Used(f), f)
	}

	again, err := s.RolloverUsage(ctx, acct.ID, "2024-02")
	require.NoError(t, err)
	assert.Equal(t, int64(1), again.Ledger.Used(usage.FeatureHabits), "rollover in the same month is a no-op")
}

func TestConsumeUsageConcurrentSingleSlot(t *testing.T) {
	for run := 0; run < 50; run++ {
		s := New()
		ctx := context.Background()
		acct := newAccount(t, s, "frank")
		req := database.UsageRequest{
			Feature: usage.FeatureQuizzes,
			Period:  acct.Usage.Period,
			Limits:  usage.TierLimits{Free: 1},
		}

		var (
			wg       sync.WaitGroup
			admitted atomic.Int32
			denied   atomic.Int32
		)
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.ConsumeUsage(ctx, acct.ID, req)
				switch {
				case err == nil:
					admitted.Add(1)
				case errors.Is(err, database.ErrLimitReached):
					denied.Add(1)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, int32(1), admitted.Load())
		require.Equal(t, int32(1), denied.Load())
	}
}

func TestConsumeUsageUnknownAccount(t *testing.T) {
	s := New()
	_, err := s.ConsumeUsage(context.Background(), "ghost", database.UsageRequest{Feature: usage.FeatureNotes, Period: "2024-01"})
	assert.ErrorIs(t, err, database.ErrAccountNotFound)
}

func TestToolRecords(t *testing.T) {
	s := New()
	ctx := context.Background()
	acct := newAccount(t, s, "gina")

	for _, title := range []string{"first", "second"} {
		require.NoError(t, s.CreateNote(ctx, &database.Note{AccountID: acct.ID, Title: title}))
	}
	notes, err := s.ListNotes(ctx, acct.ID, 1)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, "second", notes[0].Title)

	quiz := &database.Quiz{AccountID: acct.ID, Questions: []database.QuizQuestion{{Options: []string{"a", "b"}}}}
	require.NoError(t, s.CreateQuiz(ctx, quiz))
	_, err = s.GetQuiz(ctx, "someone-else", quiz.ID)
	assert.ErrorIs(t, err, database.ErrRecordNotFound)

	score := 3
	quiz.Score = &score
	require.NoError(t, s.SaveQuizResult(ctx, quiz))

	created, err := s.UpsertHabitEntry(ctx, &database.HabitEntry{AccountID: acct.ID, Day: "2024-01-01"})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.UpsertHabitEntry(ctx, &database.HabitEntry{AccountID: acct.ID, Day: "2024-01-01", Mood: "tired"})
	require.NoError(t, err)
	assert.False(t, created)
	_, _ = s.UpsertHabitEntry(ctx, &database.HabitEntry{AccountID: acct.ID, Day: "2024-01-03"})

	days, err := s.ListHabitDays(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-01-03", "2024-01-01"}, days)

	areas, err := s.AddWeakAreas(ctx, acct.ID, []string{"Math", "Math", "Physics"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Math", "Physics"}, areas)

	stats, err := s.GetActivityStats(ctx, acct.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NoteCount)
	assert.Equal(t, 1, stats.QuizCount)
	assert.Equal(t, 2, stats.HabitDays)
	assert.Equal(t, 3.0, stats.AverageScore)
}
