package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"bytebuddy/internal/auth"
	"bytebuddy/internal/cache"
	"bytebuddy/internal/database/memstore"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/usage"
)

func newTestApp(t *testing.T) (*app, *memstore.Store, *bytes.Buffer) {
	t.Helper()
	store := memstore.New()
	cfg := auth.DefaultConfig()
	cfg.JWTSecret = "cli-test"
	cfg.BcryptCost = bcrypt.MinCost
	svc, err := auth.NewService(store, cfg)
	require.NoError(t, err)

	out := &bytes.Buffer{}
	return &app{
		accounts:     store,
		quota:        quota.NewService(store, nil),
		auth:         svc,
		out:          out,
		readPassword: func() (string, error) { return "secret123", nil },
	}, store, out
}

func TestCreateWithTier(t *testing.T) {
	a, store, out := newTestApp(t)
	ctx := context.Background()

	require.NoError(t, a.run(ctx, []string{"create", "-username", "alice", "-email", "Alice@Example.com", "-tier", "premium"}))
	assert.Contains(t, out.String(), "Created account")

	acct, err := store.GetAccountByLogin(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, usage.TierPremium, acct.SubscriptionTier)

	_, err = a.auth.Login(ctx, auth.LoginRequest{EmailOrUsername: "alice", Password: "secret123"})
	assert.NoError(t, err)
}

func TestCreateRejectsBadInput(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	assert.Error(t, a.run(ctx, []string{"create", "-username", "bob"}))
	assert.Error(t, a.run(ctx, []string{"create", "-username", "bob", "-email", "b@example.com", "-tier", "gold"}))

	a.readPassword = func() (string, error) { return "123", nil }
	assert.ErrorIs(t, a.run(ctx, []string{"create", "-username", "bob", "-email", "b@example.com"}), auth.ErrWeakPassword)
}

func TestSetTierAndDeactivate(t *testing.T) {
	a, store, out := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.run(ctx, []string{"create", "-username", "carol", "-email", "c@example.com"}))

	require.NoError(t, a.run(ctx, []string{"set-tier", "-login", "carol", "-tier", "enterprise", "-expires", "2030-01-31"}))
	assert.Contains(t, out.String(), "carol: free -> enterprise")

	acct, err := store.GetAccountByLogin(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, usage.TierEnterprise, acct.SubscriptionTier)
	require.NotNil(t, acct.SubscriptionExpiresAt)

	// lookup by id works too
	require.NoError(t, a.run(ctx, []string{"deactivate", "-login", acct.ID}))
	acct, err = store.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.False(t, acct.IsActive)

	require.NoError(t, a.run(ctx, []string{"activate", "-login", "c@example.com"}))
	acct, err = store.GetAccountByID(ctx, acct.ID)
	require.NoError(t, err)
	assert.True(t, acct.IsActive)
}

func TestUsageReport(t *testing.T) {
	a, _, out := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.run(ctx, []string{"create", "-username", "dave", "-email", "d@example.com"}))
	out.Reset()

	require.NoError(t, a.run(ctx, []string{"usage", "-login", "dave"}))
	report := out.String()
	assert.Contains(t, report, "tier=free")
	assert.Contains(t, report, "notesGenerated")
	assert.Contains(t, report, "REMAINING")
}

func TestUnknownCommandAndAccount(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	assert.Error(t, a.run(ctx, []string{"explode"}))
	assert.Error(t, a.run(ctx, nil))
	assert.Error(t, a.run(ctx, []string{"usage", "-login", "nobody"}))
	assert.Error(t, a.run(ctx, []string{"usage"}))
	assert.NoError(t, a.run(ctx, []string{"help"}))
}

// downCache fails every call like an open circuit breaker
type downCache struct{}

func (downCache) Get(context.Context, string) (string, error) { return "", cache.ErrUnavailable }
func (downCache) Set(context.Context, string, interface{}, time.Duration) error {
	return cache.ErrUnavailable
}
func (downCache) Delete(context.Context, string) error { return cache.ErrUnavailable }

func TestDeactivateReportsStaleCache(t *testing.T) {
	a, store, _ := newTestApp(t)
	ctx := context.Background()
	require.NoError(t, a.run(ctx, []string{"create", "-username", "erin", "-email", "e@example.com"}))

	a.accounts = cache.NewAccountCache(store, downCache{}, time.Minute)
	err := a.run(ctx, []string{"deactivate", "-login", "erin"})
	require.ErrorIs(t, err, cache.ErrEvictionFailed)
	assert.Contains(t, err.Error(), "rerun")

	acct, err := store.GetAccountByLogin(ctx, "erin")
	require.NoError(t, err)
	assert.False(t, acct.IsActive)
}
