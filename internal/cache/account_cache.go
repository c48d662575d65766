package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bytebuddy/internal/database"
	"bytebuddy/internal/logging"
	"bytebuddy/internal/usage"
)

// AccountCache decorates an AccountStore. Writes that change what the
// authentication gate checks evict the cached principal, and report
// ErrEvictionFailed when a stale principal may still be served. Cache read
// failures fall through to the store.
type AccountCache struct {
	database.AccountStore
	cache  Cache
	ttl    time.Duration
	logger *logging.Logger
}

// NewAccountCache wraps store. A nil cache disables caching.
func NewAccountCache(store database.AccountStore, cache Cache, ttl time.Duration) *AccountCache {
	if ttl <= 0 {
		ttl = DefaultPrincipalTTL
	}
	return &AccountCache{
		AccountStore: store,
		cache:        cache,
		ttl:          ttl,
		logger:       logging.WithComponent("account-cache"),
	}
}

// Principals returns a lookup that serves accounts from the cache. The
// returned accounts carry no password hash.
func (c *AccountCache) Principals() *PrincipalLookup {
	return &PrincipalLookup{c: c}
}

// PrincipalLookup resolves account IDs through the cache
type PrincipalLookup struct {
	c *AccountCache
}

// GetAccountByID returns the cached account or loads and caches it
func (p *PrincipalLookup) GetAccountByID(ctx context.Context, id string) (*database.Account, error) {
	return p.c.lookup(ctx, id)
}

func (c *AccountCache) lookup(ctx context.Context, id string) (*database.Account, error) {
	if c.cache == nil {
		return c.AccountStore.GetAccountByID(ctx, id)
	}

	key := PrincipalKey(id)
	data, err := c.cache.Get(ctx, key)
	switch {
	case err == nil:
		var acct database.Account
		if jsonErr := json.Unmarshal([]byte(data), &acct); jsonErr == nil && acct.ID == id {
			return &acct, nil
		}
		c.logger.Warn("Discarding corrupt principal cache entry", "account_id", id)
	case errors.Is(err, ErrCacheMiss):
	default:
		c.logger.WithError(err).Debug("Principal cache read failed, using store", "account_id", id)
	}

	acct, err := c.AccountStore.GetAccountByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if setErr := c.cache.Set(ctx, key, acct, c.ttl); setErr != nil {
		c.logger.WithError(setErr).Debug("Principal cache write failed", "account_id", id)
	}
	return acct, nil
}

// ErrEvictionFailed means a write reached the store but the cached
// principal could not be removed or replaced
var ErrEvictionFailed = errors.New("principal cache eviction failed")

// Invalidate evicts the cached principal for id. When the delete fails the
// entry is overwritten with the stored account instead.
func (c *AccountCache) Invalidate(ctx context.Context, id string) error {
	if c.cache == nil {
		return nil
	}
	key := PrincipalKey(id)
	err := c.cache.Delete(ctx, key)
	if err == nil || errors.Is(err, ErrCacheMiss) {
		return nil
	}

	if acct, getErr := c.AccountStore.GetAccountByID(ctx, id); getErr == nil {
		if setErr := c.cache.Set(ctx, key, acct, c.ttl); setErr == nil {
			c.logger.WithError(err).Debug("Principal delete failed, entry refreshed", "account_id", id)
			return nil
		}
	}
	c.logger.WithError(err).Warn("Failed to evict principal", "account_id", id)
	return fmt.Errorf("%w: %v", ErrEvictionFailed, err)
}

// UpdateSubscription updates the tier and evicts the cached principal
func (c *AccountCache) UpdateSubscription(ctx context.Context, id string, tier usage.Tier, expiresAt *time.Time) error {
	if err := c.AccountStore.UpdateSubscription(ctx, id, tier, expiresAt); err != nil {
		return err
	}
	return c.Invalidate(ctx, id)
}

// SetAccountActive toggles the account and evicts the cached principal
func (c *AccountCache) SetAccountActive(ctx context.Context, id string, active bool) error {
	if err := c.AccountStore.SetAccountActive(ctx, id, active); err != nil {
		return err
	}
	return c.Invalidate(ctx, id)
}

// UpdatePassword changes the hash and evicts the cached principal. Cached
// principals carry no hash, so a failed eviction is only logged.
func (c *AccountCache) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	if err := c.AccountStore.UpdatePassword(ctx, id, passwordHash); err != nil {
		return err
	}
	_ = c.Invalidate(ctx, id)
	return nil
}

var _ database.AccountStore = (*AccountCache)(nil)
