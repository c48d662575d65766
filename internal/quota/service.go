// Package quota decides whether an account may use a metered feature this
// month and records the use when it may.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bytebuddy/internal/database"
	"bytebuddy/internal/events"
	"bytebuddy/internal/logging"
	"bytebuddy/internal/usage"
)

var (
	// ErrQuotaExceeded matches every *Denial
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrConfiguration is returned for an unrecognized feature name
	ErrConfiguration = errors.New("quota configuration error")
	// ErrCheckFailed wraps storage failures during admission
	ErrCheckFailed = errors.New("usage check failed")
)

// Denial is returned when the monthly allowance is exhausted
type Denial struct {
	Feature usage.Feature
	Tier    usage.Tier
	Period  usage.Period
	Used    int64
	Limit   int64
}

func (d *Denial) Error() string {
	return fmt.Sprintf("monthly %s limit reached (%d/%d)", d.Feature, d.Used, d.Limit)
}

// Is makes a denial match ErrQuotaExceeded
func (d *Denial) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Decision describes an admitted call
type Decision struct {
	Admitted  bool          `json:"admitted"`
	Feature   usage.Feature `json:"feature"`
	Tier      usage.Tier    `json:"subscription"`
	Period    usage.Period  `json:"month"`
	Used      int64         `json:"used"`
	Limit     int64         `json:"limit"`
	Remaining int64         `json:"remaining"`
}

// FeatureUsage is one row of a usage snapshot
type FeatureUsage struct {
	Used      int64 `json:"used"`
	Limit     int64 `json:"limit"`
	Remaining int64 `json:"remaining"`
}

// Snapshot is the account's usage across all features for the current period
type Snapshot struct {
	Period   usage.Period                   `json:"month"`
	Tier     usage.Tier                     `json:"subscription"`
	Features map[usage.Feature]FeatureUsage `json:"features"`
}

// Service performs admission control against a UsageStore
type Service struct {
	store  database.UsageStore
	policy *usage.Policy
	bus    *events.EventBus
	now    func() time.Time
	logger *logging.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEventBus publishes admission outcomes on bus
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// NewService creates a quota service. A nil policy uses the default table.
func NewService(store database.UsageStore, policy *usage.Policy, opts ...Option) *Service {
	if policy == nil {
		policy = usage.DefaultPolicy()
	}
	s := &Service{
		store:  store,
		policy: policy,
		now:    time.Now,
		logger: logging.WithComponent("quota"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active quota table
func (s *Service) Policy() *usage.Policy {
	return s.policy
}

// TryConsume admits one use of feature for acct or denies it. The current
// tier is read by the store inside the same atomic step as the increment,
// so acct only supplies the ID. On success acct.Usage is refreshed.
func (s *Service) TryConsume(ctx context.Context, acct *database.Account, feature usage.Feature) (*Decision, error) {
	if acct == nil || acct.ID == "" {
		return nil, fmt.Errorf("%w: no account", ErrConfiguration)
	}
	if !feature.Valid() {
		return nil, fmt.Errorf("%w: unknown feature %q", ErrConfiguration, feature)
	}
	limits, err := s.policy.Limits(feature)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	now := s.now()
	period := usage.PeriodOf(now)
	previous := acct.Usage.Period

	res, err := s.store.ConsumeUsage(ctx, acct.ID, database.UsageRequest{
		Feature: feature,
		Period:  period,
		Limits:  limits,
		Now:     now,
	})
	if err != nil && !errors.Is(err, database.ErrLimitReached) {
		s.logger.WithError(err).Error("Usage check failed", "account_id", acct.ID, "feature", feature)
		return nil, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%w: store returned no ledger", ErrCheckFailed)
	}

	acct.Usage = res.Ledger
	acct.SubscriptionTier = res.Tier
	if previous != "" && previous != res.Ledger.Period {
		s.bus.PublishRollover(acct.ID, previous.String(), res.Ledger.Period.String())
	}

	limit := limits.For(res.Tier)
	used := res.Ledger.Used(feature)

	if err != nil {
		s.logger.Info("Quota exceeded", "account_id", acct.ID, "feature", feature, "used", used, "limit", limit)
		s.bus.PublishQuotaExceeded(acct.ID, feature.String(), res.Ledger.Period.String(), used, limit)
		return nil, &Denial{Feature: feature, Tier: res.Tier, Period: res.Ledger.Period, Used: used, Limit: limit}
	}

	s.bus.PublishUsageConsumed(acct.ID, feature.String(), res.Ledger.Period.String(), used, limit)
	return &Decision{
		Admitted:  true,
		Feature:   feature,
		Tier:      res.Tier,
		Period:    res.Ledger.Period,
		Used:      used,
		Limit:     limit,
		Remaining: remaining(used, limit),
	}, nil
}

// Snapshot reports usage for every feature, applying the monthly reset first
func (s *Service) Snapshot(ctx context.Context, acct *database.Account) (*Snapshot, error) {
	if acct == nil || acct.ID == "" {
		return nil, fmt.Errorf("%w: no account", ErrConfiguration)
	}

	res, err := s.store.RolloverUsage(ctx, acct.ID, usage.PeriodOf(s.now()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCheckFailed, err)
	}
	acct.Usage = res.Ledger
	acct.SubscriptionTier = res.Tier

	snap := &Snapshot{
		Period:   res.Ledger.Period,
		Tier:     res.Tier,
		Features: make(map[usage.Feature]FeatureUsage, len(usage.AllFeatures())),
	}
	for _, f := range usage.AllFeatures() {
		var limit int64
		if res.Tier.Valid() {
			limit, _ = s.policy.Limit(res.Tier, f)
		}
		used := res.Ledger.Used(f)
		snap.Features[f] = FeatureUsage{Used: used, Limit: limit, Remaining: remaining(used, limit)}
	}
	return snap, nil
}

func remaining(used, limit int64) int64 {
	if used >= limit {
		return 0
	}
	return limit - used
}
