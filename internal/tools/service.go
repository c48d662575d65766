// Package tools implements the six study tools. Every metered tool asks
// the quota service for admission before it does any work.
package tools

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"bytebuddy/internal/database"
	"bytebuddy/internal/events"
	"bytebuddy/internal/logging"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/usage"
)

var (
	// ErrInvalidInput matches every *ValidationError
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned for records the caller does not own
	ErrNotFound = errors.New("not found")
)

// ValidationError describes a rejected request field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Is makes a validation error match ErrInvalidInput
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Admitter is the admission check the tools depend on
type Admitter interface {
	TryConsume(ctx context.Context, acct *database.Account, feature usage.Feature) (*quota.Decision, error)
}

// Service runs the study tools
type Service struct {
	store  database.ToolStore
	quota  Admitter
	bus    *events.EventBus
	now    func() time.Time
	intn   func(n int) int
	logger *logging.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithRandom replaces the source of simulated answers and scores
func WithRandom(intn func(n int) int) Option {
	return func(s *Service) { s.intn = intn }
}

// WithEventBus publishes tool events on bus
func WithEventBus(bus *events.EventBus) Option {
	return func(s *Service) { s.bus = bus }
}

// NewService creates the tool service
func NewService(store database.ToolStore, admitter Admitter, opts ...Option) *Service {
	s := &Service{
		store:  store,
		quota:  admitter,
		now:    time.Now,
		intn:   rand.Intn,
		logger: logging.WithComponent("tools"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// admit runs the quota check and returns the decision for the response
func (s *Service) admit(ctx context.Context, acct *database.Account, feature usage.Feature) (*quota.Decision, error) {
	decision, err := s.quota.TryConsume(ctx, acct, feature)
	if err != nil {
		return nil, err
	}
	logging.AccountContext(ctx, acct.ID, feature.String()).Debug("Admitted", "used", decision.Used, "limit", decision.Limit)
	return decision, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
