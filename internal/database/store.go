package database

import (
	"context"
	"errors"
	"time"

	"bytebuddy/internal/usage"
)

var (
	// ErrAccountNotFound is returned when no account matches the lookup
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned when the username or email is taken
	ErrAccountExists = errors.New("account already exists")
	// ErrLimitReached is returned by ConsumeUsage when the counter is at its limit
	ErrLimitReached = errors.New("usage limit reached")
	// ErrRecordNotFound is returned for tool records that do not exist or belong to another account
	ErrRecordNotFound = errors.New("record not found")
)

// UsageRequest asks a store to consume one unit of a feature. The store
// selects the limit from Limits using the tier it reads in the same atomic
// operation, so a tier change is always honored.
type UsageRequest struct {
	Feature usage.Feature
	Period  usage.Period
	Limits  usage.TierLimits
	Now     time.Time
}

// UsageResult is the account's ledger after a consume attempt
type UsageResult struct {
	Tier   usage.Tier
	Ledger usage.Ledger
}

// AccountStore persists accounts
type AccountStore interface {
	CreateAccount(ctx context.Context, acct *Account) error
	GetAccountByID(ctx context.Context, id string) (*Account, error)
	// GetAccountByLogin matches on email or username, case-insensitively
	GetAccountByLogin(ctx context.Context, login string) (*Account, error)
	UpdateSubscription(ctx context.Context, id string, tier usage.Tier, expiresAt *time.Time) error
	SetAccountActive(ctx context.Context, id string, active bool) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	TouchLogin(ctx context.Context, id string, at time.Time) error
	TouchActivity(ctx context.Context, id string, at time.Time) error
}

// UsageStore meters feature usage
type UsageStore interface {
	// ConsumeUsage rolls the ledger over to req.Period if needed and then
	// increments req.Feature by one only when the result stays within the
	// limit for the account's current tier. Both steps are atomic. When the
	// limit would be exceeded it returns the unchanged ledger together with
	// ErrLimitReached.
	ConsumeUsage(ctx context.Context, accountID string, req UsageRequest) (*UsageResult, error)
	// RolloverUsage applies the monthly reset if the stored period differs
	// and returns the current ledger.
	RolloverUsage(ctx context.Context, accountID string, period usage.Period) (*UsageResult, error)
}

// ToolStore persists what the study tools produce
type ToolStore interface {
	CreateNote(ctx context.Context, note *Note) error
	ListNotes(ctx context.Context, accountID string, limit int) ([]*Note, error)
	CreateQuestion(ctx context.Context, q *Question) error
	CreateQuiz(ctx context.Context, quiz *Quiz) error
	// GetQuiz returns ErrRecordNotFound when the quiz belongs to another account
	GetQuiz(ctx context.Context, accountID, quizID string) (*Quiz, error)
	SaveQuizResult(ctx context.Context, quiz *Quiz) error
	UpsertHabitEntry(ctx context.Context, entry *HabitEntry) (created bool, err error)
	// ListHabitDays returns the distinct entry days ("2006-01-02"), newest first
	ListHabitDays(ctx context.Context, accountID string) ([]string, error)
	GetStudyProfile(ctx context.Context, accountID string) (*StudyProfile, error)
	AddFavoriteTopic(ctx context.Context, accountID, topic string) error
	// AddWeakAreas merges areas into the profile and returns the full list
	AddWeakAreas(ctx context.Context, accountID string, areas []string) ([]string, error)
	SaveCareerProfile(ctx context.Context, accountID string, skills, targetRoles []string) error
	GetActivityStats(ctx context.Context, accountID string) (*ActivityStats, error)
}

// Store is everything the server needs from persistence
type Store interface {
	AccountStore
	UsageStore
	ToolStore
	Ping(ctx context.Context) error
	Close() error
}
