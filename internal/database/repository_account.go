package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"bytebuddy/internal/usage"
)

const accountColumns = `
	id, username, email, password_hash, full_name, subscription_tier,
	subscription_expires_at, is_active, email_verified,
	usage_period, notes_generated, questions_asked, quizzes_taken,
	career_sessions, language_practice, habit_entries,
	last_login_at, last_activity_at, created_at, updated_at`

// CreateAccount inserts a new account with an empty ledger
func (r *Repository) CreateAccount(ctx context.Context, acct *Account) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	acct.Prepare(time.Now())

	query := `
		INSERT INTO accounts (
			id, username, email, password_hash, full_name, subscription_tier,
			subscription_expires_at, is_active, email_verified, usage_period,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		acct.ID, acct.Username, acct.Email, acct.PasswordHash, acct.FullName,
		string(acct.SubscriptionTier), acct.SubscriptionExpiresAt, acct.IsActive,
		acct.EmailVerified, string(acct.Usage.Period), acct.CreatedAt, acct.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, `INSERT INTO study_profiles (account_id) VALUES ($1) ON CONFLICT DO NOTHING`, acct.ID)
	if err != nil {
		return fmt.Errorf("failed to create study profile: %w", err)
	}
	return nil
}

// GetAccountByID retrieves an account by ID
func (r *Repository) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrAccountNotFound
	}
	row := r.db.Pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id)
	return scanAccount(row)
}

// GetAccountByLogin retrieves an account by email or username
func (r *Repository) GetAccountByLogin(ctx context.Context, login string) (*Account, error) {
	login = strings.TrimSpace(login)
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE LOWER(email) = LOWER($1) OR LOWER(username) = LOWER($1) LIMIT 1`,
		login,
	)
	return scanAccount(row)
}

// UpdateSubscription changes an account's tier
func (r *Repository) UpdateSubscription(ctx context.Context, id string, tier usage.Tier, expiresAt *time.Time) error {
	return r.execAccount(ctx, "update subscription",
		`UPDATE accounts SET subscription_tier = $2, subscription_expires_at = $3, updated_at = NOW() WHERE id = $1`,
		id, string(tier), expiresAt,
	)
}

// SetAccountActive activates or deactivates an account
func (r *Repository) SetAccountActive(ctx context.Context, id string, active bool) error {
	return r.execAccount(ctx, "set account active",
		`UPDATE accounts SET is_active = $2, updated_at = NOW() WHERE id = $1`,
		id, active,
	)
}

// UpdatePassword replaces the stored password hash
func (r *Repository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.execAccount(ctx, "update password",
		`UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`,
		id, passwordHash,
	)
}

// TouchLogin records a successful login
func (r *Repository) TouchLogin(ctx context.Context, id string, at time.Time) error {
	return r.execAccount(ctx, "update last login",
		`UPDATE accounts SET last_login_at = $2, last_activity_at = $2 WHERE id = $1`,
		id, at.UTC(),
	)
}

// TouchActivity records account activity
func (r *Repository) TouchActivity(ctx context.Context, id string, at time.Time) error {
	return r.execAccount(ctx, "update last activity",
		`UPDATE accounts SET last_activity_at = $2 WHERE id = $1`,
		id, at.UTC(),
	)
}

func (r *Repository) execAccount(ctx context.Context, op, query string, args ...interface{}) error {
	if _, err := uuid.Parse(fmt.Sprint(args[0])); err != nil {
		return ErrAccountNotFound
	}
	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func scanAccount(row pgx.Row) (*Account, error) {
	var (
		acct   Account
		tier   string
		period string
		c      [6]int64
	)
	err := row.Scan(
		&acct.ID, &acct.Username, &acct.Email, &acct.PasswordHash, &acct.FullName, &tier,
		&acct.SubscriptionExpiresAt, &acct.IsActive, &acct.EmailVerified,
		&period, &c[0], &c[1], &c[2], &c[3], &c[4], &c[5],
		&acct.LastLoginAt, &acct.LastActivityAt, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	acct.SubscriptionTier = usage.Tier(tier)
	acct.Usage = ledgerFromColumns(period, c)
	return &acct, nil
}
