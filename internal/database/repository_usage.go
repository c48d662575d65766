package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"bytebuddy/internal/usage"
)

// usageColumns maps each feature to its counter column, in usage.AllFeatures order
var usageColumns = []struct {
	feature usage.Feature
	column  string
}{
	{usage.FeatureNotes, "notes_generated"},
	{usage.FeatureQuestions, "questions_asked"},
	{usage.FeatureQuizzes, "quizzes_taken"},
	{usage.FeatureCareer, "career_sessions"},
	{usage.FeaturePractice, "language_practice"},
	{usage.FeatureHabits, "habit_entries"},
}

const usageReturning = `subscription_tier, usage_period,
	notes_generated, questions_asked, quizzes_taken,
	career_sessions, language_practice, habit_entries`

func usageColumn(f usage.Feature) (string, bool) {
	for _, uc := range usageColumns {
		if uc.feature == f {
			return uc.column, true
		}
	}
	return "", false
}

func ledgerFromColumns(period string, c [6]int64) usage.Ledger {
	l := usage.NewLedger(usage.Period(period))
	for i, uc := range usageColumns {
		l.Counters[uc.feature] = c[i]
	}
	return l
}

// buildConsumeQuery renders the single guarded UPDATE used by ConsumeUsage.
// Every counter is reset when the stored period differs from $2; the target
// counter is then incremented only if the result stays within the limit
// selected by the row's tier ($3 free, $4 premium, $5 enterprise).
func buildConsumeQuery(target string) string {
	current := fmt.Sprintf("(CASE WHEN usage_period = $2 THEN %s ELSE 0 END)", target)

	var set strings.Builder
	for _, uc := range usageColumns {
		if uc.column == target {
			fmt.Fprintf(&set, "%s = %s + 1,\n\t\t\t", uc.column, current)
			continue
		}
		fmt.Fprintf(&set, "%s = CASE WHEN usage_period = $2 THEN %s ELSE 0 END,\n\t\t\t", uc.column, uc.column)
	}

	return fmt.Sprintf(`
		UPDATE accounts SET
			%susage_period = $2,
			updated_at = NOW()
		WHERE id = $1
		  AND %s + 1 <= CASE subscription_tier
				WHEN 'free' THEN $3::bigint
				WHEN 'premium' THEN $4::bigint
				WHEN 'enterprise' THEN $5::bigint
				ELSE 0
			END
		RETURNING %s
	`, set.String(), current, usageReturning)
}

// ConsumeUsage atomically rolls over and increments a feature counter
func (r *Repository) ConsumeUsage(ctx context.Context, accountID string, req UsageRequest) (*UsageResult, error) {
	column, ok := usageColumn(req.Feature)
	if !ok {
		return nil, fmt.Errorf("unknown feature %q", req.Feature)
	}
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, ErrAccountNotFound
	}

	row := r.db.Pool.QueryRow(ctx, buildConsumeQuery(column),
		accountID, string(req.Period), req.Limits.Free, req.Limits.Premium, req.Limits.Enterprise,
	)
	res, err := scanUsage(row)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume usage: %w", err)
	}

	// Either the account is gone or the limit is reached. The rollover still
	// has to be visible to the caller in the second case.
	res, err = r.RolloverUsage(ctx, accountID, req.Period)
	if err != nil {
		return nil, err
	}
	return res, ErrLimitReached
}

// RolloverUsage resets the ledger when the stored period is stale
func (r *Repository) RolloverUsage(ctx context.Context, accountID string, period usage.Period) (*UsageResult, error) {
	if _, err := uuid.Parse(accountID); err != nil {
		return nil, ErrAccountNotFound
	}

	var zero strings.Builder
	for _, uc := range usageColumns {
		fmt.Fprintf(&zero, "%s = 0, ", uc.column)
	}
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE accounts SET `+zero.String()+`usage_period = $2, updated_at = NOW() WHERE id = $1 AND usage_period <> $2`,
		accountID, string(period),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to roll over usage: %w", err)
	}

	row := r.db.Pool.QueryRow(ctx, `SELECT `+usageReturning+` FROM accounts WHERE id = $1`, accountID)
	res, err := scanUsage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read usage: %w", err)
	}
	return res, nil
}

func scanUsage(row pgx.Row) (*UsageResult, error) {
	var (
		tier   string
		period string
		c      [6]int64
	)
	if err := row.Scan(&tier, &period, &c[0], &c[1], &c[2], &c[3], &c[4], &c[5]); err != nil {
		return nil, err
	}
	return &UsageResult{Tier: usage.Tier(tier), Ledger: ledgerFromColumns(period, c)}, nil
}
