package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"bytebuddy/internal/database"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/usage"
)

const dayLayout = "2006-01-02"

// HabitRequest is the body of POST /api/habits/track
type HabitRequest struct {
	Mood         string  `json:"mood"`
	Productivity int     `json:"productivity"`
	StudyHours   float64 `json:"studyHours"`
	Notes        string  `json:"notes"`
}

// HabitStats summarizes tracking history
type HabitStats struct {
	CurrentStreak int `json:"currentStreak"`
	LongestStreak int `json:"longestStreak"`
	TotalEntries  int `json:"totalEntries"`
}

// HabitResult is the outcome of tracking today
type HabitResult struct {
	Created  bool            `json:"created"`
	Stats    HabitStats      `json:"stats"`
	Decision *quota.Decision `json:"usage"`
}

// TrackHabit records today's entry (UTC). Tracking twice on one day
// replaces that day's entry; both calls are metered.
func (s *Service) TrackHabit(ctx context.Context, acct *database.Account, req HabitRequest) (*HabitResult, error) {
	if req.Productivity < 0 || req.Productivity > 10 {
		return nil, invalid("productivity", "must be between 0 and 10")
	}
	if req.StudyHours < 0 || req.StudyHours > 24 {
		return nil, invalid("studyHours", "must be between 0 and 24")
	}

	decision, err := s.admit(ctx, acct, usage.FeatureHabits)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	today := now.Format(dayLayout)
	created, err := s.store.UpsertHabitEntry(ctx, &database.HabitEntry{
		AccountID:    acct.ID,
		Day:          today,
		Mood:         strings.TrimSpace(req.Mood),
		Productivity: req.Productivity,
		StudyHours:   req.StudyHours,
		Notes:        req.Notes,
		RecordedAt:   now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save habit entry: %w", err)
	}

	stats, err := s.habitStats(ctx, acct.ID, now)
	if err != nil {
		return nil, err
	}
	s.bus.PublishHabitTracked(acct.ID, today, stats.CurrentStreak)

	return &HabitResult{Created: created, Stats: *stats, Decision: decision}, nil
}

func (s *Service) habitStats(ctx context.Context, accountID string, now time.Time) (*HabitStats, error) {
	days, err := s.store.ListHabitDays(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list habit days: %w", err)
	}
	current, longest := Streaks(days, now)
	return &HabitStats{CurrentStreak: current, LongestStreak: longest, TotalEntries: len(days)}, nil
}

// Streaks computes the run of consecutive days ending today (or yesterday,
// when today has no entry yet) and the longest run in days. days may be in
// any order; malformed values are ignored.
func Streaks(days []string, now time.Time) (current, longest int) {
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		if _, err := time.Parse(dayLayout, d); err == nil {
			seen[d] = true
		}
	}

	for d := range seen {
		t, _ := time.Parse(dayLayout, d)
		if seen[t.AddDate(0, 0, -1).Format(dayLayout)] {
			continue // not the start of a run
		}
		run := 1
		for seen[t.AddDate(0, 0, run).Format(dayLayout)] {
			run++
		}
		if run > longest {
			longest = run
		}
	}

	day := now.UTC()
	if !seen[day.Format(dayLayout)] {
		day = day.AddDate(0, 0, -1)
	}
	for seen[day.Format(dayLayout)] {
		current++
		day = day.AddDate(0, 0, -1)
	}
	return current, longest
}
