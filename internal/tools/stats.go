package tools

import (
	"context"
	"fmt"

	"bytebuddy/internal/database"
)

// Stats is the body of GET /api/user/stats
type Stats struct {
	NoteCount     int                    `json:"noteCount"`
	QuestionCount int                    `json:"questionCount"`
	QuizCount     int                    `json:"quizCount"`
	AverageScore  float64                `json:"averageScore"`
	Habits        HabitStats             `json:"habits"`
	Profile       *database.StudyProfile `json:"profile"`
}

// Stats aggregates the account's stored tool records. It is not metered.
func (s *Service) Stats(ctx context.Context, acct *database.Account) (*Stats, error) {
	activity, err := s.store.GetActivityStats(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load activity stats: %w", err)
	}
	habits, err := s.habitStats(ctx, acct.ID, s.now())
	if err != nil {
		return nil, err
	}
	profile, err := s.store.GetStudyProfile(ctx, acct.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load study profile: %w", err)
	}

	return &Stats{
		NoteCount:     activity.NoteCount,
		QuestionCount: activity.QuestionCount,
		QuizCount:     activity.QuizCount,
		AverageScore:  activity.AverageScore,
		Habits:        *habits,
		Profile:       profile,
	}, nil
}

// RecentNotes lists the newest notes
func (s *Service) RecentNotes(ctx context.Context, acct *database.Account, limit int) ([]*database.Note, error) {
	notes, err := s.store.ListNotes(ctx, acct.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	return notes, nil
}
