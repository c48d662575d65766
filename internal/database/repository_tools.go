package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// =====================================================
// NOTES
// =====================================================

// CreateNote inserts a generated note
func (r *Repository) CreateNote(ctx context.Context, note *Note) error {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	if note.Tags == nil {
		note.Tags = []string{}
	}
	query := `
		INSERT INTO notes (id, account_id, title, content, summary, format, tags,
			word_count, reading_time, complexity, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		note.ID, note.AccountID, note.Title, note.Content, note.Summary, note.Format, note.Tags,
		note.Metadata.WordCount, note.Metadata.ReadingTime, note.Metadata.Complexity, note.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create note: %w", err)
	}
	return nil
}

// ListNotes returns the newest notes for an account
func (r *Repository) ListNotes(ctx context.Context, accountID string, limit int) ([]*Note, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Pool.Query(ctx, `
		SELECT id, account_id, title, content, summary, format, tags,
			word_count, reading_time, complexity, created_at
		FROM notes WHERE account_id = $1
		ORDER BY created_at DESC LIMIT $2
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	var notes []*Note
	for rows.Next() {
		n := &Note{}
		if err := rows.Scan(
			&n.ID, &n.AccountID, &n.Title, &n.Content, &n.Summary, &n.Format, &n.Tags,
			&n.Metadata.WordCount, &n.Metadata.ReadingTime, &n.Metadata.Complexity, &n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// =====================================================
// QUESTIONS
// =====================================================

// CreateQuestion inserts a solved question
func (r *Repository) CreateQuestion(ctx context.Context, q *Question) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	solution, err := json.Marshal(q.Solution)
	if err != nil {
		return fmt.Errorf("failed to encode solution: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO questions (id, account_id, question, subject, topic, difficulty,
			image_url, solution, is_solved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, q.ID, q.AccountID, q.Question, q.Subject, q.Topic, q.Difficulty, q.ImageURL, solution, q.IsSolved, q.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

// =====================================================
// QUIZZES
// =====================================================

// CreateQuiz inserts a generated quiz
func (r *Repository) CreateQuiz(ctx context.Context, quiz *Quiz) error {
	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now().UTC()
	}
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode quiz questions: %w", err)
	}
	_, err = r.db.Pool.Exec(ctx, `
		INSERT INTO quizzes (id, account_id, title, subject, difficulty, questions, total_questions, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, quiz.ID, quiz.AccountID, quiz.Title, quiz.Subject, quiz.Difficulty, questions, quiz.TotalQuestions, quiz.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

// GetQuiz retrieves a quiz owned by accountID
func (r *Repository) GetQuiz(ctx context.Context, accountID, quizID string) (*Quiz, error) {
	if _, err := uuid.Parse(quizID); err != nil {
		return nil, ErrRecordNotFound
	}
	var (
		quiz      Quiz
		questions []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
		SELECT id, account_id, title, subject, difficulty, questions, total_questions,
			score, time_taken, completed_at, created_at
		FROM quizzes WHERE id = $1 AND account_id = $2
	`, quizID, accountID).Scan(
		&quiz.ID, &quiz.AccountID, &quiz.Title, &quiz.Subject, &quiz.Difficulty, &questions,
		&quiz.TotalQuestions, &quiz.Score, &quiz.TimeTaken, &quiz.CompletedAt, &quiz.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quiz: %w", err)
	}
	if err := json.Unmarshal(questions, &quiz.Questions); err != nil {
		return nil, fmt.Errorf("failed to decode quiz questions: %w", err)
	}
	return &quiz, nil
}

// SaveQuizResult stores answers and score for a submitted quiz
func (r *Repository) SaveQuizResult(ctx context.Context, quiz *Quiz) error {
	questions, err := json.Marshal(quiz.Questions)
	if err != nil {
		return fmt.Errorf("failed to encode quiz questions: %w", err)
	}
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE quizzes SET questions = $3, score = $4, time_taken = $5, completed_at = $6
		WHERE id = $1 AND account_id = $2
	`, quiz.ID, quiz.AccountID, questions, quiz.Score, quiz.TimeTaken, quiz.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to save quiz result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

// =====================================================
// HABITS
// =====================================================

// UpsertHabitEntry stores the entry for its day, replacing an earlier one
func (r *Repository) UpsertHabitEntry(ctx context.Context, entry *HabitEntry) (bool, error) {
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	var inserted bool
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO habit_entries (account_id, day, mood, productivity, study_hours, notes, recorded_at)
		VALUES ($1, $2::date, $3, $4, $5, $6, $7)
		ON CONFLICT (account_id, day) DO UPDATE SET
			mood = EXCLUDED.mood,
			productivity = EXCLUDED.productivity,
			study_hours = EXCLUDED.study_hours,
			notes = EXCLUDED.notes,
			recorded_at = EXCLUDED.recorded_at
		RETURNING (xmax = 0)
	`, entry.AccountID, entry.Day, entry.Mood, entry.Productivity, entry.StudyHours, entry.Notes, entry.RecordedAt).Scan(&inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert habit entry: %w", err)
	}
	return inserted, nil
}

// ListHabitDays returns entry days newest first
func (r *Repository) ListHabitDays(ctx context.Context, accountID string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT to_char(day, 'YYYY-MM-DD') FROM habit_entries WHERE account_id = $1 ORDER BY day DESC`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list habit days: %w", err)
	}
	defer rows.Close()

	var days []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan habit day: %w", err)
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// =====================================================
// STUDY PROFILE
// =====================================================

// GetStudyProfile returns the accumulated tool data for an account
func (r *Repository) GetStudyProfile(ctx context.Context, accountID string) (*StudyProfile, error) {
	p := &StudyProfile{AccountID: accountID}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT favorite_topics, weak_areas, skills, target_roles
		FROM study_profiles WHERE account_id = $1
	`, accountID).Scan(&p.FavoriteTopics, &p.WeakAreas, &p.Skills, &p.TargetRoles)
	if errors.Is(err, pgx.ErrNoRows) {
		return &StudyProfile{AccountID: accountID, FavoriteTopics: []string{}, WeakAreas: []string{}, Skills: []string{}, TargetRoles: []string{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get study profile: %w", err)
	}
	return p, nil
}

// AddFavoriteTopic appends topic unless already present
func (r *Repository) AddFavoriteTopic(ctx context.Context, accountID, topic string) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO study_profiles (account_id, favorite_topics) VALUES ($1, ARRAY[$2::text])
		ON CONFLICT (account_id) DO UPDATE SET favorite_topics =
			CASE WHEN $2 = ANY(study_profiles.favorite_topics) THEN study_profiles.favorite_topics
			ELSE array_append(study_profiles.favorite_topics, $2) END
	`, accountID, topic)
	if err != nil {
		return fmt.Errorf("failed to add favorite topic: %w", err)
	}
	return nil
}

// AddWeakAreas merges areas into the profile, keeping first-seen order
func (r *Repository) AddWeakAreas(ctx context.Context, accountID string, areas []string) ([]string, error) {
	areas = dedupe(areas)
	var merged []string
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO study_profiles (account_id, weak_areas) VALUES ($1, $2::text[])
		ON CONFLICT (account_id) DO UPDATE SET weak_areas = study_profiles.weak_areas || ARRAY(
			SELECT a FROM unnest($2::text[]) WITH ORDINALITY AS t(a, n)
			WHERE NOT (a = ANY(study_profiles.weak_areas))
			ORDER BY n
		)
		RETURNING weak_areas
	`, accountID, areas).Scan(&merged)
	if err != nil {
		return nil, fmt.Errorf("failed to add weak areas: %w", err)
	}
	return merged, nil
}

// SaveCareerProfile replaces skills and target roles
func (r *Repository) SaveCareerProfile(ctx context.Context, accountID string, skills, targetRoles []string) error {
	if skills == nil {
		skills = []string{}
	}
	if targetRoles == nil {
		targetRoles = []string{}
	}
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO study_profiles (account_id, skills, target_roles) VALUES ($1, $2, $3)
		ON CONFLICT (account_id) DO UPDATE SET skills = EXCLUDED.skills, target_roles = EXCLUDED.target_roles
	`, accountID, skills, targetRoles)
	if err != nil {
		return fmt.Errorf("failed to save career profile: %w", err)
	}
	return nil
}

// GetActivityStats counts an account's stored records
func (r *Repository) GetActivityStats(ctx context.Context, accountID string) (*ActivityStats, error) {
	stats := &ActivityStats{}
	err := r.db.Pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM notes WHERE account_id = $1),
			(SELECT COUNT(*) FROM questions WHERE account_id = $1),
			(SELECT COUNT(*) FROM quizzes WHERE account_id = $1),
			(SELECT COUNT(*) FROM habit_entries WHERE account_id = $1),
			(SELECT COALESCE(AVG(score), 0)::float8 FROM quizzes WHERE account_id = $1 AND score IS NOT NULL)
	`, accountID).Scan(&stats.NoteCount, &stats.QuestionCount, &stats.QuizCount, &stats.HabitDays, &stats.AverageScore)
	if err != nil {
		return nil, fmt.Errorf("failed to get activity stats: %w", err)
	}
	return stats, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
