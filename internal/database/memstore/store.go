// Package memstore is an in-process database.Store for tests and single
// node development.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"bytebuddy/internal/database"
	"bytebuddy/internal/usage"
)

var _ database.Store = (*Store)(nil)

// Store keeps everything in maps behind a single RWMutex
type Store struct {
	mu        sync.RWMutex
	accounts  map[string]*database.Account
	notes     map[string][]*database.Note
	questions map[string][]*database.Question
	quizzes   map[string]*database.Quiz
	habits    map[string]map[string]*database.HabitEntry
	profiles  map[string]*database.StudyProfile
}

// New returns an empty store
func New() *Store {
	return &Store{
		accounts:  make(map[string]*database.Account),
		notes:     make(map[string][]*database.Note),
		questions: make(map[string][]*database.Question),
		quizzes:   make(map[string]*database.Quiz),
		habits:    make(map[string]map[string]*database.HabitEntry),
		profiles:  make(map[string]*database.StudyProfile),
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// ==================== Accounts ====================

func (s *Store) CreateAccount(_ context.Context, acct *database.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct.Prepare(time.Now())
	for _, existing := range s.accounts {
		if existing.Email == acct.Email || strings.EqualFold(existing.Username, acct.Username) {
			return database.ErrAccountExists
		}
	}
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	s.accounts[acct.ID] = acct.Clone()
	return nil
}

func (s *Store) GetAccountByID(_ context.Context, id string) (*database.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[id]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	return acct.Clone(), nil
}

func (s *Store) GetAccountByLogin(_ context.Context, login string) (*database.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	login = strings.TrimSpace(login)
	for _, acct := range s.accounts {
		if strings.EqualFold(acct.Email, login) || strings.EqualFold(acct.Username, login) {
			return acct.Clone(), nil
		}
	}
	return nil, database.ErrAccountNotFound
}

func (s *Store) UpdateSubscription(_ context.Context, id string, tier usage.Tier, expiresAt *time.Time) error {
	return s.mutate(id, func(a *database.Account) {
		a.SubscriptionTier = tier
		a.SubscriptionExpiresAt = expiresAt
	})
}

func (s *Store) SetAccountActive(_ context.Context, id string, active bool) error {
	return s.mutate(id, func(a *database.Account) { a.IsActive = active })
}

func (s *Store) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return s.mutate(id, func(a *database.Account) { a.PasswordHash = passwordHash })
}

func (s *Store) TouchLogin(_ context.Context, id string, at time.Time) error {
	at = at.UTC()
	return s.mutate(id, func(a *database.Account) {
		a.LastLoginAt = &at
		a.LastActivityAt = &at
	})
}

func (s *Store) TouchActivity(_ context.Context, id string, at time.Time) error {
	at = at.UTC()
	return s.mutate(id, func(a *database.Account) { a.LastActivityAt = &at })
}

func (s *Store) mutate(id string, fn func(*database.Account)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[id]
	if !ok {
		return database.ErrAccountNotFound
	}
	fn(acct)
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

// ==================== Usage ====================

func (s *Store) ConsumeUsage(_ context.Context, accountID string, req database.UsageRequest) (*database.UsageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	acct.Usage.Rollover(req.Period)

	res := &database.UsageResult{Tier: acct.SubscriptionTier}
	limit := req.Limits.For(acct.SubscriptionTier)
	if acct.Usage.Used(req.Feature)+1 > limit {
		res.Ledger = acct.Usage.Clone()
		return res, database.ErrLimitReached
	}
	acct.Usage.Counters[req.Feature]++
	res.Ledger = acct.Usage.Clone()
	return res, nil
}

func (s *Store) RolloverUsage(_ context.Context, accountID string, period usage.Period) (*database.UsageResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, ok := s.accounts[accountID]
	if !ok {
		return nil, database.ErrAccountNotFound
	}
	acct.Usage.Rollover(period)
	return &database.UsageResult{Tier: acct.SubscriptionTier, Ledger: acct.Usage.Clone()}, nil
}

// ==================== Tool records ====================

func (s *Store) CreateNote(_ context.Context, note *database.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if note.CreatedAt.IsZero() {
		note.CreatedAt = time.Now().UTC()
	}
	c := *note
	s.notes[note.AccountID] = append(s.notes[note.AccountID], &c)
	return nil
}

func (s *Store) ListNotes(_ context.Context, accountID string, limit int) ([]*database.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.notes[accountID]
	if limit <= 0 {
		limit = 20
	}
	out := make([]*database.Note, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		c := *all[i]
		out = append(out, &c)
	}
	return out, nil
}

func (s *Store) CreateQuestion(_ context.Context, q *database.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	c := *q
	s.questions[q.AccountID] = append(s.questions[q.AccountID], &c)
	return nil
}

func (s *Store) CreateQuiz(_ context.Context, quiz *database.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quiz.ID == "" {
		quiz.ID = uuid.NewString()
	}
	if quiz.CreatedAt.IsZero() {
		quiz.CreatedAt = time.Now().UTC()
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *Store) GetQuiz(_ context.Context, accountID, quizID string) (*database.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	quiz, ok := s.quizzes[quizID]
	if !ok || quiz.AccountID != accountID {
		return nil, database.ErrRecordNotFound
	}
	return cloneQuiz(quiz), nil
}

func (s *Store) SaveQuizResult(_ context.Context, quiz *database.Quiz) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.quizzes[quiz.ID]
	if !ok || existing.AccountID != quiz.AccountID {
		return database.ErrRecordNotFound
	}
	s.quizzes[quiz.ID] = cloneQuiz(quiz)
	return nil
}

func (s *Store) UpsertHabitEntry(_ context.Context, entry *database.HabitEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now().UTC()
	}
	days, ok := s.habits[entry.AccountID]
	if !ok {
		days = make(map[string]*database.HabitEntry)
		s.habits[entry.AccountID] = days
	}
	_, existed := days[entry.Day]
	c := *entry
	days[entry.Day] = &c
	return !existed, nil
}

func (s *Store) ListHabitDays(_ context.Context, accountID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	days := make([]string, 0, len(s.habits[accountID]))
	for d := range s.habits[accountID] {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days, nil
}

func (s *Store) GetStudyProfile(_ context.Context, accountID string) (*database.StudyProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[accountID]
	if !ok {
		return emptyProfile(accountID), nil
	}
	return cloneProfile(p), nil
}

func (s *Store) AddFavoriteTopic(_ context.Context, accountID, topic string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile(accountID)
	p.FavoriteTopics = appendMissing(p.FavoriteTopics, topic)
	return nil
}

func (s *Store) AddWeakAreas(_ context.Context, accountID string, areas []string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile(accountID)
	p.WeakAreas = appendMissing(p.WeakAreas, areas...)
	return append([]string(nil), p.WeakAreas...), nil
}

func (s *Store) SaveCareerProfile(_ context.Context, accountID string, skills, targetRoles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.profile(accountID)
	p.Skills = append([]string{}, skills...)
	p.TargetRoles = append([]string{}, targetRoles...)
	return nil
}

func (s *Store) GetActivityStats(_ context.Context, accountID string) (*database.ActivityStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &database.ActivityStats{
		NoteCount:     len(s.notes[accountID]),
		QuestionCount: len(s.questions[accountID]),
		HabitDays:     len(s.habits[accountID]),
	}
	var total, scored int
	for _, q := range s.quizzes {
		if q.AccountID != accountID {
			continue
		}
		stats.QuizCount++
		if q.Score != nil {
			total += *q.Score
			scored++
		}
	}
	if scored > 0 {
		stats.AverageScore = float64(total) / float64(scored)
	}
	return stats, nil
}

// profile must be called with the write lock held
func (s *Store) profile(accountID string) *database.StudyProfile {
	p, ok := s.profiles[accountID]
	if !ok {
		p = emptyProfile(accountID)
		s.profiles[accountID] = p
	}
	return p
}

func emptyProfile(accountID string) *database.StudyProfile {
	return &database.StudyProfile{
		AccountID:      accountID,
		FavoriteTopics: []string{},
		WeakAreas:      []string{},
		Skills:         []string{},
		TargetRoles:    []string{},
	}
}

func cloneProfile(p *database.StudyProfile) *database.StudyProfile {
	return &database.StudyProfile{
		AccountID:      p.AccountID,
		FavoriteTopics: append([]string{}, p.FavoriteTopics...),
		WeakAreas:      append([]string{}, p.WeakAreas...),
		Skills:         append([]string{}, p.Skills...),
		TargetRoles:    append([]string{}, p.TargetRoles...),
	}
}

func cloneQuiz(q *database.Quiz) *database.Quiz {
	c := *q
	c.Questions = make([]database.QuizQuestion, len(q.Questions))
	for i, qq := range q.Questions {
		qq.Options = append([]string(nil), qq.Options...)
		c.Questions[i] = qq
	}
	return &c
}

func appendMissing(list []string, items ...string) []string {
	for _, item := range items {
		if item == "" {
			continue
		}
		found := false
		for _, existing := range list {
			if existing == item {
				found = true
				break
			}
		}
		if !found {
			list = append(list, item)
		}
	}
	return list
}
