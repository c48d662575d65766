package database

import (
	"strings"
	"time"

	"bytebuddy/internal/usage"
)

// Account is a registered learner
type Account struct {
	ID                    string       `json:"id"`
	Username              string       `json:"username"`
	Email                 string       `json:"email"`
	PasswordHash          string       `json:"-"`
	FullName              string       `json:"fullName"`
	SubscriptionTier      usage.Tier   `json:"subscription"`
	SubscriptionExpiresAt *time.Time   `json:"subscriptionExpiry,omitempty"`
	IsActive              bool         `json:"isActive"`
	EmailVerified         bool         `json:"isEmailVerified"`
	Usage                 usage.Ledger `json:"monthlyUsage"`
	LastLoginAt           *time.Time   `json:"lastLogin,omitempty"`
	LastActivityAt        *time.Time   `json:"lastActivity,omitempty"`
	CreatedAt             time.Time    `json:"createdAt"`
	UpdatedAt             time.Time    `json:"updatedAt"`
}

// NormalizeEmail lowercases and trims an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Prepare fills defaults for a new account before insertion
func (a *Account) Prepare(now time.Time) {
	a.Email = NormalizeEmail(a.Email)
	a.Username = strings.TrimSpace(a.Username)
	if a.SubscriptionTier == "" {
		a.SubscriptionTier = usage.TierFree
	}
	if a.Usage.Counters == nil || a.Usage.Period == "" {
		a.Usage = usage.NewLedger(usage.PeriodOf(now))
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now.UTC()
	}
	a.UpdatedAt = now.UTC()
}

// Clone returns a deep copy
func (a *Account) Clone() *Account {
	c := *a
	c.Usage = a.Usage.Clone()
	c.SubscriptionExpiresAt = cloneTime(a.SubscriptionExpiresAt)
	c.LastLoginAt = cloneTime(a.LastLoginAt)
	c.LastActivityAt = cloneTime(a.LastActivityAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// NoteMetadata is derived text statistics for a note
type NoteMetadata struct {
	WordCount   int    `json:"wordCount"`
	ReadingTime int    `json:"readingTime"`
	Complexity  string `json:"complexity"`
}

// Note is a generated study note
type Note struct {
	ID        string       `json:"id"`
	AccountID string       `json:"-"`
	Title     string       `json:"title"`
	Content   string       `json:"content,omitempty"`
	Summary   string       `json:"summary"`
	Format    string       `json:"format"`
	Tags      []string     `json:"tags"`
	Metadata  NoteMetadata `json:"metadata"`
	CreatedAt time.Time    `json:"createdAt"`
}

// SolutionStep is one step of a worked answer
type SolutionStep struct {
	StepNumber  int     `json:"stepNumber"`
	Description string  `json:"description"`
	Explanation string  `json:"explanation"`
	Formula     *string `json:"formula"`
}

// Solution is the worked answer to a question
type Solution struct {
	Steps            []SolutionStep `json:"steps"`
	FinalAnswer      string         `json:"finalAnswer"`
	ExplanationLevel string         `json:"explanationLevel"`
}

// Question is a doubt submitted to the solver
type Question struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"-"`
	Question   string    `json:"question"`
	Subject    string    `json:"subject"`
	Topic      string    `json:"topic"`
	Difficulty string    `json:"difficulty"`
	ImageURL   string    `json:"imageUrl,omitempty"`
	Solution   Solution  `json:"solution"`
	IsSolved   bool      `json:"isSolved"`
	CreatedAt  time.Time `json:"createdAt"`
}

// QuizQuestion is one multiple choice item
type QuizQuestion struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	Explanation   string   `json:"explanation,omitempty"`
	UserAnswer    *int     `json:"userAnswer,omitempty"`
	IsCorrect     *bool    `json:"isCorrect,omitempty"`
}

// Quiz is a generated quiz and, once submitted, its result
type Quiz struct {
	ID             string         `json:"id"`
	AccountID      string         `json:"-"`
	Title          string         `json:"title"`
	Subject        string         `json:"subject"`
	Difficulty     string         `json:"difficulty"`
	Questions      []QuizQuestion `json:"questions"`
	TotalQuestions int            `json:"totalQuestions"`
	Score          *int           `json:"score,omitempty"`
	TimeTaken      *int           `json:"timeTaken,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// HabitEntry is one day of habit tracking
type HabitEntry struct {
	AccountID    string    `json:"-"`
	Day          string    `json:"day"`
	Mood         string    `json:"mood,omitempty"`
	Productivity int       `json:"productivity,omitempty"`
	StudyHours   float64   `json:"studyHours,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	RecordedAt   time.Time `json:"recordedAt"`
}

// StudyProfile is per-account data the tools accumulate
type StudyProfile struct {
	AccountID      string   `json:"-"`
	FavoriteTopics []string `json:"favoriteTopics"`
	WeakAreas      []string `json:"weakAreas"`
	Skills         []string `json:"skills"`
	TargetRoles    []string `json:"targetRoles"`
}

// ActivityStats summarizes an account's stored tool records
type ActivityStats struct {
	NoteCount     int     `json:"noteCount"`
	QuestionCount int     `json:"questionCount"`
	QuizCount     int     `json:"quizCount"`
	HabitDays     int     `json:"habitDays"`
	AverageScore  float64 `json:"averageScore"`
}
