package mongostore

import (
	"strings"
	"time"

	"bytebuddy/internal/database"
	"bytebuddy/internal/usage"
)

type usageModel struct {
	Month    string           `bson:"month"`
	Counters map[string]int64 `bson:"counters"`
}

type toolsDataModel struct {
	FavoriteTopics []string `bson:"favorite_topics"`
	WeakAreas      []string `bson:"weak_areas"`
	Skills         []string `bson:"skills"`
	TargetRoles    []string `bson:"target_roles"`
}

type accountModel struct {
	ID                 string         `bson:"_id"`
	Username           string         `bson:"username"`
	UsernameLower      string         `bson:"username_lower"`
	Email              string         `bson:"email"`
	PasswordHash       string         `bson:"password_hash"`
	FullName           string         `bson:"full_name"`
	Subscription       string         `bson:"subscription"`
	SubscriptionExpiry *time.Time     `bson:"subscription_expiry,omitempty"`
	IsActive           bool           `bson:"is_active"`
	IsEmailVerified    bool           `bson:"is_email_verified"`
	MonthlyUsage       usageModel     `bson:"monthly_usage"`
	ToolsData          toolsDataModel `bson:"tools_data"`
	LastLogin          *time.Time     `bson:"last_login,omitempty"`
	LastActivity       *time.Time     `bson:"last_activity,omitempty"`
	CreatedAt          time.Time      `bson:"created_at"`
	UpdatedAt          time.Time      `bson:"updated_at"`
}

func zeroCounters() map[string]int64 {
	out := make(map[string]int64, 6)
	for _, f := range usage.AllFeatures() {
		out[string(f)] = 0
	}
	return out
}

func toUsageModel(l usage.Ledger) usageModel {
	m := usageModel{Month: string(l.Period), Counters: zeroCounters()}
	for f, v := range l.Counters {
		m.Counters[string(f)] = v
	}
	return m
}

func fromUsageModel(m usageModel) usage.Ledger {
	l := usage.NewLedger(usage.Period(m.Month))
	for _, f := range usage.AllFeatures() {
		l.Counters[f] = m.Counters[string(f)]
	}
	return l
}

func toAccountModel(a *database.Account) *accountModel {
	return &accountModel{
		ID:                 a.ID,
		Username:           a.Username,
		UsernameLower:      strings.ToLower(a.Username),
		Email:              a.Email,
		PasswordHash:       a.PasswordHash,
		FullName:           a.FullName,
		Subscription:       string(a.SubscriptionTier),
		SubscriptionExpiry: a.SubscriptionExpiresAt,
		IsActive:           a.IsActive,
		IsEmailVerified:    a.EmailVerified,
		MonthlyUsage:       toUsageModel(a.Usage),
		ToolsData: toolsDataModel{
			FavoriteTopics: []string{},
			WeakAreas:      []string{},
			Skills:         []string{},
			TargetRoles:    []string{},
		},
		LastLogin:    a.LastLoginAt,
		LastActivity: a.LastActivityAt,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) *database.Account {
	return &database.Account{
		ID:                    m.ID,
		Username:              m.Username,
		Email:                 m.Email,
		PasswordHash:          m.PasswordHash,
		FullName:              m.FullName,
		SubscriptionTier:      usage.Tier(m.Subscription),
		SubscriptionExpiresAt: m.SubscriptionExpiry,
		IsActive:              m.IsActive,
		EmailVerified:         m.IsEmailVerified,
		Usage:                 fromUsageModel(m.MonthlyUsage),
		LastLoginAt:           m.LastLogin,
		LastActivityAt:        m.LastActivity,
		CreatedAt:             m.CreatedAt,
		UpdatedAt:             m.UpdatedAt,
	}
}

type noteModel struct {
	ID          string    `bson:"_id"`
	AccountID   string    `bson:"account_id"`
	Title       string    `bson:"title"`
	Content     string    `bson:"content"`
	Summary     string    `bson:"summary"`
	Format      string    `bson:"format"`
	Tags        []string  `bson:"tags"`
	WordCount   int       `bson:"word_count"`
	ReadingTime int       `bson:"reading_time"`
	Complexity  string    `bson:"complexity"`
	CreatedAt   time.Time `bson:"created_at"`
}

func toNoteModel(n *database.Note) *noteModel {
	return &noteModel{
		ID: n.ID, AccountID: n.AccountID, Title: n.Title, Content: n.Content, Summary: n.Summary,
		Format: n.Format, Tags: n.Tags, WordCount: n.Metadata.WordCount,
		ReadingTime: n.Metadata.ReadingTime, Complexity: n.Metadata.Complexity, CreatedAt: n.CreatedAt,
	}
}

func fromNoteModel(m *noteModel) *database.Note {
	return &database.Note{
		ID: m.ID, AccountID: m.AccountID, Title: m.Title, Content: m.Content, Summary: m.Summary,
		Format: m.Format, Tags: m.Tags,
		Metadata:  database.NoteMetadata{WordCount: m.WordCount, ReadingTime: m.ReadingTime, Complexity: m.Complexity},
		CreatedAt: m.CreatedAt,
	}
}

type questionModel struct {
	ID         string            `bson:"_id"`
	AccountID  string            `bson:"account_id"`
	Question   string            `bson:"question"`
	Subject    string            `bson:"subject"`
	Topic      string            `bson:"topic"`
	Difficulty string            `bson:"difficulty"`
	ImageURL   string            `bson:"image_url,omitempty"`
	Solution   database.Solution `bson:"solution"`
	IsSolved   bool              `bson:"is_solved"`
	CreatedAt  time.Time         `bson:"created_at"`
}

type quizModel struct {
	ID             string                  `bson:"_id"`
	AccountID      string                  `bson:"account_id"`
	Title          string                  `bson:"title"`
	Subject        string                  `bson:"subject"`
	Difficulty     string                  `bson:"difficulty"`
	Questions      []database.QuizQuestion `bson:"questions"`
	TotalQuestions int                     `bson:"total_questions"`
	Score          *int                    `bson:"score,omitempty"`
	TimeTaken      *int                    `bson:"time_taken,omitempty"`
	CompletedAt    *time.Time              `bson:"completed_at,omitempty"`
	CreatedAt      time.Time               `bson:"created_at"`
}

func toQuizModel(q *database.Quiz) *quizModel {
	return &quizModel{
		ID: q.ID, AccountID: q.AccountID, Title: q.Title, Subject: q.Subject, Difficulty: q.Difficulty,
		Questions: q.Questions, TotalQuestions: q.TotalQuestions, Score: q.Score, TimeTaken: q.TimeTaken,
		CompletedAt: q.CompletedAt, CreatedAt: q.CreatedAt,
	}
}

func fromQuizModel(m *quizModel) *database.Quiz {
	return &database.Quiz{
		ID: m.ID, AccountID: m.AccountID, Title: m.Title, Subject: m.Subject, Difficulty: m.Difficulty,
		Questions: m.Questions, TotalQuestions: m.TotalQuestions, Score: m.Score, TimeTaken: m.TimeTaken,
		CompletedAt: m.CompletedAt, CreatedAt: m.CreatedAt,
	}
}

type habitModel struct {
	ID           string    `bson:"_id"`
	AccountID    string    `bson:"account_id"`
	Day          string    `bson:"day"`
	Mood         string    `bson:"mood"`
	Productivity int       `bson:"productivity"`
	StudyHours   float64   `bson:"study_hours"`
	Notes        string    `bson:"notes"`
	RecordedAt   time.Time `bson:"recorded_at"`
}
