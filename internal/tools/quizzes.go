package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"bytebuddy/internal/database"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/usage"
)

const (
	defaultQuizQuestions = 10
	maxQuizQuestions     = 50
)

var quizOptions = []string{"Option A", "Option B", "Option C", "Option D"}

// QuizRequest is the body of POST /api/quizzes/generate
type QuizRequest struct {
	Subject           string `json:"subject"`
	Topic             string `json:"topic"`
	Difficulty        string `json:"difficulty"`
	NumberOfQuestions int    `json:"numberOfQuestions"`
}

// QuizResult is a generated quiz and the admission it consumed
type QuizResult struct {
	Quiz     *database.Quiz  `json:"quiz"`
	Decision *quota.Decision `json:"usage"`
}

// SubmitRequest is the body of POST /api/quizzes/submit
type SubmitRequest struct {
	QuizID    string `json:"quizId"`
	Answers   []int  `json:"answers"`
	TimeTaken *int   `json:"timeTaken"`
}

// SubmitResult is the graded quiz
type SubmitResult struct {
	Score          int      `json:"score"`
	TotalQuestions int      `json:"totalQuestions"`
	Percentage     int      `json:"percentage"`
	TimeTaken      *int     `json:"timeTaken"`
	WeakAreas      []string `json:"weakAreas"`
}

// GenerateQuiz builds a multiple choice quiz. Only generation is metered.
func (s *Service) GenerateQuiz(ctx context.Context, acct *database.Account, req QuizRequest) (*QuizResult, error) {
	n := req.NumberOfQuestions
	switch {
	case n == 0:
		n = defaultQuizQuestions
	case n < 0 || n > maxQuizQuestions:
		return nil, invalid("numberOfQuestions", fmt.Sprintf("must be between 1 and %d", maxQuizQuestions))
	}

	decision, err := s.admit(ctx, acct, usage.FeatureQuizzes)
	if err != nil {
		return nil, err
	}

	subject := orDefault(strings.TrimSpace(req.Subject), "General")
	about := orDefault(strings.TrimSpace(req.Topic), orDefault(strings.TrimSpace(req.Subject), "general knowledge"))

	questions := make([]database.QuizQuestion, n)
	for i := range questions {
		questions[i] = database.QuizQuestion{
			Question:      fmt.Sprintf("Sample question %d about %s", i+1, about),
			Options:       append([]string(nil), quizOptions...),
			CorrectAnswer: s.intn(len(quizOptions)),
			Explanation:   "This is a sample explanation for the correct answer.",
		}
	}

	now := s.now().UTC()
	quiz := &database.Quiz{
		AccountID:      acct.ID,
		Title:          fmt.Sprintf("%s Quiz - %s", subject, now.Format("2006-01-02")),
		Subject:        subject,
		Difficulty:     orDefault(req.Difficulty, "medium"),
		Questions:      questions,
		TotalQuestions: len(questions),
		CreatedAt:      now,
	}

	if err := s.store.CreateQuiz(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to save quiz: %w", err)
	}
	return &QuizResult{Quiz: quiz, Decision: decision}, nil
}

// SubmitQuiz grades answers by position. Missing answers count as wrong.
// Any wrong answer adds the quiz subject to the account's weak areas.
func (s *Service) SubmitQuiz(ctx context.Context, acct *database.Account, req SubmitRequest) (*SubmitResult, error) {
	if strings.TrimSpace(req.QuizID) == "" {
		return nil, invalid("quizId", "is required")
	}

	quiz, err := s.store.GetQuiz(ctx, acct.ID, req.QuizID)
	if errors.Is(err, database.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load quiz: %w", err)
	}

	score := 0
	missed := false
	for i := range quiz.Questions {
		q := &quiz.Questions[i]
		var correct bool
		if i < len(req.Answers) {
			answer := req.Answers[i]
			q.UserAnswer = &answer
			correct = answer == q.CorrectAnswer
		} else {
			q.UserAnswer = nil
		}
		q.IsCorrect = &correct
		if correct {
			score++
		} else {
			missed = true
		}
	}

	completed := s.now().UTC()
	quiz.Score = &score
	quiz.CompletedAt = &completed
	if req.TimeTaken != nil {
		quiz.TimeTaken = req.TimeTaken
	}

	if err := s.store.SaveQuizResult(ctx, quiz); err != nil {
		return nil, fmt.Errorf("failed to save quiz result: %w", err)
	}

	var areas []string
	if missed {
		areas = []string{quiz.Subject}
	}
	weak, err := s.store.AddWeakAreas(ctx, acct.ID, areas)
	if err != nil {
		return nil, fmt.Errorf("failed to update weak areas: %w", err)
	}

	percentage := 0
	if quiz.TotalQuestions > 0 {
		percentage = int(math.Round(float64(score) / float64(quiz.TotalQuestions) * 100))
	}
	s.bus.PublishQuizCompleted(acct.ID, quiz.ID, score, quiz.TotalQuestions, percentage)

	if weak == nil {
		weak = []string{}
	}
	return &SubmitResult{
		Score:          score,
		TotalQuestions: quiz.TotalQuestions,
		Percentage:     percentage,
		TimeTaken:      quiz.TimeTaken,
		WeakAreas:      weak,
	}, nil
}
