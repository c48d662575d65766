package tools

import (
	"context"
	"fmt"
	"strings"

	"bytebuddy/internal/database"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/usage"
)

// QuestionRequest is the body of POST /api/questions/ask
type QuestionRequest struct {
	Question   string `json:"question"`
	Subject    string `json:"subject"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
	ImageURL   string `json:"imageUrl"`
}

// QuestionResult is a solved question and the admission it consumed
type QuestionResult struct {
	Question *database.Question `json:"question"`
	Decision *quota.Decision    `json:"usage"`
}

// AskQuestion produces a worked solution and remembers the topic
func (s *Service) AskQuestion(ctx context.Context, acct *database.Account, req QuestionRequest) (*QuestionResult, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, invalid("question", "is required")
	}

	decision, err := s.admit(ctx, acct, usage.FeatureQuestions)
	if err != nil {
		return nil, err
	}

	topic := strings.TrimSpace(req.Topic)
	q := &database.Question{
		AccountID:  acct.ID,
		Question:   req.Question,
		Subject:    orDefault(strings.TrimSpace(req.Subject), "General"),
		Topic:      orDefault(topic, "General"),
		Difficulty: orDefault(req.Difficulty, "medium"),
		ImageURL:   req.ImageURL,
		Solution:   solve(),
		IsSolved:   true,
		CreatedAt:  s.now().UTC(),
	}

	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return nil, fmt.Errorf("failed to save question: %w", err)
	}
	if topic != "" {
		if err := s.store.AddFavoriteTopic(ctx, acct.ID, topic); err != nil {
			s.logger.WithError(err).Warn("Failed to record favorite topic", "account_id", acct.ID)
		}
	}
	return &QuestionResult{Question: q, Decision: decision}, nil
}

// solve returns the simulated three step solution
func solve() database.Solution {
	formula := func(s string) *string { return &s }
	return database.Solution{
		Steps: []database.SolutionStep{
			{
				StepNumber:  1,
				Description: "Understand the problem",
				Explanation: "First, we need to understand what is being asked.",
			},
			{
				StepNumber:  2,
				Description: "Apply relevant concepts",
				Explanation: "Based on the topic, we apply the appropriate formulas and methods.",
				Formula:     formula("Relevant formula here"),
			},
			{
				StepNumber:  3,
				Description: "Solve step by step",
				Explanation: "Breaking down the solution into manageable steps.",
				Formula:     formula("Step-by-step calculation"),
			},
		},
		FinalAnswer:      "Simulated answer based on the question",
		ExplanationLevel: "detailed",
	}
}
