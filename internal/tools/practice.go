package tools

import (
	"context"
	"strings"

	"bytebuddy/internal/database"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/usage"
)

// PracticeRequest is the body of POST /api/learning/practice
type PracticeRequest struct {
	Type       string `json:"type"`
	Content    string `json:"content"`
	Difficulty string `json:"difficulty"`
}

// PracticeFeedback is the simulated review of a practice text
type PracticeFeedback struct {
	GrammarScore   int      `json:"grammarScore"`
	Suggestions    []string `json:"suggestions"`
	CorrectedText  string   `json:"correctedText"`
	AreasToImprove []string `json:"areasToImprove"`
}

// PracticeResult is the feedback and the admission it consumed
type PracticeResult struct {
	Feedback  PracticeFeedback `json:"feedback"`
	NextSteps string           `json:"nextSteps"`
	Decision  *quota.Decision  `json:"usage"`
}

// Practice reviews a language practice submission
func (s *Service) Practice(ctx context.Context, acct *database.Account, req PracticeRequest) (*PracticeResult, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, invalid("content", "is required")
	}

	decision, err := s.admit(ctx, acct, usage.FeaturePractice)
	if err != nil {
		return nil, err
	}

	return &PracticeResult{
		Feedback: PracticeFeedback{
			GrammarScore: 70 + s.intn(30),
			Suggestions: []string{
				"Consider using more varied vocabulary",
				"Sentence structure could be improved",
				"Good use of technical terms",
			},
			CorrectedText:  req.Content + " (AI-corrected version)",
			AreasToImprove: []string{"Sentence variety", "Technical accuracy"},
		},
		NextSteps: "Practice with more complex sentences",
		Decision:  decision,
	}, nil
}
