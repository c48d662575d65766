package tools

import (
	"context"
	"fmt"

	"bytebuddy/internal/database"
	"bytebuddy/internal/quota"
	"bytebuddy/internal/usage"
)

// CareerRequest is the body of POST /api/career/analyze
type CareerRequest struct {
	Skills     []string    `json:"skills"`
	Experience string      `json:"experience"`
	Goals      CareerGoals `json:"goals"`
}

// CareerGoals holds the roles the learner is aiming for
type CareerGoals struct {
	TargetRoles []string `json:"targetRoles"`
}

// LearningItem is a recommended topic with resources
type LearningItem struct {
	Topic     string   `json:"topic"`
	Resources []string `json:"resources"`
}

// JobMatch is a role with a fit percentage
type JobMatch struct {
	Role  string `json:"role"`
	Match int    `json:"match"`
}

// Milestone is one month of the roadmap
type Milestone struct {
	Month int    `json:"month"`
	Goal  string `json:"goal"`
}

// Roadmap is a plan over several months
type Roadmap struct {
	Months     int         `json:"months"`
	Milestones []Milestone `json:"milestones"`
}

// CareerAnalysis is the simulated career assessment
type CareerAnalysis struct {
	SkillGaps           []string       `json:"skillGaps"`
	RecommendedLearning []LearningItem `json:"recommendedLearning"`
	JobMatches          []JobMatch     `json:"jobMatches"`
	Roadmap             Roadmap        `json:"roadmap"`
}

// CareerResult is the analysis with recommendations
type CareerResult struct {
	Analysis        CareerAnalysis    `json:"analysis"`
	Recommendations map[string]string `json:"recommendations"`
	Decision        *quota.Decision   `json:"usage"`
}

// AnalyzeCareer assesses skills against goals and saves the career profile
func (s *Service) AnalyzeCareer(ctx context.Context, acct *database.Account, req CareerRequest) (*CareerResult, error) {
	decision, err := s.admit(ctx, acct, usage.FeatureCareer)
	if err != nil {
		return nil, err
	}

	skills := req.Skills
	if skills == nil {
		skills = []string{}
	}
	roles := req.Goals.TargetRoles
	if roles == nil {
		roles = []string{}
	}
	if err := s.store.SaveCareerProfile(ctx, acct.ID, skills, roles); err != nil {
		return nil, fmt.Errorf("failed to save career profile: %w", err)
	}

	return &CareerResult{
		Analysis: CareerAnalysis{
			SkillGaps: []string{"Advanced JavaScript", "Cloud Computing", "System Design"},
			RecommendedLearning: []LearningItem{
				{Topic: "React Advanced Patterns", Resources: []string{"Documentation", "YouTube Course"}},
				{Topic: "AWS Certification", Resources: []string{"Official Guide", "Practice Tests"}},
			},
			JobMatches: []JobMatch{
				{Role: "Senior Frontend Developer", Match: 85},
				{Role: "Full Stack Developer", Match: 78},
			},
			Roadmap: Roadmap{
				Months: 6,
				Milestones: []Milestone{
					{Month: 1, Goal: "Master React Hooks"},
					{Month: 2, Goal: "Learn TypeScript"},
					{Month: 3, Goal: "Study System Design"},
				},
			},
		},
		Recommendations: map[string]string{
			"immediate": "Start with React Advanced Patterns",
			"longTerm":  "Aim for Senior Developer position in 12 months",
		},
		Decision: decision,
	}, nil
}
