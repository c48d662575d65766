package usage

import (
	"fmt"
	"strings"
)

// Feature is one of the metered study tools
type Feature string

const (
	FeatureNotes     Feature = "notesGenerated"
	FeatureQuestions Feature = "questionsAsked"
	FeatureQuizzes   Feature = "quizzesTaken"
	FeatureCareer    Feature = "careerSessions"
	FeaturePractice  Feature = "languagePractice"
	FeatureHabits    Feature = "habitEntries"
)

var allFeatures = []Feature{
	FeatureNotes,
	FeatureQuestions,
	FeatureQuizzes,
	FeatureCareer,
	FeaturePractice,
	FeatureHabits,
}

// AllFeatures returns the closed set of metered features in display order
func AllFeatures() []Feature {
	out := make([]Feature, len(allFeatures))
	copy(out, allFeatures)
	return out
}

// Valid reports whether f is a recognized feature
func (f Feature) Valid() bool {
	for _, known := range allFeatures {
		if f == known {
			return true
		}
	}
	return false
}

func (f Feature) String() string {
	return string(f)
}

// ParseFeature converts a wire name into a Feature
func ParseFeature(s string) (Feature, error) {
	f := Feature(strings.TrimSpace(s))
	if !f.Valid() {
		return "", fmt.Errorf("unknown feature %q", s)
	}
	return f, nil
}

// Tier is an account's subscription level
type Tier string

const (
	TierFree       Tier = "free"
	TierPremium    Tier = "premium"
	TierEnterprise Tier = "enterprise"
)

// AllTiers returns the closed set of subscription tiers
func AllTiers() []Tier {
	return []Tier{TierFree, TierPremium, TierEnterprise}
}

// Valid reports whether t is a recognized tier
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierEnterprise:
		return true
	default:
		return false
	}
}

func (t Tier) String() string {
	return string(t)
}

// ParseTier converts a tier name (case-insensitive) into a Tier
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown subscription tier %q", s)
	}
	return t, nil
}
