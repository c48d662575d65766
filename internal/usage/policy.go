package usage

import (
	"fmt"
	"strconv"
	"strings"
)

// TierLimits is the per-tier limit for a single feature
type TierLimits struct {
	Free       int64
	Premium    int64
	Enterprise int64
}

// For returns the limit for tier t. Unknown tiers get nothing.
func (tl TierLimits) For(t Tier) int64 {
	switch t {
	case TierFree:
		return tl.Free
	case TierPremium:
		return tl.Premium
	case TierEnterprise:
		return tl.Enterprise
	default:
		return 0
	}
}

// Policy is an immutable tier -> feature -> monthly allowance table
type Policy struct {
	limits map[Tier]map[Feature]int64
}

// DefaultTable returns the reference quota table
func DefaultTable() map[Tier]map[Feature]int64 {
	return map[Tier]map[Feature]int64{
		TierFree: {
			FeatureNotes:     10,
			FeatureQuestions: 20,
			FeatureQuizzes:   5,
			FeatureCareer:    3,
			FeaturePractice:  10,
			FeatureHabits:    30,
		},
		TierPremium: {
			FeatureNotes:     1000,
			FeatureQuestions: 5000,
			FeatureQuizzes:   500,
			FeatureCareer:    100,
			FeaturePractice:  500,
			FeatureHabits:    1000,
		},
		TierEnterprise: {
			FeatureNotes:     10000,
			FeatureQuestions: 50000,
			FeatureQuizzes:   5000,
			FeatureCareer:    1000,
			FeaturePractice:  5000,
			FeatureHabits:    10000,
		},
	}
}

// DefaultPolicy returns the policy built from DefaultTable
func DefaultPolicy() *Policy {
	p, err := NewPolicy(DefaultTable())
	if err != nil {
		panic(err)
	}
	return p
}

// NewPolicy validates that every (tier, feature) pair has a non-negative
// limit and copies the table.
func NewPolicy(table map[Tier]map[Feature]int64) (*Policy, error) {
	limits := make(map[Tier]map[Feature]int64, len(table))
	for _, t := range AllTiers() {
		row, ok := table[t]
		if !ok {
			return nil, fmt.Errorf("quota table missing tier %q", t)
		}
		copied := make(map[Feature]int64, len(allFeatures))
		for _, f := range allFeatures {
			v, ok := row[f]
			if !ok {
				return nil, fmt.Errorf("quota table missing %s/%s", t, f)
			}
			if v < 0 {
				return nil, fmt.Errorf("quota limit for %s/%s is negative: %d", t, f, v)
			}
			copied[f] = v
		}
		limits[t] = copied
	}
	for t := range table {
		if !t.Valid() {
			return nil, fmt.Errorf("quota table has unknown tier %q", t)
		}
	}
	return &Policy{limits: limits}, nil
}

// Limit returns the allowance for (tier, feature)
func (p *Policy) Limit(t Tier, f Feature) (int64, error) {
	row, ok := p.limits[t]
	if !ok {
		return 0, fmt.Errorf("unknown subscription tier %q", t)
	}
	v, ok := row[f]
	if !ok {
		return 0, fmt.Errorf("unknown feature %q", f)
	}
	return v, nil
}

// Limits returns the limits for f across every tier. Storage layers use
// this to evaluate the tier inside the atomic update.
func (p *Policy) Limits(f Feature) (TierLimits, error) {
	if !f.Valid() {
		return TierLimits{}, fmt.Errorf("unknown feature %q", f)
	}
	return TierLimits{
		Free:       p.limits[TierFree][f],
		Premium:    p.limits[TierPremium][f],
		Enterprise: p.limits[TierEnterprise][f],
	}, nil
}

// Table returns a copy of the full table
func (p *Policy) Table() map[Tier]map[Feature]int64 {
	out := make(map[Tier]map[Feature]int64, len(p.limits))
	for t, row := range p.limits {
		out[t] = make(map[Feature]int64, len(row))
		for f, v := range row {
			out[t][f] = v
		}
	}
	return out
}

// WithOverrides returns a new policy with the given entries replaced.
// Keys are "tier.feature".
func (p *Policy) WithOverrides(overrides map[string]int64) (*Policy, error) {
	table := p.Table()
	for key, v := range overrides {
		tierName, featureName, ok := strings.Cut(key, ".")
		if !ok {
			return nil, fmt.Errorf("quota override %q must be tier.feature", key)
		}
		t, err := ParseTier(tierName)
		if err != nil {
			return nil, err
		}
		f, err := ParseFeature(featureName)
		if err != nil {
			return nil, err
		}
		table[t][f] = v
	}
	return NewPolicy(table)
}

// ParseOverrides parses "free.notesGenerated=20,premium.quizzesTaken=800"
func ParseOverrides(s string) (map[string]int64, error) {
	out := make(map[string]int64)
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		key, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("quota override %q must be key=value", pair)
		}
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("quota override %q: %w", pair, err)
		}
		out[strings.TrimSpace(key)] = v
	}
	return out, nil
}
