package usage

import (
	"fmt"
	"time"
)

// Period identifies one calendar month of usage, formatted "YYYY-MM" in UTC
type Period string

const periodLayout = "2006-01"

// PeriodOf returns the period containing t, evaluated in UTC
func PeriodOf(t time.Time) Period {
	return Period(t.UTC().Format(periodLayout))
}

// ParsePeriod validates a "YYYY-MM" string
func ParsePeriod(s string) (Period, error) {
	if _, err := time.Parse(periodLayout, s); err != nil {
		return "", fmt.Errorf("invalid usage period %q: %w", s, err)
	}
	return Period(s), nil
}

// Valid reports whether p is a well-formed period key
func (p Period) Valid() bool {
	_, err := time.Parse(periodLayout, string(p))
	return err == nil
}

func (p Period) String() string {
	return string(p)
}

// Ledger holds one account's counters for a single period
type Ledger struct {
	Period   Period            `json:"month"`
	Counters map[Feature]int64 `json:"counters"`
}

// NewLedger returns a ledger with every feature counter at zero
func NewLedger(period Period) Ledger {
	l := Ledger{Period: period, Counters: make(map[Feature]int64, len(allFeatures))}
	for _, f := range allFeatures {
		l.Counters[f] = 0
	}
	return l
}

// Rollover resets all counters and advances the period when it differs
// from the stored one. Returns true if a reset happened.
func (l *Ledger) Rollover(period Period) bool {
	if l.Period == period && l.Counters != nil {
		return false
	}
	*l = NewLedger(period)
	return true
}

// Used returns the counter for f (zero when absent)
func (l Ledger) Used(f Feature) int64 {
	return l.Counters[f]
}

// Clone returns a deep copy
func (l Ledger) Clone() Ledger {
	out := Ledger{Period: l.Period, Counters: make(map[Feature]int64, len(l.Counters))}
	for k, v := range l.Counters {
		out.Counters[k] = v
	}
	return out
}
