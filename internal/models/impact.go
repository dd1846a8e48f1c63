// Package models defines data structures and domain types.
package models

// ImpactLevel is the discrete carbon-severity bucket of a call or window.
type ImpactLevel string

const (
	// ImpactExcellent is the lowest-emission bucket.
	ImpactExcellent ImpactLevel = "EXCELLENT"
	// ImpactGood is below the moderate threshold.
	ImpactGood ImpactLevel = "GOOD"
	// ImpactModerate is below the high threshold.
	ImpactModerate ImpactLevel = "MODERATE"
	// ImpactHigh is everything else.
	ImpactHigh ImpactLevel = "HIGH"
)

// ImpactLevels lists every level from least to most severe.
var ImpactLevels = []ImpactLevel{ImpactExcellent, ImpactGood, ImpactModerate, ImpactHigh}

// Severity returns 0 (EXCELLENT) through 3 (HIGH), or -1 for an unknown level.
func (l ImpactLevel) Severity() int {
	switch l {
	case ImpactExcellent:
		return 0
	case ImpactGood:
		return 1
	case ImpactModerate:
		return 2
	case ImpactHigh:
		return 3
	default:
		return -1
	}
}

// Valid reports whether l is one of the four known levels.
func (l ImpactLevel) Valid() bool {
	return l.Severity() >= 0
}

// String returns the level name.
func (l ImpactLevel) String() string {
	return string(l)
}
