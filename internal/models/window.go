// Package models defines data structures and domain types.
package models

import "time"

// Granularity selects the width of aggregation sub-windows.
type Granularity int

const (
	// GranularityDay aligns windows on UTC midnight.
	GranularityDay Granularity = iota
	// GranularityWeek aligns windows on Monday 00:00 UTC.
	GranularityWeek
	// GranularityMonth aligns windows on the first day of the month, UTC.
	GranularityMonth
)

// String returns the display name for a granularity.
func (g Granularity) String() string {
	switch g {
	case GranularityDay:
		return "day"
	case GranularityWeek:
		return "week"
	case GranularityMonth:
		return "month"
	default:
		return "unknown"
	}
}

// ParseGranularity parses "day", "week" or "month". The second result is false for anything else.
func ParseGranularity(s string) (Granularity, bool) {
	switch s {
	case "day", "daily":
		return GranularityDay, true
	case "week", "weekly":
		return GranularityWeek, true
	case "month", "monthly":
		return GranularityMonth, true
	default:
		return GranularityDay, false
	}
}

// Truncate returns the start of the granularity period containing t, in UTC.
func (g Granularity) Truncate(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case GranularityWeek:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case GranularityMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Next returns the start of the period following the one that starts at t.
func (g Granularity) Next(t time.Time) time.Time {
	switch g {
	case GranularityWeek:
		return t.AddDate(0, 0, 7)
	case GranularityMonth:
		return t.AddDate(0, 1, 0)
	default:
		return t.AddDate(0, 0, 1)
	}
}

// ImpactDistribution counts calls per impact level.
type ImpactDistribution struct {
	Excellent int `json:"EXCELLENT"`
	Good      int `json:"GOOD"`
	Moderate  int `json:"MODERATE"`
	High      int `json:"HIGH"`
}

// Add increments the bucket for level. Unknown levels are ignored.
func (d *ImpactDistribution) Add(level ImpactLevel, n int) {
	switch level {
	case ImpactExcellent:
		d.Excellent += n
	case ImpactGood:
		d.Good += n
	case ImpactModerate:
		d.Moderate += n
	case ImpactHigh:
		d.High += n
	}
}

// Count returns the number of calls at level.
func (d ImpactDistribution) Count(level ImpactLevel) int {
	switch level {
	case ImpactExcellent:
		return d.Excellent
	case ImpactGood:
		return d.Good
	case ImpactModerate:
		return d.Moderate
	case ImpactHigh:
		return d.High
	default:
		return 0
	}
}

// Total returns the sum of all buckets.
func (d ImpactDistribution) Total() int {
	return d.Excellent + d.Good + d.Moderate + d.High
}

// AggregateWindow holds statistics over every CallMetric whose timestamp falls in [Start, End).
// It is derived from store contents and can always be recomputed.
type AggregateWindow struct {
	Start time.Time
	End   time.Time

	Calls         int
	CompleteCalls int
	FailedCalls   int
	CacheHits     int

	PromptTokens   int64
	ResponseTokens int64
	Retries        int64

	CO2Grams      float64 // sum
	MeanCO2Grams  float64
	AvgLatencyMs  float64
	AvgRetries    float64
	CacheHitRatio float64
	Completeness  float64

	Distribution ImpactDistribution
	Tiers        map[UserTier]int
}

// IsEmpty reports whether no call fell inside the window.
func (w AggregateWindow) IsEmpty() bool {
	return w.Calls == 0
}
