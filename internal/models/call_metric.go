// Package models defines data structures and domain types.
package models

import "time"

// UserTier is the caller class used for aggregation buckets.
type UserTier string

const (
	// TierFree represents callers on the free plan.
	TierFree UserTier = "free"
	// TierPremium represents callers on a paid plan.
	TierPremium UserTier = "premium"
	// TierUnknown is used when the caller class could not be determined.
	TierUnknown UserTier = "unknown"
)

// ParseUserTier normalizes a tier label. Unrecognized values map to TierUnknown.
func ParseUserTier(s string) UserTier {
	switch UserTier(s) {
	case TierFree, TierPremium:
		return UserTier(s)
	default:
		return TierUnknown
	}
}

// Outcome describes how the tracked call ended.
type Outcome string

const (
	// OutcomeSuccess means the wrapped call returned normally.
	OutcomeSuccess Outcome = "success"
	// OutcomeFailed means the wrapped call returned an error or panicked.
	OutcomeFailed Outcome = "failed"
	// OutcomeCancelled means the call's context was cancelled or timed out.
	OutcomeCancelled Outcome = "cancelled"
)

// CallMetric is the immutable record of one completed AI call.
// Once handed to a store it is never modified; corrections are new records.
type CallMetric struct {
	Timestamp      time.Time   `json:"timestamp"`
	CallID         string      `json:"call_id"`
	UserTier       UserTier    `json:"user_tier"`
	FeatureUsed    string      `json:"feature_used"`
	ImpactLevel    ImpactLevel `json:"impact_level"`
	Outcome        Outcome     `json:"outcome,omitempty"`
	CO2Grams       float64     `json:"co2_grams"`
	PromptTokens   int         `json:"prompt_tokens"`
	ResponseTokens int         `json:"response_tokens"`
	RetryCount     int         `json:"retry_count"`
	LatencyMs      int64       `json:"latency_ms"`
	CacheHit       bool        `json:"cache_hit"`
}

// Day returns the UTC calendar day the metric belongs to, formatted as 2006-01-02.
func (m CallMetric) Day() string {
	return m.Timestamp.UTC().Format(DayLayout)
}

// IsComplete reports whether every field an auditor relies on is populated.
func (m CallMetric) IsComplete() bool {
	return m.CallID != "" &&
		!m.Timestamp.IsZero() &&
		m.UserTier != "" && m.UserTier != TierUnknown &&
		m.FeatureUsed != "" &&
		m.ImpactLevel.Valid()
}

// DayLayout is the layout used for day partitions.
const DayLayout = "2006-01-02"

// TimestampLayout is a fixed-width ISO-8601 UTC layout that sorts lexically.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z"
