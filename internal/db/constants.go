package db

// SQL fragments shared by the call_metrics queries
const (
	sqlMetricColumns = `call_id, timestamp, day, user_tier, feature_used, impact_level,
		outcome, co2_grams, prompt_tokens, response_tokens, retry_count, latency_ms, cache_hit`

	// sqlWindowClause filters a half-open [start, end) timestamp window
	sqlWindowClause = "WHERE timestamp >= ? AND timestamp < ?"
)
