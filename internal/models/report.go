// Package models defines data structures and domain types.
package models

// ReportSchemaVersion tags the ComplianceReport layout.
const ReportSchemaVersion = "1.0"

// ReportWindow holds ISO-8601 UTC window bounds.
type ReportWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ReportTotals holds the headline figures of a report.
type ReportTotals struct {
	Calls         int     `json:"calls"`
	CO2Grams      float64 `json:"co2_grams"`
	AvgLatencyMs  float64 `json:"avg_latency_ms"`
	CacheHitRatio float64 `json:"cache_hit_ratio"`
}

// ComplianceReport is the externally publishable summary of a window.
// It carries no generation time so that identical store contents give identical reports.
type ComplianceReport struct {
	Window             ReportWindow       `json:"window"`
	Totals             ReportTotals       `json:"totals"`
	ImpactDistribution ImpactDistribution `json:"impact_distribution"`
	Grade              string             `json:"grade"`
	ComplianceScore    float64            `json:"compliance_score"`
	SchemaVersion      string             `json:"schema_version"`
}
