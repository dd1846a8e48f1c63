package report

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j-veylop/green-ai-tracker/internal/aggregate"
	"github.com/j-veylop/green-ai-tracker/internal/carbon"
	"github.com/j-veylop/green-ai-tracker/internal/compliance"
	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/store"
)

var start = time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)

func newTestExporter(t *testing.T, s store.Store) *Exporter {
	t.Helper()
	cls, err := carbon.NewClassifier(carbon.DefaultThresholds())
	require.NoError(t, err)
	scorer, err := compliance.NewScorer(compliance.DefaultWeights(), carbon.DefaultThresholds())
	require.NoError(t, err)
	return NewExporter(aggregate.New(s), cls, scorer)
}

func seededStore(t *testing.T, n int) store.Store {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	est, err := carbon.NewEstimator(carbon.DefaultCalibration())
	require.NoError(t, err)
	cls, err := carbon.NewClassifier(carbon.DefaultThresholds())
	require.NoError(t, err)

	ctx := context.Background()
	for i := range n {
		u := carbon.Usage{PromptTokens: 100 * (i % 7), ResponseTokens: 250 * (i % 5), RetryCount: i % 2, CacheHit: i%3 == 0}
		e, err := est.Estimate(u)
		require.NoError(t, err)
		m := models.CallMetric{
			Timestamp:      start.Add(time.Duration(i) * 53 * time.Minute),
			CallID:         fmt.Sprintf("call-%03d", i),
			UserTier:       models.TierPremium,
			FeatureUsed:    "chat",
			ImpactLevel:    cls.Classify(e.CO2Grams),
			Outcome:        models.OutcomeSuccess,
			CO2Grams:       e.CO2Grams,
			PromptTokens:   u.PromptTokens,
			ResponseTokens: u.ResponseTokens,
			RetryCount:     u.RetryCount,
			LatencyMs:      int64(200 + i),
			CacheHit:       u.CacheHit,
		}
		require.NoError(t, s.Append(ctx, m))
	}
	return s
}

func TestExport_Reproducible(t *testing.T) {
	e := newTestExporter(t, seededStore(t, 150))
	ctx := context.Background()
	end := start.AddDate(0, 0, 7)

	var first []byte
	for i := range 3 {
		r, err := e.Export(ctx, start, end)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, WriteJSON(&buf, r))
		if i == 0 {
			first = buf.Bytes()
			continue
		}
		assert.Equal(t, string(first), buf.String(), "export %d differs", i)
	}
}

func TestExport_Schema(t *testing.T) {
	e := newTestExporter(t, seededStore(t, 40))
	r, err := e.Export(context.Background(), start, start.AddDate(0, 0, 7))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, r))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	for _, key := range []string{"window", "totals", "impact_distribution", "grade", "compliance_score", "schema_version"} {
		assert.Contains(t, doc, key)
	}
	assert.Equal(t, "1.0", doc["schema_version"])

	window := doc["window"].(map[string]any)
	assert.Equal(t, "2025-01-13T00:00:00Z", window["start"])
	assert.Equal(t, "2025-01-20T00:00:00Z", window["end"])

	totals := doc["totals"].(map[string]any)
	for _, key := range []string{"calls", "co2_grams", "avg_latency_ms", "cache_hit_ratio"} {
		assert.Contains(t, totals, key)
	}
	assert.EqualValues(t, 40, totals["calls"])

	dist := doc["impact_distribution"].(map[string]any)
	for _, level := range models.ImpactLevels {
		assert.Contains(t, dist, string(level))
	}

	// Keys appear in a fixed order
	out := buf.String()
	assert.Less(t, strings.Index(out, `"window"`), strings.Index(out, `"totals"`))
	assert.Less(t, strings.Index(out, `"grade"`), strings.Index(out, `"schema_version"`))
}

func TestExport_EmptyWindow(t *testing.T) {
	e := newTestExporter(t, seededStore(t, 0))
	r, err := e.Export(context.Background(), start, start.Add(time.Hour))
	require.NoError(t, err)

	assert.Zero(t, r.Totals.Calls)
	assert.Equal(t, carbon.GradeNone, r.Grade)
	assert.Zero(t, r.ComplianceScore)
	assert.Equal(t, models.ReportSchemaVersion, r.SchemaVersion)
}

func TestExport_InvalidWindow(t *testing.T) {
	e := newTestExporter(t, seededStore(t, 0))
	_, err := e.Export(context.Background(), start, start)
	assert.ErrorIs(t, err, models.ErrInvalidWindow)
}

func TestReadJSON_RoundTrip(t *testing.T) {
	e := newTestExporter(t, seededStore(t, 20))
	r, err := e.Export(context.Background(), start, start.AddDate(0, 0, 1))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, r))

	got, err := ReadJSON(&buf)
	require.NoError(t, err)
	assert.Equal(t, r, got)

	_, err = ReadJSON(strings.NewReader(`{"schema_version":"0.1"}`))
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	e := newTestExporter(t, seededStore(t, 60))

	var buf bytes.Buffer
	err := e.Render(context.Background(), &buf, start, start.AddDate(0, 0, 3), models.GranularityDay, 100)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "compliance report")
	assert.Contains(t, out, "2025-01-15")
}

func TestSummary_Periods(t *testing.T) {
	e := newTestExporter(t, seededStore(t, 60))
	s, err := e.Summary(context.Background(), start, start.AddDate(0, 0, 3), models.GranularityDay)
	require.NoError(t, err)

	require.Len(t, s.Periods, 3)
	calls := 0
	for _, p := range s.Periods {
		calls += p.Window.Calls
	}
	assert.Equal(t, s.Report.Totals.Calls, calls)
	assert.Equal(t, s.Report.ComplianceScore, s.Scores.Total)
}
