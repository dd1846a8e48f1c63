package commands

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j-veylop/green-ai-tracker/internal/carbon"
	"github.com/j-veylop/green-ai-tracker/internal/compliance"
	"github.com/j-veylop/green-ai-tracker/internal/config"
	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/version"
)

var now = time.Date(2025, 1, 20, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T, backend string) (*App, *bytes.Buffer) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		DataDir:      filepath.Join(dir, "metrics"),
		StoreBackend: backend,
		DatabasePath: filepath.Join(dir, "metrics.db"),
		AlertGrade:   "D",
		Retention:    90 * 24 * time.Hour,
		Calibration:  carbon.DefaultCalibration(),
	}

	var out bytes.Buffer
	return &App{
		Out: &out,
		LoadConfig: func() (*config.Config, error) {
			c := cfg
			return &c, nil
		},
		Now: func() time.Time { return now },
	}, &out
}

func run(t *testing.T, a *App, args ...string) error {
	t.Helper()
	return a.Root().Run(context.Background(), append([]string{"gat"}, args...))
}

func TestSimulateThenReportJSON(t *testing.T) {
	for _, backend := range []string{config.BackendFile, config.BackendSQLite} {
		t.Run(backend, func(t *testing.T) {
			a, out := newTestApp(t, backend)

			require.NoError(t, run(t, a, "simulate", "--calls", "50", "--seed", "7"))
			assert.Contains(t, out.String(), "Recorded 50 calls")
			assert.Contains(t, out.String(), "0 dropped")

			out.Reset()
			require.NoError(t, run(t, a, "report", "--format", "json", "--start", "2025-01-20", "--end", "2025-01-21"))

			var r models.ComplianceReport
			require.NoError(t, json.Unmarshal(out.Bytes(), &r))
			assert.Equal(t, 50, r.Totals.Calls)
			assert.Equal(t, 50, r.ImpactDistribution.Total())
			assert.Equal(t, "2025-01-20T00:00:00Z", r.Window.Start)
			assert.Equal(t, models.ReportSchemaVersion, r.SchemaVersion)
		})
	}
}

func TestSimulate_Deterministic(t *testing.T) {
	var reports []string
	for range 2 {
		a, out := newTestApp(t, config.BackendFile)
		require.NoError(t, run(t, a, "simulate", "--calls", "40", "--seed", "3", "--concurrency", "4"))
		out.Reset()
		require.NoError(t, run(t, a, "report", "--format", "json", "--days", "1", "--end", "2025-01-21"))
		reports = append(reports, out.String())
	}
	assert.Equal(t, reports[0], reports[1])
}

func TestReport_Text(t *testing.T) {
	a, out := newTestApp(t, config.BackendFile)
	require.NoError(t, run(t, a, "simulate", "--calls", "10"))

	out.Reset()
	require.NoError(t, run(t, a, "report", "--days", "3", "--width", "120"))
	assert.Contains(t, out.String(), "compliance report")
	assert.Contains(t, out.String(), "2025-01-20")
}

func TestReport_MinScore(t *testing.T) {
	a, _ := newTestApp(t, config.BackendFile)

	// No calls means no evidence
	err := run(t, a, "report", "--format", "json", "--min-score", "0")
	assert.ErrorIs(t, err, compliance.ErrNoEvidence)

	// Simulated calls are stamped at now; the window end is exclusive
	require.NoError(t, run(t, a, "simulate", "--calls", "20"))
	assert.ErrorIs(t, run(t, a, "report", "--format", "json", "--min-score", "0"), compliance.ErrNoEvidence)
	assert.NoError(t, run(t, a, "report", "--format", "json", "--end", "2025-01-21", "--min-score", "0"))
	assert.Error(t, run(t, a, "report", "--format", "json", "--end", "2025-01-21", "--min-score", "100.5"))
}

func TestReport_BadFlags(t *testing.T) {
	a, _ := newTestApp(t, config.BackendFile)

	assert.Error(t, run(t, a, "report", "--granularity", "hourly"))
	assert.Error(t, run(t, a, "report", "--format", "xml"))
	assert.Error(t, run(t, a, "report", "--start", "yesterday"))
	assert.Error(t, run(t, a, "report", "--days", "0"))
	assert.ErrorIs(t, run(t, a, "report", "--start", "2025-01-20", "--end", "2025-01-20"), models.ErrInvalidWindow)
}

func TestVerify(t *testing.T) {
	a, out := newTestApp(t, config.BackendSQLite)
	require.NoError(t, run(t, a, "simulate", "--calls", "25"))

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, run(t, a, "report", "--format", "json", "--days", "1", "--end", "2025-01-21", "-o", path))

	out.Reset()
	require.NoError(t, run(t, a, "verify", path))
	assert.Contains(t, out.String(), "matches")

	// New calls in the window change the report
	require.NoError(t, run(t, a, "simulate", "--calls", "5", "--seed", "9"))
	assert.ErrorIs(t, run(t, a, "verify", path), ErrReportMismatch)

	assert.Error(t, run(t, a, "verify"))
	assert.Error(t, run(t, a, "verify", filepath.Join(t.TempDir(), "missing.json")))
}

func TestStats(t *testing.T) {
	a, out := newTestApp(t, config.BackendFile)
	require.NoError(t, run(t, a, "simulate", "--calls", "30", "--tier", "premium"))

	out.Reset()
	require.NoError(t, run(t, a, "stats", "--days", "3", "--end", "2025-01-21"))
	s := out.String()
	for _, want := range []string{"Calls", "30 (", "premium 30", "Grade", "Daily CO2"} {
		assert.Contains(t, s, want)
	}
}

func TestPurge(t *testing.T) {
	a, out := newTestApp(t, config.BackendFile)
	require.NoError(t, run(t, a, "simulate", "--calls", "3"))

	out.Reset()
	require.NoError(t, run(t, a, "purge"))
	assert.Contains(t, out.String(), "Removed 0 day partition(s)")
}

func TestVersion(t *testing.T) {
	a, out := newTestApp(t, config.BackendFile)
	require.NoError(t, run(t, a, "version"))
	assert.True(t, strings.HasPrefix(out.String(), version.Name+" "), out.String())
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("2025-01-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC), got)

	got, err = parseTime("2025-01-15T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 15, 8, 0, 0, 0, time.UTC), got)
	assert.Equal(t, time.UTC, got.Location())

	_, err = parseTime("15/01/2025")
	assert.Error(t, err)
}
