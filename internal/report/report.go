// Package report builds and serializes compliance reports.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/j-veylop/green-ai-tracker/internal/aggregate"
	"github.com/j-veylop/green-ai-tracker/internal/carbon"
	"github.com/j-veylop/green-ai-tracker/internal/compliance"
	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/render"
)

// Exporter produces ComplianceReports from stored metrics. It only reads.
type Exporter struct {
	agg    *aggregate.Aggregator
	cls    carbon.Classifier
	scorer compliance.Scorer
}

// NewExporter wires an exporter.
func NewExporter(agg *aggregate.Aggregator, cls carbon.Classifier, scorer compliance.Scorer) *Exporter {
	return &Exporter{agg: agg, cls: cls, scorer: scorer}
}

// Export aggregates [start, end) and returns its report. With unchanged store
// contents, repeated calls return identical reports.
func (e *Exporter) Export(ctx context.Context, start, end time.Time) (models.ComplianceReport, error) {
	w, err := e.agg.Aggregate(ctx, start, end)
	if err != nil {
		return models.ComplianceReport{}, err
	}
	return Build(w, e.cls, e.scorer), nil
}

// Summary gathers the report for [start, end), its sub-scores and a per-period
// breakdown at granularity g, ready for rendering.
func (e *Exporter) Summary(ctx context.Context, start, end time.Time, g models.Granularity) (render.Summary, error) {
	w, windows, err := e.agg.Summarize(ctx, start, end, g)
	if err != nil {
		return render.Summary{}, err
	}

	periods := make([]render.Period, len(windows))
	for i, pw := range windows {
		periods[i] = render.Period{Window: pw, Grade: e.cls.Grade(pw)}
	}

	return render.Summary{
		Report:  Build(w, e.cls, e.scorer),
		Scores:  e.scorer.Breakdown(w),
		Periods: periods,
	}, nil
}

// Render writes a terminal rendering of the report for [start, end).
func (e *Exporter) Render(ctx context.Context, out io.Writer, start, end time.Time, g models.Granularity, width int) error {
	s, err := e.Summary(ctx, start, end, g)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, render.Report(s, width))
	return err
}

// Build assembles the report for an already aggregated window.
func Build(w models.AggregateWindow, cls carbon.Classifier, scorer compliance.Scorer) models.ComplianceReport {
	return models.ComplianceReport{
		Window: models.ReportWindow{
			Start: FormatTime(w.Start),
			End:   FormatTime(w.End),
		},
		Totals: models.ReportTotals{
			Calls:         w.Calls,
			CO2Grams:      w.CO2Grams,
			AvgLatencyMs:  w.AvgLatencyMs,
			CacheHitRatio: w.CacheHitRatio,
		},
		ImpactDistribution: w.Distribution,
		Grade:              cls.Grade(w),
		ComplianceScore:    scorer.Score(w),
		SchemaVersion:      models.ReportSchemaVersion,
	}
}

// FormatTime renders a window bound as ISO-8601 UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// WriteJSON writes r as indented JSON followed by a newline. Field order is
// fixed by the struct layout, so equal reports always produce equal bytes.
func WriteJSON(out io.Writer, r models.ComplianceReport) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	data = append(data, '\n')
	if _, err := out.Write(data); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// ReadJSON decodes a report previously written by WriteJSON and checks its schema version.
func ReadJSON(in io.Reader) (models.ComplianceReport, error) {
	var r models.ComplianceReport
	if err := json.NewDecoder(in).Decode(&r); err != nil {
		return r, fmt.Errorf("failed to decode report: %w", err)
	}
	if r.SchemaVersion != models.ReportSchemaVersion {
		return r, fmt.Errorf("unsupported report schema %q", r.SchemaVersion)
	}
	return r, nil
}
