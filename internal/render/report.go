package render

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/green-ai-tracker/internal/compliance"
	"github.com/j-veylop/green-ai-tracker/internal/models"
)

const (
	defaultWidth = 80
	chartHeight  = 8
)

// Period is one row of a breakdown: a window and its grade.
type Period struct {
	Window models.AggregateWindow
	Grade  string
}

// Summary is everything shown by Report.
type Summary struct {
	Report  models.ComplianceReport
	Scores  compliance.SubScores
	Periods []Period
}

// Report renders a compliance summary, the impact distribution and, when
// periods are present, a CO2 chart and a per-period table.
func Report(s Summary, width int) string {
	if width <= 0 {
		width = defaultWidth
	}

	r := s.Report
	var b strings.Builder

	b.WriteString(TitleStyle.Render("Green AI compliance report"))
	b.WriteString("\n")
	b.WriteString(HelpStyle.Render(fmt.Sprintf("%s → %s  (schema %s)", r.Window.Start, r.Window.End, r.SchemaVersion)))
	b.WriteString("\n\n")

	headline := lipgloss.JoinVertical(lipgloss.Left,
		field("Grade", GradeStyle(r.Grade).Render(r.Grade)),
		field("Compliance score", ScoreStyle(r.ComplianceScore).Render(fmt.Sprintf("%.1f / 100", r.ComplianceScore))),
		field("Calls", ValueStyle.Render(fmt.Sprintf("%d", r.Totals.Calls))),
		field("CO2 total", ValueStyle.Render(FormatGrams(r.Totals.CO2Grams))),
		field("Avg latency", ValueStyle.Render(fmt.Sprintf("%.0f ms", r.Totals.AvgLatencyMs))),
		field("Cache hit ratio", ValueStyle.Render(fmt.Sprintf("%.1f%%", r.Totals.CacheHitRatio*100))),
	)
	scores := lipgloss.JoinVertical(lipgloss.Left,
		field("Transparency", scoreCell(s.Scores.Transparency)),
		field("Efficiency", scoreCell(s.Scores.Efficiency)),
		field("Environmental", scoreCell(s.Scores.Environmental)),
		field("Reliability", scoreCell(s.Scores.Reliability)),
	)

	cards := lipgloss.JoinHorizontal(lipgloss.Top, CardStyle.Render(headline), " ", CardStyle.Render(scores))
	if lipgloss.Width(cards) > width {
		cards = lipgloss.JoinVertical(lipgloss.Left, CardStyle.Render(headline), CardStyle.Render(scores))
	}
	b.WriteString(cards)
	b.WriteString("\n")

	b.WriteString(SubTitleStyle.Render("Impact distribution"))
	b.WriteString("\n")
	b.WriteString(DistributionBars(r.ImpactDistribution, width))
	b.WriteString("\n")

	if len(s.Periods) > 0 {
		series := make([]float64, len(s.Periods))
		for i, p := range s.Periods {
			series[i] = p.Window.CO2Grams
		}
		b.WriteString("\n")
		b.WriteString(LineChart(series, width-12, chartHeight, "CO2 grams per period"))
		b.WriteString("\n\n")
		b.WriteString(PeriodTable(s.Periods, width))
		b.WriteString("\n")
	}

	return b.String()
}

func field(label, value string) string {
	return LabelStyle.Render(label) + value
}

const scoreBarWidth = 10

func scoreCell(v float64) string {
	filled := min(max(int(v/100*scoreBarWidth+0.5), 0), scoreBarWidth)
	style := ScoreStyle(v)
	return style.Render(fmt.Sprintf("%5.1f ", v)+strings.Repeat("█", filled)) +
		HelpStyle.Render(strings.Repeat("░", scoreBarWidth-filled))
}

var periodColumns = []string{"Period", "Calls", "CO2", "Mean/call", "Cache", "Grade"}

// PeriodTable renders one row per period. Cells wider than their column are truncated.
func PeriodTable(periods []Period, width int) string {
	rows := make([][]string, 0, len(periods))
	for _, p := range periods {
		w := p.Window
		rows = append(rows, []string{
			w.Start.Format(models.DayLayout),
			fmt.Sprintf("%d", w.Calls),
			FormatGrams(w.CO2Grams),
			FormatGrams(w.MeanCO2Grams),
			fmt.Sprintf("%.0f%%", w.CacheHitRatio*100),
			GradeStyle(p.Grade).Render(p.Grade),
		})
	}

	widths := make([]int, len(periodColumns))
	for i, h := range periodColumns {
		widths[i] = ansi.StringWidth(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], ansi.StringWidth(cell))
		}
	}

	// Shrink the first column when the table would overflow
	total := 0
	for _, w := range widths {
		total += w + 2
	}
	if over := total - width; over > 0 {
		widths[0] = max(widths[0]-over, 5)
	}

	var b strings.Builder
	header := make([]string, len(periodColumns))
	for i, h := range periodColumns {
		header[i] = pad(h, widths[i])
	}
	b.WriteString(TableHeaderStyle.Render(strings.Join(header, "  ")))
	for _, row := range rows {
		b.WriteString("\n")
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = pad(cell, widths[i])
		}
		b.WriteString(strings.Join(cells, "  "))
	}
	return b.String()
}

// pad truncates or right-pads s to exactly width terminal cells, ignoring escape codes.
func pad(s string, width int) string {
	if ansi.StringWidth(s) > width {
		return ansi.Truncate(s, width, "…")
	}
	return s + strings.Repeat(" ", width-ansi.StringWidth(s))
}

// FormatGrams prints a CO2 mass with a unit that keeps it readable.
func FormatGrams(g float64) string {
	switch {
	case g >= 1000:
		return fmt.Sprintf("%.2f kg", g/1000)
	case g >= 1:
		return fmt.Sprintf("%.2f g", g)
	case g == 0:
		return "0 g"
	default:
		return fmt.Sprintf("%.3f mg", g*1000)
	}
}
