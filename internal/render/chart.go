package render

import (
	"fmt"
	"strings"

	"github.com/guptarohit/asciigraph"

	"github.com/j-veylop/green-ai-tracker/internal/models"
)

// LineChart creates a single-series ASCII line chart.
func LineChart(data []float64, width, height int, caption string) string {
	if len(data) == 0 {
		return HelpStyle.Render("No data available")
	}

	// Ensure minimum dimensions
	if width < 20 {
		width = 20
	}
	if height < 3 {
		height = 3
	}

	return asciigraph.Plot(data,
		asciigraph.Height(height),
		asciigraph.Width(width),
		asciigraph.Precision(4),
		asciigraph.Caption(caption),
		asciigraph.SeriesColors(asciigraph.Green),
	)
}

// DistributionBars renders one horizontal bar per impact level.
func DistributionBars(d models.ImpactDistribution, width int) string {
	total := d.Total()
	if total == 0 {
		return HelpStyle.Render("No calls")
	}

	labelWidth := 0
	for _, level := range models.ImpactLevels {
		labelWidth = max(labelWidth, len(level))
	}

	barWidth := width - labelWidth - 16 // Leave room for label, count and percent
	if barWidth < 10 {
		barWidth = 10
	}

	lines := make([]string, 0, len(models.ImpactLevels))
	for _, level := range models.ImpactLevels {
		n := d.Count(level)
		share := float64(n) / float64(total)
		barLen := int(share * float64(barWidth))

		bar := ImpactStyle(level).Render(strings.Repeat("█", barLen))
		label := fmt.Sprintf("%*s", labelWidth, level)
		lines = append(lines, fmt.Sprintf("%s │%s %d (%.0f%%)", label, bar, n, share*100))
	}

	return strings.Join(lines, "\n")
}

// sparkChars are the Unicode block characters used for sparklines (low to high).
var sparkChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// Sparkline creates a compact inline chart, sampling values to fit width.
func Sparkline(values []float64, width int) string {
	if len(values) == 0 || width <= 0 {
		return ""
	}

	maxVal := 0.0
	for _, v := range values {
		maxVal = max(maxVal, v)
	}
	if maxVal == 0 {
		maxVal = 1
	}

	var result strings.Builder
	step := float64(len(values)) / float64(width)
	if step < 1 {
		step = 1
	}

	for i := 0; i < width && int(float64(i)*step) < len(values); i++ {
		val := values[int(float64(i)*step)]
		normalized := int((val / maxVal) * float64(len(sparkChars)-1))
		normalized = min(max(normalized, 0), len(sparkChars)-1)
		result.WriteRune(sparkChars[normalized])
	}

	return result.String()
}
