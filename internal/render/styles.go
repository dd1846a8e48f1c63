// Package render formats reports and windows for the terminal.
package render

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/green-ai-tracker/internal/models"
)

// Color definitions.
var (
	Primary   = lipgloss.Color("42")  // Green
	Secondary = lipgloss.Color("36")  // Teal
	Subtle    = lipgloss.Color("240") // Gray

	Success = lipgloss.Color("42")  // Green
	Error   = lipgloss.Color("196") // Red
	Warning = lipgloss.Color("220") // Yellow
	Caution = lipgloss.Color("208") // Orange

	TextPrimary   = lipgloss.Color("252")
	TextSecondary = lipgloss.Color("245")
	TextMuted     = lipgloss.Color("240")
)

// TitleStyle is used for main headings.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	MarginBottom(1)

// SubTitleStyle is used for section headings.
var SubTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Secondary)

// CardStyle creates a bordered card container.
var CardStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Subtle).
	Padding(0, 2).
	MarginBottom(1)

// LabelStyle styles field labels inside cards.
var LabelStyle = lipgloss.NewStyle().
	Foreground(TextSecondary).
	Width(18)

// ValueStyle styles field values inside cards.
var ValueStyle = lipgloss.NewStyle().
	Foreground(TextPrimary).
	Bold(true)

// HelpStyle is the base style for muted text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(TextMuted)

// TableHeaderStyle styles table headers.
var TableHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	BorderStyle(lipgloss.NormalBorder()).
	BorderBottom(true).
	BorderForeground(Subtle)

// TableCellStyle styles table cells.
var TableCellStyle = lipgloss.NewStyle().
	Padding(0, 1)

var (
	impactExcellentStyle = lipgloss.NewStyle().Foreground(Success).Bold(true)
	impactGoodStyle      = lipgloss.NewStyle().Foreground(Secondary)
	impactModerateStyle  = lipgloss.NewStyle().Foreground(Warning)
	impactHighStyle      = lipgloss.NewStyle().Foreground(Error).Bold(true)
)

// ImpactStyle returns the style used for an impact level.
func ImpactStyle(level models.ImpactLevel) lipgloss.Style {
	switch level {
	case models.ImpactExcellent:
		return impactExcellentStyle
	case models.ImpactGood:
		return impactGoodStyle
	case models.ImpactModerate:
		return impactModerateStyle
	case models.ImpactHigh:
		return impactHighStyle
	default:
		return HelpStyle
	}
}

// GradeStyle returns the style used for a letter grade.
func GradeStyle(grade string) lipgloss.Style {
	switch grade {
	case "A+", "A":
		return impactExcellentStyle
	case "B":
		return impactGoodStyle
	case "C":
		return impactModerateStyle
	case "D":
		return lipgloss.NewStyle().Foreground(Caution).Bold(true)
	case "F":
		return impactHighStyle
	default:
		return HelpStyle
	}
}

// ScoreStyle returns the style for a 0-100 score.
func ScoreStyle(score float64) lipgloss.Style {
	switch {
	case score >= 80:
		return impactExcellentStyle
	case score >= 60:
		return impactModerateStyle
	default:
		return impactHighStyle
	}
}
