package commands

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/render"
	"github.com/j-veylop/green-ai-tracker/internal/services"
)

func (a *App) StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Print totals and a daily trend for a time window",
		Flags: windowFlags(30),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			start, end, err := a.window(cmd)
			if err != nil {
				return err
			}

			return a.withManager(ctx, cmd, func(ctx context.Context, mgr *services.Manager) error {
				w, days, err := mgr.Aggregator().Summarize(ctx, start, end, models.GranularityDay)
				if err != nil {
					return err
				}

				trend := make([]float64, len(days))
				for i, d := range days {
					trend[i] = d.CO2Grams
				}

				_, err = fmt.Fprintln(a.Out, formatStats(w, mgr.Classifier().Grade(w), mgr.Scorer().Score(w), trend))
				return err
			})
		},
	}
}

func formatStats(w models.AggregateWindow, grade string, score float64, trend []float64) string {
	row := func(label, value string) string {
		return render.LabelStyle.Render(label) + render.ValueStyle.Render(value)
	}

	lines := []string{
		row("Window", fmt.Sprintf("%s → %s", w.Start.Format(models.DayLayout), w.End.Format(models.DayLayout))),
		row("Calls", fmt.Sprintf("%d (%d failed)", w.Calls, w.FailedCalls)),
		row("CO2 total", render.FormatGrams(w.CO2Grams)),
		row("CO2 per call", render.FormatGrams(w.MeanCO2Grams)),
		row("Tokens", fmt.Sprintf("%d in / %d out", w.PromptTokens, w.ResponseTokens)),
		row("Retries", fmt.Sprintf("%d", w.Retries)),
		row("Avg latency", fmt.Sprintf("%.0f ms", w.AvgLatencyMs)),
		row("Cache hit ratio", fmt.Sprintf("%.1f%%", w.CacheHitRatio*100)),
		row("Completeness", fmt.Sprintf("%.1f%%", w.Completeness*100)),
		render.LabelStyle.Render("Grade") + render.GradeStyle(grade).Render(grade),
		render.LabelStyle.Render("Score") + render.ScoreStyle(score).Render(fmt.Sprintf("%.1f", score)),
	}
	if len(w.Tiers) > 0 {
		tiers := make([]string, 0, len(w.Tiers))
		for _, tier := range []models.UserTier{models.TierPremium, models.TierFree, models.TierUnknown} {
			if n := w.Tiers[tier]; n > 0 {
				tiers = append(tiers, fmt.Sprintf("%s %d", tier, n))
			}
		}
		lines = append(lines, row("Tiers", strings.Join(tiers, ", ")))
	}
	if len(trend) > 1 {
		lines = append(lines, render.LabelStyle.Render("Daily CO2")+render.Sparkline(trend, 60))
	}
	return strings.Join(lines, "\n")
}
