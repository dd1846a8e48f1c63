package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/j-veylop/green-ai-tracker/internal/logger"
	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/render"
	"github.com/j-veylop/green-ai-tracker/internal/services"
)

const scoreHistory = 30

func (a *App) WatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Re-grade a rolling window whenever new metrics land",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "window",
				Value: 24 * time.Hour,
				Usage: "Length of the rolling window",
			},
			&cli.DurationFlag{
				Name:  "interval",
				Value: time.Minute,
				Usage: "Re-grade at least this often",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			window := cmd.Duration("window")
			if window <= 0 {
				return fmt.Errorf("--window must be positive")
			}

			return a.withManager(ctx, cmd, func(ctx context.Context, mgr *services.Manager) error {
				events := mgr.Subscribe()
				done := make(chan struct{})
				go func() {
					defer close(done)
					a.printEvents(events)
				}()

				err := mgr.Watch(ctx, window, cmd.Duration("interval"))
				mgr.Unsubscribe(events)
				<-done
				return err
			})
		},
	}
}

// printEvents writes one line per event until events is closed.
func (a *App) printEvents(events <-chan services.ServiceEvent) {
	var scores []float64
	for event := range events {
		var line string
		switch e := event.(type) {
		case services.GradeEvent:
			scores = append(scores, e.Score)
			if len(scores) > scoreHistory {
				scores = scores[1:]
			}
			line = fmt.Sprintf("%s  %s  score %5.1f  %6d calls  %s  %s",
				a.Now().UTC().Format(time.TimeOnly),
				render.GradeStyle(e.Grade).Render(fmt.Sprintf("%-3s", e.Grade)),
				e.Score, e.Window.Calls, render.FormatGrams(e.Window.CO2Grams),
				render.Sparkline(scores, scoreHistory))
		case services.AlertEvent:
			line = render.ImpactStyle(models.ImpactHigh).Render(
				fmt.Sprintf("ALERT grade %s is at or below %s", e.Grade, e.AlertGrade))
		case services.ErrorEvent:
			logger.Warn("Watch error", "service", e.Service, "error", e.Error)
			continue
		default:
			continue
		}
		if _, err := fmt.Fprintln(a.Out, line); err != nil {
			logger.Debug("Failed to print watch event", "error", err)
		}
	}
}
