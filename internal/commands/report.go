package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/report"
	"github.com/j-veylop/green-ai-tracker/internal/services"
)

const (
	formatText = "text"
	formatJSON = "json"
)

func (a *App) ReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Export the compliance report for a time window",
		Flags: append(windowFlags(7),
			&cli.StringFlag{
				Name:  "format",
				Value: formatText,
				Usage: "Output format: text or json",
			},
			&cli.StringFlag{
				Name:  "granularity",
				Value: "day",
				Usage: "Breakdown granularity for text output: day, week or month",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the report to a file instead of stdout",
			},
			&cli.IntFlag{
				Name:  "width",
				Value: 100,
				Usage: "Terminal width for text output",
			},
			&cli.Float64Flag{
				Name:  "min-score",
				Usage: "Fail when the compliance score is below this value",
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			start, end, err := a.window(cmd)
			if err != nil {
				return err
			}
			g, ok := models.ParseGranularity(cmd.String("granularity"))
			if !ok {
				return fmt.Errorf("unknown granularity %q", cmd.String("granularity"))
			}
			format := cmd.String("format")
			if format != formatText && format != formatJSON {
				return fmt.Errorf("unknown format %q", format)
			}

			return a.withManager(ctx, cmd, func(ctx context.Context, mgr *services.Manager) error {
				out, closeOut, err := a.openOutput(cmd.String("output"))
				if err != nil {
					return err
				}

				if format == formatJSON {
					var r models.ComplianceReport
					if r, err = mgr.Exporter().Export(ctx, start, end); err == nil {
						err = report.WriteJSON(out, r)
					}
				} else {
					err = mgr.Exporter().Render(ctx, out, start, end, g, cmd.Int("width"))
				}
				if closeErr := closeOut(); err == nil && closeErr != nil {
					err = closeErr
				}
				if err != nil {
					return err
				}

				if !cmd.IsSet("min-score") {
					return nil
				}
				w, err := mgr.Aggregator().Aggregate(ctx, start, end)
				if err != nil {
					return err
				}
				return mgr.Scorer().MustPass(w, cmd.Float64("min-score"))
			})
		},
	}
}
