package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/j-veylop/green-ai-tracker/internal/report"
	"github.com/j-veylop/green-ai-tracker/internal/services"
)

// ErrReportMismatch is returned by verify when a saved report no longer
// matches what the store produces for the same window.
var ErrReportMismatch = errors.New("report does not match store contents")

func (a *App) VerifyCommand() *cli.Command {
	return &cli.Command{
		Name:      "verify",
		Usage:     "Re-export a saved JSON report and check that it is unchanged",
		ArgsUsage: "REPORT.json",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			path := cmd.Args().First()
			if path == "" {
				return fmt.Errorf("a report file is required")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}
			saved, err := report.ReadJSON(bytes.NewReader(data))
			if err != nil {
				return err
			}
			start, err := parseTime(saved.Window.Start)
			if err != nil {
				return fmt.Errorf("invalid window start: %w", err)
			}
			end, err := parseTime(saved.Window.End)
			if err != nil {
				return fmt.Errorf("invalid window end: %w", err)
			}

			return a.withManager(ctx, cmd, func(ctx context.Context, mgr *services.Manager) error {
				fresh, err := mgr.Exporter().Export(ctx, start, end)
				if err != nil {
					return err
				}

				var want, got bytes.Buffer
				if err := report.WriteJSON(&want, saved); err != nil {
					return err
				}
				if err := report.WriteJSON(&got, fresh); err != nil {
					return err
				}
				if !bytes.Equal(want.Bytes(), got.Bytes()) {
					return fmt.Errorf("%w: %s", ErrReportMismatch, path)
				}

				_, err = fmt.Fprintf(a.Out, "%s matches %s → %s\n", path, saved.Window.Start, saved.Window.End)
				return err
			})
		},
	}
}
