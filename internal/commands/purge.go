package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/j-veylop/green-ai-tracker/internal/services"
)

func (a *App) PurgeCommand() *cli.Command {
	return &cli.Command{
		Name:     "purge",
		Usage:    "Delete metrics older than the retention horizon",
		Category: "Maintenance",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return a.withManager(ctx, cmd, func(ctx context.Context, mgr *services.Manager) error {
				removed, err := mgr.Purge(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.Out, "Removed %d day partition(s)\n", removed)
				return err
			})
		},
	}
}
