package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/j-veylop/green-ai-tracker/internal/version"
)

func (a *App) VersionCommand() *cli.Command {
	return &cli.Command{
		Name:     "version",
		Usage:    "Print version information",
		Category: "Utilities",
		Action: func(_ context.Context, _ *cli.Command) error {
			_, err := fmt.Fprintln(a.Out, version.Info())
			return err
		},
	}
}
