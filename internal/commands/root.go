// Package commands implements the gat command line.
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/j-veylop/green-ai-tracker/internal/config"
	"github.com/j-veylop/green-ai-tracker/internal/logger"
	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/services"
)

const debugFlag = "debug"

// App holds what the commands need from their environment.
type App struct {
	Out        io.Writer
	LoadConfig func() (*config.Config, error)
	Now        func() time.Time
}

// New returns an App reading configuration from the environment.
func New(out io.Writer) *App {
	return &App{Out: out, LoadConfig: config.Load, Now: time.Now}
}

// Root returns the root command.
func (a *App) Root() *cli.Command {
	return &cli.Command{
		Name:            "gat",
		Usage:           "Track, grade and report the carbon footprint of AI calls",
		HideHelpCommand: true,
		Writer:          a.Out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  debugFlag,
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			a.ReportCommand(),
			a.StatsCommand(),
			a.WatchCommand(),
			a.SimulateCommand(),
			a.VerifyCommand(),
			a.PurgeCommand(),
			a.VersionCommand(),
		},
	}
}

// withManager loads configuration, sets up logging and runs fn with a live manager.
func (a *App) withManager(ctx context.Context, cmd *cli.Command, fn func(context.Context, *services.Manager) error) error {
	cfg, err := a.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if cmd.Root().Bool(debugFlag) {
		cfg.Log.Level = "debug"
	}

	closer, err := logger.Setup(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer func() { _ = closer.Close() }()

	mgr, err := services.NewManager(cfg, services.WithClock(a.Now))
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer func() {
		if closeErr := mgr.Close(); closeErr != nil {
			logger.Warn("Error closing services", "error", closeErr)
		}
	}()

	logger.Debug("Services ready", "backend", cfg.StoreBackend, "data_dir", cfg.DataDir)
	return fn(ctx, mgr)
}

// windowFlags returns fresh --start, --end and --days flags.
func windowFlags(days int) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "start",
			Usage: "Window start, RFC 3339 or YYYY-MM-DD (UTC)",
		},
		&cli.StringFlag{
			Name:  "end",
			Usage: "Window end (exclusive), RFC 3339 or YYYY-MM-DD (UTC); defaults to now",
		},
		&cli.IntFlag{
			Name:  "days",
			Value: days,
			Usage: "Window length in days when --start is not given",
		},
	}
}

// window resolves the --start, --end and --days flags.
func (a *App) window(cmd *cli.Command) (time.Time, time.Time, error) {
	end := a.Now().UTC()
	if s := cmd.String("end"); s != "" {
		t, err := parseTime(s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --end: %w", err)
		}
		end = t
	}

	if s := cmd.String("start"); s != "" {
		start, err := parseTime(s)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --start: %w", err)
		}
		return start, end, nil
	}

	days := cmd.Int("days")
	if days <= 0 {
		return time.Time{}, time.Time{}, fmt.Errorf("--days must be positive, got %d", days)
	}
	return end.AddDate(0, 0, -days), end, nil
}

// parseTime accepts RFC 3339 timestamps and plain UTC dates.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(models.DayLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is neither RFC 3339 nor YYYY-MM-DD", s)
	}
	return t, nil
}

// openOutput returns the writer for path, or the app's writer when path is empty or "-".
func (a *App) openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return a.Out, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	return f, f.Close, nil
}
