package commands

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"

	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/services"
	"github.com/j-veylop/green-ai-tracker/internal/tracker"
)

var errSimulatedFailure = errors.New("simulated upstream failure")

var simulatedFeatures = []string{"chat", "summarize", "search", "code-review", "translate"}

func (a *App) SimulateCommand() *cli.Command {
	return &cli.Command{
		Name:     "simulate",
		Usage:    "Record synthetic tracked calls into the store",
		Category: "Utilities",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "calls",
				Value: 100,
				Usage: "Number of calls to record",
			},
			&cli.IntFlag{
				Name:  "concurrency",
				Value: 8,
				Usage: "Calls in flight at once",
			},
			&cli.Uint64Flag{
				Name:  "seed",
				Value: 1,
				Usage: "Random seed; the same seed records the same usage",
			},
			&cli.StringFlag{
				Name:  "tier",
				Usage: "User tier (free or premium); random when empty",
			},
			&cli.Float64Flag{
				Name:  "failure-rate",
				Value: 0.05,
				Usage: "Share of calls that fail after the request",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			n := cmd.Int("calls")
			if n <= 0 {
				return fmt.Errorf("--calls must be positive, got %d", n)
			}
			sim := simulation{
				seed:        cmd.Uint64("seed"),
				tier:        cmd.String("tier"),
				failureRate: cmd.Float64("failure-rate"),
			}

			return a.withManager(ctx, cmd, func(ctx context.Context, mgr *services.Manager) error {
				failed, err := sim.run(ctx, mgr.Recorder(), n, max(cmd.Int("concurrency"), 1))
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(a.Out, "Recorded %d calls (%d failed, %d dropped)\n",
					mgr.Recorder().Emitted(), failed, mgr.Recorder().Dropped())
				return err
			})
		},
	}
}

type simulation struct {
	seed        uint64
	tier        string
	failureRate float64
}

// run tracks n synthetic calls and returns how many of them failed.
func (s simulation) run(ctx context.Context, rec *tracker.Recorder, n, concurrency int) (int64, error) {
	var failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i := range n {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			// Each call draws from its own stream so results do not depend on scheduling
			rng := rand.New(rand.NewPCG(s.seed, uint64(i)))
			tier := models.ParseUserTier(s.tier)
			if s.tier == "" {
				tier = []models.UserTier{models.TierFree, models.TierPremium}[rng.IntN(2)]
			}
			feature := simulatedFeatures[rng.IntN(len(simulatedFeatures))]

			err := tracker.Track(gctx, rec, tier, feature, func(_ context.Context, t *tracker.Tracker) error {
				return s.call(rng, t)
			})
			if errors.Is(err, errSimulatedFailure) {
				failed.Add(1)
				return nil
			}
			return err
		})
	}

	if err := g.Wait(); err != nil {
		return failed.Load(), err
	}
	return failed.Load(), ctx.Err()
}

func (s simulation) call(rng *rand.Rand, t *tracker.Tracker) error {
	t.RecordRequestTokens(50 + rng.IntN(1500))
	for rng.Float64() < 0.1 {
		t.RecordRetry()
	}
	if rng.Float64() < s.failureRate {
		return errSimulatedFailure
	}
	t.RecordResponseTokens(20+rng.IntN(2000), rng.Float64() < 0.3)
	return nil
}
