// Package aggregate folds stored call metrics into time windows.
package aggregate

import (
	"context"
	"fmt"
	"iter"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/j-veylop/green-ai-tracker/internal/models"
)

const (
	nanogramsPerGram = 1e9

	// breakdownConcurrency bounds the number of sub-window queries in flight.
	breakdownConcurrency = 4
)

// Querier is the read side of a metrics store.
type Querier interface {
	Query(ctx context.Context, start, end time.Time) iter.Seq2[models.CallMetric, error]
}

// Aggregator computes AggregateWindows from a store. It never writes.
type Aggregator struct {
	store Querier
}

// New returns an Aggregator reading from q.
func New(q Querier) *Aggregator {
	return &Aggregator{store: q}
}

// Aggregate summarizes every record with start <= timestamp < end.
// An empty range yields a zero window, not an error.
func (a *Aggregator) Aggregate(ctx context.Context, start, end time.Time) (models.AggregateWindow, error) {
	if err := checkRange(start, end); err != nil {
		return models.AggregateWindow{}, err
	}

	acc, err := a.accumulate(ctx, start, end)
	if err != nil {
		return models.AggregateWindow{}, err
	}
	return acc.Window(start.UTC(), end.UTC()), nil
}

// Breakdown splits [start, end) on g's calendar boundaries and aggregates each
// piece. The first and last pieces are clipped to the requested range. Windows
// are returned in chronological order, empty ones included.
func (a *Aggregator) Breakdown(ctx context.Context, start, end time.Time, g models.Granularity) ([]models.AggregateWindow, error) {
	_, windows, err := a.Summarize(ctx, start, end, g)
	return windows, err
}

// Summarize returns both the whole-range window and its Breakdown from a
// single read of the store. The total is the merge of the pieces.
func (a *Aggregator) Summarize(ctx context.Context, start, end time.Time, g models.Granularity) (models.AggregateWindow, []models.AggregateWindow, error) {
	if err := checkRange(start, end); err != nil {
		return models.AggregateWindow{}, nil, err
	}

	bounds := Split(start, end, g)
	accs := make([]Accumulator, len(bounds))

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(breakdownConcurrency)
	for i, b := range bounds {
		eg.Go(func() error {
			acc, err := a.accumulate(gctx, b[0], b[1])
			if err != nil {
				return err
			}
			accs[i] = acc
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return models.AggregateWindow{}, nil, err
	}

	var total Accumulator
	windows := make([]models.AggregateWindow, len(bounds))
	for i, b := range bounds {
		windows[i] = accs[i].Window(b[0], b[1])
		total.Merge(accs[i])
	}
	return total.Window(start.UTC(), end.UTC()), windows, nil
}

func (a *Aggregator) accumulate(ctx context.Context, start, end time.Time) (Accumulator, error) {
	var acc Accumulator
	for m, err := range a.store.Query(ctx, start, end) {
		if err != nil {
			return Accumulator{}, err
		}
		acc.Add(m)
	}
	return acc, nil
}

func checkRange(start, end time.Time) error {
	if !start.Before(end) {
		return fmt.Errorf("%w: start %s is not before end %s",
			models.ErrInvalidWindow, start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return nil
}

// Split returns the [start, end) pairs covering the range on g's boundaries.
func Split(start, end time.Time, g models.Granularity) [][2]time.Time {
	start, end = start.UTC(), end.UTC()

	var out [][2]time.Time
	for lo := start; lo.Before(end); {
		hi := g.Next(g.Truncate(lo))
		if hi.After(end) {
			hi = end
		}
		out = append(out, [2]time.Time{lo, hi})
		lo = hi
	}
	return out
}

// Accumulator is an order-independent fold over call metrics. Emissions and
// latency are summed as integers so any iteration order gives the same result.
// The zero value is ready to use.
type Accumulator struct {
	calls     int
	complete  int
	failed    int
	cacheHits int

	promptTokens   int64
	responseTokens int64
	retries        int64
	latencyMs      int64
	co2Nanograms   int64

	dist  models.ImpactDistribution
	tiers map[models.UserTier]int
}

// Add folds one record into the accumulator.
func (acc *Accumulator) Add(m models.CallMetric) {
	acc.calls++
	if m.IsComplete() {
		acc.complete++
	}
	if m.Outcome == models.OutcomeFailed || m.Outcome == models.OutcomeCancelled {
		acc.failed++
	}
	if m.CacheHit {
		acc.cacheHits++
	}

	acc.promptTokens += int64(m.PromptTokens)
	acc.responseTokens += int64(m.ResponseTokens)
	acc.retries += int64(m.RetryCount)
	acc.latencyMs += m.LatencyMs
	acc.co2Nanograms += toNanograms(m.CO2Grams)

	acc.dist.Add(m.ImpactLevel, 1)

	if acc.tiers == nil {
		acc.tiers = make(map[models.UserTier]int)
	}
	acc.tiers[m.UserTier]++
}

// Merge folds another accumulator into acc.
func (acc *Accumulator) Merge(other Accumulator) {
	acc.calls += other.calls
	acc.complete += other.complete
	acc.failed += other.failed
	acc.cacheHits += other.cacheHits
	acc.promptTokens += other.promptTokens
	acc.responseTokens += other.responseTokens
	acc.retries += other.retries
	acc.latencyMs += other.latencyMs
	acc.co2Nanograms += other.co2Nanograms

	for _, level := range models.ImpactLevels {
		acc.dist.Add(level, other.dist.Count(level))
	}
	for tier, n := range other.tiers {
		if acc.tiers == nil {
			acc.tiers = make(map[models.UserTier]int)
		}
		acc.tiers[tier] += n
	}
}

// Window returns the summary for [start, end).
func (acc *Accumulator) Window(start, end time.Time) models.AggregateWindow {
	w := models.AggregateWindow{
		Start:          start,
		End:            end,
		Calls:          acc.calls,
		CompleteCalls:  acc.complete,
		FailedCalls:    acc.failed,
		CacheHits:      acc.cacheHits,
		PromptTokens:   acc.promptTokens,
		ResponseTokens: acc.responseTokens,
		Retries:        acc.retries,
		CO2Grams:       float64(acc.co2Nanograms) / nanogramsPerGram,
		Distribution:   acc.dist,
		Tiers:          make(map[models.UserTier]int, len(acc.tiers)),
	}
	for tier, n := range acc.tiers {
		w.Tiers[tier] = n
	}

	if acc.calls == 0 {
		return w
	}

	n := float64(acc.calls)
	w.MeanCO2Grams = float64(acc.co2Nanograms) / n / nanogramsPerGram
	w.AvgLatencyMs = float64(acc.latencyMs) / n
	w.AvgRetries = float64(acc.retries) / n
	w.CacheHitRatio = float64(acc.cacheHits) / n
	w.Completeness = float64(acc.complete) / n
	return w
}

func toNanograms(grams float64) int64 {
	if grams <= 0 || math.IsNaN(grams) {
		return 0
	}
	return int64(math.Round(grams * nanogramsPerGram))
}
