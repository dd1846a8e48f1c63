package aggregate

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/j-veylop/green-ai-tracker/internal/models"
	"github.com/j-veylop/green-ai-tracker/internal/store"
)

// sliceQuerier yields its records in slice order, filtered by window.
type sliceQuerier struct {
	records []models.CallMetric
	err     error
}

func (q sliceQuerier) Query(_ context.Context, start, end time.Time) iter.Seq2[models.CallMetric, error] {
	return func(yield func(models.CallMetric, error) bool) {
		for _, m := range q.records {
			if m.Timestamp.Before(start) || !m.Timestamp.Before(end) {
				continue
			}
			if !yield(m, nil) {
				return
			}
		}
		if q.err != nil {
			yield(models.CallMetric{}, q.err)
		}
	}
}

var base = time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC) // a Monday

func sampleRecords(n int) []models.CallMetric {
	levels := models.ImpactLevels
	tiers := []models.UserTier{models.TierFree, models.TierPremium}
	out := make([]models.CallMetric, 0, n)
	for i := range n {
		out = append(out, models.CallMetric{
			Timestamp:      base.Add(time.Duration(i) * 37 * time.Minute),
			CallID:         fmt.Sprintf("r%03d", i),
			UserTier:       tiers[i%2],
			FeatureUsed:    "chat",
			ImpactLevel:    levels[i%len(levels)],
			Outcome:        models.OutcomeSuccess,
			CO2Grams:       0.0001 + float64(i)*0.000731,
			PromptTokens:   i * 3,
			ResponseTokens: i * 2,
			RetryCount:     i % 3,
			LatencyMs:      int64(100 + i),
			CacheHit:       i%4 == 0,
		})
	}
	return out
}

func TestAggregate_EmptyRange(t *testing.T) {
	a := New(sliceQuerier{})
	w, err := a.Aggregate(context.Background(), base, base.Add(time.Hour))
	require.NoError(t, err)

	assert.True(t, w.IsEmpty())
	assert.Zero(t, w.CO2Grams)
	assert.Zero(t, w.MeanCO2Grams)
	assert.Zero(t, w.CacheHitRatio)
	assert.Zero(t, w.Distribution.Total())
	assert.Equal(t, base, w.Start)
	assert.Equal(t, base.Add(time.Hour), w.End)
}

func TestAggregate_InvalidWindow(t *testing.T) {
	a := New(sliceQuerier{})

	_, err := a.Aggregate(context.Background(), base, base)
	assert.ErrorIs(t, err, models.ErrInvalidWindow)

	_, err = a.Aggregate(context.Background(), base.Add(time.Hour), base)
	assert.ErrorIs(t, err, models.ErrInvalidWindow)

	_, err = a.Breakdown(context.Background(), base.Add(time.Hour), base, models.GranularityDay)
	assert.ErrorIs(t, err, models.ErrInvalidWindow)
}

func TestAggregate_Totals(t *testing.T) {
	records := []models.CallMetric{
		{Timestamp: base, CallID: "a", UserTier: models.TierFree, FeatureUsed: "x",
			ImpactLevel: models.ImpactExcellent, CO2Grams: 0.002, LatencyMs: 100, CacheHit: true, PromptTokens: 10},
		{Timestamp: base.Add(time.Minute), CallID: "b", UserTier: models.TierPremium, FeatureUsed: "x",
			ImpactLevel: models.ImpactHigh, CO2Grams: 0.02, LatencyMs: 300, RetryCount: 2, Outcome: models.OutcomeFailed},
		{Timestamp: base.Add(2 * time.Minute), CallID: "c", UserTier: models.TierUnknown, FeatureUsed: "x",
			ImpactLevel: models.ImpactGood, CO2Grams: 0.004, LatencyMs: 200, Outcome: models.OutcomeCancelled},
	}

	w, err := New(sliceQuerier{records: records}).Aggregate(context.Background(), base, base.Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, 3, w.Calls)
	assert.Equal(t, 2, w.CompleteCalls)
	assert.Equal(t, 2, w.FailedCalls)
	assert.Equal(t, 1, w.CacheHits)
	assert.InDelta(t, 0.026, w.CO2Grams, 1e-12)
	assert.InDelta(t, 0.026/3, w.MeanCO2Grams, 1e-12)
	assert.InDelta(t, 200.0, w.AvgLatencyMs, 1e-9)
	assert.InDelta(t, 2.0/3, w.AvgRetries, 1e-12)
	assert.InDelta(t, 1.0/3, w.CacheHitRatio, 1e-12)
	assert.InDelta(t, 2.0/3, w.Completeness, 1e-12)
	assert.Equal(t, models.ImpactDistribution{Excellent: 1, Good: 1, High: 1}, w.Distribution)
	assert.Equal(t, map[models.UserTier]int{models.TierFree: 1, models.TierPremium: 1, models.TierUnknown: 1}, w.Tiers)
}

func TestAggregate_OrderIndependent(t *testing.T) {
	records := sampleRecords(200)
	end := base.Add(30 * 24 * time.Hour)

	want, err := New(sliceQuerier{records: records}).Aggregate(context.Background(), base, end)
	require.NoError(t, err)

	rng := rand.New(rand.NewPCG(1, 2))
	for range 10 {
		shuffled := append([]models.CallMetric(nil), records...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got, err := New(sliceQuerier{records: shuffled}).Aggregate(context.Background(), base, end)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAccumulator_MergeMatchesSingleFold(t *testing.T) {
	records := sampleRecords(50)

	var whole Accumulator
	for _, m := range records {
		whole.Add(m)
	}

	var left, right Accumulator
	for i, m := range records {
		if i%3 == 0 {
			left.Add(m)
		} else {
			right.Add(m)
		}
	}
	right.Merge(left)

	assert.Equal(t, whole.Window(base, base.Add(time.Hour)), right.Window(base, base.Add(time.Hour)))
}

func TestAggregate_PropagatesStoreErrors(t *testing.T) {
	q := sliceQuerier{records: sampleRecords(3), err: fmt.Errorf("%w: corrupt line", models.ErrStorageRead)}
	_, err := New(q).Aggregate(context.Background(), base, base.Add(24*time.Hour))
	assert.True(t, errors.Is(err, models.ErrStorageRead))
}

func TestSplit(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		end   time.Time
		g     models.Granularity
		want  int
	}{
		{"ThreeDays", base, base.AddDate(0, 0, 3), models.GranularityDay, 3},
		{"PartialDays", base.Add(12 * time.Hour), base.AddDate(0, 0, 2).Add(time.Hour), models.GranularityDay, 3},
		{"TwoWeeks", base, base.AddDate(0, 0, 14), models.GranularityWeek, 2},
		{"MidWeekStart", base.AddDate(0, 0, 3), base.AddDate(0, 0, 10), models.GranularityWeek, 2},
		{"Quarter", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), models.GranularityMonth, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Split(tt.start, tt.end, tt.g)
			require.Len(t, got, tt.want)
			assert.Equal(t, tt.start, got[0][0])
			assert.Equal(t, tt.end, got[len(got)-1][1])
			for i := 1; i < len(got); i++ {
				assert.Equal(t, got[i-1][1], got[i][0], "windows must be contiguous")
				assert.Equal(t, tt.g.Truncate(got[i][0]), got[i][0], "inner windows must be aligned")
			}
		})
	}
}

func TestBreakdown_SumsToWhole(t *testing.T) {
	records := sampleRecords(300)
	a := New(sliceQuerier{records: records})
	end := base.AddDate(0, 0, 9)
	ctx := context.Background()

	whole, err := a.Aggregate(ctx, base, end)
	require.NoError(t, err)

	for _, g := range []models.Granularity{models.GranularityDay, models.GranularityWeek, models.GranularityMonth} {
		t.Run(g.String(), func(t *testing.T) {
			windows, err := a.Breakdown(ctx, base, end, g)
			require.NoError(t, err)

			calls := 0
			var dist models.ImpactDistribution
			for i, w := range windows {
				if i > 0 {
					assert.Equal(t, windows[i-1].End, w.Start)
				}
				calls += w.Calls
				for _, level := range models.ImpactLevels {
					dist.Add(level, w.Distribution.Count(level))
				}
			}
			assert.Equal(t, whole.Calls, calls)
			assert.Equal(t, whole.Distribution, dist)
		})
	}
}

func TestSummarize_TotalMatchesAggregate(t *testing.T) {
	a := New(sliceQuerier{records: sampleRecords(300)})
	ctx := context.Background()
	start, end := base.Add(5*time.Hour), base.AddDate(0, 0, 9).Add(-time.Hour)

	whole, err := a.Aggregate(ctx, start, end)
	require.NoError(t, err)

	for _, g := range []models.Granularity{models.GranularityDay, models.GranularityWeek, models.GranularityMonth} {
		t.Run(g.String(), func(t *testing.T) {
			total, windows, err := a.Summarize(ctx, start, end, g)
			require.NoError(t, err)
			assert.Equal(t, whole, total)

			pieces, err := a.Breakdown(ctx, start, end, g)
			require.NoError(t, err)
			assert.Equal(t, pieces, windows)
		})
	}

	_, _, err = a.Summarize(ctx, end, start, models.GranularityDay)
	assert.ErrorIs(t, err, models.ErrInvalidWindow)
}

func TestBreakdown_FileStore(t *testing.T) {
	s, err := store.NewFileStore(t.TempDir(), 0)
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	for _, m := range sampleRecords(120) {
		require.NoError(t, s.Append(ctx, m))
	}

	windows, err := New(s).Breakdown(ctx, base, base.AddDate(0, 0, 4), models.GranularityDay)
	require.NoError(t, err)
	require.Len(t, windows, 4)

	total := 0
	for _, w := range windows {
		total += w.Calls
	}
	// 120 records 37 minutes apart span just over three days
	assert.Equal(t, 120, total)
	assert.Positive(t, windows[0].Calls)
}
