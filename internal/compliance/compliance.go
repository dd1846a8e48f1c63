// Package compliance turns an aggregate window into a 0-100 compliance score.
package compliance

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"

	"github.com/j-veylop/green-ai-tracker/internal/carbon"
	"github.com/j-veylop/green-ai-tracker/internal/models"
)

const (
	maxScore = 100.0

	// CompletenessTarget is the data completeness at which transparency scores in full.
	CompletenessTarget = 0.95
	// CacheHitTarget is the cache hit ratio at which efficiency scores in full.
	CacheHitTarget = 0.40
	// MaxMeanRetries is the mean retry count at which reliability reaches zero.
	MaxMeanRetries = 3.0

	weightSumTolerance = 1e-9
)

var validate = validator.New()

// Weights are the shares of each sub-score in the total. They must sum to 1.
type Weights struct {
	Transparency  float64 `validate:"gte=0,lte=1"`
	Efficiency    float64 `validate:"gte=0,lte=1"`
	Environmental float64 `validate:"gte=0,lte=1"`
	Reliability   float64 `validate:"gte=0,lte=1"`
}

// DefaultWeights returns the standard weighting.
func DefaultWeights() Weights {
	return Weights{
		Transparency:  0.25,
		Efficiency:    0.25,
		Environmental: 0.30,
		Reliability:   0.20,
	}
}

// Validate checks each weight and their sum.
func (w Weights) Validate() error {
	if err := validate.Struct(w); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}
	sum := w.Transparency + w.Efficiency + w.Environmental + w.Reliability
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("invalid weights: sum is %g, want 1", sum)
	}
	return nil
}

// SubScores is the per-dimension breakdown of a score. Every field is in [0, 100].
type SubScores struct {
	Transparency  float64 `json:"transparency"`
	Efficiency    float64 `json:"efficiency"`
	Environmental float64 `json:"environmental"`
	Reliability   float64 `json:"reliability"`
	Total         float64 `json:"total"`
}

// Scorer computes compliance scores. It holds no mutable state.
type Scorer struct {
	weights Weights
	th      carbon.Thresholds
}

// NewScorer validates weights and thresholds.
func NewScorer(weights Weights, th carbon.Thresholds) (Scorer, error) {
	if err := weights.Validate(); err != nil {
		return Scorer{}, err
	}
	if err := th.Validate(); err != nil {
		return Scorer{}, err
	}
	return Scorer{weights: weights, th: th}, nil
}

// Score returns the weighted total for w, in [0, 100].
func (s Scorer) Score(w models.AggregateWindow) float64 {
	return s.Breakdown(w).Total
}

// Breakdown returns every sub-score and the weighted total. A window without
// calls carries no evidence and scores zero everywhere.
func (s Scorer) Breakdown(w models.AggregateWindow) SubScores {
	if w.IsEmpty() {
		return SubScores{}
	}

	sub := SubScores{
		Transparency:  clamp(transparency(w.Completeness)),
		Efficiency:    clamp(w.CacheHitRatio / CacheHitTarget * maxScore),
		Environmental: clamp(s.environmental(w.MeanCO2Grams)),
		Reliability:   clamp(maxScore * (1 - w.AvgRetries/MaxMeanRetries)),
	}
	sub.Total = clamp(s.weights.Transparency*sub.Transparency +
		s.weights.Efficiency*sub.Efficiency +
		s.weights.Environmental*sub.Environmental +
		s.weights.Reliability*sub.Reliability)
	return sub
}

func transparency(completeness float64) float64 {
	if completeness >= CompletenessTarget {
		return maxScore
	}
	return completeness / CompletenessTarget * maxScore
}

// environmental interpolates linearly between fixed scores at each threshold:
// 100 at zero, 85 at EXCELLENT, 65 at GOOD, 40 at MODERATE and 0 at twice MODERATE.
func (s Scorer) environmental(meanCO2 float64) float64 {
	points := [...]struct{ x, y float64 }{
		{0, 100},
		{s.th.Excellent, 85},
		{s.th.Good, 65},
		{s.th.Moderate, 40},
		{2 * s.th.Moderate, 0},
	}

	if meanCO2 <= 0 {
		return points[0].y
	}
	for i := 1; i < len(points); i++ {
		lo, hi := points[i-1], points[i]
		if meanCO2 <= hi.x {
			return lo.y + (meanCO2-lo.x)/(hi.x-lo.x)*(hi.y-lo.y)
		}
	}
	return 0
}

// clamp bounds v to [0, 100]. NaN becomes 0.
func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > maxScore:
		return maxScore
	default:
		return v
	}
}

// ErrNoEvidence is returned by MustPass when the window holds no calls.
var ErrNoEvidence = errors.New("no calls in window")

// MustPass reports an error when the window scores below floor.
func (s Scorer) MustPass(w models.AggregateWindow, floor float64) error {
	if w.IsEmpty() {
		return ErrNoEvidence
	}
	if score := s.Score(w); score < floor {
		return fmt.Errorf("compliance score %.2f is below %.2f", score, floor)
	}
	return nil
}
