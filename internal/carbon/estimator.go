package carbon

import (
	"fmt"
	"math"

	"github.com/j-veylop/green-ai-tracker/internal/models"
)

// Usage holds the raw quantities observed for one call.
type Usage struct {
	PromptTokens   int
	ResponseTokens int
	RetryCount     int
	CacheHit       bool
}

// Estimate is the result of estimating one call.
type Estimate struct {
	CO2Grams float64
	// GramsPerKiloToken is the efficiency hint: emitted grams per 1000 tokens, 0 when no tokens were exchanged.
	GramsPerKiloToken float64
}

// Estimator is a pure function over Usage. The zero value is not useful; use NewEstimator.
type Estimator struct {
	cal Calibration
}

// NewEstimator validates cal and returns an Estimator using it.
func NewEstimator(cal Calibration) (Estimator, error) {
	if err := cal.Validate(); err != nil {
		return Estimator{}, err
	}
	return Estimator{cal: cal}, nil
}

// Calibration returns the constants the estimator was built with.
func (e Estimator) Calibration() Calibration {
	return e.cal
}

// Estimate converts usage into grams of CO2.
//
// The cache discount only applies to the per-token base cost, never to the fixed
// network overhead. Each retry adds a fixed penalty.
func (e Estimator) Estimate(u Usage) (Estimate, error) {
	if u.PromptTokens < 0 || u.ResponseTokens < 0 || u.RetryCount < 0 {
		return Estimate{}, fmt.Errorf("%w: negative quantity (prompt=%d response=%d retries=%d)",
			models.ErrEstimation, u.PromptTokens, u.ResponseTokens, u.RetryCount)
	}

	// Explicit float64 conversions force rounding of each product so the compiler
	// cannot fuse multiply-adds and results stay bit-identical across architectures.
	// Summed in float64 so huge counts cannot wrap around
	tokens := float64(u.PromptTokens) + float64(u.ResponseTokens)
	base := float64(tokens * e.cal.PerTokenGrams)
	if u.CacheHit {
		base = float64(base * (1 - e.cal.CacheDiscount))
	}
	penalty := float64(float64(u.RetryCount) * e.cal.RetryPenaltyGrams)

	co2 := base + e.cal.NetworkOverheadGrams + penalty
	if co2 < 0 || math.IsNaN(co2) {
		co2 = 0
	}

	est := Estimate{CO2Grams: co2}
	if tokens > 0 {
		est.GramsPerKiloToken = co2 / tokens * 1000
	}
	return est, nil
}
