// Package carbon converts AI call quantities into estimated emissions and impact levels.
//
// The calibration constants are illustrative order-of-magnitude figures, not measured
// physical constants. Treat them as configuration.
package carbon

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Default calibration values.
const (
	DefaultPerTokenGrams        = 0.0000047
	DefaultNetworkOverheadGrams = 0.002
	DefaultCacheDiscount        = 0.85
	DefaultRetryPenaltyGrams    = 0.0015

	DefaultExcellentThreshold = 0.003
	DefaultGoodThreshold      = 0.006
	DefaultModerateThreshold  = 0.012
)

var validate = validator.New()

// Thresholds are the upper bounds (exclusive) of the EXCELLENT, GOOD and MODERATE levels, in grams.
type Thresholds struct {
	Excellent float64 `yaml:"excellent" validate:"gt=0"`
	Good      float64 `yaml:"good" validate:"gtfield=Excellent"`
	Moderate  float64 `yaml:"moderate" validate:"gtfield=Good"`
}

// Calibration holds every tunable constant of the estimator and classifier.
type Calibration struct {
	PerTokenGrams        float64    `yaml:"per_token_grams" validate:"gte=0"`
	NetworkOverheadGrams float64    `yaml:"network_overhead_grams" validate:"gte=0"`
	CacheDiscount        float64    `yaml:"cache_discount" validate:"gte=0,lte=1"`
	RetryPenaltyGrams    float64    `yaml:"retry_penalty_grams" validate:"gte=0"`
	Thresholds           Thresholds `yaml:"thresholds"`
}

// DefaultCalibration returns the built-in calibration.
func DefaultCalibration() Calibration {
	return Calibration{
		PerTokenGrams:        DefaultPerTokenGrams,
		NetworkOverheadGrams: DefaultNetworkOverheadGrams,
		CacheDiscount:        DefaultCacheDiscount,
		RetryPenaltyGrams:    DefaultRetryPenaltyGrams,
		Thresholds:           DefaultThresholds(),
	}
}

// DefaultThresholds returns the built-in classifier thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Excellent: DefaultExcellentThreshold,
		Good:      DefaultGoodThreshold,
		Moderate:  DefaultModerateThreshold,
	}
}

// Validate checks that costs are non-negative, the discount is a fraction
// and the thresholds are strictly increasing.
func (c Calibration) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid calibration: %w", err)
	}
	return nil
}

// Validate checks that thresholds are positive and strictly increasing.
func (t Thresholds) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}
