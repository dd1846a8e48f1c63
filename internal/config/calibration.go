package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/j-veylop/green-ai-tracker/internal/carbon"
)

// LoadCalibration reads a YAML calibration file over the built-in defaults.
// Keys absent from the file keep their default value. A missing file, or an
// empty path, yields the defaults.
//
//	per_token_grams: 0.0000047
//	network_overhead_grams: 0.002
//	cache_discount: 0.85
//	retry_penalty_grams: 0.0015
//	thresholds:
//	  excellent: 0.003
//	  good: 0.006
//	  moderate: 0.012
func LoadCalibration(path string) (carbon.Calibration, error) {
	cal := carbon.DefaultCalibration()
	if path == "" {
		return cal, nil
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cal, nil
	}
	if err != nil {
		return cal, fmt.Errorf("failed to read calibration file: %w", err)
	}

	return parseCalibration(content)
}

func parseCalibration(content []byte) (carbon.Calibration, error) {
	cal := carbon.DefaultCalibration()
	if err := yaml.Unmarshal(content, &cal); err != nil {
		return cal, fmt.Errorf("failed to parse calibration file: %w", err)
	}
	if err := cal.Validate(); err != nil {
		return cal, err
	}
	return cal, nil
}
