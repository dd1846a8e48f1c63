package carbon

import (
	"github.com/j-veylop/green-ai-tracker/internal/models"
)

// GradeNone is returned for a window without any calls.
const GradeNone = "N/A"

// Weights of each level in the grade ratio. MODERATE and HIGH calls count as zero.
const (
	gradeWeightExcellent = 1.0
	gradeWeightGood      = 0.7
)

type gradeStep struct {
	min   float64
	grade string
}

// gradeSteps is ordered from best to worst; the first step whose min is reached wins.
var gradeSteps = []gradeStep{
	{0.95, "A+"},
	{0.85, "A"},
	{0.70, "B"},
	{0.55, "C"},
	{0.40, "D"},
}

// Classifier maps emissions to impact levels and windows to letter grades.
type Classifier struct {
	th Thresholds
}

// NewClassifier validates th and returns a Classifier.
func NewClassifier(th Thresholds) (Classifier, error) {
	if err := th.Validate(); err != nil {
		return Classifier{}, err
	}
	return Classifier{th: th}, nil
}

// Thresholds returns the classifier thresholds.
func (c Classifier) Thresholds() Thresholds {
	return c.th
}

// Classify returns the impact level for co2 grams. It is monotonic in co2.
// NaN is treated as the most severe level.
func (c Classifier) Classify(co2 float64) models.ImpactLevel {
	switch {
	case co2 < c.th.Excellent:
		return models.ImpactExcellent
	case co2 < c.th.Good:
		return models.ImpactGood
	case co2 < c.th.Moderate:
		return models.ImpactModerate
	default:
		return models.ImpactHigh
	}
}

// Grade returns a letter grade from A+ to F based on the share of EXCELLENT and GOOD
// calls in the window. An empty window grades GradeNone.
func (c Classifier) Grade(w models.AggregateWindow) string {
	total := w.Distribution.Total()
	if total == 0 {
		return GradeNone
	}

	ratio := (gradeWeightExcellent*float64(w.Distribution.Excellent) +
		gradeWeightGood*float64(w.Distribution.Good)) / float64(total)

	for _, step := range gradeSteps {
		if ratio >= step.min {
			return step.grade
		}
	}
	return "F"
}

// GradeRank orders grades from best (0 for A+) to worst (5 for F).
// GradeNone and unknown strings rank -1.
func GradeRank(grade string) int {
	for i, step := range gradeSteps {
		if step.grade == grade {
			return i
		}
	}
	if grade == "F" {
		return len(gradeSteps)
	}
	return -1
}
