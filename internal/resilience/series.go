package resilience

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// baseline returns the value at row 0.
func baseline(column string, values []float64) (float64, error) {
	if len(values) == 0 || math.IsNaN(values[0]) {
		return 0, fmt.Errorf("%s: %w", column, ErrMissingBaseline)
	}
	return values[0], nil
}

// defined drops missing (NaN) samples.
func defined(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// extrema returns the smallest and largest defined value, or NaN for both
// when nothing is defined.
func extrema(values []float64) (lo, hi float64) {
	d := defined(values)
	if len(d) == 0 {
		return math.NaN(), math.NaN()
	}
	return floats.Min(d), floats.Max(d)
}

// isConstant reports whether every defined value is equal. A column with
// no defined value carries no signal and counts as constant.
func isConstant(values []float64) bool {
	d := defined(values)
	if len(d) == 0 {
		return true
	}
	lo, hi := floats.Min(d), floats.Max(d)
	return lo == hi
}
