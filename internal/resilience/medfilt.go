package resilience

import (
	"fmt"
	"math"
	"sort"
)

// MedFilt applies a running median of width kernelSize. Edges are padded by
// repeating the first and last sample so row 0 keeps its baseline value,
// and missing samples are left out of each window.
func MedFilt(data []float64, kernelSize int) ([]float64, error) {
	if kernelSize < 1 || kernelSize%2 == 0 {
		return nil, fmt.Errorf("median kernel must be a positive odd integer, got %d", kernelSize)
	}
	n := len(data)
	result := make([]float64, n)
	if n == 0 {
		return result, nil
	}

	half := kernelSize / 2
	window := make([]float64, 0, kernelSize)
	for i := 0; i < n; i++ {
		window = window[:0]
		for j := -half; j <= half; j++ {
			idx := min(max(i+j, 0), n-1)
			if !math.IsNaN(data[idx]) {
				window = append(window, data[idx])
			}
		}

		if len(window) == 0 {
			result[i] = math.NaN()
			continue
		}
		sort.Float64s(window)
		result[i] = window[len(window)/2]
	}
	return result, nil
}
