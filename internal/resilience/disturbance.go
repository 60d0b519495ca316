package resilience

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// SelectDisturbanceSignal picks the candidate signal that carries the
// injected disturbance. Constant candidates and candidates missing from the
// table are ignored. A table without rows has no baseline to compare
// against and fails with ErrMissingBaseline.
//
// When several candidates vary, the last one in candidate order wins. This
// mirrors how scenarios were assembled historically and is not a principled
// choice: a run that really injects two disturbances is attributed to the
// later-listed one only.
func SelectDisturbanceSignal(t Table, candidates []string) (string, error) {
	if t.Len() == 0 {
		return "", fmt.Errorf("run %s has no rows: %w", t.ID(), ErrMissingBaseline)
	}

	var active []string
	for _, name := range candidates {
		values, err := t.Column(name)
		if err != nil {
			continue
		}
		if !isConstant(values) {
			active = append(active, name)
		}
	}

	if len(active) == 0 {
		return "", ErrNoDisturbanceDetected
	}
	return active[len(active)-1], nil
}

// DetectDisturbance computes the disturbance window of signal. The window
// spans from the first to the last row strictly above the row-0 baseline;
// rows in between are not required to stay above it.
func DetectDisturbance(t Table, signal string) (DisturbanceWindow, error) {
	values, err := t.Column(signal)
	if err != nil {
		return DisturbanceWindow{}, err
	}
	base, err := baseline(signal, values)
	if err != nil {
		return DisturbanceWindow{}, err
	}

	start, end := -1, -1
	for i, v := range values {
		if v > base {
			if start < 0 {
				start = i
			}
			end = i
		}
	}
	if start < 0 {
		return DisturbanceWindow{}, fmt.Errorf("disturbance %s never exceeds baseline %v: %w", signal, base, ErrEmptyMatch)
	}

	times := t.Times()
	return DisturbanceWindow{
		Signal:     signal,
		StartIndex: start,
		StartTime:  times[start],
		EndIndex:   end,
		EndTime:    times[end],
		Magnitude:  magnitude(values),
	}, nil
}

// magnitude is the peak of the disturbance signal over the whole run.
func magnitude(values []float64) float64 {
	d := defined(values)
	if len(d) == 0 {
		return math.NaN()
	}
	return floats.Max(d)
}
