package resilience

import (
	"fmt"
	"math"
	"strings"
)

// EndBoundary selects the predicate used to find the last out-of-band row
// of an effect.
type EndBoundary int

const (
	// BoundaryWindowed only considers rows at or after the disturbance end
	// for both edges of the band.
	BoundaryWindowed EndBoundary = iota

	// BoundaryLegacy reproduces the historical predicate
	//
	//	(row >= disturbance end AND value < lower) OR value > upper
	//
	// where the upper-edge test is not restricted to rows after the
	// disturbance. An excursion above the band anywhere in the run can
	// therefore become the effect end, even before the disturbance ends.
	BoundaryLegacy
)

func (b EndBoundary) String() string {
	switch b {
	case BoundaryWindowed:
		return "windowed"
	case BoundaryLegacy:
		return "legacy"
	default:
		return fmt.Sprintf("EndBoundary(%d)", int(b))
	}
}

// ParseEndBoundary parses "windowed" or "legacy". An empty string selects
// BoundaryWindowed.
func ParseEndBoundary(s string) (EndBoundary, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "windowed":
		return BoundaryWindowed, nil
	case "legacy":
		return BoundaryLegacy, nil
	default:
		return 0, fmt.Errorf("unknown effect end boundary %q (want windowed or legacy)", s)
	}
}

// EffectOptions tunes effect detection for a whole batch.
type EffectOptions struct {
	EndBoundary EndBoundary
	// RelativeBand scales Lower/Upper by the baseline instead of treating
	// them as absolute values.
	RelativeBand bool
	// Smoothing is the median-filter kernel applied to the metric before
	// the end-boundary search. 0 and 1 disable it.
	Smoothing int
}

// Band returns the recovered band for a metric with the given baseline.
func (o EffectOptions) Band(m MetricSpec, base float64) (lower, upper float64) {
	if !o.RelativeBand {
		return m.Lower, m.Upper
	}
	lower, upper = base*m.Lower, base*m.Upper
	if lower > upper {
		lower, upper = upper, lower
	}
	return lower, upper
}

// DetectEffect computes the effect window of metric m for a run whose
// disturbance window is d.
func DetectEffect(t Table, d DisturbanceWindow, m MetricSpec, opts EffectOptions) (EffectWindow, error) {
	values, err := t.Column(m.Column)
	if err != nil {
		return EffectWindow{}, fmt.Errorf("metric %s: %w", m.Name, err)
	}
	base, err := baseline(m.Column, values)
	if err != nil {
		return EffectWindow{}, fmt.Errorf("metric %s: %w", m.Name, err)
	}

	start := -1
	for i := d.StartIndex; i < len(values); i++ {
		if !math.IsNaN(values[i]) && values[i] != base {
			start = i
			break
		}
	}
	if start < 0 {
		return EffectWindow{}, &EffectNotFoundError{Metric: m.Name, Boundary: "start"}
	}

	probe := values
	if opts.Smoothing > 1 {
		probe, err = MedFilt(values, opts.Smoothing)
		if err != nil {
			return EffectWindow{}, fmt.Errorf("metric %s: %w", m.Name, err)
		}
	}

	lower, upper := opts.Band(m, base)
	end := -1
	for i, v := range probe {
		afterDisturbance := i >= d.EndIndex
		var outside bool
		switch opts.EndBoundary {
		case BoundaryLegacy:
			outside = (afterDisturbance && v < lower) || v > upper
		default:
			outside = afterDisturbance && (v < lower || v > upper)
		}
		if outside {
			end = i
		}
	}
	if end < 0 {
		return EffectWindow{}, &EffectNotFoundError{Metric: m.Name, Boundary: "end"}
	}

	// An effect that starts after its last out-of-band row has no extent;
	// its extrema stay undefined and so do its scores.
	lo, hi := math.NaN(), math.NaN()
	if start <= end {
		lo, hi = extrema(values[start : end+1])
	}

	times := t.Times()
	return EffectWindow{
		Metric:       m.Name,
		Column:       m.Column,
		StartIndex:   start,
		StartTime:    times[start],
		EndIndex:     end,
		EndTime:      times[end],
		InitialValue: base,
		MinValue:     lo,
		MaxValue:     hi,
	}, nil
}
