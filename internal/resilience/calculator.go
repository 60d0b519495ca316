package resilience

import (
	"fmt"
	"math"
)

// MetricFailure records a score that could not be computed. It never fails
// the run: the score is stored as NaN and the failure is reported next to it.
type MetricFailure struct {
	RunID  string
	Column string
	Err    error
}

// Robustness is the disturbance magnitude per unit of metric drop:
//
//	magnitude / (initial - min)
func Robustness(d DisturbanceWindow, e EffectWindow) (float64, error) {
	return ratio(d.Magnitude, e.Drop(), "robustness", e.Metric)
}

// RecoverRapidity is the average rate at which the metric returns to its
// band after the disturbance ends:
//
//	(initial - min) / (effect end time - disturbance end time)
func RecoverRapidity(d DisturbanceWindow, e EffectWindow) (float64, error) {
	return ratio(e.Drop(), e.EndTime-d.EndTime, "recover rapidity", e.Metric)
}

// Hardness weighs the disturbance by how long it acted on the system:
// magnitude * duration * duration.
func Hardness(d DisturbanceWindow) float64 {
	duration := d.Duration()
	return d.Magnitude * duration * duration
}

func ratio(num, den float64, score, metric string) (float64, error) {
	if den == 0 || math.IsNaN(den) || math.IsNaN(num) {
		return math.NaN(), fmt.Errorf("%s of %s: %w", score, metric, ErrDegenerateDenominator)
	}
	return num / den, nil
}

// ScoreRun turns a run's windows into its score row. Columns follow
// ScoreColumns(metrics). Scores that cannot be computed are NaN and listed
// in the returned failures.
func ScoreRun(r RunResult, metrics []MetricSpec) (ScoreRow, []MetricFailure) {
	row := ScoreRow{
		RunID:  r.RunID,
		Values: make([]float64, 2*len(metrics)),
	}
	var failures []MetricFailure

	record := func(idx int, column string, v float64, err error) {
		row.Values[idx] = v
		if err != nil {
			failures = append(failures, MetricFailure{RunID: r.RunID, Column: column, Err: err})
		}
	}

	for i, m := range metrics {
		rob, rap := RobustnessColumn(m.Name), RecoverRapidityColumn(m.Name)

		e, ok := r.Effect(m.Name)
		if !ok {
			err := &EffectNotFoundError{Metric: m.Name, Boundary: "start"}
			record(i, rob, math.NaN(), err)
			record(len(metrics)+i, rap, math.NaN(), err)
			continue
		}

		v, err := Robustness(r.Disturbance, e)
		record(i, rob, v, err)

		v, err = RecoverRapidity(r.Disturbance, e)
		record(len(metrics)+i, rap, v, err)
	}
	return row, failures
}
