// Package storagetest provides fixtures shared by the result store tests.
package storagetest

import (
	"errors"
	"math"
	"time"

	"github.com/chrissnell/resilience/internal/resilience"
)

// SampleBatch returns a batch with two scored runs, one failed run and one
// undefined score, covering every table a store writes.
func SampleBatch() *resilience.Batch {
	metrics := []resilience.MetricSpec{
		{Name: "otd", Column: "KPI: Lieferfähigkeit", Lower: 0.99, Upper: 1.01},
		{Name: "cost", Column: "KPI: Kostenanteil an Umsatz", Lower: 0.94, Upper: 1.06},
	}
	columns := resilience.ScoreColumns(metrics)

	scores := resilience.NewScoreTable(columns)
	scores.Rows = []resilience.ScoreRow{
		{RunID: "P0", Values: []float64{100, 12.5, 0.05, math.NaN()}},
		{RunID: "P1", Values: []float64{50, 25, 0.1, math.NaN()}},
	}

	return &resilience.Batch{
		ID:        "6f1c1d43-5d0e-4a53-9d0c-6b8c1f0a2e11",
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC),
		Metrics:   metrics,
		Results: []resilience.RunResult{
			{
				RunID: "P0",
				Disturbance: resilience.DisturbanceWindow{
					Signal: "Disturbance: STEP Nachfrage", StartIndex: 3, StartTime: 3, EndIndex: 7, EndTime: 7, Magnitude: 5,
				},
				Effects: []resilience.EffectWindow{
					{Metric: "otd", Column: "KPI: Lieferfähigkeit", StartIndex: 4, StartTime: 4, EndIndex: 8, EndTime: 8,
						InitialValue: 1, MinValue: 0.95, MaxValue: 1},
					{Metric: "cost", Column: "KPI: Kostenanteil an Umsatz", StartIndex: 4, StartTime: 4, EndIndex: 3, EndTime: 3,
						InitialValue: 0.3, MinValue: math.NaN(), MaxValue: math.NaN()},
				},
				Hardness:   80,
				Parameters: map[string]float64{"Lager.Kapazität": 500},
			},
			{
				RunID: "P1",
				Disturbance: resilience.DisturbanceWindow{
					Signal: "Disturbance: STEP Nachfrage", StartIndex: 3, StartTime: 3, EndIndex: 7, EndTime: 7, Magnitude: 10,
				},
				Effects: []resilience.EffectWindow{
					{Metric: "otd", Column: "KPI: Lieferfähigkeit", StartIndex: 4, StartTime: 4, EndIndex: 9, EndTime: 9,
						InitialValue: 1, MinValue: 0.8, MaxValue: 1},
					{Metric: "cost", Column: "KPI: Kostenanteil an Umsatz", StartIndex: 4, StartTime: 4, EndIndex: 3, EndTime: 3,
						InitialValue: 0.3, MinValue: math.NaN(), MaxValue: math.NaN()},
				},
				Hardness: 160,
			},
		},
		Scores:     scores,
		Normalized: resilience.Normalize(scores),
		Failures: []resilience.RunFailure{
			{RunID: "P2", Kind: resilience.KindNoDisturbanceDetected, Err: resilience.ErrNoDisturbanceDetected},
		},
		MetricFailures: []resilience.MetricFailure{
			{RunID: "P0", Column: "cost_recover_rapidity", Err: errors.New("cost_recover_rapidity: degenerate denominator")},
		},
	}
}
