package postgres

import (
	"math"
	"sort"

	"github.com/chrissnell/resilience/internal/database"
	"github.com/chrissnell/resilience/internal/resilience"
	"github.com/chrissnell/resilience/internal/storage"
)

func toRecord(b *resilience.Batch) database.Batch {
	record := database.Batch{
		ID:        b.ID,
		CreatedAt: b.CreatedAt,
	}

	for i, m := range b.Metrics {
		record.Metrics = append(record.Metrics, database.BatchMetric{
			Position: i, Name: m.Name, ColumnName: m.Column, LowerBound: m.Lower, UpperBound: m.Upper,
		})
	}

	for i, r := range b.Results {
		d := r.Disturbance
		run := database.Run{
			RunID:                 r.RunID,
			Position:              i,
			DisturbanceSignal:     d.Signal,
			DisturbanceStartIndex: d.StartIndex,
			DisturbanceStartTime:  d.StartTime,
			DisturbanceEndIndex:   d.EndIndex,
			DisturbanceEndTime:    d.EndTime,
			DisturbanceMagnitude:  storage.NullableFloat(d.Magnitude),
			Hardness:              storage.NullableFloat(r.Hardness),
		}
		for j, e := range r.Effects {
			run.Effects = append(run.Effects, database.Effect{
				Position:     j,
				Metric:       e.Metric,
				ColumnName:   e.Column,
				StartIndex:   e.StartIndex,
				StartTime:    e.StartTime,
				EndIndex:     e.EndIndex,
				EndTime:      e.EndTime,
				InitialValue: storage.NullableFloat(e.InitialValue),
				MinValue:     storage.NullableFloat(e.MinValue),
				MaxValue:     storage.NullableFloat(e.MaxValue),
			})
		}

		names := make([]string, 0, len(r.Parameters))
		for name := range r.Parameters {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			run.Parameters = append(run.Parameters, database.RunParameter{
				Name: name, Value: storage.NullableFloat(r.Parameters[name]),
			})
		}
		record.Runs = append(record.Runs, run)
	}

	if b.Scores != nil {
		for i, c := range b.Scores.Columns {
			record.ScoreColumns = append(record.ScoreColumns, database.ScoreColumn{Position: i, Name: c})
		}
		for _, row := range b.Scores.Rows {
			for i, c := range b.Scores.Columns {
				normalized := math.NaN()
				if b.Normalized != nil {
					normalized, _ = b.Normalized.Value(row.RunID, c)
				}
				record.Scores = append(record.Scores, database.Score{
					BatchID:         b.ID,
					RunID:           row.RunID,
					ColumnName:      c,
					RawValue:        storage.NullableFloat(row.Values[i]),
					NormalizedValue: storage.NullableFloat(normalized),
				})
			}
		}
	}

	for i, f := range b.Failures {
		record.Failures = append(record.Failures, database.RunFailure{
			Position: i, RunID: f.RunID, Kind: f.Kind, Message: storage.ErrorMessage(f.Err),
		})
	}
	for i, f := range b.MetricFailures {
		record.MetricFailures = append(record.MetricFailures, database.MetricFailure{
			Position: i, RunID: f.RunID, ColumnName: f.Column, Message: storage.ErrorMessage(f.Err),
		})
	}
	return record
}

// fromRecord expects child rows already ordered by position.
func fromRecord(record *database.Batch) *resilience.Batch {
	b := &resilience.Batch{
		ID:        record.ID,
		CreatedAt: record.CreatedAt,
	}

	for _, m := range record.Metrics {
		b.Metrics = append(b.Metrics, resilience.MetricSpec{
			Name: m.Name, Column: m.ColumnName, Lower: m.LowerBound, Upper: m.UpperBound,
		})
	}

	for _, run := range record.Runs {
		r := resilience.RunResult{
			RunID: run.RunID,
			Disturbance: resilience.DisturbanceWindow{
				Signal:     run.DisturbanceSignal,
				StartIndex: run.DisturbanceStartIndex,
				StartTime:  run.DisturbanceStartTime,
				EndIndex:   run.DisturbanceEndIndex,
				EndTime:    run.DisturbanceEndTime,
				Magnitude:  storage.FloatOrNaN(run.DisturbanceMagnitude),
			},
			Hardness: storage.FloatOrNaN(run.Hardness),
		}
		for _, e := range run.Effects {
			r.Effects = append(r.Effects, resilience.EffectWindow{
				Metric:       e.Metric,
				Column:       e.ColumnName,
				StartIndex:   e.StartIndex,
				StartTime:    e.StartTime,
				EndIndex:     e.EndIndex,
				EndTime:      e.EndTime,
				InitialValue: storage.FloatOrNaN(e.InitialValue),
				MinValue:     storage.FloatOrNaN(e.MinValue),
				MaxValue:     storage.FloatOrNaN(e.MaxValue),
			})
		}
		for _, p := range run.Parameters {
			if r.Parameters == nil {
				r.Parameters = make(map[string]float64, len(run.Parameters))
			}
			r.Parameters[p.Name] = storage.FloatOrNaN(p.Value)
		}
		b.Results = append(b.Results, r)
	}

	columns := make([]string, len(record.ScoreColumns))
	colIndex := make(map[string]int, len(columns))
	for i, c := range record.ScoreColumns {
		columns[i] = c.Name
		colIndex[c.Name] = i
	}
	b.Scores = resilience.NewScoreTable(columns)
	b.Normalized = resilience.NewScoreTable(columns)
	rowIndex := make(map[string]int, len(b.Results))
	for i, r := range b.Results {
		rowIndex[r.RunID] = i
		b.Scores.Rows = append(b.Scores.Rows, resilience.ScoreRow{RunID: r.RunID, Values: nanSlice(len(columns))})
		b.Normalized.Rows = append(b.Normalized.Rows, resilience.ScoreRow{RunID: r.RunID, Values: nanSlice(len(columns))})
	}
	for _, sc := range record.Scores {
		ri, okRow := rowIndex[sc.RunID]
		ci, okCol := colIndex[sc.ColumnName]
		if !okRow || !okCol {
			continue
		}
		b.Scores.Rows[ri].Values[ci] = storage.FloatOrNaN(sc.RawValue)
		b.Normalized.Rows[ri].Values[ci] = storage.FloatOrNaN(sc.NormalizedValue)
	}

	for _, f := range record.Failures {
		b.Failures = append(b.Failures, resilience.RunFailure{
			RunID: f.RunID, Kind: f.Kind, Err: &storage.StoredError{Message: f.Message},
		})
	}
	for _, f := range record.MetricFailures {
		b.MetricFailures = append(b.MetricFailures, resilience.MetricFailure{
			RunID: f.RunID, Column: f.ColumnName, Err: &storage.StoredError{Message: f.Message},
		})
	}
	return b
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
