// Package report turns analyzed batches into serializable views. Undefined
// values (NaN) become null since neither JSON nor a reader of the table
// can make sense of NaN.
package report

import (
	"math"
	"sort"
	"time"

	"github.com/chrissnell/resilience/internal/resilience"
)

// Report is the complete, serializable outcome of a batch.
type Report struct {
	BatchID        string              `json:"batch_id"`
	CreatedAt      time.Time           `json:"created_at"`
	Metrics        []MetricView        `json:"metrics"`
	Runs           []RunView           `json:"runs"`
	Scores         ScoreTableView      `json:"scores"`
	Normalized     ScoreTableView      `json:"normalized"`
	Summary        []ColumnSummary     `json:"summary"`
	Failures       []FailureView       `json:"failures"`
	MetricFailures []MetricFailureView `json:"metric_failures"`
}

type MetricView struct {
	Name   string  `json:"name"`
	Column string  `json:"column"`
	Lower  float64 `json:"lower"`
	Upper  float64 `json:"upper"`
}

// RunView is the detection result of one run.
type RunView struct {
	RunID       string              `json:"run_id"`
	Disturbance DisturbanceView     `json:"disturbance"`
	Effects     []EffectView        `json:"effects"`
	Hardness    *float64            `json:"hardness"`
	Parameters  map[string]*float64 `json:"parameters,omitempty"`
}

type DisturbanceView struct {
	Signal     string   `json:"signal"`
	StartIndex int      `json:"start_index"`
	StartTime  float64  `json:"start_time"`
	EndIndex   int      `json:"end_index"`
	EndTime    float64  `json:"end_time"`
	Magnitude  *float64 `json:"magnitude"`
}

type EffectView struct {
	Metric       string   `json:"metric"`
	Column       string   `json:"column"`
	StartIndex   int      `json:"start_index"`
	StartTime    float64  `json:"start_time"`
	EndIndex     int      `json:"end_index"`
	EndTime      float64  `json:"end_time"`
	InitialValue *float64 `json:"initial_value"`
	MinValue     *float64 `json:"min_value"`
	MaxValue     *float64 `json:"max_value"`
}

// ScoreTableView is a score table with undefined cells as null.
type ScoreTableView struct {
	Columns []string       `json:"columns"`
	Rows    []ScoreRowView `json:"rows"`
}

type ScoreRowView struct {
	RunID  string     `json:"run_id"`
	Values []*float64 `json:"values"`
}

type FailureView struct {
	RunID string `json:"run_id"`
	Kind  string `json:"kind"`
	Error string `json:"error"`
}

type MetricFailureView struct {
	RunID  string `json:"run_id"`
	Column string `json:"column"`
	Error  string `json:"error"`
}

// Value returns v, or nil when v is NaN or infinite.
func Value(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Build renders b. A nil batch gives an empty report.
func Build(b *resilience.Batch) Report {
	if b == nil {
		return Report{}
	}

	r := Report{
		BatchID:        b.ID,
		CreatedAt:      b.CreatedAt,
		Metrics:        make([]MetricView, 0, len(b.Metrics)),
		Runs:           make([]RunView, 0, len(b.Results)),
		Scores:         NewScoreTableView(b.Scores),
		Normalized:     NewScoreTableView(b.Normalized),
		Summary:        Summarize(b.Scores),
		Failures:       Failures(b),
		MetricFailures: MetricFailures(b),
	}

	for _, m := range b.Metrics {
		r.Metrics = append(r.Metrics, MetricView(m))
	}
	for _, res := range b.Results {
		r.Runs = append(r.Runs, NewRunView(res))
	}
	return r
}

// NewRunView renders one run's detection result.
func NewRunView(res resilience.RunResult) RunView {
	d := res.Disturbance
	v := RunView{
		RunID: res.RunID,
		Disturbance: DisturbanceView{
			Signal:     d.Signal,
			StartIndex: d.StartIndex,
			StartTime:  d.StartTime,
			EndIndex:   d.EndIndex,
			EndTime:    d.EndTime,
			Magnitude:  Value(d.Magnitude),
		},
		Effects:  make([]EffectView, 0, len(res.Effects)),
		Hardness: Value(res.Hardness),
	}
	for _, e := range res.Effects {
		v.Effects = append(v.Effects, NewEffectView(e))
	}
	if len(res.Parameters) > 0 {
		v.Parameters = make(map[string]*float64, len(res.Parameters))
		for name, p := range res.Parameters {
			v.Parameters[name] = Value(p)
		}
	}
	return v
}

func NewEffectView(e resilience.EffectWindow) EffectView {
	return EffectView{
		Metric:       e.Metric,
		Column:       e.Column,
		StartIndex:   e.StartIndex,
		StartTime:    e.StartTime,
		EndIndex:     e.EndIndex,
		EndTime:      e.EndTime,
		InitialValue: Value(e.InitialValue),
		MinValue:     Value(e.MinValue),
		MaxValue:     Value(e.MaxValue),
	}
}

// NewScoreTableView renders t. A nil table gives an empty view with non-nil
// slices so it encodes as [] rather than null.
func NewScoreTableView(t *resilience.ScoreTable) ScoreTableView {
	v := ScoreTableView{Columns: []string{}, Rows: []ScoreRowView{}}
	if t == nil {
		return v
	}
	v.Columns = append(v.Columns, t.Columns...)
	for _, row := range t.Rows {
		values := make([]*float64, len(row.Values))
		for i, x := range row.Values {
			values[i] = Value(x)
		}
		v.Rows = append(v.Rows, ScoreRowView{RunID: row.RunID, Values: values})
	}
	return v
}

// Failures lists the batch's failed runs ordered by run ID.
func Failures(b *resilience.Batch) []FailureView {
	out := make([]FailureView, 0, len(b.Failures))
	for _, f := range b.Failures {
		fv := FailureView{RunID: f.RunID, Kind: f.Kind}
		if f.Err != nil {
			fv.Error = f.Err.Error()
		}
		out = append(out, fv)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RunID < out[j].RunID })
	return out
}

// MetricFailures lists the undefined scores of the batch.
func MetricFailures(b *resilience.Batch) []MetricFailureView {
	out := make([]MetricFailureView, 0, len(b.MetricFailures))
	for _, f := range b.MetricFailures {
		fv := MetricFailureView{RunID: f.RunID, Column: f.Column}
		if f.Err != nil {
			fv.Error = f.Err.Error()
		}
		out = append(out, fv)
	}
	return out
}
