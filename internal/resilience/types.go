// Package resilience locates disturbances and their effects inside
// simulation time series and reduces them to robustness and recovery
// rapidity scores that can be compared across runs.
//
// Data flows one way: a Table is scanned for the disturbance window, every
// tracked metric is scanned for its effect window relative to it, the
// windows are turned into a ScoreRow, and a batch of rows is normalized
// column by column.
package resilience

import "math"

// Table is the observation table of one run. Row 0 is the pre-disturbance
// baseline every detection is relative to.
type Table interface {
	ID() string
	Len() int
	Times() []float64
	Columns() []string
	Column(name string) ([]float64, error)
}

// MetricSpec configures one tracked performance metric.
type MetricSpec struct {
	Name   string  // short name used for score columns, e.g. "otd"
	Column string  // signal name in the observation table
	Lower  float64 // lower edge of the recovered band
	Upper  float64 // upper edge of the recovered band
}

// DisturbanceWindow is where the injected disturbance is active.
type DisturbanceWindow struct {
	Signal     string  `json:"signal"`
	StartIndex int     `json:"start_index"`
	StartTime  float64 `json:"start_time"`
	EndIndex   int     `json:"end_index"`
	EndTime    float64 `json:"end_time"`
	Magnitude  float64 `json:"magnitude"`
}

// Duration is the time span between the first and last disturbed rows.
func (d DisturbanceWindow) Duration() float64 {
	return d.EndTime - d.StartTime
}

// EffectWindow is where a tracked metric deviates from its baseline.
// MinValue and MaxValue are NaN when the window is empty.
type EffectWindow struct {
	Metric       string  `json:"metric"`
	Column       string  `json:"column"`
	StartIndex   int     `json:"start_index"`
	StartTime    float64 `json:"start_time"`
	EndIndex     int     `json:"end_index"`
	EndTime      float64 `json:"end_time"`
	InitialValue float64 `json:"initial_value"`
	MinValue     float64 `json:"min_value"`
	MaxValue     float64 `json:"max_value"`
}

// Drop is how far the metric fell below its baseline inside the window.
func (e EffectWindow) Drop() float64 {
	return e.InitialValue - e.MinValue
}

// RunResult holds everything detected for one run.
type RunResult struct {
	RunID       string             `json:"run_id"`
	Disturbance DisturbanceWindow  `json:"disturbance"`
	Effects     []EffectWindow     `json:"effects"`
	Hardness    float64            `json:"hardness"`
	Parameters  map[string]float64 `json:"parameters,omitempty"`
}

// Effect returns the effect window of the named metric.
func (r RunResult) Effect(metric string) (EffectWindow, bool) {
	for _, e := range r.Effects {
		if e.Metric == metric {
			return e, true
		}
	}
	return EffectWindow{}, false
}

// RobustnessColumn is the score column holding robustness for metric.
func RobustnessColumn(metric string) string { return metric + "_robustness" }

// RecoverRapidityColumn is the score column holding recovery rapidity for metric.
func RecoverRapidityColumn(metric string) string { return metric + "_recover_rapidity" }

// ScoreColumns lists all robustness columns followed by all recovery
// rapidity columns, in metric order.
func ScoreColumns(metrics []MetricSpec) []string {
	cols := make([]string, 0, 2*len(metrics))
	for _, m := range metrics {
		cols = append(cols, RobustnessColumn(m.Name))
	}
	for _, m := range metrics {
		cols = append(cols, RecoverRapidityColumn(m.Name))
	}
	return cols
}

// ScoreRow is one run's scores, parallel to ScoreTable.Columns. Undefined
// scores are NaN.
type ScoreRow struct {
	RunID  string
	Values []float64
}

// ScoreTable maps runs to their score columns. Tables are written once by
// the stage that creates them and read-only afterwards.
type ScoreTable struct {
	Columns []string
	Rows    []ScoreRow
}

// NewScoreTable creates an empty table with the given columns.
func NewScoreTable(columns []string) *ScoreTable {
	return &ScoreTable{Columns: columns}
}

func (t *ScoreTable) columnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns every run's value for the named column, in row order.
func (t *ScoreTable) Column(name string) []float64 {
	idx := t.columnIndex(name)
	if idx < 0 {
		return nil
	}
	out := make([]float64, len(t.Rows))
	for i, row := range t.Rows {
		out[i] = row.Values[idx]
	}
	return out
}

// Value looks up a single score. ok is false for unknown runs or columns;
// a known but undefined score is returned as NaN with ok true.
func (t *ScoreTable) Value(runID, column string) (v float64, ok bool) {
	idx := t.columnIndex(column)
	if idx < 0 {
		return math.NaN(), false
	}
	for _, row := range t.Rows {
		if row.RunID == runID {
			return row.Values[idx], true
		}
	}
	return math.NaN(), false
}
