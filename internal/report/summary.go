package report

import (
	"math"

	"github.com/chrissnell/resilience/internal/resilience"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnSummary describes the spread of one score column across the runs
// where it is defined.
type ColumnSummary struct {
	Column  string   `json:"column"`
	Defined int      `json:"defined"`
	Mean    *float64 `json:"mean"`
	StdDev  *float64 `json:"std_dev"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
	Best    string   `json:"best,omitempty"`
}

// Summarize computes a ColumnSummary per column of t. Best names the run
// with the highest score.
func Summarize(t *resilience.ScoreTable) []ColumnSummary {
	if t == nil {
		return []ColumnSummary{}
	}

	out := make([]ColumnSummary, 0, len(t.Columns))
	for _, col := range t.Columns {
		all := t.Column(col)
		var values []float64
		var runs []string
		for i, v := range all {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			values = append(values, v)
			runs = append(runs, t.Rows[i].RunID)
		}

		s := ColumnSummary{Column: col, Defined: len(values)}
		if len(values) > 0 {
			mean, std := stat.MeanStdDev(values, nil)
			s.Mean = Value(mean)
			s.StdDev = Value(std)
			s.Min = Value(floats.Min(values))
			s.Max = Value(floats.Max(values))
			s.Best = runs[floats.MaxIdx(values)]
		}
		out = append(out, s)
	}
	return out
}
