package resilience

import "math"

// Normalize rescales every column of t into [0,1] using that column's own
// defined minimum and maximum. Columns without spread (including any
// single-run batch) become NaN throughout. t is left untouched.
func Normalize(t *ScoreTable) *ScoreTable {
	out := &ScoreTable{
		Columns: append([]string(nil), t.Columns...),
		Rows:    make([]ScoreRow, len(t.Rows)),
	}
	for i, row := range t.Rows {
		out.Rows[i] = ScoreRow{RunID: row.RunID, Values: make([]float64, len(t.Columns))}
	}

	for c, name := range t.Columns {
		for i, v := range NormalizeColumn(t.Column(name)) {
			out.Rows[i].Values[c] = v
		}
	}
	return out
}

// NormalizeColumn maps each value to (x - min) / (max - min). Missing and
// infinite values become missing.
func NormalizeColumn(values []float64) []float64 {
	out := make([]float64, len(values))
	lo, hi := extrema(finite(values))

	span := hi - lo
	for i, v := range values {
		if math.IsNaN(span) || span == 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			out[i] = math.NaN()
			continue
		}
		out[i] = (v - lo) / span
	}
	return out
}

// finite drops infinities so a single exploding score does not flatten the
// rest of its column to zero.
func finite(values []float64) []float64 {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsInf(v, 0) {
			out = append(out, v)
		}
	}
	return out
}
