package resilience

import (
	"math"
	"testing"
)

func TestNormalizeColumn(t *testing.T) {
	nan := math.NaN()

	tests := []struct {
		name   string
		values []float64
		want   []float64
	}{
		{
			name:   "min maps to 0 and max to 1",
			values: []float64{2, 4, 10},
			want:   []float64{0, 0.25, 1},
		},
		{
			name:   "negative values",
			values: []float64{-5, 5, 0},
			want:   []float64{0, 1, 0.5},
		},
		{
			name:   "missing values stay missing and do not bound the column",
			values: []float64{1, nan, 3},
			want:   []float64{0, nan, 1},
		},
		{
			name:   "no spread",
			values: []float64{7, 7, 7},
			want:   []float64{nan, nan, nan},
		},
		{
			name:   "single run",
			values: []float64{42},
			want:   []float64{nan},
		},
		{
			name:   "infinite values become missing and do not bound the column",
			values: []float64{1, 2, math.Inf(1), 3, math.Inf(-1)},
			want:   []float64{0, 0.5, nan, 1, nan},
		},
		{
			name:   "nothing defined",
			values: []float64{nan, nan},
			want:   []float64{nan, nan},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeColumn(tt.values)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if math.IsNaN(tt.want[i]) {
					if !math.IsNaN(got[i]) {
						t.Errorf("value %d = %v, want NaN", i, got[i])
					}
					continue
				}
				if got[i] != tt.want[i] {
					t.Errorf("value %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestNormalizeColumn_RoundTrip(t *testing.T) {
	a, b := 0.37, 91.3
	values := []float64{b, 12.5, a, 40}
	got := NormalizeColumn(values)

	for i, v := range values {
		want := (v - a) / (b - a)
		if got[i] != want {
			t.Errorf("value %d: got %v, want %v", i, got[i], want)
		}
	}
	if got[2] != 0 || got[0] != 1 {
		t.Errorf("extremes = %v/%v, want exactly 0/1", got[2], got[0])
	}
}

func TestNormalize_TableShapeAndIsolation(t *testing.T) {
	scores := &ScoreTable{
		Columns: []string{"otd_robustness", "otd_recover_rapidity"},
		Rows: []ScoreRow{
			{RunID: "P0", Values: []float64{100, 0.05}},
			{RunID: "P1", Values: []float64{50, 0.05}},
			{RunID: "P2", Values: []float64{150, 0.05}},
		},
	}

	norm := Normalize(scores)

	if len(norm.Rows) != 3 || len(norm.Columns) != 2 {
		t.Fatalf("shape = %dx%d, want 3x2", len(norm.Rows), len(norm.Columns))
	}
	for i, want := range []float64{0.5, 0, 1} {
		if norm.Rows[i].Values[0] != want {
			t.Errorf("row %d robustness = %v, want %v", i, norm.Rows[i].Values[0], want)
		}
		if !math.IsNaN(norm.Rows[i].Values[1]) {
			t.Errorf("row %d rapidity = %v, want NaN for a column without spread", i, norm.Rows[i].Values[1])
		}
		if norm.Rows[i].RunID != scores.Rows[i].RunID {
			t.Errorf("row %d id = %q", i, norm.Rows[i].RunID)
		}
	}

	if scores.Rows[0].Values[0] != 100 {
		t.Error("Normalize mutated its input")
	}
	if v, ok := norm.Value("P2", "otd_robustness"); !ok || v != 1 {
		t.Errorf("Value(P2) = %v, %v", v, ok)
	}
}
