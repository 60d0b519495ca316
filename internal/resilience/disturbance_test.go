package resilience

import (
	"errors"
	"math"
	"testing"
)

func TestSelectDisturbanceSignal(t *testing.T) {
	const (
		supplier = "Disturbance: Abbau Lieferant"
		demand   = "Disturbance: STEP Nachfrage"
		pulse    = "Disturbance: PULSE Ausfall"
	)

	tests := []struct {
		name       string
		columns    map[string][]float64
		candidates []string
		want       string
		wantErr    error
	}{
		{
			name: "single active candidate",
			columns: map[string][]float64{
				supplier: constant(10, 0),
				demand:   step(10, 0, 3, 2, 5),
			},
			candidates: []string{supplier, demand},
			want:       demand,
		},
		{
			name: "last active candidate wins",
			columns: map[string][]float64{
				supplier: step(10, 0, 1, 1, 4),
				demand:   step(10, 0, 3, 2, 5),
				pulse:    constant(10, 2),
			},
			candidates: []string{supplier, demand, pulse},
			want:       demand,
		},
		{
			name: "tie-break follows candidate order not column order",
			columns: map[string][]float64{
				supplier: step(10, 0, 1, 1, 4),
				demand:   step(10, 0, 3, 2, 5),
			},
			candidates: []string{demand, supplier},
			want:       supplier,
		},
		{
			name: "missing candidate is skipped",
			columns: map[string][]float64{
				demand: step(10, 0, 3, 2, 5),
			},
			candidates: []string{demand, pulse},
			want:       demand,
		},
		{
			name: "all candidates constant",
			columns: map[string][]float64{
				supplier: constant(10, 0),
				demand:   constant(10, 100),
			},
			candidates: []string{supplier, demand},
			wantErr:    ErrNoDisturbanceDetected,
		},
		{
			name: "column without any value carries no signal",
			columns: map[string][]float64{
				supplier: constant(10, math.NaN()),
			},
			candidates: []string{supplier},
			wantErr:    ErrNoDisturbanceDetected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := buildTable(t, "P0", 10, tt.columns)
			got, err := SelectDisturbanceSignal(tbl, tt.candidates)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("signal = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectDisturbance_StepScenario(t *testing.T) {
	tbl := scenarioTable(t, "P1")

	d, err := DetectDisturbance(tbl, disturbanceSignal)
	if err != nil {
		t.Fatalf("DetectDisturbance: %v", err)
	}

	if d.StartIndex != 3 || d.EndIndex != 7 {
		t.Errorf("window = [%d,%d], want [3,7]", d.StartIndex, d.EndIndex)
	}
	if d.StartTime != 3 || d.EndTime != 7 {
		t.Errorf("times = [%v,%v], want [3,7]", d.StartTime, d.EndTime)
	}
	if d.Magnitude != 5 {
		t.Errorf("magnitude = %v, want 5", d.Magnitude)
	}
	if d.Signal != disturbanceSignal {
		t.Errorf("signal = %q", d.Signal)
	}
}

func TestDetectDisturbance_NonContiguousWindow(t *testing.T) {
	// Two pulses: the window spans from the first to the last one.
	values := []float64{1, 1, 4, 1, 1, 1, 7, 1, 1}
	tbl := buildTable(t, "P2", len(values), map[string][]float64{disturbanceSignal: values})

	d, err := DetectDisturbance(tbl, disturbanceSignal)
	if err != nil {
		t.Fatalf("DetectDisturbance: %v", err)
	}
	if d.StartIndex != 2 || d.EndIndex != 6 {
		t.Errorf("window = [%d,%d], want [2,6]", d.StartIndex, d.EndIndex)
	}
	if d.Magnitude != 7 {
		t.Errorf("magnitude = %v, want 7", d.Magnitude)
	}
}

func TestDetectDisturbance_Errors(t *testing.T) {
	tests := []struct {
		name    string
		values  []float64
		wantErr error
	}{
		{
			// a disturbance that only ever decreases never exceeds baseline
			name:    "never above baseline",
			values:  []float64{5, 5, 2, 2, 5},
			wantErr: ErrEmptyMatch,
		},
		{
			name:    "missing baseline value",
			values:  []float64{math.NaN(), 0, 3, 0},
			wantErr: ErrMissingBaseline,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl := buildTable(t, "P3", len(tt.values), map[string][]float64{disturbanceSignal: tt.values})
			_, err := DetectDisturbance(tbl, disturbanceSignal)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDetectDisturbance_EmptyTable(t *testing.T) {
	tbl := buildTable(t, "empty", 0, map[string][]float64{disturbanceSignal: {}})
	_, err := DetectDisturbance(tbl, disturbanceSignal)
	if !errors.Is(err, ErrMissingBaseline) {
		t.Fatalf("error = %v, want ErrMissingBaseline", err)
	}
}

func TestSelectDisturbanceSignal_EmptyTable(t *testing.T) {
	tbl := buildTable(t, "empty", 0, map[string][]float64{
		disturbanceSignal: {},
		otdColumn:         {},
	})
	_, err := SelectDisturbanceSignal(tbl, []string{disturbanceSignal})
	if !errors.Is(err, ErrMissingBaseline) {
		t.Fatalf("error = %v, want ErrMissingBaseline", err)
	}
}
