package resilience

import (
	"math"
	"sort"
	"testing"

	"github.com/chrissnell/resilience/internal/observation"
)

const (
	disturbanceSignal = "Disturbance: STEP Ausfall Eigene Kapazität"
	otdColumn         = "KPI: Lieferfähigkeit"
	costColumn        = "KPI: Kostenanteil an Umsatz"
)

// months returns 0, 1, ..., n-1.
func months(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i)
	}
	return out
}

// step returns n samples of base with value set on [from, to).
func step(n int, base, value float64, from, to int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = base
		if i >= from && i < to {
			out[i] = value
		}
	}
	return out
}

func constant(n int, v float64) []float64 { return step(n, v, v, 0, 0) }

// buildTable creates a run table with the given columns.
func buildTable(t *testing.T, id string, n int, columns map[string][]float64) *observation.Table {
	t.Helper()
	tbl := observation.NewTable(id, months(n))
	for _, name := range sortedKeys(columns) {
		if err := tbl.AddColumn(name, columns[name]); err != nil {
			t.Fatalf("AddColumn(%q): %v", name, err)
		}
	}
	return tbl
}

func sortedKeys(m map[string][]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// scenarioTable is the reference run: a disturbance of 5 active on steps
// 3-7 and an OTD metric that drops to 0.95 on steps 4-8.
func scenarioTable(t *testing.T, id string) *observation.Table {
	return buildTable(t, id, 12, map[string][]float64{
		disturbanceSignal: step(12, 0, 5, 3, 8),
		otdColumn:         step(12, 1.0, 0.95, 4, 9),
		costColumn:        step(12, 0.30, 0.40, 5, 10),
	})
}

var otdMetric = MetricSpec{Name: "otd", Column: otdColumn, Lower: 0.99, Upper: 1.01}

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}
