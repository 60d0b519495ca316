package resilience

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/chrissnell/resilience/internal/observation"
)

const (
	demandSignal   = "Disturbance: STEP Nachfrage"
	capacityParam  = "Lager.Kapazität"
	totalCostTally = "Bewertung.Gesamtkosten"
)

func testConfig() Config {
	return Config{
		Candidates: []string{demandSignal, disturbanceSignal},
		Metrics: []MetricSpec{
			otdMetric,
			{Name: "cost", Column: costColumn, Lower: 0.94, Upper: 1.06},
		},
		IgnoreColumns: []string{totalCostTally},
		Workers:       4,
	}
}

// runTable builds a run whose disturbance has the given magnitude and whose
// OTD drops to otdLow.
func runTable(t *testing.T, id string, magnitude, otdLow float64) *observation.Table {
	return buildTable(t, id, 12, map[string][]float64{
		demandSignal:      constant(12, 100),
		disturbanceSignal: step(12, 0, magnitude, 3, 8),
		otdColumn:         step(12, 1.0, otdLow, 4, 9),
		costColumn:        step(12, 0.30, 0.40, 5, 10),
		capacityParam:     constant(12, 500),
		totalCostTally:    months(12),
	})
}

func testBatch(t *testing.T) []Table {
	return []Table{
		runTable(t, "P0", 5, 0.95),
		runTable(t, "P1", 20, 0.90),
		buildTable(t, "P2", 12, map[string][]float64{
			demandSignal:      constant(12, 100),
			disturbanceSignal: constant(12, 0),
			otdColumn:         constant(12, 1),
			costColumn:        constant(12, 0.3),
		}),
		runTable(t, "P3", 2, 0.98),
	}
}

func newTestAnalyzer(t *testing.T, cfg Config) *Analyzer {
	t.Helper()
	a, err := NewAnalyzer(cfg, nil)
	if err != nil {
		t.Fatalf("NewAnalyzer: %v", err)
	}
	return a
}

func TestAnalyze_FailedRunExcludedSiblingsKept(t *testing.T) {
	a := newTestAnalyzer(t, testConfig())

	batch, err := a.Analyze(context.Background(), testBatch(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if len(batch.Results) != 3 || len(batch.Scores.Rows) != 3 || len(batch.Normalized.Rows) != 3 {
		t.Fatalf("got %d results / %d score rows / %d normalized rows, want 3 each",
			len(batch.Results), len(batch.Scores.Rows), len(batch.Normalized.Rows))
	}
	for i, want := range []string{"P0", "P1", "P3"} {
		if batch.Scores.Rows[i].RunID != want {
			t.Errorf("row %d = %q, want %q", i, batch.Scores.Rows[i].RunID, want)
		}
	}

	if len(batch.Failures) != 1 {
		t.Fatalf("failures = %+v, want one", batch.Failures)
	}
	f := batch.Failures[0]
	if f.RunID != "P2" || f.Kind != KindNoDisturbanceDetected {
		t.Errorf("failure = %+v", f)
	}
	var runErr *RunError
	if !errors.As(f.Err, &runErr) || runErr.RunID != "P2" || !errors.Is(f.Err, ErrNoDisturbanceDetected) {
		t.Errorf("failure error = %v", f.Err)
	}

	if batch.ID == "" || batch.CreatedAt.IsZero() {
		t.Error("batch id and timestamp must be set")
	}
}

func TestAnalyze_Scores(t *testing.T) {
	a := newTestAnalyzer(t, testConfig())
	batch, err := a.Analyze(context.Background(), testBatch(t))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	rob, ok := batch.Scores.Value("P0", "otd_robustness")
	if !ok || !almostEqual(rob, 100, 1e-9) {
		t.Errorf("P0 otd_robustness = %v, %v; want 100", rob, ok)
	}

	// P0: 5/0.05, P1: 20/0.1, P3: 2/0.02
	for run, want := range map[string]float64{"P0": 0, "P1": 1, "P3": 0} {
		v, _ := batch.Normalized.Value(run, "otd_robustness")
		if !almostEqual(v, want, 1e-9) {
			t.Errorf("%s normalized otd_robustness = %v, want %v", run, v, want)
		}
	}

	// rapidity: drop over one month -> 0.05, 0.10, 0.02
	for run, want := range map[string]float64{"P0": 0.375, "P1": 1, "P3": 0} {
		v, _ := batch.Normalized.Value(run, "otd_recover_rapidity")
		if !almostEqual(v, want, 1e-9) {
			t.Errorf("%s normalized otd_recover_rapidity = %v, want %v", run, v, want)
		}
	}

	// cost rapidity is 0 for every run: no spread, undefined after scaling
	for _, row := range batch.Normalized.Rows {
		if v, _ := batch.Normalized.Value(row.RunID, "cost_recover_rapidity"); !math.IsNaN(v) {
			t.Errorf("%s normalized cost_recover_rapidity = %v, want NaN", row.RunID, v)
		}
	}

	// cost rises instead of dropping: no drop below baseline at all
	if v, _ := batch.Scores.Value("P0", "cost_robustness"); !math.IsNaN(v) {
		t.Errorf("cost_robustness = %v, want NaN", v)
	}
	if len(batch.MetricFailures) != 3 {
		t.Errorf("metric failures = %d, want one per successful run", len(batch.MetricFailures))
	}
}

func TestAnalyze_WindowInvariants(t *testing.T) {
	a := newTestAnalyzer(t, testConfig())
	runs := testBatch(t)
	batch, err := a.Analyze(context.Background(), runs)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	for _, r := range batch.Results {
		d := r.Disturbance
		if d.StartIndex > d.EndIndex || d.StartIndex < 0 || d.EndIndex >= 12 {
			t.Errorf("%s: disturbance window [%d,%d] out of range", r.RunID, d.StartIndex, d.EndIndex)
		}
		for _, e := range r.Effects {
			if e.StartIndex < d.StartIndex || e.EndIndex < d.EndIndex {
				t.Errorf("%s/%s: effect [%d,%d] precedes disturbance [%d,%d]",
					r.RunID, e.Metric, e.StartIndex, e.EndIndex, d.StartIndex, d.EndIndex)
			}
		}
		if r.Parameters[capacityParam] != 500 {
			t.Errorf("%s: parameters = %v", r.RunID, r.Parameters)
		}
		if _, ok := r.Parameters[totalCostTally]; ok {
			t.Errorf("%s: ignored column reported as parameter", r.RunID)
		}
	}
}

func TestAnalyze_DeterministicAcrossWorkerCounts(t *testing.T) {
	runs := testBatch(t)

	var batches []*Batch
	for _, workers := range []int{1, 1, 8} {
		cfg := testConfig()
		cfg.Workers = workers
		batch, err := newTestAnalyzer(t, cfg).Analyze(context.Background(), runs)
		if err != nil {
			t.Fatalf("Analyze(workers=%d): %v", workers, err)
		}
		batches = append(batches, batch)
	}

	first := batches[0]
	for _, b := range batches[1:] {
		if len(b.Results) != len(first.Results) {
			t.Fatalf("result count differs")
		}
		for i := range first.Results {
			if first.Results[i].Disturbance != b.Results[i].Disturbance {
				t.Errorf("disturbance %d differs", i)
			}
			for j := range first.Results[i].Effects {
				if !sameEffect(first.Results[i].Effects[j], b.Results[i].Effects[j]) {
					t.Errorf("effect %d/%d differs", i, j)
				}
			}
		}
		for _, pair := range [][2]*ScoreTable{{first.Scores, b.Scores}, {first.Normalized, b.Normalized}} {
			for i := range pair[0].Rows {
				for c := range pair[0].Columns {
					x, y := pair[0].Rows[i].Values[c], pair[1].Rows[i].Values[c]
					if math.Float64bits(x) != math.Float64bits(y) {
						t.Errorf("row %d column %d: %v != %v", i, c, x, y)
					}
				}
			}
		}
	}
}

func sameEffect(a, b EffectWindow) bool {
	bits := func(v float64) uint64 { return math.Float64bits(v) }
	return a.Metric == b.Metric && a.StartIndex == b.StartIndex && a.EndIndex == b.EndIndex &&
		bits(a.StartTime) == bits(b.StartTime) && bits(a.EndTime) == bits(b.EndTime) &&
		bits(a.InitialValue) == bits(b.InitialValue) &&
		bits(a.MinValue) == bits(b.MinValue) && bits(a.MaxValue) == bits(b.MaxValue)
}

func TestAnalyze_StrictParameters(t *testing.T) {
	cfg := testConfig()
	cfg.IgnoreColumns = nil
	cfg.StrictParameters = true

	batch, err := newTestAnalyzer(t, cfg).Analyze(context.Background(), []Table{runTable(t, "P0", 5, 0.95)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(batch.Failures) != 1 || batch.Failures[0].Kind != KindParameterDrift {
		t.Fatalf("failures = %+v, want ParameterDrift", batch.Failures)
	}

	cfg.StrictParameters = false
	batch, err = newTestAnalyzer(t, cfg).Analyze(context.Background(), []Table{runTable(t, "P0", 5, 0.95)})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(batch.Failures) != 0 || batch.Results[0].Parameters[capacityParam] != 500 {
		t.Errorf("lenient run: failures=%+v params=%v", batch.Failures, batch.Results[0].Parameters)
	}
}

func TestAnalyze_EffectNotFoundFailsRun(t *testing.T) {
	tbl := buildTable(t, "P5", 12, map[string][]float64{
		disturbanceSignal: step(12, 0, 5, 3, 8),
		otdColumn:         constant(12, 1),
		costColumn:        step(12, 0.30, 0.40, 5, 10),
	})
	batch, err := newTestAnalyzer(t, testConfig()).Analyze(context.Background(), []Table{tbl})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(batch.Failures) != 1 || batch.Failures[0].Kind != KindEffectNotFound {
		t.Fatalf("failures = %+v", batch.Failures)
	}
	if len(batch.Results) != 0 || len(batch.Scores.Rows) != 0 {
		t.Error("failed run must not produce a score row")
	}
}

func TestAnalyze_InvalidInput(t *testing.T) {
	a := newTestAnalyzer(t, testConfig())

	dup := []Table{runTable(t, "P0", 5, 0.95), runTable(t, "P0", 5, 0.95)}
	if _, err := a.Analyze(context.Background(), dup); err == nil {
		t.Error("expected error for duplicate run ids")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := a.Analyze(ctx, testBatch(t)); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no candidates", func(c *Config) { c.Candidates = nil }},
		{"no metrics", func(c *Config) { c.Metrics = nil }},
		{"unnamed metric", func(c *Config) { c.Metrics[0].Name = "" }},
		{"metric without column", func(c *Config) { c.Metrics[0].Column = "" }},
		{"inverted band", func(c *Config) { c.Metrics[0].Lower, c.Metrics[0].Upper = 1.01, 0.99 }},
		{"duplicate metric", func(c *Config) { c.Metrics[1].Name = c.Metrics[0].Name }},
		{"even smoothing kernel", func(c *Config) { c.Effect.Smoothing = 4 }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
	}

	if err := testConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestAnalyze_EmptyRunReportsMissingBaseline(t *testing.T) {
	a := newTestAnalyzer(t, testConfig())
	empty := buildTable(t, "P9", 0, map[string][]float64{
		disturbanceSignal: {},
		otdColumn:         {},
	})

	batch, err := a.Analyze(context.Background(), []Table{runTable(t, "P0", 5, 0.95), empty})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(batch.Results) != 1 || batch.Results[0].RunID != "P0" {
		t.Fatalf("results = %+v, want P0 only", batch.Results)
	}
	if len(batch.Failures) != 1 || batch.Failures[0].RunID != "P9" || batch.Failures[0].Kind != KindMissingBaseline {
		t.Fatalf("failures = %+v, want P9 MissingBaseline", batch.Failures)
	}
}
