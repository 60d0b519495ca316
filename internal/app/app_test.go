package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chrissnell/resilience/internal/controllers/restserver"
	"github.com/chrissnell/resilience/internal/managers"
	"github.com/chrissnell/resilience/internal/report"
	"github.com/chrissnell/resilience/internal/resilience"
	"github.com/chrissnell/resilience/internal/storage/sqlite"
	"github.com/chrissnell/resilience/internal/storage/storagetest"
	"github.com/chrissnell/resilience/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	disturbance = "Disturbance: STEP Nachfrage"
	otd         = "KPI: Lieferfähigkeit"
)

// writeRun writes a 12 month export whose disturbance of size magnitude is
// active on months 3 to 7. A magnitude of 0 gives a run without
// disturbance.
func writeRun(t *testing.T, path string, magnitude float64) {
	t.Helper()
	var b strings.Builder
	fmt.Fprintf(&b, "Time,%s,%s\n", disturbance, otd)
	for i := 0; i < 12; i++ {
		d, v := 0.0, 1.0
		if i >= 3 && i <= 7 {
			d = magnitude
		}
		if magnitude != 0 && i >= 4 && i <= 8 {
			v = 0.9
		}
		fmt.Fprintf(&b, "%d,%g,%g\n", i, d, v)
	}
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
}

func writeConfig(t *testing.T, dir, input string) string {
	t.Helper()
	doc := fmt.Sprintf(`analysis:
  disturbance-candidates:
    - %q
  metrics:
    - name: otd
      column: %q
      lower: 0.99
      upper: 1.01
  workers: 2
input:
  path: %q
storage:
  sqlite:
    path: %q
`, disturbance, otd, input, filepath.Join(dir, "results.db"))
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func fixture(t *testing.T) (dir, cfgPath string) {
	t.Helper()
	dir = t.TempDir()
	input := filepath.Join(dir, "exports")
	require.NoError(t, os.Mkdir(input, 0o755))
	writeRun(t, filepath.Join(input, "P0.csv"), 5)
	writeRun(t, filepath.Join(input, "P1.csv"), 10)
	writeRun(t, filepath.Join(input, "P2.csv"), 0)
	return dir, writeConfig(t, dir, input)
}

func TestAnalysisConfig(t *testing.T) {
	cfg := config.ConfigData{Analysis: config.AnalysisData{
		DisturbanceCandidates: []string{"a", "b"},
		Metrics:               []config.MetricData{{Name: "otd", Column: "x", Lower: 0.9, Upper: 1.1}},
		EndBoundary:           "legacy",
		RelativeBand:          true,
		Smoothing:             3,
		Workers:               4,
		IgnoreColumns:         []string{"total"},
		StrictParameters:      true,
	}}

	got, err := AnalysisConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, resilience.Config{
		Candidates:       []string{"a", "b"},
		Metrics:          []resilience.MetricSpec{{Name: "otd", Column: "x", Lower: 0.9, Upper: 1.1}},
		Effect:           resilience.EffectOptions{EndBoundary: resilience.BoundaryLegacy, RelativeBand: true, Smoothing: 3},
		Workers:          4,
		IgnoreColumns:    []string{"total"},
		StrictParameters: true,
	}, got)

	cfg.Analysis.EndBoundary = "sideways"
	_, err = AnalysisConfig(cfg)
	assert.Error(t, err)
}

func TestCSVOptionsAndRunPattern(t *testing.T) {
	opts := CSVOptions(config.InputData{TimeColumn: "Monat", Delimiter: ";", DecimalComma: true})
	assert.Equal(t, "Monat", opts.TimeColumn)
	assert.Equal(t, ';', opts.Delimiter)
	assert.True(t, opts.DecimalComma)

	re, err := RunPattern(config.InputData{})
	require.NoError(t, err)
	assert.True(t, re.MatchString("Run 2: KPI"))

	re, err = RunPattern(config.InputData{RunPattern: `^Lauf (\d+)/(.+)$`})
	require.NoError(t, err)
	assert.True(t, re.MatchString("Lauf 2/KPI"))
}

func TestRun_ExportsAndStores(t *testing.T) {
	dir, cfgPath := fixture(t)
	out := filepath.Join(dir, "report.json")

	a := New(config.NewYAMLProvider(cfgPath), Options{Output: out, Format: "json"}, nil)
	require.NoError(t, a.Run(context.Background()))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var r report.Report
	require.NoError(t, json.Unmarshal(data, &r))

	require.Len(t, r.Runs, 2)
	assert.Equal(t, "P0", r.Runs[0].RunID)
	assert.Equal(t, "P1", r.Runs[1].RunID)
	require.Len(t, r.Failures, 1)
	assert.Equal(t, resilience.KindNoDisturbanceDetected, r.Failures[0].Kind)
	assert.Equal(t, []string{"otd_robustness", "otd_recover_rapidity"}, r.Scores.Columns)

	store, err := sqlite.New(filepath.Join(dir, "results.db"), nil)
	require.NoError(t, err)
	defer store.Close()
	stored, err := store.LoadBatch(context.Background(), r.BatchID)
	require.NoError(t, err)
	assert.Len(t, stored.Results, 2)
}

func TestRun_InputOverride(t *testing.T) {
	dir, cfgPath := fixture(t)
	single := filepath.Join(dir, "single.csv")
	writeRun(t, single, 5)

	var buf bytes.Buffer
	a := New(config.NewYAMLProvider(cfgPath), Options{InputPath: single, Format: FormatTable}, nil)
	a.stdout = &buf
	require.NoError(t, a.Run(context.Background()))

	assert.Contains(t, buf.String(), "single")
	assert.Contains(t, buf.String(), "otd_robustness")
}

func TestRun_InvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("analysis:\n  metrics: []\n"), 0o644))

	err := New(config.NewYAMLProvider(path), Options{InputPath: dir}, nil).Run(context.Background())
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestRun_NoInput(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "")

	err := New(config.NewYAMLProvider(path), Options{}, nil).Run(context.Background())
	assert.ErrorContains(t, err, "no input path")
}

func TestReload(t *testing.T) {
	_, cfgPath := fixture(t)
	a := New(config.NewYAMLProvider(cfgPath), Options{}, nil)

	cfg, err := a.loadConfig()
	require.NoError(t, err)
	first, err := a.Analyze(context.Background(), cfg)
	require.NoError(t, err)

	latest := &restserver.Latest{}
	latest.Publish(first)
	sm, err := managers.NewStorageManager(context.Background(), config.StorageData{}, nil)
	require.NoError(t, err)

	// The undisturbed run now carries a disturbance.
	writeRun(t, filepath.Join(cfg.Input.Path, "P2.csv"), 2)
	a.reload(context.Background(), latest, sm)

	second := latest.Current()
	require.NotSame(t, first, second)
	assert.Len(t, second.Batch.Results, 3)
	assert.Empty(t, second.Batch.Failures)
	assert.Contains(t, second.Tables, "P2")

	// A broken sheet fails on its own.
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Input.Path, "P3.csv"), []byte("Time,x\n1,2\n0,3\n"), 0o644))
	a.reload(context.Background(), latest, sm)
	third := latest.Current()
	require.NotSame(t, second, third)
	assert.Len(t, third.Batch.Results, 3)
	require.Len(t, third.Batch.Failures, 1)
	assert.Equal(t, resilience.KindInvalidInput, third.Batch.Failures[0].Kind)

	// An input that cannot be listed keeps the previous batch online.
	require.NoError(t, os.RemoveAll(cfg.Input.Path))
	a.reload(context.Background(), latest, sm)
	assert.Same(t, third, latest.Current())
}

func TestAnalyze_UnreadableSheets(t *testing.T) {
	_, cfgPath := fixture(t)
	a := New(config.NewYAMLProvider(cfgPath), Options{}, nil)
	cfg, err := a.loadConfig()
	require.NoError(t, err)

	header := fmt.Sprintf("Time,%s,%s\n", disturbance, otd)
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Input.Path, "P3.csv"), []byte(header), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Input.Path, "P4.csv"), []byte(header+"0,0,oops\n"), 0o644))

	snap, err := a.Analyze(context.Background(), cfg)
	require.NoError(t, err)

	assert.Len(t, snap.Batch.Results, 2)
	assert.Len(t, snap.Batch.Scores.Rows, 2)

	kinds := make(map[string]string)
	for _, f := range snap.Batch.Failures {
		kinds[f.RunID] = f.Kind
	}
	assert.Equal(t, map[string]string{
		"P2": resilience.KindNoDisturbanceDetected,
		"P3": resilience.KindMissingBaseline,
		"P4": resilience.KindInvalidInput,
	}, kinds)
}

func TestWatchPaths(t *testing.T) {
	_, cfgPath := fixture(t)
	a := New(config.NewYAMLProvider(cfgPath), Options{}, nil)
	cfg, err := a.loadConfig()
	require.NoError(t, err)
	assert.Equal(t, []string{cfg.Input.Path, cfgPath}, a.watchPaths(cfg))
}

func TestExport(t *testing.T) {
	b := storagetest.SampleBatch()

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, "msgpack", b))
	var decoded map[string]any
	require.NoError(t, msgpack.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, b.ID, decoded["batch_id"])

	assert.Error(t, Export(&bytes.Buffer{}, "xml", b))
}
