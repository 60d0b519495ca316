package observation

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const wideExport = `Time,Run 1: Disturbance: STEP Nachfrage,Run 1: KPI: Lieferfähigkeit,Run 2: Disturbance: STEP Nachfrage,Run 2: KPI: Lieferfähigkeit,Run 10: Disturbance: STEP Nachfrage,Run 10: KPI: Lieferfähigkeit,Szenario
0,0,1,0,1,0,1,7
1,5,0.9,0,1,2,0.97,7
2,0,1,3,0.8,0,1,7
`

func TestReadCSV(t *testing.T) {
	in := "Time;Disturbance;KPI\n0;0;1,00\n1;;0,95\n2;4;1.000,5\n"
	tbl, err := ReadCSV(strings.NewReader(in), "P0", CSVOptions{Delimiter: ';', DecimalComma: true})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	if tbl.Len() != 3 || tbl.ID() != "P0" {
		t.Fatalf("len=%d id=%q", tbl.Len(), tbl.ID())
	}
	dist, err := tbl.Column("Disturbance")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if !math.IsNaN(dist[1]) || dist[2] != 4 {
		t.Errorf("Disturbance = %v", dist)
	}
	kpi, _ := tbl.Column("KPI")
	if kpi[1] != 0.95 || kpi[2] != 1000.5 {
		t.Errorf("KPI = %v", kpi)
	}
	if got := tbl.Columns(); len(got) != 2 || got[0] != "Disturbance" {
		t.Errorf("Columns = %v", got)
	}
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"empty", ""},
		{"no time column", "Month,A\n0,1\n"},
		{"non numeric cell", "Time,A\n0,abc\n"},
		{"ragged row", "Time,A\n0,1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ReadCSV(strings.NewReader(tt.in), "x", CSVOptions{}); err == nil {
				t.Error("expected error")
			}
		})
	}

	_, err := ReadCSV(strings.NewReader("Month,A\n0,1\n"), "x", CSVOptions{})
	if !errors.Is(err, ErrColumnNotFound) {
		t.Errorf("error = %v, want ErrColumnNotFound", err)
	}
}

func TestSplitRuns(t *testing.T) {
	wide, err := ReadCSV(strings.NewReader(wideExport), "C1", CSVOptions{})
	if err != nil {
		t.Fatalf("ReadCSV: %v", err)
	}

	runs, err := SplitRuns(wide, nil)
	if err != nil {
		t.Fatalf("SplitRuns: %v", err)
	}

	wantIDs := []string{"C1-run1", "C1-run2", "C1-run10"}
	if len(runs) != len(wantIDs) {
		t.Fatalf("got %d runs, want %d", len(runs), len(wantIDs))
	}
	for i, id := range wantIDs {
		if runs[i].ID() != id {
			t.Errorf("run %d id = %q, want %q", i, runs[i].ID(), id)
		}
	}

	// "Run 1" must not pick up "Run 10" columns.
	d, err := runs[0].Column("Disturbance: STEP Nachfrage")
	if err != nil {
		t.Fatalf("Column: %v", err)
	}
	if d[1] != 5 {
		t.Errorf("run 1 disturbance = %v", d)
	}
	d10, _ := runs[2].Column("Disturbance: STEP Nachfrage")
	if d10[1] != 2 {
		t.Errorf("run 10 disturbance = %v", d10)
	}

	if cols := runs[1].Columns(); len(cols) != 3 || cols[0] != "Szenario" {
		t.Errorf("run 2 columns = %v, want shared column first", cols)
	}
}

func TestSplitRuns_WithoutPrefixes(t *testing.T) {
	tbl := NewTable("P0", []float64{0, 1})
	if err := tbl.AddColumn("A", []float64{1, 2}); err != nil {
		t.Fatal(err)
	}
	runs, err := SplitRuns(tbl, nil)
	if err != nil || len(runs) != 1 || runs[0] != tbl {
		t.Fatalf("runs = %v, err = %v", runs, err)
	}
}

func TestTableValidate(t *testing.T) {
	tests := []struct {
		name    string
		times   []float64
		wantErr bool
	}{
		{"ok", []float64{0, 1, 2}, false},
		{"empty", nil, true},
		{"repeated time", []float64{0, 1, 1}, true},
		{"decreasing time", []float64{0, 2, 1}, true},
		{"missing time", []float64{0, math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewTable("x", tt.times).Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddColumn_LengthMismatch(t *testing.T) {
	tbl := NewTable("x", []float64{0, 1})
	if err := tbl.AddColumn("A", []float64{1}); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := tbl.AddColumn("A", []float64{1, 2}); err != nil {
		t.Fatal(err)
	}
	if err := tbl.AddColumn("A", []float64{1, 2}); err == nil {
		t.Error("expected duplicate column error")
	}
}

func TestLoadPath(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"C1.csv":    wideExport,
		"P0.csv":    "Time,A\n0,1\n1,2\n",
		"notes.txt": "ignored",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tables, failures, err := LoadPath(dir, CSVOptions{}, nil)
	if err != nil || len(failures) != 0 {
		t.Fatalf("LoadPath: %v, failures %v", err, failures)
	}
	var ids []string
	for _, tbl := range tables {
		ids = append(ids, tbl.ID())
	}
	want := "C1-run1,C1-run2,C1-run10,P0"
	if strings.Join(ids, ",") != want {
		t.Errorf("ids = %v, want %s", ids, want)
	}

	single, _, err := LoadPath(filepath.Join(dir, "P0.csv"), CSVOptions{}, nil)
	if err != nil || len(single) != 1 || single[0].ID() != "P0" {
		t.Fatalf("single file: %v, %v", single, err)
	}

	if _, _, err := LoadPath(t.TempDir(), CSVOptions{}, nil); err == nil {
		t.Error("expected error for directory without exports")
	}
}

func TestLoadPath_UnreadableSheetsDoNotStopTheRest(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"a.csv": "Time,D,KPI\n0,0,1\n1,5,0.9\n",
		"b.csv": "Time,D,KPI\n",
		"c.csv": "Time,D,KPI\n0,0,abc\n",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tables, failures, err := LoadPath(dir, CSVOptions{}, nil)
	if err != nil {
		t.Fatalf("LoadPath: %v", err)
	}

	if len(tables) != 2 || tables[0].ID() != "a" || tables[1].ID() != "b" {
		t.Fatalf("tables = %v, want a and b", tables)
	}
	if tables[0].Len() != 2 {
		t.Errorf("a has %d rows, want 2", tables[0].Len())
	}
	if tables[1].Len() != 0 {
		t.Errorf("b has %d rows, want 0", tables[1].Len())
	}
	if _, err := tables[1].Column("D"); err != nil {
		t.Errorf("b lost its columns: %v", err)
	}

	if len(failures) != 1 || failures[0].RunID != "c" {
		t.Fatalf("failures = %v, want c only", failures)
	}
	if failures[0].File != filepath.Join(dir, "c.csv") || !strings.Contains(failures[0].Error(), "abc") {
		t.Errorf("failure = %v", failures[0])
	}

	single, failures, err := LoadPath(filepath.Join(dir, "c.csv"), CSVOptions{}, nil)
	if err != nil || len(single) != 0 || len(failures) != 1 {
		t.Errorf("single broken file: tables %v, failures %v, err %v", single, failures, err)
	}
}
