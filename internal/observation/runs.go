package observation

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// DefaultRunPattern matches the per-run column prefix of wide exports,
// e.g. "Run 3: KPI: Lieferfähigkeit". The first group is the run number,
// the second the signal name.
var DefaultRunPattern = regexp.MustCompile(`^Run (\d+): (.+)$`)

// SplitRuns splits a wide export holding several runs side by side into
// one table per run. Columns without a run prefix are shared and copied
// into every run. A table without any prefixed column is returned as is.
func SplitRuns(t *Table, pattern *regexp.Regexp) ([]*Table, error) {
	if pattern == nil {
		pattern = DefaultRunPattern
	}

	type runColumn struct {
		signal string
		source string
	}
	perRun := make(map[int][]runColumn)
	var shared []string

	for _, name := range t.order {
		m := pattern.FindStringSubmatch(name)
		if m == nil || len(m) < 3 {
			shared = append(shared, name)
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("column %q: invalid run number: %w", name, err)
		}
		perRun[n] = append(perRun[n], runColumn{signal: m[2], source: name})
	}

	if len(perRun) == 0 {
		return []*Table{t}, nil
	}

	runs := make([]int, 0, len(perRun))
	for n := range perRun {
		runs = append(runs, n)
	}
	sort.Ints(runs)

	out := make([]*Table, 0, len(runs))
	for _, n := range runs {
		rt := NewTable(fmt.Sprintf("%s-run%d", t.id, n), t.times)
		for _, name := range shared {
			if err := rt.AddColumn(name, t.columns[name]); err != nil {
				return nil, err
			}
		}
		for _, c := range perRun[n] {
			if err := rt.AddColumn(c.signal, t.columns[c.source]); err != nil {
				return nil, fmt.Errorf("run %d: %w", n, err)
			}
		}
		out = append(out, rt)
	}
	return out, nil
}

// LoadFailure is an export file that could not be read into runs.
type LoadFailure struct {
	RunID string // file name without extension
	File  string
	Err   error
}

func (f LoadFailure) Error() string {
	return fmt.Sprintf("%s: %v", f.File, f.Err)
}

func (f LoadFailure) Unwrap() error { return f.Err }

// LoadPath loads every run found at path. A file is read as one export; a
// directory contributes each *.csv file in name order, the way a workbook
// contributes one sheet per scenario. Run IDs derive from the file name.
//
// A file that cannot be read is reported as a LoadFailure and does not stop
// the other files from loading. Runs without rows are returned as empty
// tables so the analyzer reports their missing baseline. The error is
// non-nil only when path itself cannot be listed.
func LoadPath(path string, opts CSVOptions, pattern *regexp.Regexp) ([]*Table, []LoadFailure, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, err
	}

	files := []string{path}
	if info.IsDir() {
		files, err = filepath.Glob(filepath.Join(path, "*.csv"))
		if err != nil {
			return nil, nil, err
		}
		sort.Strings(files)
		if len(files) == 0 {
			return nil, nil, fmt.Errorf("no *.csv exports found in %s", path)
		}
	}

	var tables []*Table
	var failures []LoadFailure
	for _, file := range files {
		id := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		loaded, err := loadFile(file, id, opts, pattern)
		if err != nil {
			failures = append(failures, LoadFailure{RunID: id, File: file, Err: err})
			continue
		}
		tables = append(tables, loaded...)
	}
	return tables, failures, nil
}

func loadFile(file, id string, opts CSVOptions, pattern *regexp.Regexp) ([]*Table, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := ReadCSV(f, id, opts)
	if err != nil {
		return nil, err
	}

	runs, err := SplitRuns(t, pattern)
	if err != nil {
		return nil, err
	}
	for _, rt := range runs {
		if rt.Len() == 0 {
			continue
		}
		if err := rt.Validate(); err != nil {
			return nil, err
		}
	}
	return runs, nil
}
