// Package observation holds fully materialized simulation output: one table
// per run, ordered time steps as rows and named numeric signals as columns.
package observation

import (
	"errors"
	"fmt"
	"math"
)

// ErrColumnNotFound is returned when a signal is not present in a table.
var ErrColumnNotFound = errors.New("column not found")

// Table is the observation table of a single run.
type Table struct {
	id      string
	times   []float64
	order   []string
	columns map[string][]float64
}

// NewTable creates an empty table for runID with the given time column.
func NewTable(runID string, times []float64) *Table {
	return &Table{
		id:      runID,
		times:   times,
		columns: make(map[string][]float64),
	}
}

// AddColumn appends a named signal. Its length must match the time column.
func (t *Table) AddColumn(name string, values []float64) error {
	if len(values) != len(t.times) {
		return fmt.Errorf("column %q has %d rows, table has %d", name, len(values), len(t.times))
	}
	if _, exists := t.columns[name]; exists {
		return fmt.Errorf("duplicate column %q", name)
	}
	t.order = append(t.order, name)
	t.columns[name] = values
	return nil
}

func (t *Table) ID() string { return t.id }

func (t *Table) Len() int { return len(t.times) }

func (t *Table) Times() []float64 { return t.times }

// Columns returns signal names in insertion order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Column returns the values of a signal.
func (t *Table) Column(name string) ([]float64, error) {
	values, ok := t.columns[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrColumnNotFound)
	}
	return values, nil
}

// Validate checks that the table has rows and a strictly increasing,
// fully populated time column.
func (t *Table) Validate() error {
	if len(t.times) == 0 {
		return fmt.Errorf("run %s: table has no rows", t.id)
	}
	for i, ts := range t.times {
		if math.IsNaN(ts) {
			return fmt.Errorf("run %s: missing time value at row %d", t.id, i)
		}
		if i > 0 && ts <= t.times[i-1] {
			return fmt.Errorf("run %s: time not strictly increasing at row %d (%v after %v)",
				t.id, i, ts, t.times[i-1])
		}
	}
	return nil
}
