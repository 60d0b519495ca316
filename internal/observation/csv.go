package observation

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// CSVOptions describes the layout of a delimited simulation export.
type CSVOptions struct {
	TimeColumn   string // header of the time column, "Time" when empty
	Delimiter    rune   // field separator, ',' when zero
	DecimalComma bool   // numbers use ',' as decimal separator
}

func (o CSVOptions) timeColumn() string {
	if o.TimeColumn == "" {
		return "Time"
	}
	return o.TimeColumn
}

// ReadCSV reads one exported sheet into a table. Empty cells become NaN.
func ReadCSV(r io.Reader, runID string, opts CSVOptions) (*Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("run %s: empty export", runID)
		}
		return nil, fmt.Errorf("run %s: read header: %w", runID, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	timeIdx := -1
	for i, name := range header {
		if name == opts.timeColumn() {
			timeIdx = i
			break
		}
	}
	if timeIdx < 0 {
		return nil, fmt.Errorf("run %s: time column %q: %w", runID, opts.timeColumn(), ErrColumnNotFound)
	}

	data := make([][]float64, len(header))
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("run %s: read row %d: %w", runID, line, err)
		}
		line++

		for i := range header {
			v, err := parseCell(record[i], opts.DecimalComma)
			if err != nil {
				return nil, fmt.Errorf("run %s: row %d column %q: %w", runID, line, header[i], err)
			}
			data[i] = append(data[i], v)
		}
	}

	t := NewTable(runID, data[timeIdx])
	for i, name := range header {
		if i == timeIdx {
			continue
		}
		values := data[i]
		if values == nil {
			values = []float64{}
		}
		if err := t.AddColumn(name, values); err != nil {
			return nil, fmt.Errorf("run %s: %w", runID, err)
		}
	}
	return t, nil
}

func parseCell(cell string, decimalComma bool) (float64, error) {
	cell = strings.TrimSpace(cell)
	if cell == "" {
		return math.NaN(), nil
	}
	if decimalComma {
		cell = strings.ReplaceAll(cell, ".", "")
		cell = strings.Replace(cell, ",", ".", 1)
	}
	return strconv.ParseFloat(cell, 64)
}
