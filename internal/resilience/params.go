package resilience

import (
	"fmt"
	"sort"
)

// ParameterDriftError lists scenario parameters that changed during a run.
type ParameterDriftError struct {
	Columns []string
}

func (e *ParameterDriftError) Error() string {
	return fmt.Sprintf("%v: %v", ErrParameterDrift, e.Columns)
}

func (e *ParameterDriftError) Unwrap() error { return ErrParameterDrift }

// ExtractParameters reads the scenario parameters of a run. Parameters are
// configured once per scenario and must hold a single value for the whole
// run. Constant columns are returned with their value; when any column
// varies, the constant ones are still returned together with a
// *ParameterDriftError naming the others.
func ExtractParameters(t Table, columns []string) (map[string]float64, error) {
	params := make(map[string]float64, len(columns))
	var drifting []string

	for _, name := range columns {
		values, err := t.Column(name)
		if err != nil {
			return nil, err
		}
		if !isConstant(values) {
			drifting = append(drifting, name)
			continue
		}
		lo, _ := extrema(values)
		params[name] = lo
	}

	if len(drifting) > 0 {
		sort.Strings(drifting)
		return params, &ParameterDriftError{Columns: drifting}
	}
	return params, nil
}

// parameterColumns returns the table columns that are neither disturbance
// candidates, tracked metrics nor explicitly ignored.
func parameterColumns(t Table, cfg Config) []string {
	skip := make(map[string]struct{}, len(cfg.Candidates)+len(cfg.Metrics)+len(cfg.IgnoreColumns))
	for _, c := range cfg.Candidates {
		skip[c] = struct{}{}
	}
	for _, m := range cfg.Metrics {
		skip[m.Column] = struct{}{}
	}
	for _, c := range cfg.IgnoreColumns {
		skip[c] = struct{}{}
	}

	var out []string
	for _, c := range t.Columns() {
		if _, ok := skip[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}
