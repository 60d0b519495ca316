package report

import (
	"fmt"

	"github.com/chrissnell/resilience/internal/resilience"
)

// Overlay is the raw material of a verification plot for one run: the
// disturbance and metric series over time with the detected windows and
// recovered bands marked on them.
type Overlay struct {
	RunID       string          `json:"run_id"`
	Times       []float64       `json:"times"`
	Disturbance SeriesView      `json:"disturbance"`
	Window      DisturbanceView `json:"window"`
	Metrics     []MetricOverlay `json:"metrics"`
}

// SeriesView is a named signal with undefined samples as null.
type SeriesView struct {
	Column string     `json:"column"`
	Values []*float64 `json:"values"`
}

// MetricOverlay is one metric's series, its effect window and the band it
// has to return to.
type MetricOverlay struct {
	Metric string     `json:"metric"`
	Series SeriesView `json:"series"`
	Effect EffectView `json:"effect"`
	Lower  *float64   `json:"lower"`
	Upper  *float64   `json:"upper"`
}

// BuildOverlay combines the observation table of a run with its detection
// result. Metrics without an effect window in res are skipped.
func BuildOverlay(t resilience.Table, res resilience.RunResult, metrics []resilience.MetricSpec, opts resilience.EffectOptions) (Overlay, error) {
	if t.ID() != res.RunID {
		return Overlay{}, fmt.Errorf("table %s does not belong to run %s", t.ID(), res.RunID)
	}

	dist, err := series(t, res.Disturbance.Signal)
	if err != nil {
		return Overlay{}, err
	}

	o := Overlay{
		RunID:       res.RunID,
		Times:       t.Times(),
		Disturbance: dist,
		Window:      NewRunView(res).Disturbance,
		Metrics:     make([]MetricOverlay, 0, len(metrics)),
	}

	for _, m := range metrics {
		e, ok := res.Effect(m.Name)
		if !ok {
			continue
		}
		s, err := series(t, m.Column)
		if err != nil {
			return Overlay{}, err
		}
		lower, upper := opts.Band(m, e.InitialValue)
		o.Metrics = append(o.Metrics, MetricOverlay{
			Metric: m.Name,
			Series: s,
			Effect: NewEffectView(e),
			Lower:  Value(lower),
			Upper:  Value(upper),
		})
	}
	return o, nil
}

func series(t resilience.Table, column string) (SeriesView, error) {
	values, err := t.Column(column)
	if err != nil {
		return SeriesView{}, err
	}
	out := make([]*float64, len(values))
	for i, v := range values {
		out[i] = Value(v)
	}
	return SeriesView{Column: column, Values: out}, nil
}
