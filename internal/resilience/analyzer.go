package resilience

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Config is the per-batch analysis configuration. It is validated once and
// shared read-only by every run.
type Config struct {
	// Candidates are the signals that may carry the disturbance, in
	// tie-break order (last active candidate wins).
	Candidates []string
	// Metrics are the tracked performance metrics.
	Metrics []MetricSpec
	Effect  EffectOptions
	// Workers bounds how many runs are analyzed at once. 0 means NumCPU.
	Workers int
	// IgnoreColumns are neither candidates, metrics nor scenario
	// parameters (e.g. cumulative cost totals).
	IgnoreColumns []string
	// StrictParameters fails a run whose scenario parameters change
	// during the simulation instead of skipping those columns.
	StrictParameters bool
}

// Validate checks the configuration for mistakes that would otherwise
// surface once per run.
func (c Config) Validate() error {
	if len(c.Candidates) == 0 {
		return errors.New("at least one disturbance candidate signal is required")
	}
	if len(c.Metrics) == 0 {
		return errors.New("at least one tracked metric is required")
	}

	seen := make(map[string]struct{}, len(c.Metrics))
	for i, m := range c.Metrics {
		if m.Name == "" {
			return fmt.Errorf("metric %d: name is required", i)
		}
		if m.Column == "" {
			return fmt.Errorf("metric %s: column is required", m.Name)
		}
		if m.Lower > m.Upper {
			return fmt.Errorf("metric %s: lower threshold %v above upper threshold %v", m.Name, m.Lower, m.Upper)
		}
		if _, dup := seen[m.Name]; dup {
			return fmt.Errorf("metric %s configured twice", m.Name)
		}
		seen[m.Name] = struct{}{}
	}

	if c.Effect.Smoothing < 0 || (c.Effect.Smoothing > 1 && c.Effect.Smoothing%2 == 0) {
		return fmt.Errorf("smoothing kernel must be 0, 1 or an odd number, got %d", c.Effect.Smoothing)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// RunFailure is a run that could not be detected. It is excluded from the
// score tables.
type RunFailure struct {
	RunID string
	Kind  string
	Err   error
}

// Batch is the outcome of analyzing a set of runs together.
type Batch struct {
	ID             string
	CreatedAt      time.Time
	Metrics        []MetricSpec
	Results        []RunResult
	Scores         *ScoreTable
	Normalized     *ScoreTable
	Failures       []RunFailure
	MetricFailures []MetricFailure
}

// Result returns the detection result of a run.
func (b *Batch) Result(runID string) (RunResult, bool) {
	for _, r := range b.Results {
		if r.RunID == runID {
			return r, true
		}
	}
	return RunResult{}, false
}

// Analyzer runs detection and scoring over batches of runs.
type Analyzer struct {
	cfg    Config
	logger *zap.SugaredLogger
	now    func() time.Time
}

// NewAnalyzer validates cfg and returns an Analyzer.
func NewAnalyzer(cfg Config, logger *zap.SugaredLogger) (*Analyzer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid analysis configuration: %w", err)
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Analyzer{cfg: cfg, logger: logger, now: time.Now}, nil
}

// Config returns the validated configuration.
func (a *Analyzer) Config() Config { return a.cfg }

// DetectRun locates the disturbance and every metric effect of one run.
func (a *Analyzer) DetectRun(t Table) (RunResult, error) {
	signal, err := SelectDisturbanceSignal(t, a.cfg.Candidates)
	if err != nil {
		return RunResult{}, err
	}

	d, err := DetectDisturbance(t, signal)
	if err != nil {
		return RunResult{}, err
	}

	effects := make([]EffectWindow, 0, len(a.cfg.Metrics))
	for _, m := range a.cfg.Metrics {
		e, err := DetectEffect(t, d, m, a.cfg.Effect)
		if err != nil {
			return RunResult{}, err
		}
		effects = append(effects, e)
	}

	params, err := ExtractParameters(t, parameterColumns(t, a.cfg))
	var drift *ParameterDriftError
	switch {
	case errors.As(err, &drift) && !a.cfg.StrictParameters:
		a.logger.Debugw("skipping varying parameter columns", "run", t.ID(), "columns", drift.Columns)
	case err != nil:
		return RunResult{}, err
	}

	return RunResult{
		RunID:       t.ID(),
		Disturbance: d,
		Effects:     effects,
		Hardness:    Hardness(d),
		Parameters:  params,
	}, nil
}

type outcome struct {
	result RunResult
	err    error
}

// Analyze detects and scores every run, then normalizes the scores across
// the batch. Runs are processed concurrently and independently: a failing
// run is reported in Batch.Failures and never affects its siblings. The
// returned error is non-nil only for invalid input or a cancelled ctx.
func (a *Analyzer) Analyze(ctx context.Context, runs []Table) (*Batch, error) {
	seen := make(map[string]struct{}, len(runs))
	for _, t := range runs {
		if _, dup := seen[t.ID()]; dup {
			return nil, fmt.Errorf("duplicate run id %q", t.ID())
		}
		seen[t.ID()] = struct{}{}
	}

	outcomes := make([]outcome, len(runs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.Workers)
	for i, t := range runs {
		i, t := i, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.DetectRun(t)
			outcomes[i] = outcome{result: res, err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	batch := &Batch{
		ID:        uuid.New().String(),
		CreatedAt: a.now().UTC(),
		Metrics:   a.cfg.Metrics,
		Scores:    NewScoreTable(ScoreColumns(a.cfg.Metrics)),
	}
	for i, o := range outcomes {
		runID := runs[i].ID()
		if o.err != nil {
			kind := ErrorKind(o.err)
			a.logger.Warnw("run failed", "run", runID, "kind", kind, "error", o.err)
			batch.Failures = append(batch.Failures, RunFailure{
				RunID: runID,
				Kind:  kind,
				Err:   &RunError{RunID: runID, Err: o.err},
			})
			continue
		}

		row, failures := ScoreRun(o.result, a.cfg.Metrics)
		for _, f := range failures {
			a.logger.Debugw("score undefined", "run", runID, "column", f.Column, "error", f.Err)
		}
		batch.Results = append(batch.Results, o.result)
		batch.Scores.Rows = append(batch.Scores.Rows, row)
		batch.MetricFailures = append(batch.MetricFailures, failures...)
	}
	batch.Normalized = Normalize(batch.Scores)

	a.logger.Infow("batch analyzed",
		"batch", batch.ID,
		"runs", len(runs),
		"succeeded", len(batch.Results),
		"failed", len(batch.Failures),
		"undefined_scores", len(batch.MetricFailures))
	return batch, nil
}
