package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"regexp"
	"sync"
	"syscall"

	"github.com/chrissnell/resilience/internal/controllers/restserver"
	"github.com/chrissnell/resilience/internal/managers"
	"github.com/chrissnell/resilience/internal/observation"
	"github.com/chrissnell/resilience/internal/report"
	"github.com/chrissnell/resilience/internal/resilience"
	"github.com/chrissnell/resilience/pkg/config"
	"github.com/chrissnell/resilience/pkg/responseformat"
	"go.uber.org/zap"
)

// FormatTable selects the plain-text report.
const FormatTable = "table"

// Options are the command line overrides of a single invocation.
type Options struct {
	// InputPath replaces input.path from the configuration.
	InputPath string
	// Output is the export destination. Empty means stdout.
	Output string
	// Format is json, msgpack or table.
	Format string
	// Serve keeps the application running behind the REST server and
	// re-analyzes whenever the configuration or the input changes. It
	// overrides server.enabled being false.
	Serve bool
}

// App represents the main application
type App struct {
	configProvider config.ConfigProvider
	opts           Options
	logger         *zap.SugaredLogger
	stdout         io.Writer
}

// New creates a new application instance
func New(configProvider config.ConfigProvider, opts Options, logger *zap.SugaredLogger) *App {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &App{
		configProvider: configProvider,
		opts:           opts,
		logger:         logger,
		stdout:         os.Stdout,
	}
}

// AnalysisConfig translates the validated configuration into the analyzer's.
func AnalysisConfig(c config.ConfigData) (resilience.Config, error) {
	boundary, err := resilience.ParseEndBoundary(c.Analysis.EndBoundary)
	if err != nil {
		return resilience.Config{}, err
	}

	metrics := make([]resilience.MetricSpec, 0, len(c.Analysis.Metrics))
	for _, m := range c.Analysis.Metrics {
		metrics = append(metrics, resilience.MetricSpec{
			Name:   m.Name,
			Column: m.Column,
			Lower:  m.Lower,
			Upper:  m.Upper,
		})
	}

	return resilience.Config{
		Candidates: c.Analysis.DisturbanceCandidates,
		Metrics:    metrics,
		Effect: resilience.EffectOptions{
			EndBoundary:  boundary,
			RelativeBand: c.Analysis.RelativeBand,
			Smoothing:    c.Analysis.Smoothing,
		},
		Workers:          c.Analysis.Workers,
		IgnoreColumns:    c.Analysis.IgnoreColumns,
		StrictParameters: c.Analysis.StrictParameters,
	}, nil
}

// CSVOptions returns the reader options for the configured input layout.
func CSVOptions(in config.InputData) observation.CSVOptions {
	return observation.CSVOptions{
		TimeColumn:   in.TimeColumn,
		Delimiter:    in.DelimiterRune(),
		DecimalComma: in.DecimalComma,
	}
}

// RunPattern compiles the configured run prefix pattern, falling back to
// the default "Run N: " prefix.
func RunPattern(in config.InputData) (*regexp.Regexp, error) {
	if in.RunPattern == "" {
		return observation.DefaultRunPattern, nil
	}
	return regexp.Compile(in.RunPattern)
}

// loadConfig reads and validates the configuration, applying command line
// overrides.
func (a *App) loadConfig() (*config.ConfigData, error) {
	cfg, err := a.configProvider.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if a.opts.InputPath != "" {
		cfg.Input.Path = a.opts.InputPath
	}
	if cfg.Input.Path == "" {
		return nil, errors.New("no input path configured")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Analyze loads the configured input and analyzes it as one batch.
func (a *App) Analyze(ctx context.Context, cfg *config.ConfigData) (*restserver.Snapshot, error) {
	acfg, err := AnalysisConfig(*cfg)
	if err != nil {
		return nil, err
	}
	analyzer, err := resilience.NewAnalyzer(acfg, a.logger.Named("analyzer"))
	if err != nil {
		return nil, err
	}

	pattern, err := RunPattern(cfg.Input)
	if err != nil {
		return nil, err
	}
	loaded, loadFailures, err := observation.LoadPath(cfg.Input.Path, CSVOptions(cfg.Input), pattern)
	if err != nil {
		return nil, fmt.Errorf("error loading input: %w", err)
	}
	a.logger.Infow("input loaded", "path", cfg.Input.Path, "runs", len(loaded), "unreadable", len(loadFailures))

	tables := make([]resilience.Table, len(loaded))
	for i, t := range loaded {
		tables[i] = t
	}

	batch, err := analyzer.Analyze(ctx, tables)
	if err != nil {
		return nil, err
	}
	for _, f := range loadFailures {
		a.logger.Warnw("run failed", "run", f.RunID, "kind", resilience.KindInvalidInput, "error", f.Err)
		batch.Failures = append(batch.Failures, resilience.RunFailure{
			RunID: f.RunID,
			Kind:  resilience.KindInvalidInput,
			Err:   &resilience.RunError{RunID: f.RunID, Err: f},
		})
	}
	return restserver.NewSnapshot(batch, tables, analyzer.Config()), nil
}

// Run analyzes the input once and either exports the result or serves it
// until shutdown.
func (a *App) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}

	storageManager, err := managers.NewStorageManager(ctx, cfg.Storage, a.logger.Named("storage"))
	if err != nil {
		return err
	}
	defer storageManager.Close()

	snap, err := a.Analyze(ctx, cfg)
	if err != nil {
		return err
	}
	saveErr := storageManager.SaveBatch(ctx, snap.Batch)
	if saveErr != nil {
		a.logger.Errorw("error storing batch", "batch", snap.Batch.ID, "error", saveErr)
	}

	if !a.opts.Serve && !cfg.Server.Enabled {
		if err := a.export(snap.Batch); err != nil {
			return err
		}
		return saveErr
	}

	latest := &restserver.Latest{}
	latest.Publish(snap)

	rest, err := restserver.NewController(ctx, &wg, cfg.Server, latest, storageManager.Primary(), a.logger.Named("restserver"))
	if err != nil {
		return err
	}
	rest.SetStoreHealth(storageManager.Health)
	if err := rest.StartController(); err != nil {
		return err
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		reload := func() { a.reload(ctx, latest, storageManager) }
		if err := config.Watch(ctx, a.logger.Named("watch"), config.DefaultDebounce, reload, a.watchPaths(cfg)...); err != nil {
			a.logger.Errorw("file watcher stopped", "error", err)
		}
	}()

	a.logger.Info("application started successfully")

	// Set up signal handling
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)

	select {
	case <-sigs:
		a.logger.Info("shutdown signal received, initiating graceful shutdown...")
	case <-ctx.Done():
		a.logger.Info("context cancelled, shutting down...")
	}

	cancel()

	a.logger.Info("waiting for all workers to terminate...")
	wg.Wait()
	a.logger.Info("shutdown complete")

	return nil
}

// reload re-analyzes after a change. A failing reload keeps the previous
// batch online.
func (a *App) reload(ctx context.Context, latest *restserver.Latest, sm *managers.StorageManager) {
	cfg, err := a.loadConfig()
	if err != nil {
		a.logger.Errorw("reload failed, keeping previous batch", "error", err)
		return
	}
	snap, err := a.Analyze(ctx, cfg)
	if err != nil {
		a.logger.Errorw("reload failed, keeping previous batch", "error", err)
		return
	}
	if err := sm.SaveBatch(ctx, snap.Batch); err != nil {
		a.logger.Errorw("error storing batch", "batch", snap.Batch.ID, "error", err)
	}
	latest.Publish(snap)
	a.logger.Infow("batch reloaded", "batch", snap.Batch.ID)
}

// watchPaths lists the files whose changes trigger a reload.
func (a *App) watchPaths(cfg *config.ConfigData) []string {
	paths := []string{cfg.Input.Path}
	if y, ok := a.configProvider.(*config.YAMLProvider); ok {
		paths = append(paths, y.Filename())
	}
	return paths
}

func (a *App) export(b *resilience.Batch) (err error) {
	w := a.stdout
	if a.opts.Output != "" {
		f, err := os.Create(a.opts.Output)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}
	return Export(w, a.opts.Format, b)
}

// Export writes the report of b in the named format.
func Export(w io.Writer, format string, b *resilience.Batch) error {
	r := report.Build(b)
	if format == FormatTable {
		return report.WriteText(w, r)
	}
	f, err := responseformat.ParseFormat(format)
	if err != nil {
		return err
	}
	return responseformat.Encode(w, f, r)
}
