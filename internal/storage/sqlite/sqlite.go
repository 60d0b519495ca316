// Package sqlite stores analyzed batches in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chrissnell/resilience/internal/resilience"
	"github.com/chrissnell/resilience/internal/storage"
	"github.com/chrissnell/resilience/pkg/migrate"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// timestampFormat is fixed width so that stored timestamps sort as text.
const timestampFormat = "2006-01-02T15:04:05.000000000Z"

// MigrationTable tracks the applied schema version of the results database.
const MigrationTable = "results_schema_migrations"

// Migrations returns the provider for the results schema, for use by
// cmd/migrate.
func Migrations() *migrate.FileProvider {
	return migrate.NewFSProvider(migrationFiles, "migrations", MigrationTable)
}

// Store is a storage.ResultStore backed by SQLite.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

var _ storage.ResultStore = (*Store)(nil)

// New opens the database at path and migrates it to the latest schema.
func New(path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := migrate.NewMigrator(db, Migrations(), logger).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate results database: %w", err)
	}

	logger.Infow("results database ready", "path", path)
	return &Store{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBatch writes b in a single transaction. Undefined values are stored
// as NULL.
func (s *Store) SaveBatch(ctx context.Context, b *resilience.Batch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT INTO batches (id, created_at) VALUES (?, ?)",
		b.ID, b.CreatedAt.UTC().Format(timestampFormat)); err != nil {
		return fmt.Errorf("failed to insert batch %s: %w", b.ID, err)
	}

	for i, m := range b.Metrics {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO batch_metrics (batch_id, position, name, column_name, lower_bound, upper_bound)
			VALUES (?, ?, ?, ?, ?, ?)
		`, b.ID, i, m.Name, m.Column, m.Lower, m.Upper); err != nil {
			return fmt.Errorf("failed to insert metric %s: %w", m.Name, err)
		}
	}

	for i, r := range b.Results {
		if err := insertRun(ctx, tx, b.ID, i, r); err != nil {
			return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
		}
	}

	if err := insertScores(ctx, tx, b); err != nil {
		return err
	}

	for i, f := range b.Failures {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_failures (batch_id, position, run_id, kind, message) VALUES (?, ?, ?, ?, ?)
		`, b.ID, i, f.RunID, f.Kind, storage.ErrorMessage(f.Err)); err != nil {
			return fmt.Errorf("failed to insert failure of run %s: %w", f.RunID, err)
		}
	}

	for i, f := range b.MetricFailures {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO metric_failures (batch_id, position, run_id, column_name, message) VALUES (?, ?, ?, ?, ?)
		`, b.ID, i, f.RunID, f.Column, storage.ErrorMessage(f.Err)); err != nil {
			return fmt.Errorf("failed to insert metric failure of run %s: %w", f.RunID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch %s: %w", b.ID, err)
	}

	s.logger.Debugw("stored batch", "batch", b.ID, "runs", len(b.Results), "failures", len(b.Failures))
	return nil
}

func insertRun(ctx context.Context, tx *sql.Tx, batchID string, pos int, r resilience.RunResult) error {
	d := r.Disturbance
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (
			batch_id, run_id, position, disturbance_signal,
			disturbance_start_index, disturbance_start_time, disturbance_end_index, disturbance_end_time,
			disturbance_magnitude, hardness
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, batchID, r.RunID, pos, d.Signal,
		d.StartIndex, d.StartTime, d.EndIndex, d.EndTime,
		nullFloat64(d.Magnitude), nullFloat64(r.Hardness)); err != nil {
		return err
	}

	for i, e := range r.Effects {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO effects (
				batch_id, run_id, position, metric, column_name,
				start_index, start_time, end_index, end_time,
				initial_value, min_value, max_value
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, batchID, r.RunID, i, e.Metric, e.Column,
			e.StartIndex, e.StartTime, e.EndIndex, e.EndTime,
			nullFloat64(e.InitialValue), nullFloat64(e.MinValue), nullFloat64(e.MaxValue)); err != nil {
			return fmt.Errorf("effect %s: %w", e.Metric, err)
		}
	}

	for name, v := range r.Parameters {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO run_parameters (batch_id, run_id, name, value) VALUES (?, ?, ?, ?)
		`, batchID, r.RunID, name, nullFloat64(v)); err != nil {
			return fmt.Errorf("parameter %s: %w", name, err)
		}
	}
	return nil
}

func insertScores(ctx context.Context, tx *sql.Tx, b *resilience.Batch) error {
	if b.Scores == nil {
		return nil
	}

	for i, c := range b.Scores.Columns {
		if _, err := tx.ExecContext(ctx, "INSERT INTO score_columns (batch_id, position, name) VALUES (?, ?, ?)",
			b.ID, i, c); err != nil {
			return fmt.Errorf("failed to insert score column %s: %w", c, err)
		}
	}

	for _, row := range b.Scores.Rows {
		for i, c := range b.Scores.Columns {
			normalized := math.NaN()
			if b.Normalized != nil {
				normalized, _ = b.Normalized.Value(row.RunID, c)
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO scores (batch_id, run_id, column_name, raw_value, normalized_value) VALUES (?, ?, ?, ?, ?)
			`, b.ID, row.RunID, c, nullFloat64(row.Values[i]), nullFloat64(normalized)); err != nil {
				return fmt.Errorf("failed to insert score %s of run %s: %w", c, row.RunID, err)
			}
		}
	}
	return nil
}

// LoadBatch reads a stored batch back. Failure errors come back as
// *storage.StoredError holding the original message.
func (s *Store) LoadBatch(ctx context.Context, id string) (*resilience.Batch, error) {
	b := &resilience.Batch{ID: id}

	var created string
	err := s.db.QueryRowContext(ctx, "SELECT created_at FROM batches WHERE id = ?", id).Scan(&created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query batch %s: %w", id, err)
	}
	if b.CreatedAt, err = time.Parse(timestampFormat, created); err != nil {
		return nil, fmt.Errorf("batch %s: invalid timestamp %q: %w", id, created, err)
	}

	if b.Metrics, err = s.loadMetrics(ctx, id); err != nil {
		return nil, err
	}
	if b.Results, err = s.loadRuns(ctx, id); err != nil {
		return nil, err
	}
	if b.Scores, b.Normalized, err = s.loadScores(ctx, id, b.Results); err != nil {
		return nil, err
	}
	if b.Failures, err = s.loadFailures(ctx, id); err != nil {
		return nil, err
	}
	if b.MetricFailures, err = s.loadMetricFailures(ctx, id); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *Store) loadMetrics(ctx context.Context, id string) ([]resilience.MetricSpec, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, column_name, lower_bound, upper_bound FROM batch_metrics WHERE batch_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []resilience.MetricSpec
	for rows.Next() {
		var m resilience.MetricSpec
		if err := rows.Scan(&m.Name, &m.Column, &m.Lower, &m.Upper); err != nil {
			return nil, fmt.Errorf("failed to scan metric row: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

func (s *Store) loadRuns(ctx context.Context, id string) ([]resilience.RunResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, disturbance_signal,
		       disturbance_start_index, disturbance_start_time, disturbance_end_index, disturbance_end_time,
		       disturbance_magnitude, hardness
		FROM runs WHERE batch_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}

	var results []resilience.RunResult
	for rows.Next() {
		var r resilience.RunResult
		var magnitude, hardness sql.NullFloat64
		d := &r.Disturbance
		if err := rows.Scan(&r.RunID, &d.Signal, &d.StartIndex, &d.StartTime, &d.EndIndex, &d.EndTime,
			&magnitude, &hardness); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		d.Magnitude = floatOrNaN(magnitude)
		r.Hardness = floatOrNaN(hardness)
		results = append(results, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// One connection: the run cursor must be closed before the nested queries.
	for i := range results {
		if results[i].Effects, err = s.loadEffects(ctx, id, results[i].RunID); err != nil {
			return nil, err
		}
		if results[i].Parameters, err = s.loadParameters(ctx, id, results[i].RunID); err != nil {
			return nil, err
		}
	}
	return results, nil
}

func (s *Store) loadEffects(ctx context.Context, batchID, runID string) ([]resilience.EffectWindow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT metric, column_name, start_index, start_time, end_index, end_time,
		       initial_value, min_value, max_value
		FROM effects WHERE batch_id = ? AND run_id = ? ORDER BY position
	`, batchID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query effects of run %s: %w", runID, err)
	}
	defer rows.Close()

	var effects []resilience.EffectWindow
	for rows.Next() {
		var e resilience.EffectWindow
		var initial, lo, hi sql.NullFloat64
		if err := rows.Scan(&e.Metric, &e.Column, &e.StartIndex, &e.StartTime, &e.EndIndex, &e.EndTime,
			&initial, &lo, &hi); err != nil {
			return nil, fmt.Errorf("failed to scan effect row: %w", err)
		}
		e.InitialValue, e.MinValue, e.MaxValue = floatOrNaN(initial), floatOrNaN(lo), floatOrNaN(hi)
		effects = append(effects, e)
	}
	return effects, rows.Err()
}

func (s *Store) loadParameters(ctx context.Context, batchID, runID string) (map[string]float64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, value FROM run_parameters WHERE batch_id = ? AND run_id = ?",
		batchID, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query parameters of run %s: %w", runID, err)
	}
	defer rows.Close()

	var params map[string]float64
	for rows.Next() {
		var name string
		var v sql.NullFloat64
		if err := rows.Scan(&name, &v); err != nil {
			return nil, fmt.Errorf("failed to scan parameter row: %w", err)
		}
		if params == nil {
			params = make(map[string]float64)
		}
		params[name] = floatOrNaN(v)
	}
	return params, rows.Err()
}

func (s *Store) loadScores(ctx context.Context, id string, results []resilience.RunResult) (*resilience.ScoreTable, *resilience.ScoreTable, error) {
	colRows, err := s.db.QueryContext(ctx, "SELECT name FROM score_columns WHERE batch_id = ? ORDER BY position", id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query score columns: %w", err)
	}
	var columns []string
	for colRows.Next() {
		var c string
		if err := colRows.Scan(&c); err != nil {
			colRows.Close()
			return nil, nil, fmt.Errorf("failed to scan score column: %w", err)
		}
		columns = append(columns, c)
	}
	colRows.Close()
	if err := colRows.Err(); err != nil {
		return nil, nil, err
	}

	colIndex := make(map[string]int, len(columns))
	for i, c := range columns {
		colIndex[c] = i
	}
	rowIndex := make(map[string]int, len(results))
	scores := resilience.NewScoreTable(columns)
	normalized := resilience.NewScoreTable(columns)
	for i, r := range results {
		rowIndex[r.RunID] = i
		scores.Rows = append(scores.Rows, resilience.ScoreRow{RunID: r.RunID, Values: nanSlice(len(columns))})
		normalized.Rows = append(normalized.Rows, resilience.ScoreRow{RunID: r.RunID, Values: nanSlice(len(columns))})
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, column_name, raw_value, normalized_value FROM scores WHERE batch_id = ?
	`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var runID, column string
		var raw, norm sql.NullFloat64
		if err := rows.Scan(&runID, &column, &raw, &norm); err != nil {
			return nil, nil, fmt.Errorf("failed to scan score row: %w", err)
		}
		ri, okRow := rowIndex[runID]
		ci, okCol := colIndex[column]
		if !okRow || !okCol {
			continue
		}
		scores.Rows[ri].Values[ci] = floatOrNaN(raw)
		normalized.Rows[ri].Values[ci] = floatOrNaN(norm)
	}
	return scores, normalized, rows.Err()
}

func (s *Store) loadFailures(ctx context.Context, id string) ([]resilience.RunFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, kind, message FROM run_failures WHERE batch_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query run failures: %w", err)
	}
	defer rows.Close()

	var failures []resilience.RunFailure
	for rows.Next() {
		var f resilience.RunFailure
		var msg string
		if err := rows.Scan(&f.RunID, &f.Kind, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan run failure: %w", err)
		}
		f.Err = &storage.StoredError{Message: msg}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func (s *Store) loadMetricFailures(ctx context.Context, id string) ([]resilience.MetricFailure, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, column_name, message FROM metric_failures WHERE batch_id = ? ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query metric failures: %w", err)
	}
	defer rows.Close()

	var failures []resilience.MetricFailure
	for rows.Next() {
		var f resilience.MetricFailure
		var msg string
		if err := rows.Scan(&f.RunID, &f.Column, &msg); err != nil {
			return nil, fmt.Errorf("failed to scan metric failure: %w", err)
		}
		f.Err = &storage.StoredError{Message: msg}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

// ListBatches returns every stored batch, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]storage.BatchSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.created_at,
		       (SELECT COUNT(*) FROM runs r WHERE r.batch_id = b.id),
		       (SELECT COUNT(*) FROM run_failures f WHERE f.batch_id = b.id)
		FROM batches b
		ORDER BY b.created_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer rows.Close()

	var out []storage.BatchSummary
	for rows.Next() {
		var bs storage.BatchSummary
		var created string
		if err := rows.Scan(&bs.ID, &created, &bs.Runs, &bs.Failures); err != nil {
			return nil, fmt.Errorf("failed to scan batch row: %w", err)
		}
		if bs.CreatedAt, err = time.Parse(timestampFormat, created); err != nil {
			return nil, fmt.Errorf("batch %s: invalid timestamp %q: %w", bs.ID, created, err)
		}
		out = append(out, bs)
	}
	return out, rows.Err()
}

func nullFloat64(v float64) sql.NullFloat64 {
	p := storage.NullableFloat(v)
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

func floatOrNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}

func nanSlice(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
