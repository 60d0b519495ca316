// Package postgres stores analyzed batches in PostgreSQL through gorm.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/resilience/internal/database"
	"github.com/chrissnell/resilience/internal/resilience"
	"github.com/chrissnell/resilience/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// insertBatchSize bounds the rows per INSERT for large score tables.
const insertBatchSize = 500

// Store is a storage.ResultStore backed by PostgreSQL.
type Store struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

var _ storage.ResultStore = (*Store)(nil)

// New connects to PostgreSQL and creates or updates the result tables.
func New(ctx context.Context, connectionString string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	db, err := database.CreateConnection(connectionString, logger)
	if err != nil {
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	logger.Info("creating result tables...")
	if err := db.WithContext(ctx).AutoMigrate(database.AllModels()...); err != nil {
		s.Close()
		return nil, fmt.Errorf("could not migrate result tables: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing connection. The schema must already exist.
func NewWithDB(db *gorm.DB, logger *zap.SugaredLogger) *Store {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Store{db: db, logger: logger}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveBatch writes b and all of its rows in one transaction.
func (s *Store) SaveBatch(ctx context.Context, b *resilience.Batch) error {
	record := toRecord(b)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Scores are written separately so they can be batched.
		scores := record.Scores
		record.Scores = nil

		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("could not store batch %s: %w", b.ID, err)
		}
		if len(scores) > 0 {
			if err := tx.CreateInBatches(scores, insertBatchSize).Error; err != nil {
				return fmt.Errorf("could not store scores of batch %s: %w", b.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Errorw("could not store batch", "batch", b.ID, "error", err)
		return err
	}

	s.logger.Debugw("stored batch", "batch", b.ID, "runs", len(b.Results))
	return nil
}

// LoadBatch reads a stored batch with all of its rows.
func (s *Store) LoadBatch(ctx context.Context, id string) (*resilience.Batch, error) {
	byPosition := func(db *gorm.DB) *gorm.DB { return db.Order("position") }

	var record database.Batch
	err := s.db.WithContext(ctx).
		Preload("Metrics", byPosition).
		Preload("Runs", byPosition).
		Preload("Runs.Effects", byPosition).
		Preload("Runs.Parameters").
		Preload("ScoreColumns", byPosition).
		Preload("Scores").
		Preload("Failures", byPosition).
		Preload("MetricFailures", byPosition).
		First(&record, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("batch %s: %w", id, storage.ErrBatchNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("could not load batch %s: %w", id, err)
	}
	return fromRecord(&record), nil
}

// ListBatches returns every stored batch, newest first.
func (s *Store) ListBatches(ctx context.Context) ([]storage.BatchSummary, error) {
	var out []storage.BatchSummary
	err := s.db.WithContext(ctx).
		Model(&database.Batch{}).
		Select(`batches.id AS id, batches.created_at AS created_at,
			(SELECT COUNT(*) FROM runs WHERE runs.batch_id = batches.id) AS runs,
			(SELECT COUNT(*) FROM run_failures WHERE run_failures.batch_id = batches.id) AS failures`).
		Order("batches.created_at DESC").
		Scan(&out).Error
	if err != nil {
		return nil, fmt.Errorf("could not list batches: %w", err)
	}
	return out, nil
}
