package managers

import (
	"context"
	"errors"
	"fmt"

	"github.com/chrissnell/resilience/internal/resilience"
	"github.com/chrissnell/resilience/internal/storage"
	"github.com/chrissnell/resilience/internal/storage/postgres"
	"github.com/chrissnell/resilience/internal/storage/sqlite"
	"github.com/chrissnell/resilience/pkg/config"
	"go.uber.org/zap"
)

// StorageManager holds our active result stores
type StorageManager struct {
	Engines []StorageEngine
	Health  *storage.HealthManager
	logger  *zap.SugaredLogger
}

// StorageEngine is a named result store.
type StorageEngine struct {
	Name  string
	Store storage.ResultStore
}

// NewStorageManager creates a StorageManager populated with every
// configured store. No configured store is valid; batches are then only
// kept in memory.
func NewStorageManager(ctx context.Context, c config.StorageData, logger *zap.SugaredLogger) (*StorageManager, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &StorageManager{Health: storage.NewHealthManager(), logger: logger}

	if c.SQLite != nil {
		if err := s.AddEngine(ctx, "sqlite", c); err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add SQLite result store: %w", err)
		}
	}

	if c.Postgres != nil {
		if err := s.AddEngine(ctx, "postgres", c); err != nil {
			s.Close()
			return nil, fmt.Errorf("could not add PostgreSQL result store: %w", err)
		}
	}

	return s, nil
}

// AddEngine opens the store named engineName from c.
func (s *StorageManager) AddEngine(ctx context.Context, engineName string, c config.StorageData) error {
	var (
		store storage.ResultStore
		err   error
	)

	switch engineName {
	case "sqlite":
		store, err = sqlite.New(c.SQLite.Path, s.logger.Named("sqlite"))
	case "postgres":
		store, err = postgres.New(ctx, c.Postgres.ConnectionString, s.logger.Named("postgres"))
	default:
		return fmt.Errorf("unknown result store %q", engineName)
	}
	if err != nil {
		return err
	}

	s.Engines = append(s.Engines, StorageEngine{Name: engineName, Store: store})
	return nil
}

// Add registers an already opened store.
func (s *StorageManager) Add(name string, store storage.ResultStore) {
	s.Engines = append(s.Engines, StorageEngine{Name: name, Store: store})
}

// SaveBatch writes b to every store. A failing store does not keep the
// batch from the others; all failures are returned together.
func (s *StorageManager) SaveBatch(ctx context.Context, b *resilience.Batch) error {
	var errs []error
	for _, e := range s.Engines {
		err := e.Store.SaveBatch(ctx, b)
		s.Health.Record(e.Name, err, "batch "+b.ID)
		if err != nil {
			s.logger.Errorw("could not store batch", "store", e.Name, "batch", b.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
			continue
		}
		s.logger.Infow("batch stored", "store", e.Name, "batch", b.ID)
	}
	return errors.Join(errs...)
}

// Primary returns the first configured store, or nil.
func (s *StorageManager) Primary() storage.ResultStore {
	if len(s.Engines) == 0 {
		return nil
	}
	return s.Engines[0].Store
}

// Close closes every store.
func (s *StorageManager) Close() error {
	var errs []error
	for _, e := range s.Engines {
		if err := e.Store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, err))
		}
	}
	return errors.Join(errs...)
}
