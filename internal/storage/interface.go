// Package storage defines the interface result stores implement and the
// helpers they share.
package storage

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/chrissnell/resilience/internal/resilience"
)

// ErrBatchNotFound is returned when a requested batch is not stored.
var ErrBatchNotFound = errors.New("batch not found")

// ResultStore persists analyzed batches.
type ResultStore interface {
	SaveBatch(ctx context.Context, b *resilience.Batch) error
	LoadBatch(ctx context.Context, id string) (*resilience.Batch, error)
	ListBatches(ctx context.Context) ([]BatchSummary, error)
	Close() error
}

// BatchSummary describes a stored batch without its contents.
type BatchSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Runs      int       `json:"runs"`
	Failures  int       `json:"failures"`
}

// StoredError carries a failure message read back from storage. Its kind
// is kept verbatim since the original error value is gone.
type StoredError struct {
	Message string
}

func (e *StoredError) Error() string { return e.Message }

// NullableFloat maps NaN and Inf to nil so they can be stored as NULL.
func NullableFloat(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// FloatOrNaN is the inverse of NullableFloat.
func FloatOrNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}

// ErrorMessage returns err's message, or "" for nil.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
