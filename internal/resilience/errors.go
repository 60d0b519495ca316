package resilience

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDisturbanceDetected means none of the candidate signals varies.
	ErrNoDisturbanceDetected = errors.New("no disturbance detected")
	// ErrEmptyMatch means a window boundary search found no qualifying row.
	ErrEmptyMatch = errors.New("no qualifying row")
	// ErrMissingBaseline means row 0 or its value is absent.
	ErrMissingBaseline = errors.New("missing baseline")
	// ErrDegenerateDenominator means a score would divide by zero.
	ErrDegenerateDenominator = errors.New("degenerate denominator")
	// ErrParameterDrift means a scenario parameter changed during a run.
	ErrParameterDrift = errors.New("scenario parameter changes during run")
)

// Error kinds reported per failed run.
const (
	KindNoDisturbanceDetected = "NoDisturbanceDetected"
	KindEmptyMatch            = "EmptyMatch"
	KindEffectNotFound        = "EffectNotFound"
	KindMissingBaseline       = "MissingBaseline"
	KindDegenerateDenominator = "DegenerateDenominator"
	KindParameterDrift        = "ParameterDrift"
	// KindInvalidInput marks an export that could not be read into a run.
	KindInvalidInput          = "InvalidInput"
	KindUnknown               = "Unknown"
)

// EffectNotFoundError is an EmptyMatch raised while searching an effect
// window boundary.
type EffectNotFoundError struct {
	Metric   string
	Boundary string // "start" or "end"
}

func (e *EffectNotFoundError) Error() string {
	return fmt.Sprintf("effect on %s not found: no %s boundary", e.Metric, e.Boundary)
}

func (e *EffectNotFoundError) Unwrap() error { return ErrEmptyMatch }

// RunError attaches a run identifier to a detection failure.
type RunError struct {
	RunID string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("run %s: %v", e.RunID, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// ErrorKind classifies err into the failure taxonomy.
func ErrorKind(err error) string {
	var notFound *EffectNotFoundError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &notFound):
		return KindEffectNotFound
	case errors.Is(err, ErrNoDisturbanceDetected):
		return KindNoDisturbanceDetected
	case errors.Is(err, ErrMissingBaseline):
		return KindMissingBaseline
	case errors.Is(err, ErrEmptyMatch):
		return KindEmptyMatch
	case errors.Is(err, ErrDegenerateDenominator):
		return KindDegenerateDenominator
	case errors.Is(err, ErrParameterDrift):
		return KindParameterDrift
	default:
		return KindUnknown
	}
}
