package tracking

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed geofence parameters or samples.
	ErrValidation = errors.New("tracking: validation failed")
	// ErrNotFound is returned when a job or geofence does not exist.
	ErrNotFound = errors.New("tracking: not found")
	// ErrConflict means a job's status changed underneath a transition.
	ErrConflict = errors.New("tracking: job status changed concurrently")
	// ErrStaleSample means a newer sample was already evaluated for the job.
	ErrStaleSample = errors.New("tracking: stale sample")
	// ErrNoSignal means the actor has never reported a position.
	ErrNoSignal = errors.New("tracking: waiting for GPS signal")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
