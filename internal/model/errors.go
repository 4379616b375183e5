package model

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientService indicates an extraction, synthesis or embedding
	// call failed after its bounded retries. Retrying later may succeed.
	ErrTransientService = errors.New("transient service error")

	// ErrMalformedResponse indicates a service returned a structure that
	// could not be parsed even after a stricter retry.
	ErrMalformedResponse = errors.New("malformed service response")

	// ErrInsufficientData indicates clustering or distillation was given
	// too few items to work with.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrStoreWrite indicates the persistent store rejected a write.
	ErrStoreWrite = errors.New("store write failed")

	// ErrNotFound indicates a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// ErrorKind classifies a recorded unit error.
type ErrorKind string

const (
	KindTransient    ErrorKind = "transient"
	KindMalformed    ErrorKind = "malformed"
	KindInsufficient ErrorKind = "insufficient_data"
	KindStoreWrite   ErrorKind = "store_write"
	KindUnknown      ErrorKind = "unknown"
)

// KindOf maps an error onto the taxonomy.
func KindOf(err error) ErrorKind {
	switch {
	case errors.Is(err, ErrTransientService):
		return KindTransient
	case errors.Is(err, ErrMalformedResponse):
		return KindMalformed
	case errors.Is(err, ErrInsufficientData):
		return KindInsufficient
	case errors.Is(err, ErrStoreWrite):
		return KindStoreWrite
	default:
		return KindUnknown
	}
}

// UnitError records a failure isolated to one unit of work: a chunk, a
// note, a document or a distillation unit.
type UnitError struct {
	Stage      Stage
	DocumentID string
	Unit       string
	Err        error
}

func (e *UnitError) Error() string {
	where := e.DocumentID
	if e.Unit != "" {
		if where != "" {
			where += "/"
		}
		where += e.Unit
	}
	return fmt.Sprintf("%s %s: %v", e.Stage, where, e.Err)
}

func (e *UnitError) Unwrap() error { return e.Err }

// Kind returns the taxonomy kind of the underlying error.
func (e *UnitError) Kind() ErrorKind { return KindOf(e.Err) }

// Retryable reports whether a future run can be expected to succeed where
// this one failed. Every recorded skip is retryable except insufficient
// data, which only resolves when the inputs change.
func (e *UnitError) Retryable() bool {
	return e.Kind() != KindInsufficient
}
