package shared

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates input rejected before any write.
	ErrValidation = errors.New("validation failed")
	// ErrInvalidState occurs when an action violates a status workflow.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrPersistence wraps failures of the underlying store.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError carries the field and the human readable reason of a rejection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Invalid builds a ValidationError.
func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// PersistenceError wraps a store failure with the failing operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrPersistence) match.
func (e *PersistenceError) Is(target error) bool {
	return target == ErrPersistence
}

// Persistence wraps err unless it is nil or already a domain error.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrPersistence) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// NotFound returns an error wrapping ErrNotFound for the given entity.
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// IsClientError reports errors caused by the request rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidState) || errors.Is(err, ErrIdempotencyConflict)
}
