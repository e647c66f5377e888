// Package persistence provides standardized error types for persistence operations.
package persistence

import (
	"errors"
	"fmt"
)

// Standard persistence error types that all implementations should use.
var (
	// ErrChainNotFound indicates a chain was not found by the given identifier.
	ErrChainNotFound = errors.New("workflow chain not found")

	// ErrInstanceNotFound indicates an instance was not found by the given identifier.
	ErrInstanceNotFound = errors.New("workflow instance not found")
)

// RecordError wraps a storage error with the operation and record it concerns.
type RecordError struct {
	Op   string // Operation being performed (e.g., "GetByID", "Save", "Delete")
	Kind string // "chain" or "instance"
	ID   string
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("%s operation failed for %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *RecordError) Unwrap() error {
	return e.Err
}

func (e *RecordError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

func NewChainError(op, chainID string, err error) *RecordError {
	return &RecordError{Op: op, Kind: "chain", ID: chainID, Err: err}
}

func NewInstanceError(op, instanceID string, err error) *RecordError {
	return &RecordError{Op: op, Kind: "instance", ID: instanceID, Err: err}
}

// IsChainNotFound checks if an error indicates a chain was not found.
func IsChainNotFound(err error) bool {
	return errors.Is(err, ErrChainNotFound)
}

// IsInstanceNotFound checks if an error indicates an instance was not found.
func IsInstanceNotFound(err error) bool {
	return errors.Is(err, ErrInstanceNotFound)
}
