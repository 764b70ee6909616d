package store

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrIntegrityMismatch indicates extracted bytes hash differently than
	// the lock file records.
	ErrIntegrityMismatch = errors.New("integrity mismatch")
	// ErrNoRegistry indicates an operation that needs registry access on a
	// store opened without one.
	ErrNoRegistry = errors.New("store has no registry")
	// ErrSnapshotMissing indicates a snapshot that is not in the store.
	ErrSnapshotMissing = errors.New("snapshot not in store")
)

// IntegrityError identifies the Space whose content failed verification.
type IntegrityError struct {
	ID       string
	Commit   string
	Expected string
	Actual   string
}

// Error reports both hashes.
func (e *IntegrityError) Error() string {
	return fmt.Sprintf("%v: %s@%s: expected %s, got %s", ErrIntegrityMismatch, e.ID, e.Commit, e.Expected, e.Actual)
}

// Unwrap returns ErrIntegrityMismatch.
func (e *IntegrityError) Unwrap() error { return ErrIntegrityMismatch }
