package harness

import "errors"

// Sentinel errors for harness operations.
var (
	// ErrUnknownHarness indicates an id with no registered adapter.
	ErrUnknownHarness = errors.New("unknown harness")
	// ErrDuplicateHarness indicates a second registration for one id.
	ErrDuplicateHarness = errors.New("harness already registered")
	// ErrHarnessUnavailable indicates the harness binary was not found
	// when the caller required it.
	ErrHarnessUnavailable = errors.New("harness unavailable")
	// ErrInvalidSpace indicates a Space that fails a harness's structural
	// checks.
	ErrInvalidSpace = errors.New("invalid space for harness")
	// ErrBundleMismatch indicates a bundle.json written by another harness.
	ErrBundleMismatch = errors.New("bundle belongs to another harness")
	// ErrNoBundle indicates a target that has not been composed.
	ErrNoBundle = errors.New("no composed bundle")
)
