package lockfile

import (
	"errors"
	"fmt"
)

// Sentinel errors for lock file handling.
var (
	// ErrNotFound indicates no lock file exists at the path.
	ErrNotFound = errors.New("lock file not found")
	// ErrUnsupportedVersion indicates a lockfileVersion this build cannot read.
	ErrUnsupportedVersion = errors.New("unsupported lockfileVersion")
	// ErrConflict indicates two different entries for the same space key.
	ErrConflict = errors.New("conflicting lock entry")
	// ErrUnknownTarget indicates a target the lock file does not record.
	ErrUnknownTarget = errors.New("target not in lock file")
	// ErrLockContention indicates the project lock is held by another process.
	ErrLockContention = errors.New("project lock contention")
)

// ContentionError reports which lock could not be acquired in time.
type ContentionError struct {
	Resource string
}

// Error names the contended resource.
func (e *ContentionError) Error() string {
	return fmt.Sprintf("%v: %s is held by another process", ErrLockContention, e.Resource)
}

// Unwrap returns ErrLockContention.
func (e *ContentionError) Unwrap() error { return ErrLockContention }
