package materialize

import (
	"errors"
	"fmt"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/ref"
)

// ErrMissingEntry indicates a load-order key with no lock space entry.
var ErrMissingEntry = errors.New("lock file has no entry for space")

// SpaceError identifies the Space whose materialization failed.
type SpaceError struct {
	Target  string
	Harness harness.ID
	Key     ref.SpaceKey
	Err     error
}

// Error names the target, harness and Space.
func (e *SpaceError) Error() string {
	return fmt.Sprintf("materializing %s for %s/%s: %v", e.Key, e.Target, e.Harness, e.Err)
}

// Unwrap returns the underlying error.
func (e *SpaceError) Unwrap() error { return e.Err }
