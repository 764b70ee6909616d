package manifest

import (
	"errors"
	"fmt"
)

// Sentinel errors for manifest loading and validation.
var (
	// ErrNoManifest indicates the expected manifest file does not exist.
	ErrNoManifest = errors.New("manifest not found")
	// ErrMissingField indicates a required field is empty.
	ErrMissingField = errors.New("required field missing")
	// ErrUnsupportedSchema indicates a schema number this build does not read.
	ErrUnsupportedSchema = errors.New("unsupported schema")
	// ErrIDMismatch indicates space.toml declares an id other than its directory's.
	ErrIDMismatch = errors.New("space id does not match registry path")
	// ErrDuplicateSpace indicates one compose list names the same space twice.
	ErrDuplicateSpace = errors.New("space listed more than once")
	// ErrUnknownTarget indicates a target name absent from the project manifest.
	ErrUnknownTarget = errors.New("unknown target")
	// ErrInvalidVersion indicates a version that does not parse as semver.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrUnsupportedRegistry indicates a [registry] type other than git.
	ErrUnsupportedRegistry = errors.New("unsupported registry type")
)

// ValidationCategory classifies a validation error for programmatic handling.
type ValidationCategory string

const (
	// ValCatMissingField indicates a required field is empty.
	ValCatMissingField ValidationCategory = "missing_field"
	// ValCatSchema indicates an unsupported schema number.
	ValCatSchema ValidationCategory = "schema"
	// ValCatReference indicates an unparseable space reference.
	ValCatReference ValidationCategory = "reference"
	// ValCatIdentity indicates an invalid or mismatched identifier.
	ValCatIdentity ValidationCategory = "identity"
	// ValCatDuplicate indicates a repeated entry.
	ValCatDuplicate ValidationCategory = "duplicate"
	// ValCatVersion indicates an invalid version string.
	ValCatVersion ValidationCategory = "version"
)

// ValidationError records a manifest problem with its file and field.
type ValidationError struct {
	Category ValidationCategory
	File     string
	Field    string
	Err      error
}

// Error returns a human-readable string including file and field context.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", e.File, e.Field, e.Err)
	}
	return e.File + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Join folds a list of validation errors into one error, or nil when empty.
func Join(errs []ValidationError) error {
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i := range errs {
		joined[i] = &errs[i]
	}
	return errors.Join(joined...)
}
