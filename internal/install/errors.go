package install

import "errors"

// Sentinel errors for install operations.
var (
	// ErrUnknownTarget indicates a target the project manifest does not declare.
	ErrUnknownTarget = errors.New("target not declared in project")
	// ErrFrozen indicates a frozen install found the lock out of date.
	ErrFrozen = errors.New("lock file is out of date and --frozen forbids updating it")
)
