package registry

import "errors"

// Sentinel errors returned by Access implementations.
var (
	// ErrUnknownSpace indicates the registry has no Space with the id.
	ErrUnknownSpace = errors.New("unknown space")
	// ErrUnknownDistTag indicates the Space has no such dist-tag.
	ErrUnknownDistTag = errors.New("unknown dist-tag")
	// ErrAmbiguousDistTag indicates a dist-tag that does not name exactly
	// one version tag, or whose version maps to more than one commit.
	ErrAmbiguousDistTag = errors.New("ambiguous dist-tag")
	// ErrUnknownCommit indicates a revision that does not resolve to a commit.
	ErrUnknownCommit = errors.New("unknown commit")
	// ErrFileNotFound indicates a path absent from a Space at a commit.
	ErrFileNotFound = errors.New("file not found in space")
	// ErrTransient marks failures worth retrying, such as network errors
	// while fetching.
	ErrTransient = errors.New("transient registry failure")
	// ErrCircuitOpen indicates the registry breaker is open after repeated
	// transient failures.
	ErrCircuitOpen = errors.New("registry circuit open")
)
