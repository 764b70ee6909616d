package resolve

import (
	"errors"
	"strings"
)

// Sentinel errors, one per resolution failure kind.
var (
	// ErrUnknownSpace indicates a reference to a Space the registry lacks.
	ErrUnknownSpace = errors.New("unknown space")
	// ErrUnsatisfiable indicates no version satisfies a selector.
	ErrUnsatisfiable = errors.New("unsatisfiable selector")
	// ErrAmbiguousDistTag indicates a dist-tag that resolves ambiguously.
	ErrAmbiguousDistTag = errors.New("ambiguous dist-tag")
	// ErrConflict indicates one id resolving to two commits in a closure,
	// or a pin that no longer satisfies its selector.
	ErrConflict = errors.New("resolution conflict")
	// ErrCycle indicates a dependency cycle.
	ErrCycle = errors.New("dependency cycle")
	// ErrInvalidManifest indicates a Space whose space.toml fails validation.
	ErrInvalidManifest = errors.New("invalid space manifest")
)

// Kind classifies a resolution error for programmatic handling.
type Kind string

const (
	// KindUnknownSpace wraps ErrUnknownSpace.
	KindUnknownSpace Kind = "unknown_space"
	// KindUnsatisfiable wraps ErrUnsatisfiable.
	KindUnsatisfiable Kind = "unsatisfiable"
	// KindAmbiguousDistTag wraps ErrAmbiguousDistTag.
	KindAmbiguousDistTag Kind = "ambiguous_dist_tag"
	// KindConflict wraps ErrConflict.
	KindConflict Kind = "conflict"
	// KindCycle wraps ErrCycle.
	KindCycle Kind = "cycle"
	// KindInvalidManifest wraps ErrInvalidManifest.
	KindInvalidManifest Kind = "invalid_manifest"
	// KindRegistry covers registry failures that are none of the above.
	KindRegistry Kind = "registry"
)

// Error describes why resolution failed and where.
type Error struct {
	Kind      Kind
	Reference string   // the reference being resolved
	Chain     []string // references leading from a root to Reference
	Other     []string // for conflicts: the chain that resolved the id first
	Path      []string // for cycles: space keys, first == last
	Err       error
}

// Error renders the kind-specific context followed by the cause.
func (e *Error) Error() string {
	var b strings.Builder
	switch {
	case len(e.Path) > 0:
		b.WriteString(strings.Join(e.Path, " -> "))
	case e.Reference != "":
		b.WriteString(e.Reference)
	}
	if len(e.Chain) > 1 {
		b.WriteString(" (via " + strings.Join(e.Chain, " -> ") + ")")
	}
	if len(e.Other) > 0 {
		b.WriteString(" conflicts with " + strings.Join(e.Other, " -> "))
	}
	if b.Len() == 0 {
		return e.Err.Error()
	}
	return b.String() + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for use with errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}
