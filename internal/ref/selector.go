package ref

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind identifies how a selector is resolved to a commit.
type Kind string

const (
	// KindDistTag resolves a named channel pointer such as "stable".
	KindDistTag Kind = "dist-tag"
	// KindSemver resolves an exact version or a caret/tilde range against
	// the Space's version tags.
	KindSemver Kind = "semver"
	// KindGitPin uses an explicit commit with no tag lookup.
	KindGitPin Kind = "git-pin"
	// KindDev reads the working tree directly, bypassing the store.
	KindDev Kind = "dev"
)

// GitPinPrefix marks a git-pin selector (git:<sha>).
const GitPinPrefix = "git:"

// DevSelector is the literal selector value for working-tree Spaces.
const DevSelector = "dev"

var (
	gitPinPattern  = regexp.MustCompile(`^[0-9a-f]{7,40}$`)
	semverPattern  = regexp.MustCompile(`^[\^~=]?v?\d+(\.\d+){0,2}(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
	distTagPattern = regexp.MustCompile(`^[a-z][a-z0-9-]*$`)
)

// Selector is the version-resolution portion of a reference.
type Selector struct {
	Kind  Kind
	Value string // tag name, semver expression, or commit; empty for dev
}

// ParseSelector classifies s into exactly one selector kind.
func ParseSelector(s string) (Selector, error) {
	if s == "" {
		return Selector{}, fmt.Errorf("%w: empty selector", ErrInvalidReference)
	}

	if strings.HasPrefix(s, GitPinPrefix) {
		commit := strings.TrimPrefix(s, GitPinPrefix)
		if !gitPinPattern.MatchString(commit) {
			return Selector{}, fmt.Errorf("%w: git pin %q is not a 7-40 character lowercase hex commit", ErrInvalidReference, commit)
		}
		return Selector{Kind: KindGitPin, Value: commit}, nil
	}

	if s == DevSelector {
		return Selector{Kind: KindDev}, nil
	}

	if semverPattern.MatchString(s) {
		return Selector{Kind: KindSemver, Value: s}, nil
	}

	if distTagPattern.MatchString(s) {
		return Selector{Kind: KindDistTag, Value: s}, nil
	}

	return Selector{}, fmt.Errorf("%w: selector %q is not a git pin, semver expression, or dist-tag", ErrInvalidReference, s)
}

// String renders the selector as it appears after '@'.
func (s Selector) String() string {
	switch s.Kind {
	case KindGitPin:
		return GitPinPrefix + s.Value
	case KindDev:
		return DevSelector
	default:
		return s.Value
	}
}

// IsExact reports whether a semver selector names exactly one version
// (no caret/tilde prefix and all three components, or an explicit '=').
func (s Selector) IsExact() bool {
	if s.Kind != KindSemver {
		return false
	}
	v := s.Value
	if strings.HasPrefix(v, "=") {
		return true
	}
	if strings.HasPrefix(v, "^") || strings.HasPrefix(v, "~") {
		return false
	}
	core := strings.TrimPrefix(v, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	return strings.Count(core, ".") == 2
}

// Constraint returns the semver constraint expression for a semver selector.
// Exact selectors become "=x.y.z"; partial versions become x-ranges
// ("1.2" -> "1.2.x") so they accept the greatest matching patch.
func (s Selector) Constraint() string {
	v := s.Value
	if s.IsExact() {
		return "=" + strings.TrimPrefix(strings.TrimPrefix(v, "="), "v")
	}
	if strings.HasPrefix(v, "^") || strings.HasPrefix(v, "~") {
		return v
	}
	core := strings.TrimPrefix(v, "v")
	switch strings.Count(core, ".") {
	case 0:
		return core + ".x"
	case 1:
		return core + ".x"
	}
	return core
}
