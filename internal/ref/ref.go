// Package ref parses and validates Space references of the form
// space:<id>@<selector> and the Space Keys (<id>@<commit>) that identify a
// resolved Space version throughout resolution and materialization.
package ref

import (
	"fmt"
	"regexp"
	"strings"
)

// Scheme is the prefix every Space reference string carries.
const Scheme = "space:"

// DefaultDistTag is the selector used when a reference omits one.
const DefaultDistTag = "stable"

// maxIDLength bounds Space identifiers so they stay usable as directory names.
const maxIDLength = 64

var idPattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// Reference is a parsed space:<id>@<selector> string.
type Reference struct {
	ID       string
	Selector Selector
}

// Parse parses a Space reference string. The selector kind is decided by a
// fixed precedence: git-pin prefix, the dev literal, semver pattern, then
// dist-tag fallback. An omitted selector means dist-tag "stable".
func Parse(s string) (Reference, error) {
	raw := strings.TrimSpace(s)
	if !strings.HasPrefix(raw, Scheme) {
		return Reference{}, &ParseError{Input: s, Err: fmt.Errorf("%w: missing %q prefix", ErrInvalidReference, Scheme)}
	}
	body := strings.TrimPrefix(raw, Scheme)

	id, sel, hasSel := strings.Cut(body, "@")
	if err := ValidateID(id); err != nil {
		return Reference{}, &ParseError{Input: s, Err: err}
	}

	if !hasSel {
		return Reference{ID: id, Selector: Selector{Kind: KindDistTag, Value: DefaultDistTag}}, nil
	}

	selector, err := ParseSelector(sel)
	if err != nil {
		return Reference{}, &ParseError{Input: s, Err: err}
	}
	return Reference{ID: id, Selector: selector}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// compile-time constant references.
func MustParse(s string) Reference {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// ParseAll parses a list of reference strings, stopping at the first error.
func ParseAll(refs []string) ([]Reference, error) {
	out := make([]Reference, 0, len(refs))
	for _, s := range refs {
		r, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// String renders the reference canonically. Parsing the result yields an
// equal Reference.
func (r Reference) String() string {
	return Scheme + r.ID + "@" + r.Selector.String()
}

// IsDev reports whether the reference bypasses the store and reads the
// Space's working tree directly.
func (r Reference) IsDev() bool {
	return r.Selector.Kind == KindDev
}

// ValidateID checks that id is a non-empty kebab-case identifier.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty space id", ErrInvalidReference)
	}
	if len(id) > maxIDLength {
		return fmt.Errorf("%w: space id %q exceeds %d characters", ErrInvalidReference, id, maxIDLength)
	}
	if !idPattern.MatchString(id) {
		return fmt.Errorf("%w: space id %q is not kebab-case", ErrInvalidReference, id)
	}
	return nil
}

// IsKebab reports whether s is a kebab-case identifier. Adapters use it for
// plugin-name checks.
func IsKebab(s string) bool {
	return idPattern.MatchString(s)
}
