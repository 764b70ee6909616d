package ref

import (
	"fmt"
	"strings"
)

// DevCommit is the sentinel commit recorded for dev-selector Spaces.
const DevCommit = "dev"

// DevIntegrity is the sentinel integrity recorded for dev-selector Spaces.
// Entries carrying it are excluded from integrity verification and GC.
const DevIntegrity = "sha256:dev"

// SpaceKey uniquely identifies one resolved Space version as <id>@<commit>.
type SpaceKey string

// NewKey builds the Space Key for id at commit.
func NewKey(id, commit string) SpaceKey {
	return SpaceKey(id + "@" + commit)
}

// ParseKey splits a Space Key into id and commit.
func ParseKey(s string) (id, commit string, err error) {
	i := strings.LastIndex(s, "@")
	if i <= 0 || i == len(s)-1 {
		return "", "", fmt.Errorf("%w: malformed space key %q", ErrInvalidReference, s)
	}
	id, commit = s[:i], s[i+1:]
	if err := ValidateID(id); err != nil {
		return "", "", err
	}
	return id, commit, nil
}

// ID returns the identifier portion of the key.
func (k SpaceKey) ID() string {
	id, _, _ := strings.Cut(string(k), "@")
	return id
}

// Commit returns the commit portion of the key.
func (k SpaceKey) Commit() string {
	_, c, _ := strings.Cut(string(k), "@")
	return c
}

// IsDev reports whether the key carries the dev sentinel commit.
func (k SpaceKey) IsDev() bool {
	return k.Commit() == DevCommit
}

// String implements fmt.Stringer.
func (k SpaceKey) String() string {
	return string(k)
}

// ShortCommit abbreviates a commit to 12 characters for display.
func ShortCommit(commit string) string {
	if len(commit) > 12 {
		return commit[:12]
	}
	return commit
}
