// Package registry defines how asp reads Spaces from a version-controlled
// registry and provides a git-backed implementation, an in-memory one for
// tests and embedding, and a retrying wrapper.
package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// SpacesDir is the registry-relative directory holding every Space.
const SpacesDir = "spaces"

// Tag is one version tag of a Space.
type Tag struct {
	Name    string // full tag name, e.g. space/base/v1.0.0
	Version string // semver without the leading v
	Commit  string
}

// Info describes the registry for lock file provenance.
type Info struct {
	Type string
	URL  string
}

// Access is the registry capability the resolver and store consume.
type Access interface {
	// Fetch refreshes the local view of the registry.
	Fetch(ctx context.Context) error
	// ListTags returns the version tags of a Space, ErrUnknownSpace when
	// the registry has no such Space.
	ListTags(ctx context.Context, id string) ([]Tag, error)
	// ResolveDistTag returns the commit a dist-tag points at.
	ResolveDistTag(ctx context.Context, id, tag string) (string, error)
	// ResolveCommit expands an abbreviated revision to a full commit.
	ResolveCommit(ctx context.Context, id, rev string) (string, error)
	// ReadFile reads a file relative to the Space root at a commit.
	ReadFile(ctx context.Context, id, commit, name string) ([]byte, error)
	// Extract writes the Space tree at a commit into dest.
	Extract(ctx context.Context, id, commit, dest string) error
	// SpacePath returns the registry-relative path of a Space.
	SpacePath(id string) string
	// WorkingPath returns the on-disk working tree used by dev selectors.
	WorkingPath(id string) string
	// Describe reports the registry type and location.
	Describe() Info
}

// SpacePath returns spaces/<id>.
func SpacePath(id string) string {
	return SpacesDir + "/" + id
}

// TagName returns the version tag name for id at version.
func TagName(id, version string) string {
	return "space/" + id + "/v" + strings.TrimPrefix(version, "v")
}

// parseTagName extracts the version from a tag name belonging to id.
// Tags that are not space/<id>/v<semver> report ok=false.
func parseTagName(id, name string) (version string, ok bool) {
	rest, found := strings.CutPrefix(name, "space/"+id+"/")
	if !found {
		return "", false
	}
	v, err := semver.NewVersion(rest)
	if err != nil || !strings.HasPrefix(rest, "v") {
		return "", false
	}
	return v.String(), true
}

// resolvePointer maps a dist-tag pointer onto exactly one commit among tags.
func resolvePointer(id, tag, pointer string, tags []Tag) (string, error) {
	want, err := semver.StrictNewVersion(strings.TrimPrefix(pointer, "v"))
	if err != nil {
		return "", fmt.Errorf("%w: %s@%s points at %q, not an exact version", ErrAmbiguousDistTag, id, tag, pointer)
	}
	var commit string
	for _, t := range tags {
		v, err := semver.NewVersion(t.Version)
		if err != nil || !v.Equal(want) {
			continue
		}
		if commit != "" && commit != t.Commit {
			return "", fmt.Errorf("%w: %s@%s version %s maps to commits %s and %s", ErrAmbiguousDistTag, id, tag, want, commit, t.Commit)
		}
		commit = t.Commit
	}
	if commit == "" {
		return "", fmt.Errorf("%w: %s@%s points at %s which has no version tag", ErrUnknownDistTag, id, tag, pointer)
	}
	return commit, nil
}
