// Package manifest reads the two TOML documents asp consumes: a Space's
// space.toml and a project's asp-targets.toml.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/asp/internal/ref"
)

// SpaceFileName is the manifest file at the root of every Space.
const SpaceFileName = "space.toml"

// SchemaVersion is the only manifest schema this build reads.
const SchemaVersion = 1

// Space is the parsed space.toml.
type Space struct {
	Schema      int        `toml:"schema"`
	ID          string     `toml:"id"`
	Version     string     `toml:"version"`
	Description string     `toml:"description,omitempty"`
	Plugin      PluginMeta `toml:"plugin,omitempty"`
	Deps        Deps       `toml:"deps,omitempty"`
}

// PluginMeta optionally overrides the identity harnesses see.
type PluginMeta struct {
	Name        string `toml:"name,omitempty"`
	Version     string `toml:"version,omitempty"`
	Description string `toml:"description,omitempty"`
	Author      string `toml:"author,omitempty"`
}

// Deps lists a Space's declared dependencies.
type Deps struct {
	Spaces []string `toml:"spaces,omitempty"`
}

// Identity is the resolved plugin identity of a Space.
type Identity struct {
	Name        string
	Version     string
	Description string
	Author      string
}

// ParseSpace decodes space.toml content.
func ParseSpace(data []byte) (*Space, error) {
	var s Space
	if err := toml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", SpaceFileName, err)
	}
	return &s, nil
}

// LoadSpace reads space.toml from a Space directory.
func LoadSpace(dir string) (*Space, error) {
	data, err := os.ReadFile(filepath.Join(dir, SpaceFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, filepath.Join(dir, SpaceFileName))
		}
		return nil, fmt.Errorf("reading %s: %w", SpaceFileName, err)
	}
	return ParseSpace(data)
}

// Identity returns the plugin identity, defaulting each field from the
// Space's own id, version, and description.
func (s *Space) Identity() Identity {
	id := Identity{
		Name:        s.Plugin.Name,
		Version:     s.Plugin.Version,
		Description: s.Plugin.Description,
		Author:      s.Plugin.Author,
	}
	if id.Name == "" {
		id.Name = s.ID
	}
	if id.Version == "" {
		id.Version = s.Version
	}
	if id.Description == "" {
		id.Description = s.Description
	}
	return id
}

// DepRefs parses the declared dependency references in order.
func (s *Space) DepRefs() ([]ref.Reference, error) {
	refs, err := ref.ParseAll(s.Deps.Spaces)
	if err != nil {
		return nil, fmt.Errorf("space %s: deps: %w", s.ID, err)
	}
	return refs, nil
}

// SemVersion parses the declared version.
func (s *Space) SemVersion() (*semver.Version, error) {
	v, err := semver.NewVersion(s.Version)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, s.Version, err)
	}
	return v, nil
}

// Validate checks the manifest for structural correctness. expectedID is
// the id implied by the registry path; pass "" to skip that check.
func (s *Space) Validate(expectedID string) []ValidationError {
	var errs []ValidationError
	add := func(cat ValidationCategory, field string, err error) {
		errs = append(errs, ValidationError{Category: cat, File: SpaceFileName, Field: field, Err: err})
	}

	if s.Schema != SchemaVersion {
		add(ValCatSchema, "schema", fmt.Errorf("%w: %d", ErrUnsupportedSchema, s.Schema))
	}

	switch {
	case s.ID == "":
		add(ValCatMissingField, "id", fmt.Errorf("%w: id", ErrMissingField))
	default:
		if err := ref.ValidateID(s.ID); err != nil {
			add(ValCatIdentity, "id", err)
		} else if expectedID != "" && s.ID != expectedID {
			add(ValCatIdentity, "id", fmt.Errorf("%w: declared %q, path %q", ErrIDMismatch, s.ID, expectedID))
		}
	}

	if s.Version == "" {
		add(ValCatMissingField, "version", fmt.Errorf("%w: version", ErrMissingField))
	} else if _, err := s.SemVersion(); err != nil {
		add(ValCatVersion, "version", err)
	}

	seen := make(map[string]bool)
	for i, raw := range s.Deps.Spaces {
		field := fmt.Sprintf("deps.spaces[%d]", i)
		r, err := ref.Parse(raw)
		if err != nil {
			add(ValCatReference, field, err)
			continue
		}
		if seen[r.ID] {
			add(ValCatDuplicate, field, fmt.Errorf("%w: %s", ErrDuplicateSpace, r.ID))
		}
		seen[r.ID] = true
	}
	return errs
}
