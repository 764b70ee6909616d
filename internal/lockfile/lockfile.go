// Package lockfile reads and writes asp-lock.json, the durable pinning of
// every target to an exact, integrity-hashed closure. Output is
// deterministic (sorted keys, two-space indent) and fields written by newer
// versions are carried through untouched.
package lockfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/papapumpkin/asp/internal/ref"
)

// FileName is the default lock file name.
const FileName = "asp-lock.json"

// Version is the lockfileVersion this build writes.
const Version = 1

// ResolverVersion identifies the resolution algorithm that produced a lock.
const ResolverVersion = 1

// LockFile is the in-memory lock file.
type LockFile struct {
	LockfileVersion int
	ResolverVersion int
	GeneratedAt     string
	Registry        Registry
	Spaces          map[ref.SpaceKey]SpaceEntry
	Targets         map[string]TargetEntry

	extra map[string]json.RawMessage
}

// Registry records the registry a lock was resolved against.
type Registry struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Plugin is the plugin identity harnesses see for a Space.
type Plugin struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// SpaceEntry pins one Space Key.
type SpaceEntry struct {
	ID        string
	Commit    string
	Path      string
	Integrity string
	Plugin    Plugin
	Deps      []ref.SpaceKey

	extra map[string]json.RawMessage
}

// TargetEntry pins one target to a closure.
type TargetEntry struct {
	Compose   []string
	Roots     []ref.SpaceKey
	LoadOrder []ref.SpaceKey
	Harnesses map[string]HarnessEntry

	extra map[string]json.RawMessage
}

// HarnessEntry records the last materialization of a target for a harness.
type HarnessEntry struct {
	EnvHash  string
	Warnings []string

	extra map[string]json.RawMessage
}

// New creates an empty lock file for the given registry.
func New(reg Registry) *LockFile {
	return &LockFile{
		LockfileVersion: Version,
		ResolverVersion: ResolverVersion,
		Registry:        reg,
		Spaces:          make(map[ref.SpaceKey]SpaceEntry),
		Targets:         make(map[string]TargetEntry),
	}
}

// Load reads a lock file from path.
func Load(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading lock file: %w", err)
	}
	lf, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return lf, nil
}

// Parse decodes lock file content.
func Parse(data []byte) (*LockFile, error) {
	var lf LockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("parsing lock file: %w", err)
	}
	if lf.LockfileVersion < 1 {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, lf.LockfileVersion)
	}
	if lf.Spaces == nil {
		lf.Spaces = make(map[ref.SpaceKey]SpaceEntry)
	}
	if lf.Targets == nil {
		lf.Targets = make(map[string]TargetEntry)
	}
	return &lf, nil
}

// Marshal renders the lock file deterministically. The lockfileVersion
// written is never lower than the one read.
func (lf *LockFile) Marshal() ([]byte, error) {
	if lf.LockfileVersion < Version {
		lf.LockfileVersion = Version
	}
	if lf.ResolverVersion < ResolverVersion {
		lf.ResolverVersion = ResolverVersion
	}
	data, err := json.MarshalIndent(lf, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling lock file: %w", err)
	}
	return append(data, '\n'), nil
}

// Save stamps GeneratedAt and writes the lock file atomically.
func (lf *LockFile) Save(path string, now time.Time) error {
	lf.GeneratedAt = now.UTC().Format(time.RFC3339)
	data, err := lf.Marshal()
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("writing temp lock file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing temp lock file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("writing temp lock file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming lock file: %w", err)
	}
	return nil
}

// Target returns the entry for a target name.
func (lf *LockFile) Target(name string) (TargetEntry, error) {
	t, ok := lf.Targets[name]
	if !ok {
		return TargetEntry{}, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	return t, nil
}

// MergeTarget records a target and the space entries its closure needs.
// A space key already present with identical content is left alone; one
// present with different content is ErrConflict and nothing is changed,
// except for dev keys, which follow the working tree and are overwritten.
// A target of the same name is replaced, keeping harness entries and
// unknown fields when its load order is unchanged.
func (lf *LockFile) MergeTarget(name string, target TargetEntry, spaces map[ref.SpaceKey]SpaceEntry) error {
	for _, key := range slices.Sorted(maps.Keys(spaces)) {
		if key.IsDev() {
			continue
		}
		if existing, ok := lf.Spaces[key]; ok && !existing.sameContent(spaces[key]) {
			return fmt.Errorf("%w: %s (integrity %s vs %s)", ErrConflict, key, existing.Integrity, spaces[key].Integrity)
		}
	}
	for key, entry := range spaces {
		if _, ok := lf.Spaces[key]; !ok || key.IsDev() {
			lf.Spaces[key] = entry
		}
	}

	if prev, ok := lf.Targets[name]; ok && slices.Equal(prev.LoadOrder, target.LoadOrder) {
		if target.Harnesses == nil {
			target.Harnesses = prev.Harnesses
		}
		if target.extra == nil {
			target.extra = prev.extra
		}
	}
	lf.Targets[name] = target
	return nil
}

// SetHarness records the harness entry for a target.
func (lf *LockFile) SetHarness(target, harnessID string, entry HarnessEntry) error {
	t, err := lf.Target(target)
	if err != nil {
		return err
	}
	h := make(map[string]HarnessEntry, len(t.Harnesses)+1)
	maps.Copy(h, t.Harnesses)
	if prev, ok := h[harnessID]; ok && entry.extra == nil {
		entry.extra = prev.extra
	}
	h[harnessID] = entry
	t.Harnesses = h
	lf.Targets[target] = t
	return nil
}

// Prune removes space entries not in any target's load order and returns
// the removed keys in sorted order.
func (lf *LockFile) Prune() []ref.SpaceKey {
	live := make(map[ref.SpaceKey]bool)
	for _, t := range lf.Targets {
		for _, k := range t.LoadOrder {
			live[k] = true
		}
	}
	var removed []ref.SpaceKey
	for _, k := range slices.Sorted(maps.Keys(lf.Spaces)) {
		if !live[k] {
			delete(lf.Spaces, k)
			removed = append(removed, k)
		}
	}
	return removed
}

// Integrities returns every non-dev integrity hash the lock references.
func (lf *LockFile) Integrities() []string {
	set := make(map[string]bool)
	for _, s := range lf.Spaces {
		if s.Integrity != "" && s.Integrity != ref.DevIntegrity {
			set[s.Integrity] = true
		}
	}
	return slices.Sorted(maps.Keys(set))
}

func (e SpaceEntry) sameContent(o SpaceEntry) bool {
	return e.ID == o.ID &&
		e.Commit == o.Commit &&
		e.Path == o.Path &&
		e.Integrity == o.Integrity &&
		e.Plugin == o.Plugin &&
		slices.Equal(e.Deps, o.Deps)
}
