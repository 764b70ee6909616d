package resolve

import (
	"context"
	"fmt"
	"slices"

	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/registry"
)

// IntegritySource yields the tree hash of a Space at a commit, making the
// snapshot available as a side effect.
type IntegritySource interface {
	Ingest(ctx context.Context, id, commit string) (string, error)
}

// Lock converts a closure into the lock entries for one target. Dev Spaces
// carry the dev sentinels and are never ingested.
func Lock(ctx context.Context, reg registry.Access, compose []string, c *Closure, src IntegritySource) (lockfile.TargetEntry, map[ref.SpaceKey]lockfile.SpaceEntry, error) {
	spaces := make(map[ref.SpaceKey]lockfile.SpaceEntry, len(c.LoadOrder))
	for _, s := range c.Ordered() {
		integrity := ref.DevIntegrity
		if !s.IsDev() {
			var err error
			integrity, err = src.Ingest(ctx, s.ID, s.Commit)
			if err != nil {
				return lockfile.TargetEntry{}, nil, fmt.Errorf("locking %s: %w", s.Key, err)
			}
		}
		id := s.Manifest.Identity()
		spaces[s.Key] = lockfile.SpaceEntry{
			ID:        s.ID,
			Commit:    s.Commit,
			Path:      reg.SpacePath(s.ID),
			Integrity: integrity,
			Plugin:    lockfile.Plugin{Name: id.Name, Version: id.Version},
			Deps:      slices.Clone(s.Deps),
		}
	}

	target := lockfile.TargetEntry{
		Compose:   slices.Clone(compose),
		Roots:     slices.Clone(c.Roots),
		LoadOrder: slices.Clone(c.LoadOrder),
	}
	return target, spaces, nil
}

// PinnedFromLock pins every id in a target's locked closure, roots and
// transitive-only alike, except the ids named in upgrade. Dev entries are
// never pinned. A target missing from the lock yields an empty map.
func PinnedFromLock(lf *lockfile.LockFile, target string, upgrade []string) map[string]string {
	pins := make(map[string]string)
	if lf == nil {
		return pins
	}
	t, ok := lf.Targets[target]
	if !ok {
		return pins
	}
	for _, key := range t.LoadOrder {
		id, commit := key.ID(), key.Commit()
		if commit == ref.DevCommit || slices.Contains(upgrade, id) {
			continue
		}
		pins[id] = commit
	}
	return pins
}
