package materialize

import (
	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/store"
)

// Reachability computes what GC must keep: every integrity referenced by
// any of the lock files, and the current materializer version of every
// registered harness.
func Reachability(locks []*lockfile.LockFile, harnesses *harness.Registry) store.Reachability {
	r := store.Reachability{
		Integrities:          make(map[string]bool),
		MaterializerVersions: make(map[string]string),
	}
	for _, lf := range locks {
		for _, integ := range lf.Integrities() {
			r.Integrities[integ] = true
		}
	}
	for _, id := range harnesses.IDs() {
		if a, err := harnesses.Get(id); err == nil {
			r.MaterializerVersions[string(id)] = a.MaterializerVersion()
		}
	}
	return r
}
