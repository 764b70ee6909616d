package install

import (
	"context"
	"errors"

	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/materialize"
	"github.com/papapumpkin/asp/internal/store"
	"github.com/papapumpkin/asp/internal/telemetry"
)

// GCResult is a store GC report plus the roots that no longer exist.
type GCResult struct {
	store.GCReport
	DroppedRoots []string
}

// GC collects store entries unreachable from every registered project
// root. Roots whose lock file is gone are unregistered first; a root that
// exists but cannot be read aborts the collection.
func (in *Installer) GC(ctx context.Context) (GCResult, error) {
	st := in.opts.Store
	roots, err := st.Roots(ctx)
	if err != nil {
		return GCResult{}, err
	}
	var (
		res   GCResult
		locks []*lockfile.LockFile
	)
	for _, root := range roots {
		lf, err := lockfile.Load(root)
		if errors.Is(err, lockfile.ErrNotFound) {
			if err := st.RemoveRoot(ctx, root); err != nil {
				return GCResult{}, err
			}
			res.DroppedRoots = append(res.DroppedRoots, root)
			continue
		}
		if err != nil {
			return GCResult{}, err
		}
		locks = append(locks, lf)
	}

	report, err := st.GC(ctx, materialize.Reachability(locks, in.opts.Harnesses))
	if err != nil {
		return GCResult{}, err
	}
	res.GCReport = report
	in.emit(telemetry.Event{Kind: telemetry.KindGCDone, Data: map[string]int{
		"snapshots": len(report.RemovedSnapshots),
		"cache":     len(report.RemovedCache),
		"temp":      report.RemovedTemp,
		"leased":    len(report.SkippedLeased),
	}})
	in.logf("gc: removed %d snapshots, %d cache entries", len(report.RemovedSnapshots), len(report.RemovedCache))
	return res, nil
}
