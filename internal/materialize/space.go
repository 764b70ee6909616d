package materialize

import (
	"context"
	"fmt"
	"os"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/integrity"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/store"
	"github.com/papapumpkin/asp/internal/telemetry"
)

// materializeCached ensures the snapshot, then reuses or builds the cache
// entry for one Space. Both are leased until the caller releases them so a
// concurrent GC leaves them alone.
func (p *Pipeline) materializeCached(ctx context.Context, adapter harness.Adapter, req Request, e entry, hold func(func())) (slot, error) {
	st := p.opts.Store
	release, err := st.Lease(ctx, store.LeaseSnapshot, e.space.Integrity)
	if err != nil {
		return slot{}, err
	}
	hold(release)

	snap, err := st.CreateSnapshot(ctx, e.space.ID, e.space.Commit, e.space.Integrity)
	if err != nil {
		return slot{}, err
	}

	key := integrity.CacheKey(integrity.CacheInput{
		Integrity:           e.space.Integrity,
		MaterializerVersion: adapter.MaterializerVersion(),
		HarnessID:           string(adapter.ID()),
		PluginName:          e.space.Plugin.Name,
		PluginVersion:       e.space.Plugin.Version,
	})
	release, err = st.Lease(ctx, store.LeaseCache, string(adapter.ID())+"/"+key)
	if err != nil {
		return slot{}, err
	}
	hold(release)

	m, err := manifest.LoadSpace(snap)
	if err != nil {
		return slot{}, err
	}
	in := harness.SpaceInput{
		Key:       e.key,
		Dir:       snap,
		Manifest:  m,
		Identity:  m.Identity(),
		Integrity: e.space.Integrity,
	}
	art := harness.Artifact{Key: e.key, Identity: in.Identity, Dir: st.CachePath(string(adapter.ID()), key)}

	rec, ok, err := st.CacheEntry(string(adapter.ID()), key)
	if err != nil {
		return slot{}, err
	}
	if ok {
		p.emit(telemetry.KindCacheHit, req, e.key, key)
		return slot{artifact: art, warnings: rec.Warnings, hit: true}, nil
	}
	p.emit(telemetry.KindCacheMiss, req, e.key, key)

	v := adapter.ValidateSpace(in)
	if err := v.Err(); err != nil {
		return slot{}, err
	}
	dir, err := st.CommitCache(ctx, string(adapter.ID()), key, store.CacheRecord{
		Integrity:           e.space.Integrity,
		MaterializerVersion: adapter.MaterializerVersion(),
		SpaceKey:            string(e.key),
		PluginName:          e.space.Plugin.Name,
		PluginVersion:       e.space.Plugin.Version,
		Warnings:            v.Warnings,
	}, func(dir string) ([]string, error) {
		return adapter.MaterializeSpace(ctx, in, dir)
	})
	if err != nil {
		return slot{}, err
	}
	var warnings []string
	if rec, ok, err := st.CacheEntry(string(adapter.ID()), key); err == nil && ok {
		warnings = rec.Warnings
	}
	art.Dir = dir
	p.emit(telemetry.KindMaterialized, req, e.key, key)
	p.logf("materialized %s for %s", e.key, adapter.ID())
	return slot{artifact: art, warnings: warnings}, nil
}

// materializeDev builds a dev Space straight from the registry working
// tree. The result is never cached or leased.
func (p *Pipeline) materializeDev(ctx context.Context, adapter harness.Adapter, req Request, e entry) (slot, error) {
	src := p.opts.Registry.WorkingPath(e.space.ID)
	m, err := manifest.LoadSpace(src)
	if err != nil {
		return slot{}, err
	}
	in := harness.SpaceInput{
		Key:       e.key,
		Dir:       src,
		Manifest:  m,
		Identity:  m.Identity(),
		Integrity: e.space.Integrity,
	}
	v := adapter.ValidateSpace(in)
	if err := v.Err(); err != nil {
		return slot{}, err
	}

	out := DevPath(p.opts.ModulesDir, adapter.ID(), req.Target, e.space.ID)
	staged, err := harness.StageDir(out)
	if err != nil {
		return slot{}, err
	}
	w, err := adapter.MaterializeSpace(ctx, in, staged)
	if err != nil {
		os.RemoveAll(staged)
		return slot{}, err
	}
	if err := harness.ReplaceDir(staged, out); err != nil {
		os.RemoveAll(staged)
		return slot{}, fmt.Errorf("placing dev build: %w", err)
	}
	return slot{
		artifact: harness.Artifact{Key: e.key, Identity: in.Identity, Dir: out},
		warnings: append(v.Warnings, w...),
	}, nil
}
