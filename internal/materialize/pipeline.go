// Package materialize turns a locked target into a composed bundle for one
// harness: ensure snapshots, materialize each Space through the cache,
// then compose in load order. It holds no harness-specific logic; every
// such decision goes through harness.Adapter.
package materialize

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/registry"
	"github.com/papapumpkin/asp/internal/store"
	"github.com/papapumpkin/asp/internal/telemetry"
)

// DevDir is the modules subdirectory holding dev-space materializations.
const DevDir = ".dev"

// Options configures a Pipeline. Every field is explicit; nothing is read
// from the environment.
type Options struct {
	Store          *store.Store
	Registry       registry.Access
	Harnesses      *harness.Registry
	ModulesDir     string
	Concurrency    int
	RequireHarness bool
	Verbose        bool
	Logger         io.Writer
	Telemetry      *telemetry.Emitter
}

// Pipeline materializes targets. It is safe for concurrent use across
// different (target, harness) pairs.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Logger == nil {
		opts.Logger = os.Stderr
	}
	return &Pipeline{opts: opts}
}

// Request selects one target and harness from a lock file.
type Request struct {
	Target  string
	Lock    *lockfile.LockFile
	Harness harness.ID
	Options harness.RunOptions
}

// Result is a composed bundle plus everything learned producing it.
type Result struct {
	Bundle      *harness.Bundle
	Detect      harness.DetectResult
	Warnings    []string
	CacheHits   int
	CacheMisses int
}

// slot is the outcome for one load-order position.
type slot struct {
	artifact harness.Artifact
	warnings []string
	hit      bool
}

// MaterializeTarget runs resolve-entries, ensure-snapshots,
// materialize-each, compose and write-bundle for one target.
func (p *Pipeline) MaterializeTarget(ctx context.Context, req Request) (*Result, error) {
	adapter, err := p.opts.Harnesses.Get(req.Harness)
	if err != nil {
		return nil, err
	}
	entries, err := entriesFor(req.Lock, req.Target)
	if err != nil {
		return nil, err
	}

	res := &Result{}
	res.Detect = adapter.Detect(ctx, req.Options)
	if !res.Detect.Available {
		if p.opts.RequireHarness {
			return nil, fmt.Errorf("%w: %s: %s", harness.ErrHarnessUnavailable, req.Harness, res.Detect.Reason)
		}
		res.Warnings = append(res.Warnings, fmt.Sprintf("harness %s not available: %s", req.Harness, res.Detect.Reason))
		p.emit(telemetry.KindHarnessMissing, req, "", res.Detect.Reason)
	}

	var (
		mu       sync.Mutex
		releases []func()
	)
	hold := func(release func()) {
		mu.Lock()
		releases = append(releases, release)
		mu.Unlock()
	}
	defer func() {
		for _, release := range releases {
			release()
		}
	}()

	slots := make([]slot, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Concurrency)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			var (
				s   slot
				err error
			)
			if e.key.IsDev() {
				s, err = p.materializeDev(gctx, adapter, req, e)
			} else {
				s, err = p.materializeCached(gctx, adapter, req, e, hold)
			}
			if err != nil {
				p.emit(telemetry.KindMaterializeError, req, e.key, err.Error())
				return &SpaceError{Target: req.Target, Harness: req.Harness, Key: e.key, Err: err}
			}
			slots[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		var se *SpaceError
		if errors.As(err, &se) || ctx.Err() == nil {
			return nil, err
		}
		return nil, fmt.Errorf("materializing %s/%s: %w", req.Target, req.Harness, ctx.Err())
	}

	artifacts := make([]harness.Artifact, 0, len(slots))
	for _, s := range slots {
		artifacts = append(artifacts, s.artifact)
		for _, w := range s.warnings {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", s.artifact.Key, w))
		}
		if s.hit {
			res.CacheHits++
		} else if !s.artifact.Key.IsDev() {
			res.CacheMisses++
		}
	}

	out := adapter.TargetOutputPath(p.opts.ModulesDir, req.Target)
	bundle, err := adapter.ComposeTarget(ctx, harness.ComposeInput{
		Target:    req.Target,
		Artifacts: artifacts,
		OutputDir: out,
		Options:   req.Options,
	})
	if err != nil {
		return nil, fmt.Errorf("composing %s for %s: %w", req.Target, req.Harness, err)
	}
	res.Bundle = bundle
	res.Warnings = append(res.Warnings, bundle.Warnings...)
	p.emit(telemetry.KindComposed, req, "", map[string]int{
		"spaces": len(artifacts), "hits": res.CacheHits, "misses": res.CacheMisses,
	})
	p.logf("composed %s for %s: %d spaces (%d cached)", req.Target, req.Harness, len(artifacts), res.CacheHits)
	return res, nil
}

// entry is one load-order position resolved against the lock.
type entry struct {
	key   ref.SpaceKey
	space lockfile.SpaceEntry
}

func entriesFor(lf *lockfile.LockFile, target string) ([]entry, error) {
	t, err := lf.Target(target)
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(t.LoadOrder))
	for _, key := range t.LoadOrder {
		se, ok := lf.Spaces[key]
		if !ok {
			return nil, fmt.Errorf("%w: %s (target %s)", ErrMissingEntry, key, target)
		}
		out = append(out, entry{key: key, space: se})
	}
	return out, nil
}

// DevPath returns where a dev Space is materialized for a harness and
// target. Targets never share a dev directory, so concurrent builds of
// targets composing the same dev Space do not swap it under each other.
func DevPath(modulesDir string, h harness.ID, target, id string) string {
	return filepath.Join(modulesDir, DevDir, string(h), target, id)
}

func (p *Pipeline) emit(kind string, req Request, key ref.SpaceKey, data any) {
	_ = p.opts.Telemetry.Emit(telemetry.Event{
		Kind:    kind,
		Target:  req.Target,
		Harness: string(req.Harness),
		Space:   string(key),
		Data:    data,
	})
}

func (p *Pipeline) logf(format string, args ...any) {
	if p.opts.Verbose {
		fmt.Fprintf(p.opts.Logger, "[asp] "+format+"\n", args...)
	}
}
