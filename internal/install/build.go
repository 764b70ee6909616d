package install

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/materialize"
)

// BuildResult is the outcome of materializing one (target, harness) pair.
type BuildResult struct {
	Target      string
	Harness     harness.ID
	Bundle      *harness.Bundle
	Detect      harness.DetectResult
	Warnings    []string
	EnvHash     string
	CacheHits   int
	CacheMisses int
}

// BuildRequest selects targets and harnesses to materialize from the
// existing lock file.
type BuildRequest struct {
	Targets   []string
	Harnesses []string
}

// Build materializes from the lock file without resolving. Targets the
// lock does not record are an error; the lock file is not modified.
func (in *Installer) Build(ctx context.Context, req BuildRequest) ([]BuildResult, error) {
	project, err := in.loadProject()
	if err != nil {
		return nil, err
	}
	targets, err := selectTargets(project, req.Targets)
	if err != nil {
		return nil, err
	}
	lf, err := lockfile.Load(in.opts.LockFile)
	if err != nil {
		return nil, err
	}
	return in.build(ctx, project, lf, targets, req.Harnesses)
}

// build runs every (target, harness) pair concurrently. Results come back
// in target-major, harness-minor order.
func (in *Installer) build(ctx context.Context, project *manifest.Project, lf *lockfile.LockFile, targets, harnessIDs []string) ([]BuildResult, error) {
	adapters, err := in.opts.Harnesses.Resolve(harnessIDs)
	if err != nil {
		return nil, err
	}
	results := make([]BuildResult, len(targets)*len(adapters))
	g, gctx := errgroup.WithContext(ctx)
	for ti, target := range targets {
		for ai, adapter := range adapters {
			idx := ti*len(adapters) + ai
			g.Go(func() error {
				r, err := in.buildOne(gctx, project, lf, target, adapter)
				if err != nil {
					return err
				}
				results[idx] = r
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (in *Installer) buildOne(ctx context.Context, project *manifest.Project, lf *lockfile.LockFile, target string, adapter harness.Adapter) (BuildResult, error) {
	opts := adapter.DefaultRunOptions(project.HarnessOptions(target, string(adapter.ID())))
	res, err := in.pipeline.MaterializeTarget(ctx, materialize.Request{
		Target:  target,
		Lock:    lf,
		Harness: adapter.ID(),
		Options: opts,
	})
	if err != nil {
		return BuildResult{}, err
	}
	argv := adapter.BuildRunArgs(res.Bundle, opts)
	env := adapter.RunEnv(res.Bundle, opts)
	in.logf("built %s for %s (%d warnings)", target, adapter.ID(), len(res.Warnings))
	return BuildResult{
		Target:      target,
		Harness:     adapter.ID(),
		Bundle:      res.Bundle,
		Detect:      res.Detect,
		Warnings:    res.Warnings,
		EnvHash:     harness.EnvHash(argv, env),
		CacheHits:   res.CacheHits,
		CacheMisses: res.CacheMisses,
	}, nil
}

// DevSpaces returns the working trees of dev Spaces in the given targets,
// keyed by Space id. An empty list selects every locked target.
func (in *Installer) DevSpaces(targets []string) (map[string]string, error) {
	lf, err := lockfile.Load(in.opts.LockFile)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		for name := range lf.Targets {
			targets = append(targets, name)
		}
	}
	return materialize.DevSpaces(lf, targets, in.opts.Registry), nil
}
