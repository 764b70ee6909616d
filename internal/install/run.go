package install

import (
	"fmt"
	"maps"
	"slices"

	"github.com/papapumpkin/asp/internal/dag"
	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/ref"
)

// RunRequest selects the bundle to launch and the per-invocation inputs.
type RunRequest struct {
	Target      string
	Harness     string
	Prompt      string
	Interactive bool
}

// RunSpec is everything needed to start a harness process.
type RunSpec struct {
	Argv []string          `json:"argv"`
	Env  map[string]string `json:"env"`
}

// RunSpec derives the harness invocation from the bundle on disk. It does
// not resolve or materialize; a target never built is harness.ErrNoBundle.
func (in *Installer) RunSpec(req RunRequest) (RunSpec, error) {
	adapter, err := in.opts.Harnesses.Get(harness.ID(req.Harness))
	if err != nil {
		return RunSpec{}, err
	}
	project, err := in.loadProject()
	if err != nil {
		return RunSpec{}, err
	}
	if _, err := project.Target(req.Target); err != nil {
		return RunSpec{}, fmt.Errorf("%w: %s", ErrUnknownTarget, req.Target)
	}
	b, err := adapter.LoadTargetBundle(adapter.TargetOutputPath(in.opts.ModulesDir, req.Target))
	if err != nil {
		return RunSpec{}, err
	}
	opts := adapter.DefaultRunOptions(project.HarnessOptions(req.Target, req.Harness))
	opts.Prompt = req.Prompt
	if req.Prompt != "" {
		opts.Interactive = req.Interactive
	}
	return RunSpec{Argv: adapter.BuildRunArgs(b, opts), Env: adapter.RunEnv(b, opts)}, nil
}

// ExplainedSpace is one load-order position of a locked target.
type ExplainedSpace struct {
	Key       ref.SpaceKey
	Integrity string
	Plugin    lockfile.Plugin
	Deps      []ref.SpaceKey
	Root      bool
	// RequiredBy lists the roots that pull a non-root Space in.
	RequiredBy []ref.SpaceKey
}

// Explanation describes a locked target.
type Explanation struct {
	Target    string
	Compose   []string
	Spaces    []ExplainedSpace
	Harnesses map[string]lockfile.HarnessEntry
}

// HarnessIDs returns the recorded harness ids in sorted order.
func (e Explanation) HarnessIDs() []string {
	return slices.Sorted(maps.Keys(e.Harnesses))
}

// Explain reads the lock file and reports a target's load order.
func (in *Installer) Explain(target string) (Explanation, error) {
	lf, err := lockfile.Load(in.opts.LockFile)
	if err != nil {
		return Explanation{}, err
	}
	t, err := lf.Target(target)
	if err != nil {
		return Explanation{}, err
	}
	g, err := lockGraph(lf, t)
	if err != nil {
		return Explanation{}, fmt.Errorf("explaining %s: %w", target, err)
	}
	out := Explanation{Target: target, Compose: t.Compose, Harnesses: t.Harnesses}
	for _, key := range t.LoadOrder {
		se := lf.Spaces[key]
		es := ExplainedSpace{
			Key:       key,
			Integrity: se.Integrity,
			Plugin:    se.Plugin,
			Deps:      se.Deps,
			Root:      slices.Contains(t.Roots, key),
		}
		if !es.Root {
			for _, id := range g.Descendants(string(key)) {
				if slices.Contains(t.Roots, ref.SpaceKey(id)) {
					es.RequiredBy = append(es.RequiredBy, ref.SpaceKey(id))
				}
			}
		}
		out.Spaces = append(out.Spaces, es)
	}
	return out, nil
}

// lockGraph rebuilds a target's dependency graph from its lock entries,
// sequenced by load order.
func lockGraph(lf *lockfile.LockFile, t lockfile.TargetEntry) (*dag.DAG, error) {
	g := dag.New()
	for i, key := range t.LoadOrder {
		if err := g.AddNode(string(key), i); err != nil {
			return nil, err
		}
	}
	for _, key := range t.LoadOrder {
		for _, dep := range lf.Spaces[key].Deps {
			if err := g.AddEdge(string(key), string(dep)); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}
