// Package install drives the project-level workflows: resolve targets into
// the lock file, materialize every (target, harness) pair, derive run
// arguments and collect garbage. It never branches on a harness id.
package install

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/materialize"
	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/registry"
	"github.com/papapumpkin/asp/internal/resolve"
	"github.com/papapumpkin/asp/internal/store"
	"github.com/papapumpkin/asp/internal/telemetry"
)

// Options configures an Installer. Relative file paths are resolved
// against ProjectDir.
type Options struct {
	ProjectDir     string
	ProjectFile    string
	LockFile       string
	ModulesDir     string
	Registry       registry.Access
	Store          *store.Store
	Harnesses      *harness.Registry
	Concurrency    int
	LockTimeout    time.Duration
	RequireHarness bool
	Verbose        bool
	Logger         io.Writer
	Telemetry      *telemetry.Emitter
	Now            func() time.Time
}

// Installer runs install, build, run-args and gc for one project.
type Installer struct {
	opts     Options
	pipeline *materialize.Pipeline
	resolver *resolve.Resolver
}

// New creates an Installer, filling defaults for unset file names.
func New(opts Options) *Installer {
	if opts.ProjectFile == "" {
		opts.ProjectFile = manifest.ProjectFileName
	}
	if opts.LockFile == "" {
		opts.LockFile = lockfile.FileName
	}
	if opts.ModulesDir == "" {
		opts.ModulesDir = "asp_modules"
	}
	if opts.Logger == nil {
		opts.Logger = os.Stderr
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	opts.ProjectFile = opts.path(opts.ProjectFile)
	opts.LockFile = opts.path(opts.LockFile)
	opts.ModulesDir = opts.path(opts.ModulesDir)

	return &Installer{
		opts: opts,
		pipeline: materialize.New(materialize.Options{
			Store:          opts.Store,
			Registry:       opts.Registry,
			Harnesses:      opts.Harnesses,
			ModulesDir:     opts.ModulesDir,
			Concurrency:    opts.Concurrency,
			RequireHarness: opts.RequireHarness,
			Verbose:        opts.Verbose,
			Logger:         opts.Logger,
			Telemetry:      opts.Telemetry,
		}),
		resolver: resolve.New(opts.Registry, resolve.WithLogger(opts.Logger), resolve.WithVerbose(opts.Verbose)),
	}
}

func (o Options) path(p string) string {
	if filepath.IsAbs(p) || o.ProjectDir == "" {
		return p
	}
	return filepath.Join(o.ProjectDir, p)
}

// LockPath returns the lock file the installer reads and writes.
func (in *Installer) LockPath() string { return in.opts.LockFile }

// ModulesDir returns where bundles are written.
func (in *Installer) ModulesDir() string { return in.opts.ModulesDir }

// Request selects what Install resolves and builds. Empty Targets or
// Harnesses select everything declared or registered.
type Request struct {
	Targets   []string
	Harnesses []string
	Upgrade   []string
	Frozen    bool
}

// Report summarizes an install.
type Report struct {
	Lock    *lockfile.LockFile
	Pruned  []ref.SpaceKey
	Results []BuildResult
}

// Install resolves the requested targets, writes the lock file and
// materializes every (target, harness) pair. The project lock is held
// throughout.
func (in *Installer) Install(ctx context.Context, req Request) (*Report, error) {
	pl, err := lockfile.Acquire(ctx, in.opts.LockFile, in.opts.LockTimeout)
	if err != nil {
		return nil, err
	}
	defer pl.Release()

	project, err := in.loadProject()
	if err != nil {
		return nil, err
	}
	targets, err := selectTargets(project, req.Targets)
	if err != nil {
		return nil, err
	}
	in.emit(telemetry.Event{Kind: telemetry.KindRunStart, Data: map[string]any{"targets": targets, "frozen": req.Frozen}})

	lf, err := in.loadLock()
	if err != nil {
		return nil, err
	}
	if current := in.registryInfo(); lf.Registry != current {
		if req.Frozen {
			return nil, fmt.Errorf("%w: locked against %s, project uses %s", ErrFrozen, lf.Registry.URL, current.URL)
		}
		in.logf("registry changed from %s to %s; re-resolving every target", lf.Registry.URL, current.URL)
		lf = lockfile.New(current)
	}
	report := &Report{Lock: lf}
	if req.Frozen {
		if err := checkFrozen(project, lf, targets); err != nil {
			return nil, err
		}
	} else {
		if err := in.opts.Registry.Fetch(ctx); err != nil {
			return nil, fmt.Errorf("fetching registry: %w", err)
		}
		for _, name := range targets {
			if err := in.lockTarget(ctx, project, lf, name, req.Upgrade); err != nil {
				return nil, err
			}
		}
		report.Pruned = lf.Prune()
		if err := in.saveLock(lf); err != nil {
			return nil, err
		}
	}
	if err := in.opts.Store.RegisterRoot(ctx, in.opts.LockFile); err != nil {
		return nil, err
	}

	results, err := in.build(ctx, project, lf, targets, req.Harnesses)
	if err != nil {
		return nil, err
	}
	report.Results = results
	if !req.Frozen {
		for _, r := range results {
			if err := lf.SetHarness(r.Target, string(r.Harness), lockfile.HarnessEntry{EnvHash: r.EnvHash, Warnings: r.Warnings}); err != nil {
				return nil, err
			}
		}
		if err := in.saveLock(lf); err != nil {
			return nil, err
		}
	}
	in.emit(telemetry.Event{Kind: telemetry.KindRunDone, Data: map[string]int{"builds": len(results), "pruned": len(report.Pruned)}})
	return report, nil
}

// lockTarget resolves one target with every previously locked id pinned,
// except upgraded ids and roots whose compose entry changed.
func (in *Installer) lockTarget(ctx context.Context, project *manifest.Project, lf *lockfile.LockFile, name string, upgrade []string) error {
	t, err := project.Target(name)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownTarget, name)
	}
	roots, err := t.References()
	if err != nil {
		return fmt.Errorf("target %s: %w", name, err)
	}
	upgrade = append(slices.Clone(upgrade), changedRoots(lf, name, t.Compose, roots)...)
	pinned := resolve.PinnedFromLock(lf, name, upgrade)

	closure, err := in.resolver.Resolve(ctx, roots, resolve.Options{Pinned: pinned})
	if err != nil {
		return fmt.Errorf("resolving target %s: %w", name, err)
	}
	in.emit(telemetry.Event{Kind: telemetry.KindResolved, Target: name, Data: map[string]int{"spaces": len(closure.LoadOrder)}})

	entry, spaces, err := resolve.Lock(ctx, in.opts.Registry, t.Compose, closure, in.opts.Store)
	if err != nil {
		return fmt.Errorf("locking target %s: %w", name, err)
	}
	if err := lf.MergeTarget(name, entry, spaces); err != nil {
		return fmt.Errorf("target %s: %w", name, err)
	}
	in.logf("locked %s: %d spaces", name, len(entry.LoadOrder))
	return nil
}

// changedRoots returns the ids of compose entries that differ from the
// ones the lock recorded for the target.
func changedRoots(lf *lockfile.LockFile, name string, compose []string, roots []ref.Reference) []string {
	prev, err := lf.Target(name)
	if err != nil {
		return nil
	}
	var out []string
	for i, r := range roots {
		if !slices.Contains(prev.Compose, compose[i]) {
			out = append(out, r.ID)
		}
	}
	return out
}

func checkFrozen(project *manifest.Project, lf *lockfile.LockFile, targets []string) error {
	for _, name := range targets {
		t, err := project.Target(name)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrUnknownTarget, name)
		}
		locked, err := lf.Target(name)
		if err != nil {
			return fmt.Errorf("%w: target %s is not locked", ErrFrozen, name)
		}
		if !slices.Equal(locked.Compose, t.Compose) {
			return fmt.Errorf("%w: target %s compose changed", ErrFrozen, name)
		}
	}
	return nil
}

func selectTargets(project *manifest.Project, requested []string) ([]string, error) {
	if len(requested) == 0 {
		return project.TargetNames(), nil
	}
	for _, name := range requested {
		if _, err := project.Target(name); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
		}
	}
	return requested, nil
}

func (in *Installer) loadProject() (*manifest.Project, error) {
	p, err := manifest.LoadProject(in.opts.ProjectFile)
	if err != nil {
		return nil, err
	}
	if err := manifest.Join(p.Validate()); err != nil {
		return nil, err
	}
	return p, nil
}

// loadLock reads the lock file, starting a fresh one when none exists.
func (in *Installer) loadLock() (*lockfile.LockFile, error) {
	lf, err := lockfile.Load(in.opts.LockFile)
	if errors.Is(err, lockfile.ErrNotFound) {
		return lockfile.New(in.registryInfo()), nil
	}
	return lf, err
}

// registryInfo is the lock's record of the registry in use.
func (in *Installer) registryInfo() lockfile.Registry {
	info := in.opts.Registry.Describe()
	return lockfile.Registry{Type: info.Type, URL: info.URL}
}

func (in *Installer) saveLock(lf *lockfile.LockFile) error {
	if err := lf.Save(in.opts.LockFile, in.opts.Now()); err != nil {
		return err
	}
	in.emit(telemetry.Event{Kind: telemetry.KindLockWritten, Data: in.opts.LockFile})
	return nil
}

func (in *Installer) emit(evt telemetry.Event) {
	_ = in.opts.Telemetry.Emit(evt)
}

func (in *Installer) logf(format string, args ...any) {
	if in.opts.Verbose {
		fmt.Fprintf(in.opts.Logger, "[asp] "+format+"\n", args...)
	}
}
