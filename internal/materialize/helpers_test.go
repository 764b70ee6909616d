package materialize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/registry"
	"github.com/papapumpkin/asp/internal/resolve"
	"github.com/papapumpkin/asp/internal/store"
)

var errBuild = errors.New("build failed")

// fakeAdapter writes one marker file per Space and composes by copying.
type fakeAdapter struct {
	id      harness.ID
	version string
	missing bool
	failFor string
	onBuild func(in harness.SpaceInput)
	mu      sync.Mutex
	builds  map[ref.SpaceKey]int
}

func newFake(id harness.ID) *fakeAdapter {
	return &fakeAdapter{id: id, version: "1", builds: make(map[ref.SpaceKey]int)}
}

func (f *fakeAdapter) ID() harness.ID { return f.id }
func (f *fakeAdapter) MaterializerVersion() string { return f.version }

func (f *fakeAdapter) Detect(context.Context, harness.RunOptions) harness.DetectResult {
	if f.missing {
		return harness.DetectResult{Reason: "not on PATH"}
	}
	return harness.DetectResult{Available: true, Version: "test"}
}

func (f *fakeAdapter) ValidateSpace(harness.SpaceInput) harness.Validation {
	return harness.Validation{Warnings: []string{"checked"}}
}

func (f *fakeAdapter) MaterializeSpace(ctx context.Context, in harness.SpaceInput, out string) ([]string, error) {
	if f.onBuild != nil {
		f.onBuild(in)
	}
	f.mu.Lock()
	f.builds[in.Key]++
	f.mu.Unlock()
	if err := os.WriteFile(filepath.Join(out, "marker"), []byte(in.Key), 0o644); err != nil {
		return nil, err
	}
	if in.Identity.Name == f.failFor {
		return nil, errBuild
	}
	return nil, nil
}

func (f *fakeAdapter) ComposeTarget(_ context.Context, in harness.ComposeInput) (*harness.Bundle, error) {
	staged, err := harness.StageDir(in.OutputDir)
	if err != nil {
		return nil, err
	}
	dirs, err := harness.Assemble(staged, "spaces", in.Artifacts)
	if err != nil {
		return nil, err
	}
	b := &harness.Bundle{Harness: f.id, Target: in.Target, Root: staged, Spaces: harness.SpaceKeys(in.Artifacts), Artifacts: dirs}
	if err := harness.WriteBundle(staged, b); err != nil {
		return nil, err
	}
	if err := harness.ReplaceDir(staged, in.OutputDir); err != nil {
		return nil, err
	}
	return harness.ReadBundle(in.OutputDir, f.id)
}

func (f *fakeAdapter) BuildRunArgs(*harness.Bundle, harness.RunOptions) []string { return nil }

func (f *fakeAdapter) RunEnv(*harness.Bundle, harness.RunOptions) map[string]string { return nil }

func (f *fakeAdapter) DefaultRunOptions(manifest.HarnessOptions) harness.RunOptions {
	return harness.RunOptions{}
}

func (f *fakeAdapter) LoadTargetBundle(dir string) (*harness.Bundle, error) {
	return harness.ReadBundle(dir, f.id)
}

func (f *fakeAdapter) TargetOutputPath(modulesDir, target string) string {
	return filepath.Join(modulesDir, target, string(f.id))
}

func (f *fakeAdapter) buildCount(key ref.SpaceKey) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.builds[key]
}

type fixture struct {
	reg     *registry.Memory
	work    string
	store   *store.Store
	lock    *lockfile.LockFile
	modules string
}

// newFixture publishes base and frontend (depending on base) and locks
// target "default" = [base@stable, frontend@^1.0.0] unless compose is
// given. A working-tree Space "local" is available as space:local@dev.
func newFixture(t *testing.T, compose ...string) *fixture {
	t.Helper()
	ctx := context.Background()
	reg := registry.NewMemory()
	reg.PublishSpace("base", "1.0.0", nil, map[string]string{"AGENTS.md": "base"})
	reg.SetDistTag("base", "stable", "1.0.0")
	reg.PublishSpace("frontend", "1.0.0", []string{"space:base@stable"}, map[string]string{"AGENTS.md": "frontend"})

	work := t.TempDir()
	local := filepath.Join(work, registry.SpacesDir, "local")
	if err := os.MkdirAll(local, 0o755); err != nil {
		t.Fatal(err)
	}
	toml := registry.SpaceTOML("local", "0.1.0", []string{"space:base@stable"})
	if err := os.WriteFile(filepath.Join(local, "space.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	reg.SetWorkingRoot(work)

	st, err := store.Open(ctx, t.TempDir(), reg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	if len(compose) == 0 {
		compose = []string{"space:base@stable", "space:frontend@^1.0.0"}
	}
	roots, err := ref.ParseAll(compose)
	if err != nil {
		t.Fatal(err)
	}
	c, err := resolve.New(reg).Resolve(ctx, roots, resolve.Options{})
	if err != nil {
		t.Fatal(err)
	}
	target, spaces, err := resolve.Lock(ctx, reg, compose, c, st)
	if err != nil {
		t.Fatal(err)
	}
	lf := lockfile.New(lockfile.Registry{Type: "memory"})
	if err := lf.MergeTarget("default", target, spaces); err != nil {
		t.Fatal(err)
	}
	return &fixture{reg: reg, work: work, store: st, lock: lf, modules: filepath.Join(t.TempDir(), "asp_modules")}
}

func (fx *fixture) pipeline(t *testing.T, adapters ...harness.Adapter) *Pipeline {
	t.Helper()
	hr := harness.NewRegistry()
	for _, a := range adapters {
		if err := hr.Register(a); err != nil {
			t.Fatal(err)
		}
	}
	return New(Options{
		Store:       fx.store,
		Registry:    fx.reg,
		Harnesses:   hr,
		ModulesDir:  fx.modules,
		Concurrency: 1,
	})
}

func (fx *fixture) key(t *testing.T, id string) ref.SpaceKey {
	t.Helper()
	target, err := fx.lock.Target("default")
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range target.LoadOrder {
		if k.ID() == id {
			return k
		}
	}
	t.Fatalf("no %s in load order", id)
	return ""
}
