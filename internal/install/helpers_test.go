package install

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/registry"
	"github.com/papapumpkin/asp/internal/store"
)

// stubAdapter materializes a marker file per Space and derives run
// arguments from the bundle root.
type stubAdapter struct {
	id harness.ID
}

func (s stubAdapter) ID() harness.ID { return s.id }
func (s stubAdapter) MaterializerVersion() string { return "1" }

func (s stubAdapter) Detect(context.Context, harness.RunOptions) harness.DetectResult {
	return harness.DetectResult{Available: true, Version: "test"}
}

func (s stubAdapter) ValidateSpace(in harness.SpaceInput) harness.Validation {
	if in.Identity.Description == "" {
		return harness.Validation{Warnings: []string{"no description"}}
	}
	return harness.Validation{}
}

func (s stubAdapter) MaterializeSpace(_ context.Context, in harness.SpaceInput, out string) ([]string, error) {
	return nil, os.WriteFile(filepath.Join(out, "marker"), []byte(in.Key), 0o644)
}

func (s stubAdapter) ComposeTarget(_ context.Context, in harness.ComposeInput) (*harness.Bundle, error) {
	staged, err := harness.StageDir(in.OutputDir)
	if err != nil {
		return nil, err
	}
	dirs, err := harness.Assemble(staged, "spaces", in.Artifacts)
	if err != nil {
		return nil, err
	}
	b := &harness.Bundle{Harness: s.id, Target: in.Target, Root: staged, Spaces: harness.SpaceKeys(in.Artifacts), Artifacts: dirs}
	if err := harness.WriteBundle(staged, b); err != nil {
		return nil, err
	}
	if err := harness.ReplaceDir(staged, in.OutputDir); err != nil {
		return nil, err
	}
	return harness.ReadBundle(in.OutputDir, s.id)
}

func (s stubAdapter) BuildRunArgs(b *harness.Bundle, opts harness.RunOptions) []string {
	argv := []string{opts.Binary, "--root", b.Root}
	if opts.Model != "" {
		argv = append(argv, "--model", opts.Model)
	}
	if opts.Prompt != "" {
		argv = append(argv, opts.Prompt)
	}
	return argv
}

func (s stubAdapter) RunEnv(b *harness.Bundle, opts harness.RunOptions) map[string]string {
	env := map[string]string{"STUB_TARGET": b.Target}
	for k, v := range opts.Env {
		env[k] = v
	}
	return env
}

func (s stubAdapter) DefaultRunOptions(o manifest.HarnessOptions) harness.RunOptions {
	return harness.FromProject(o, string(s.id))
}

func (s stubAdapter) LoadTargetBundle(dir string) (*harness.Bundle, error) {
	return harness.ReadBundle(dir, s.id)
}

func (s stubAdapter) TargetOutputPath(modulesDir, target string) string {
	return filepath.Join(modulesDir, target, string(s.id))
}

const projectTOML = `schema = 1

[harness.alpha]
model = "large"

[targets.default]
compose = ["space:frontend@^1.0.0"]

[targets.minimal]
compose = ["space:base@stable"]

[targets.minimal.harness.alpha]
model = "small"
env = { STUB_MODE = "minimal" }
`

type fixture struct {
	dir   string
	reg   *registry.Memory
	store *store.Store
	hr    *harness.Registry
}

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

// newFixture publishes base 1.0.0 (stable) and frontend 1.0.0 depending on
// base, and writes projectTOML.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.NewMemory()
	reg.PublishSpace("base", "1.0.0", nil, nil)
	reg.SetDistTag("base", "stable", "1.0.0")
	reg.PublishSpace("frontend", "1.0.0", []string{"space:base@stable"}, nil)

	st, err := store.Open(context.Background(), t.TempDir(), reg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	hr := harness.NewRegistry()
	for _, id := range []harness.ID{"alpha", "beta"} {
		if err := hr.Register(stubAdapter{id: id}); err != nil {
			t.Fatal(err)
		}
	}
	fx := &fixture{dir: t.TempDir(), reg: reg, store: st, hr: hr}
	fx.writeProject(t, projectTOML)
	return fx
}

func (fx *fixture) writeProject(t *testing.T, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(fx.dir, manifest.ProjectFileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func (fx *fixture) installer(opts ...func(*Options)) *Installer {
	o := Options{
		ProjectDir:  fx.dir,
		Registry:    fx.reg,
		Store:       fx.store,
		Harnesses:   fx.hr,
		Concurrency: 2,
		LockTimeout: 10 * time.Second,
		Logger:      &strings.Builder{},
		Now:         func() time.Time { return fixedNow },
	}
	for _, fn := range opts {
		fn(&o)
	}
	return New(o)
}

func (fx *fixture) lockBytes(t *testing.T) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(fx.dir, "asp-lock.json"))
	if err != nil {
		t.Fatal(err)
	}
	return data
}
