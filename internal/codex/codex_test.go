package codex

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/ref"
)

func writeDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func input(dir, id string) harness.SpaceInput {
	return harness.SpaceInput{
		Key:      ref.NewKey(id, "0123456789abcdef"),
		Dir:      dir,
		Identity: manifest.Identity{Name: id, Version: "1.0.0"},
	}
}

func TestBuildRunArgs(t *testing.T) {
	tests := []struct {
		name string
		opts harness.RunOptions
		want []string
	}{
		{name: "bare", want: []string{"codex"}},
		{
			name: "exec with model",
			opts: harness.RunOptions{Model: "o4", Args: []string{"--full-auto"}, Prompt: "fix it"},
			want: []string{"codex", "exec", "-m", "o4", "--full-auto", "fix it"},
		},
		{
			name: "interactive prompt",
			opts: harness.RunOptions{Binary: "/opt/codex", Prompt: "hi", Interactive: true},
			want: []string{"/opt/codex", "hi"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := New().BuildRunArgs(&harness.Bundle{}, tt.opts)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("BuildRunArgs (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRunEnv(t *testing.T) {
	b := &harness.Bundle{Home: "/p/asp_modules/default/codex/codex.home"}
	env := New().RunEnv(b, harness.RunOptions{Env: map[string]string{"FOO": "bar"}})
	want := map[string]string{"CODEX_HOME": b.Home, "FOO": "bar"}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("RunEnv (-want +got):\n%s", diff)
	}
}

func TestMaterializeSpace(t *testing.T) {
	t.Parallel()
	dir := writeDir(t, map[string]string{
		"AGENTS.md":         "Use tabs.\n",
		"commands/build.md": "# build",
		"agents/helper.md":  "helper",
		"hooks/hooks.toml":  "[[hook]]\nevent = \"stop\"\nscript = \"hooks/done.sh\"\n\n[[hook]]\nevent = \"pre_tool_use\"\nscript = \"hooks/pre.sh\"\n",
		"hooks/done.sh":     "#!/bin/sh\n",
		"hooks/pre.sh":      "#!/bin/sh\n",
		"permissions.toml":  "allow = [\"Read\"]\n",
	})
	out := t.TempDir()

	warnings, err := New().MaterializeSpace(context.Background(), input(dir, "frontend"), out)
	if err != nil {
		t.Fatalf("MaterializeSpace: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("MaterializeSpace warnings = %q, want none (reported by ValidateSpace)", warnings)
	}
	for _, rel := range []string{"AGENTS.md", "prompts/build.md", "hooks/done.sh", notifyFile} {
		if !harness.Exists(filepath.Join(out, rel)) {
			t.Errorf("%s missing", rel)
		}
	}
	for _, rel := range []string{"hooks/pre.sh", "agents", "commands"} {
		if harness.Exists(filepath.Join(out, rel)) {
			t.Errorf("%s should not be materialized", rel)
		}
	}

	v := New().ValidateSpace(input(dir, "frontend"))
	if v.Err() != nil || len(v.Warnings) != 3 {
		t.Errorf("ValidateSpace = %v, %q, want pre_tool_use, agents and permissions", v.Err(), v.Warnings)
	}
}

func TestValidateSpace_BadPermissions(t *testing.T) {
	t.Parallel()
	dir := writeDir(t, map[string]string{"permissions.toml": "allow = [\n"})
	v := New().ValidateSpace(input(dir, "frontend"))
	if v.Err() == nil {
		t.Error("ValidateSpace accepted an unparsable permissions.toml")
	}
}

func TestComposeTarget(t *testing.T) {
	t.Parallel()
	base := writeDir(t, map[string]string{
		"AGENTS.md":           "Base rules.\n",
		"prompts/review.md":   "base review",
		"mcp.json":            `{"mcpServers": {"fs": {"command": "fs-mcp", "args": ["--ro"]}}}`,
		"settings.json":       `{"model_reasoning_effort": "high", "tui": {"x": 1}}`,
		"hooks/done.sh":       "#!/bin/sh\n",
		notifyFile:            `{"scripts": ["hooks/done.sh"]}`,
		"skills/lint/SKILL.md": "---\nname: lint\ndescription: d\n---\n",
	})
	frontend := writeDir(t, map[string]string{
		"AGENTS.md":         "Frontend rules.\n",
		"prompts/review.md": "frontend review",
		"prompts/ship.md":   "ship",
	})
	arts := []harness.Artifact{
		{Key: ref.NewKey("base", "1111111111"), Identity: manifest.Identity{Name: "base"}, Dir: base},
		{Key: ref.NewKey("frontend", "2222222222"), Identity: manifest.Identity{Name: "frontend"}, Dir: frontend},
	}
	out := filepath.Join(t.TempDir(), "asp_modules", "default", "codex")

	b, err := New().ComposeTarget(context.Background(), harness.ComposeInput{Target: "default", Artifacts: arts, OutputDir: out})
	if err != nil {
		t.Fatalf("ComposeTarget: %v", err)
	}
	if b.Home != filepath.Join(out, homeDir) {
		t.Errorf("Home = %s", b.Home)
	}

	agents, err := os.ReadFile(filepath.Join(b.Home, "AGENTS.md"))
	if err != nil {
		t.Fatal(err)
	}
	want := "<!-- space: base@1111111111 -->\nBase rules.\n\n<!-- space: frontend@2222222222 -->\nFrontend rules.\n"
	if string(agents) != want {
		t.Errorf("AGENTS.md =\n%s\nwant\n%s", agents, want)
	}

	review, _ := os.ReadFile(filepath.Join(b.Home, "prompts", "review.md"))
	if string(review) != "base review" {
		t.Errorf("prompts/review.md = %q, want first provider", review)
	}
	if !harness.Exists(filepath.Join(b.Home, "prompts", "ship.md")) || !harness.Exists(filepath.Join(b.Home, "skills", "lint", "SKILL.md")) {
		t.Error("union of prompts and skills incomplete")
	}

	data, err := os.ReadFile(filepath.Join(b.Home, "config.toml"))
	if err != nil {
		t.Fatal(err)
	}
	var cfg struct {
		Effort     string `toml:"model_reasoning_effort"`
		Notify     []string
		MCPServers map[string]struct {
			Command string
			Args    []string
		} `toml:"mcp_servers"`
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("config.toml: %v\n%s", err, data)
	}
	if cfg.Effort != "high" {
		t.Errorf("model_reasoning_effort = %q", cfg.Effort)
	}
	if fs := cfg.MCPServers["fs"]; fs.Command != "fs-mcp" || len(fs.Args) != 1 {
		t.Errorf("mcp_servers.fs = %+v", fs)
	}
	wantNotify := []string{filepath.Join(out, "spaces", "001-base", "hooks", "done.sh")}
	if diff := cmp.Diff(wantNotify, cfg.Notify); diff != "" {
		t.Errorf("notify (-want +got):\n%s", diff)
	}
	if !harness.Exists(wantNotify[0]) {
		t.Error("notify script not present in bundle")
	}

	joined := strings.Join(b.Warnings, "\n")
	for _, w := range []string{"prompts/review.md", `setting "tui"`} {
		if !strings.Contains(joined, w) {
			t.Errorf("warnings %q missing %q", b.Warnings, w)
		}
	}

	loaded, err := New().LoadTargetBundle(out)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(b, loaded); diff != "" {
		t.Errorf("LoadTargetBundle (-want +got):\n%s", diff)
	}
}
