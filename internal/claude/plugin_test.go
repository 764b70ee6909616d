package claude

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/manifest"
	"github.com/papapumpkin/asp/internal/ref"
)

func writeSpace(t *testing.T, files map[string]string) string {
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

func spaceInput(dir, name string) harness.SpaceInput {
	return harness.SpaceInput{
		Key:      ref.NewKey(name, "abcdef0123456789"),
		Dir:      dir,
		Identity: manifest.Identity{Name: name, Version: "1.0.0", Description: "d", Author: "team"},
	}
}

func readJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("%s: %v", path, err)
	}
}

func TestMaterializeSpace(t *testing.T) {
	t.Parallel()
	dir := writeSpace(t, map[string]string{
		"space.toml":            "schema = 1\n",
		"commands/build.md":     "# build",
		"skills/lint/SKILL.md":  "---\nname: lint\ndescription: d\n---\n",
		"hooks/hooks.toml":      "[[hook]]\nevent = \"pre_tool_use\"\nmatcher = \"Bash\"\nscript = \"hooks/check.sh\"\ntimeout = 5\n\n[[hook]]\nevent = \"stop\"\nscript = \"hooks/done.sh\"\n",
		"hooks/check.sh":        "#!/bin/sh\n",
		"hooks/done.sh":         "#!/bin/sh\n",
		"permissions.toml":      "allow = [\"Read\"]\n",
		"settings.json":         "{\"theme\": \"dark\"}",
		"mcp/mcp.json":          "{\"mcpServers\": {\"fs\": {\"command\": \"fs-mcp\"}}}",
	})
	out := t.TempDir()

	warnings, err := New().MaterializeSpace(context.Background(), spaceInput(dir, "frontend"), out)
	if err != nil {
		t.Fatalf("MaterializeSpace: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("warnings = %v", warnings)
	}

	var pm pluginManifest
	readJSON(t, filepath.Join(out, ".claude-plugin", "plugin.json"), &pm)
	want := pluginManifest{Name: "frontend", Version: "1.0.0", Description: "d", Author: &pluginAuthor{Name: "team"}}
	if diff := cmp.Diff(want, pm); diff != "" {
		t.Errorf("plugin.json (-want +got):\n%s", diff)
	}

	var hooks hooksDocument
	readJSON(t, filepath.Join(out, "hooks", "hooks.json"), &hooks)
	wantHooks := hooksDocument{Hooks: map[string][]hookGroup{
		"PreToolUse": {{Matcher: "Bash", Hooks: []hookCommand{{Type: "command", Command: "${CLAUDE_PLUGIN_ROOT}/hooks/check.sh", Timeout: 5}}}},
		"Stop":       {{Hooks: []hookCommand{{Type: "command", Command: "${CLAUDE_PLUGIN_ROOT}/hooks/done.sh"}}}},
	}}
	if diff := cmp.Diff(wantHooks, hooks); diff != "" {
		t.Errorf("hooks.json (-want +got):\n%s", diff)
	}

	var settings map[string]any
	readJSON(t, filepath.Join(out, "settings.json"), &settings)
	wantSettings := map[string]any{"theme": "dark", "permissions": map[string]any{"allow": []any{"Read"}}}
	if diff := cmp.Diff(wantSettings, settings); diff != "" {
		t.Errorf("settings.json (-want +got):\n%s", diff)
	}

	for _, rel := range []string{"commands/build.md", "skills/lint/SKILL.md", "hooks/check.sh", "hooks/done.sh", "mcp.json"} {
		if !harness.Exists(filepath.Join(out, rel)) {
			t.Errorf("%s missing from plugin", rel)
		}
	}
	if harness.Exists(filepath.Join(out, "hooks", "hooks.toml")) {
		t.Error("hooks.toml leaked into plugin")
	}
}

func TestMaterializeSpaceMinimal(t *testing.T) {
	t.Parallel()
	dir := writeSpace(t, map[string]string{"space.toml": "schema = 1\n"})
	out := t.TempDir()
	if _, err := New().MaterializeSpace(context.Background(), spaceInput(dir, "base"), out); err != nil {
		t.Fatal(err)
	}
	for _, rel := range []string{"settings.json", "mcp.json", "hooks"} {
		if harness.Exists(filepath.Join(out, rel)) {
			t.Errorf("%s written for a space without it", rel)
		}
	}
}

func TestValidateSpace(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		plugin  string
		files   map[string]string
		wantErr string
	}{
		{name: "clean", plugin: "frontend"},
		{name: "bad plugin name", plugin: "Front_End", wantErr: "kebab-case"},
		{
			name:    "skill without description",
			plugin:  "frontend",
			files:   map[string]string{"skills/x/SKILL.md": "---\nname: x\n---\n"},
			wantErr: "no description",
		},
		{
			name:    "unknown hook event",
			plugin:  "frontend",
			files:   map[string]string{"hooks/hooks.toml": "[[hook]]\nevent = \"boot\"\nscript = \"hooks/a.sh\"\n", "hooks/a.sh": ""},
			wantErr: "unknown event",
		},
		{
			name:    "broken mcp",
			plugin:  "frontend",
			files:   map[string]string{"mcp/mcp.json": "{"},
			wantErr: "mcp.json",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			files := map[string]string{"space.toml": "schema = 1\n"}
			for k, v := range tt.files {
				files[k] = v
			}
			v := New().ValidateSpace(spaceInput(writeSpace(t, files), tt.plugin))
			err := v.Err()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Err() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Err() = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
