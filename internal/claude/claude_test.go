package claude

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/manifest"
)

func TestBuildRunArgs_PluginDirsInOrder(t *testing.T) {
	b := &harness.Bundle{Artifacts: []string{"/b/plugins/001-base", "/b/plugins/002-frontend"}}
	args := New().BuildRunArgs(b, harness.RunOptions{})

	var dirs []string
	for i, arg := range args {
		if arg == "--plugin-dir" && i+1 < len(args) {
			dirs = append(dirs, args[i+1])
		}
	}
	if diff := cmp.Diff(b.Artifacts, dirs); diff != "" {
		t.Errorf("plugin dirs (-want +got):\n%s", diff)
	}
	if args[0] != "claude" {
		t.Errorf("args[0] = %q, want claude", args[0])
	}
}

func TestBuildRunArgs_OptionalFlags(t *testing.T) {
	tests := []struct {
		name     string
		bundle   harness.Bundle
		opts     harness.RunOptions
		wantFlag string
		present  bool
	}{
		{
			name:     "mcp present",
			bundle:   harness.Bundle{MCPConfig: "/b/mcp.json"},
			wantFlag: "--strict-mcp-config",
			present:  true,
		},
		{
			name:     "mcp absent",
			wantFlag: "--mcp-config",
			present:  false,
		},
		{
			name:     "settings present",
			bundle:   harness.Bundle{Settings: "/b/settings.json"},
			wantFlag: "--settings",
			present:  true,
		},
		{
			name:     "model present",
			opts:     harness.RunOptions{Model: "opus"},
			wantFlag: "--model",
			present:  true,
		},
		{
			name:     "model absent",
			wantFlag: "--model",
			present:  false,
		},
		{
			name:     "print mode",
			opts:     harness.RunOptions{Prompt: "hi"},
			wantFlag: "-p",
			present:  true,
		},
		{
			name:     "interactive prompt",
			opts:     harness.RunOptions{Prompt: "hi", Interactive: true},
			wantFlag: "-p",
			present:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := New().BuildRunArgs(&tt.bundle, tt.opts)
			if found := slices.Contains(args, tt.wantFlag); found != tt.present {
				t.Errorf("flag %q: found=%v, want present=%v (args: %v)", tt.wantFlag, found, tt.present, args)
			}
		})
	}
}

func TestBuildRunArgs_Tail(t *testing.T) {
	opts := harness.RunOptions{Binary: "/opt/claude", Args: []string{"--verbose"}, Prompt: "hello world"}
	args := New().BuildRunArgs(&harness.Bundle{}, opts)
	want := []string{"/opt/claude", "--verbose", "-p", "hello world"}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("args (-want +got):\n%s", diff)
	}
}

func TestRunEnv(t *testing.T) {
	env := New().RunEnv(nil, harness.RunOptions{Env: map[string]string{"FOO": "bar"}})
	want := map[string]string{"CLAUDE_CODE_DISABLE_MCP_POPUPS": "1", "FOO": "bar"}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("RunEnv (-want +got):\n%s", diff)
	}
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv([]string{"PATH=/bin", "CLAUDECODE=1"})
	want := []string{"PATH=/bin", "CLAUDE_CODE_DISABLE_MCP_POPUPS=1"}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Errorf("buildEnv (-want +got):\n%s", diff)
	}
}

func TestDefaultRunOptions(t *testing.T) {
	opts := New().DefaultRunOptions(manifest.HarnessOptions{Model: "sonnet"})
	if opts.Binary != "claude" || opts.Model != "sonnet" {
		t.Errorf("DefaultRunOptions = %+v", opts)
	}
}

func TestDetectMissingBinary(t *testing.T) {
	res := New().Detect(t.Context(), harness.RunOptions{Binary: "asp-no-such-claude-binary"})
	if res.Available {
		t.Fatal("missing binary reported available")
	}
	if res.Reason == "" {
		t.Error("missing binary has no reason")
	}
}

func TestTargetOutputPath(t *testing.T) {
	if got := New().TargetOutputPath("asp_modules", "default"); got != "asp_modules/default/claude" {
		t.Errorf("TargetOutputPath = %q", got)
	}
}
