// Package claude is the harness adapter for the Claude CLI. Each Space
// becomes a Claude plugin directory; a target becomes an ordered set of
// plugin dirs plus merged MCP and settings files.
package claude

import (
	"context"
	"maps"
	"os"
	"path/filepath"
	"strings"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/manifest"
)

// materializerVersion changes whenever plugin output changes shape.
const materializerVersion = "1"

const defaultBinary = "claude"

// Adapter implements harness.Adapter for Claude.
type Adapter struct{}

// New returns the Claude adapter.
func New() *Adapter { return &Adapter{} }

// ID implements harness.Adapter.
func (a *Adapter) ID() harness.ID { return harness.Claude }

// MaterializerVersion implements harness.Adapter.
func (a *Adapter) MaterializerVersion() string { return materializerVersion }

// buildEnv constructs the environment for the claude --version check.
// It strips the CLAUDECODE variable (to allow nested invocation) and adds
// CLAUDE_CODE_DISABLE_MCP_POPUPS=1.
func buildEnv(base []string) []string {
	env := make([]string, 0, len(base)+1)
	for _, e := range base {
		if !strings.HasPrefix(e, "CLAUDECODE=") {
			env = append(env, e)
		}
	}
	env = append(env, "CLAUDE_CODE_DISABLE_MCP_POPUPS=1")
	return env
}

// Detect implements harness.Adapter.
func (a *Adapter) Detect(ctx context.Context, opts harness.RunOptions) harness.DetectResult {
	binary := opts.Binary
	if binary == "" {
		binary = defaultBinary
	}
	path, version, err := harness.LocateBinary(ctx, binary, buildEnv(os.Environ()))
	if err != nil {
		return harness.DetectResult{Path: path, Reason: err.Error()}
	}
	return harness.DetectResult{
		Available:    true,
		Path:         path,
		Version:      version,
		Capabilities: []string{"plugins", "hooks", "mcp", "settings", "permissions"},
	}
}

// DefaultRunOptions implements harness.Adapter.
func (a *Adapter) DefaultRunOptions(opts manifest.HarnessOptions) harness.RunOptions {
	return harness.FromProject(opts, defaultBinary)
}

// BuildRunArgs implements harness.Adapter. Plugin dirs are passed in load
// order; the prompt comes last.
func (a *Adapter) BuildRunArgs(b *harness.Bundle, opts harness.RunOptions) []string {
	binary := opts.Binary
	if binary == "" {
		binary = defaultBinary
	}
	args := []string{binary}

	for _, dir := range b.Artifacts {
		args = append(args, "--plugin-dir", dir)
	}

	if b.MCPConfig != "" {
		args = append(args, "--mcp-config", b.MCPConfig, "--strict-mcp-config")
	}

	if b.Settings != "" {
		args = append(args, "--settings", b.Settings)
	}

	if opts.Model != "" {
		args = append(args, "--model", opts.Model)
	}

	args = append(args, opts.Args...)

	if opts.Prompt != "" {
		if !opts.Interactive {
			args = append(args, "-p")
		}
		args = append(args, opts.Prompt)
	}
	return args
}

// RunEnv implements harness.Adapter.
func (a *Adapter) RunEnv(_ *harness.Bundle, opts harness.RunOptions) map[string]string {
	env := map[string]string{"CLAUDE_CODE_DISABLE_MCP_POPUPS": "1"}
	maps.Copy(env, opts.Env)
	return env
}

// LoadTargetBundle implements harness.Adapter.
func (a *Adapter) LoadTargetBundle(dir string) (*harness.Bundle, error) {
	return harness.ReadBundle(dir, harness.Claude)
}

// TargetOutputPath implements harness.Adapter.
func (a *Adapter) TargetOutputPath(modulesDir, target string) string {
	return filepath.Join(modulesDir, target, string(harness.Claude))
}
