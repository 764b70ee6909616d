// Package codex is the harness adapter for the Codex CLI. A target becomes
// a CODEX_HOME directory holding concatenated AGENTS.md instructions,
// prompts, skills, and a config.toml with MCP servers and notify hooks.
package codex

import (
	"context"
	"maps"
	"path/filepath"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/manifest"
)

// materializerVersion changes whenever artifact output changes shape.
const materializerVersion = "1"

const (
	defaultBinary = "codex"
	homeDir       = "codex.home"
	promptsDir    = "prompts"
	notifyFile    = "notify.json"
)

// Adapter implements harness.Adapter for Codex.
type Adapter struct{}

// New returns the Codex adapter.
func New() *Adapter { return &Adapter{} }

// ID implements harness.Adapter.
func (a *Adapter) ID() harness.ID { return harness.Codex }

// MaterializerVersion implements harness.Adapter.
func (a *Adapter) MaterializerVersion() string { return materializerVersion }

// Detect implements harness.Adapter.
func (a *Adapter) Detect(ctx context.Context, opts harness.RunOptions) harness.DetectResult {
	binary := opts.Binary
	if binary == "" {
		binary = defaultBinary
	}
	path, version, err := harness.LocateBinary(ctx, binary, nil)
	if err != nil {
		return harness.DetectResult{Path: path, Reason: err.Error()}
	}
	return harness.DetectResult{
		Available:    true,
		Path:         path,
		Version:      version,
		Capabilities: []string{"instructions", "prompts", "skills", "mcp", "notify"},
	}
}

// DefaultRunOptions implements harness.Adapter.
func (a *Adapter) DefaultRunOptions(opts manifest.HarnessOptions) harness.RunOptions {
	return harness.FromProject(opts, defaultBinary)
}

// BuildRunArgs implements harness.Adapter. A non-interactive prompt runs
// through "codex exec".
func (a *Adapter) BuildRunArgs(_ *harness.Bundle, opts harness.RunOptions) []string {
	binary := opts.Binary
	if binary == "" {
		binary = defaultBinary
	}
	args := []string{binary}
	if opts.Prompt != "" && !opts.Interactive {
		args = append(args, "exec")
	}
	if opts.Model != "" {
		args = append(args, "-m", opts.Model)
	}
	args = append(args, opts.Args...)
	if opts.Prompt != "" {
		args = append(args, opts.Prompt)
	}
	return args
}

// RunEnv implements harness.Adapter. CODEX_HOME points at the composed
// home directory.
func (a *Adapter) RunEnv(b *harness.Bundle, opts harness.RunOptions) map[string]string {
	env := make(map[string]string, len(opts.Env)+1)
	maps.Copy(env, opts.Env)
	if b != nil && b.Home != "" {
		env["CODEX_HOME"] = b.Home
	}
	return env
}

// LoadTargetBundle implements harness.Adapter.
func (a *Adapter) LoadTargetBundle(dir string) (*harness.Bundle, error) {
	return harness.ReadBundle(dir, harness.Codex)
}

// TargetOutputPath implements harness.Adapter.
func (a *Adapter) TargetOutputPath(modulesDir, target string) string {
	return filepath.Join(modulesDir, target, string(harness.Codex))
}
