package codex

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/ref"
)

// notifyList records the stop-hook scripts of one artifact, relative to it.
type notifyList struct {
	Scripts []string `json:"scripts"`
}

// ValidateSpace implements harness.Adapter. Codex cannot express every
// authored feature; those become warnings rather than errors, reported
// here only.
func (a *Adapter) ValidateSpace(in harness.SpaceInput) harness.Validation {
	var v harness.Validation
	if !ref.IsKebab(in.Identity.Name) {
		v.Errors = append(v.Errors, fmt.Errorf("plugin name %q must be kebab-case", in.Identity.Name))
	}
	v.Errors = append(v.Errors, harness.CheckSkills(in.Dir)...)

	hooks, err := harness.ReadHooks(in.Dir)
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
	v.Errors = append(v.Errors, harness.CheckHooks(in.Dir, hooks)...)
	perms, err := harness.ReadPermissions(in.Dir)
	if err != nil {
		v.Errors = append(v.Errors, err)
	}
	v.Warnings = append(v.Warnings, unsupported(in.Dir, hooks, perms)...)

	if _, err := harness.ReadMCP(in.Dir); err != nil {
		v.Errors = append(v.Errors, err)
	}
	if _, err := harness.ReadSettings(filepath.Join(in.Dir, harness.SettingsFile)); err != nil {
		v.Errors = append(v.Errors, err)
	}
	return v
}

// unsupported lists authored content codex ignores.
func unsupported(dir string, hooks []harness.Hook, perms harness.Permissions) []string {
	var warnings []string
	for _, h := range hooks {
		if h.Event != harness.EventStop {
			warnings = append(warnings, fmt.Sprintf("hook event %q is not supported by codex; %s skipped", h.Event, h.Script))
		}
	}
	if harness.Exists(filepath.Join(dir, "agents")) {
		warnings = append(warnings, "agents/ is not supported by codex; skipped")
	}
	if !perms.Empty() {
		warnings = append(warnings, "permissions.toml is not supported by codex; skipped")
	}
	return warnings
}

// MaterializeSpace implements harness.Adapter. Commands become prompts,
// stop hooks become notify scripts, and AGENTS.md, skills, settings and
// MCP servers are carried over.
func (a *Adapter) MaterializeSpace(ctx context.Context, in harness.SpaceInput, outDir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := harness.CopyIfExists(in.Dir, outDir, harness.InstructionFile); err != nil {
		return nil, err
	}
	if err := harness.CopyIfExists(in.Dir, outDir, harness.SkillsDir); err != nil {
		return nil, err
	}
	if commands := filepath.Join(in.Dir, "commands"); harness.Exists(commands) {
		if err := harness.CopyTree(commands, filepath.Join(outDir, promptsDir)); err != nil {
			return nil, fmt.Errorf("copying prompts: %w", err)
		}
	}

	hooks, err := harness.ReadHooks(in.Dir)
	if err != nil {
		return nil, err
	}
	var notify notifyList
	for _, h := range hooks {
		if h.Event != harness.EventStop {
			continue
		}
		if err := harness.CopyIfExists(in.Dir, outDir, h.Script); err != nil {
			return nil, err
		}
		notify.Scripts = append(notify.Scripts, filepath.ToSlash(filepath.Clean(h.Script)))
	}
	if len(notify.Scripts) > 0 {
		if err := harness.WriteJSON(filepath.Join(outDir, notifyFile), notify); err != nil {
			return nil, err
		}
	}

	settings, err := harness.ReadSettings(filepath.Join(in.Dir, harness.SettingsFile))
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := harness.WriteJSON(filepath.Join(outDir, harness.SettingsFile), settings); err != nil {
			return nil, err
		}
	}

	servers, err := harness.ReadMCP(in.Dir)
	if err != nil {
		return nil, err
	}
	if _, err := harness.WriteMCP(filepath.Join(outDir, "mcp.json"), servers); err != nil {
		return nil, err
	}
	return nil, nil
}
