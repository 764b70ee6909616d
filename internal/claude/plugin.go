package claude

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/ref"
)

const pluginRoot = "${CLAUDE_PLUGIN_ROOT}"

// claudeEvent maps a hook event to its Claude hook event name.
func claudeEvent(event string) string {
	switch event {
	case harness.EventSessionStart:
		return "SessionStart"
	case harness.EventUserPromptSubmit:
		return "UserPromptSubmit"
	case harness.EventPreToolUse:
		return "PreToolUse"
	case harness.EventPostToolUse:
		return "PostToolUse"
	case harness.EventStop:
		return "Stop"
	case harness.EventNotification:
		return "Notification"
	}
	return ""
}

type pluginAuthor struct {
	Name string `json:"name"`
}

type pluginManifest struct {
	Name        string        `json:"name"`
	Version     string        `json:"version,omitempty"`
	Description string        `json:"description,omitempty"`
	Author      *pluginAuthor `json:"author,omitempty"`
}

type hookCommand struct {
	Type    string `json:"type"`
	Command string `json:"command"`
	Timeout int    `json:"timeout,omitempty"`
}

type hookGroup struct {
	Matcher string        `json:"matcher,omitempty"`
	Hooks   []hookCommand `json:"hooks"`
}

type hooksDocument struct {
	Hooks map[string][]hookGroup `json:"hooks"`
}

// ValidateSpace implements harness.Adapter.
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

	if _, err := harness.ReadMCP(in.Dir); err != nil {
		v.Errors = append(v.Errors, err)
	}
	if _, err := harness.ReadSettings(filepath.Join(in.Dir, harness.SettingsFile)); err != nil {
		v.Errors = append(v.Errors, err)
	}
	if _, err := harness.ReadPermissions(in.Dir); err != nil {
		v.Errors = append(v.Errors, err)
	}
	return v
}

// MaterializeSpace implements harness.Adapter. It writes a Claude plugin:
// .claude-plugin/plugin.json, the authored command, agent and skill dirs,
// hooks/hooks.json with its scripts, settings.json and mcp.json.
func (a *Adapter) MaterializeSpace(ctx context.Context, in harness.SpaceInput, outDir string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := writePluginManifest(outDir, in); err != nil {
		return nil, err
	}
	for _, dir := range []string{"commands", "agents", harness.SkillsDir} {
		if err := harness.CopyIfExists(in.Dir, outDir, dir); err != nil {
			return nil, fmt.Errorf("copying %s: %w", dir, err)
		}
	}

	hooks, err := harness.ReadHooks(in.Dir)
	if err != nil {
		return nil, err
	}
	if len(hooks) > 0 {
		if err := harness.CopyHookScripts(in.Dir, outDir, hooks); err != nil {
			return nil, err
		}
		if err := harness.WriteJSON(filepath.Join(outDir, "hooks", "hooks.json"), translateHooks(hooks)); err != nil {
			return nil, err
		}
	}

	perms, err := harness.ReadPermissions(in.Dir)
	if err != nil {
		return nil, err
	}
	settings, err := harness.ReadSettings(filepath.Join(in.Dir, harness.SettingsFile))
	if err != nil {
		return nil, err
	}
	if merged := harness.WithPermissions(settings, perms); len(merged) > 0 {
		if err := harness.WriteJSON(filepath.Join(outDir, harness.SettingsFile), merged); err != nil {
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

func writePluginManifest(outDir string, in harness.SpaceInput) error {
	m := pluginManifest{
		Name:        in.Identity.Name,
		Version:     in.Identity.Version,
		Description: in.Identity.Description,
	}
	if in.Identity.Author != "" {
		m.Author = &pluginAuthor{Name: in.Identity.Author}
	}
	if err := os.MkdirAll(filepath.Join(outDir, ".claude-plugin"), 0o755); err != nil {
		return err
	}
	return harness.WriteJSON(filepath.Join(outDir, ".claude-plugin", "plugin.json"), m)
}

// translateHooks groups hooks by Claude event, then by matcher in
// declaration order.
func translateHooks(hooks []harness.Hook) hooksDocument {
	doc := hooksDocument{Hooks: make(map[string][]hookGroup)}
	for _, h := range hooks {
		event := claudeEvent(h.Event)
		cmd := hookCommand{
			Type:    "command",
			Command: pluginRoot + "/" + filepath.ToSlash(filepath.Clean(h.Script)),
			Timeout: h.Timeout,
		}
		groups := doc.Hooks[event]
		idx := -1
		for i, g := range groups {
			if g.Matcher == h.Matcher {
				idx = i
				break
			}
		}
		if idx < 0 {
			groups = append(groups, hookGroup{Matcher: h.Matcher})
			idx = len(groups) - 1
		}
		groups[idx].Hooks = append(groups[idx].Hooks, cmd)
		doc.Hooks[event] = groups
	}
	return doc
}
