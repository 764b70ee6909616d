package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
)

// Authored file locations inside a Space.
const (
	HooksFile       = "hooks/hooks.toml"
	PermissionsFile = "permissions.toml"
	MCPFile         = "mcp/mcp.json"
	SettingsFile    = "settings.json"
	InstructionFile = "AGENTS.md"
)

// Permissions are the harness-agnostic tool permission lists.
type Permissions struct {
	Allow []string `toml:"allow" json:"allow,omitempty"`
	Deny  []string `toml:"deny" json:"deny,omitempty"`
	Ask   []string `toml:"ask" json:"ask,omitempty"`
}

// Empty reports whether no list has entries.
func (p Permissions) Empty() bool {
	return len(p.Allow) == 0 && len(p.Deny) == 0 && len(p.Ask) == 0
}

// ReadPermissions loads permissions.toml from a Space. A missing file
// yields empty permissions.
func ReadPermissions(dir string) (Permissions, error) {
	var p Permissions
	data, err := os.ReadFile(filepath.Join(dir, PermissionsFile))
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, err
	}
	if err := toml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parsing %s: %w", PermissionsFile, err)
	}
	return p, nil
}

// ReadJSONC decodes a JSON-with-comments file into v. It reports false
// when the file does not exist.
func ReadJSONC(path string, v any) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(jsonc.ToJSON(data), v); err != nil {
		return true, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return true, nil
}

// ReadSettings loads the settings document of a Space or artifact. A
// missing file yields nil.
func ReadSettings(path string) (map[string]any, error) {
	var doc map[string]any
	if _, err := ReadJSONC(path, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// MergeSettings shallow-merges documents in order: later keys win, except
// the "permissions" object whose allow, deny and ask lists are unioned.
func MergeSettings(docs ...map[string]any) map[string]any {
	out := make(map[string]any)
	var perms Permissions
	havePerms := false
	for _, doc := range docs {
		for k, v := range doc {
			if k == "permissions" {
				if p, ok := permissionsFrom(v); ok {
					perms = unionPermissions(perms, p)
					havePerms = true
					continue
				}
			}
			out[k] = v
		}
	}
	if havePerms {
		out["permissions"] = permissionsDoc(perms)
	}
	return out
}

// WithPermissions returns a copy of settings with p merged into its
// "permissions" object.
func WithPermissions(settings map[string]any, p Permissions) map[string]any {
	if p.Empty() {
		return settings
	}
	return MergeSettings(settings, map[string]any{"permissions": permissionsDoc(p)})
}

func permissionsDoc(p Permissions) map[string]any {
	doc := make(map[string]any)
	for k, list := range map[string][]string{"allow": p.Allow, "deny": p.Deny, "ask": p.Ask} {
		if len(list) > 0 {
			doc[k] = list
		}
	}
	return doc
}

func permissionsFrom(v any) (Permissions, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return Permissions{}, false
	}
	list := func(key string) []string {
		var out []string
		switch items := m[key].(type) {
		case []string:
			out = items
		case []any:
			for _, it := range items {
				if s, ok := it.(string); ok {
					out = append(out, s)
				}
			}
		}
		return out
	}
	return Permissions{Allow: list("allow"), Deny: list("deny"), Ask: list("ask")}, true
}

func unionPermissions(a, b Permissions) Permissions {
	union := func(x, y []string) []string {
		out := slices.Clone(x)
		for _, s := range y {
			if !slices.Contains(out, s) {
				out = append(out, s)
			}
		}
		return out
	}
	return Permissions{
		Allow: union(a.Allow, b.Allow),
		Deny:  union(a.Deny, b.Deny),
		Ask:   union(a.Ask, b.Ask),
	}
}
