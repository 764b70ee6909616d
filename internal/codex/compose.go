package codex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/asp/internal/harness"
)

// ComposeTarget implements harness.Adapter. Artifacts are kept under
// spaces/NNN-<id>/ and folded into codex.home/ in load order.
func (a *Adapter) ComposeTarget(ctx context.Context, in harness.ComposeInput) (_ *harness.Bundle, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	staged, err := harness.StageDir(in.OutputDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			os.RemoveAll(staged)
		}
	}()

	spaces, err := harness.Assemble(staged, "spaces", in.Artifacts)
	if err != nil {
		return nil, err
	}
	home := filepath.Join(staged, homeDir)
	if err := os.MkdirAll(home, 0o755); err != nil {
		return nil, err
	}
	b := &harness.Bundle{
		Harness:   harness.Codex,
		Target:    in.Target,
		Root:      staged,
		Spaces:    harness.SpaceKeys(in.Artifacts),
		Artifacts: spaces,
		Home:      home,
	}

	if err := writeInstructions(home, in.Artifacts); err != nil {
		return nil, err
	}
	for _, sub := range []string{promptsDir, harness.SkillsDir} {
		w, err := unionDir(home, sub, in.Artifacts)
		if err != nil {
			return nil, err
		}
		b.Warnings = append(b.Warnings, w...)
	}

	servers, w, err := harness.MergeArtifactMCP(in.Artifacts)
	if err != nil {
		return nil, err
	}
	b.Warnings = append(b.Warnings, w...)
	mcpPath := filepath.Join(staged, "mcp.json")
	wrote, err := harness.WriteMCP(mcpPath, servers)
	if err != nil {
		return nil, err
	}
	if wrote {
		b.MCPConfig = mcpPath
	}

	settings, err := harness.MergeArtifactSettings(in.Artifacts, in.Options.Settings)
	if err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		b.Settings = filepath.Join(staged, harness.SettingsFile)
		if err := harness.WriteJSON(b.Settings, settings); err != nil {
			return nil, err
		}
	}

	notify, err := notifyScripts(in.OutputDir, in.Artifacts)
	if err != nil {
		return nil, err
	}
	cfg, w, err := configTOML(settings, servers, notify)
	if err != nil {
		return nil, err
	}
	b.Warnings = append(b.Warnings, w...)
	if err := os.WriteFile(filepath.Join(home, "config.toml"), cfg, 0o644); err != nil {
		return nil, err
	}

	if err := harness.WriteBundle(staged, b); err != nil {
		return nil, err
	}
	if err := harness.ReplaceDir(staged, in.OutputDir); err != nil {
		return nil, err
	}
	return a.LoadTargetBundle(in.OutputDir)
}

// writeInstructions concatenates each artifact's AGENTS.md in load order,
// one marked section per Space.
func writeInstructions(home string, artifacts []harness.Artifact) error {
	var buf bytes.Buffer
	for _, art := range artifacts {
		data, err := os.ReadFile(filepath.Join(art.Dir, harness.InstructionFile))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}
		if buf.Len() > 0 {
			buf.WriteString("\n")
		}
		fmt.Fprintf(&buf, "<!-- space: %s -->\n", art.Key)
		buf.Write(bytes.TrimRight(data, "\n"))
		buf.WriteString("\n")
	}
	if buf.Len() == 0 {
		return nil
	}
	return os.WriteFile(filepath.Join(home, harness.InstructionFile), buf.Bytes(), 0o644)
}

// unionDir copies the entries of each artifact's sub directory into
// home/sub. The first artifact to provide a name keeps it.
func unionDir(home, sub string, artifacts []harness.Artifact) ([]string, error) {
	var warnings []string
	owner := make(map[string]string)
	for _, art := range artifacts {
		entries, err := os.ReadDir(filepath.Join(art.Dir, sub))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if prev, ok := owner[e.Name()]; ok {
				warnings = append(warnings, fmt.Sprintf("%s/%s from %s ignored; already provided by %s", sub, e.Name(), art.Key, prev))
				continue
			}
			owner[e.Name()] = art.Key.String()
			if err := harness.CopyIfExists(art.Dir, home, filepath.Join(sub, e.Name())); err != nil {
				return nil, err
			}
		}
	}
	return warnings, nil
}

// notifyScripts returns the absolute paths, under the final output dir, of
// every stop-hook script in load order.
func notifyScripts(outputDir string, artifacts []harness.Artifact) ([]string, error) {
	var scripts []string
	for i, art := range artifacts {
		var list notifyList
		if _, err := harness.ReadJSONC(filepath.Join(art.Dir, notifyFile), &list); err != nil {
			return nil, err
		}
		for _, s := range list.Scripts {
			scripts = append(scripts, filepath.Join(outputDir, "spaces", harness.ArtifactDirName(i, art), filepath.FromSlash(s)))
		}
	}
	return scripts, nil
}

// configTOML renders config.toml: scalar settings at top level,
// [mcp_servers.<name>] tables, and notify. Codex runs one notify command,
// so only the first stop hook is wired.
func configTOML(settings map[string]any, servers map[string]json.RawMessage, notify []string) ([]byte, []string, error) {
	var warnings []string
	doc := make(map[string]any)
	for _, k := range slices.Sorted(maps.Keys(settings)) {
		switch v := settings[k].(type) {
		case string, bool, float64, int, int64:
			doc[k] = v
		default:
			warnings = append(warnings, fmt.Sprintf("setting %q is not a scalar; not written to config.toml", k))
		}
	}

	if len(servers) > 0 {
		tables := make(map[string]any, len(servers))
		for name, raw := range servers {
			var server map[string]any
			if err := json.Unmarshal(raw, &server); err != nil {
				return nil, nil, fmt.Errorf("mcp server %q: %w", name, err)
			}
			tables[name] = server
		}
		doc["mcp_servers"] = tables
	}

	if len(notify) > 0 {
		doc["notify"] = []string{notify[0]}
		for _, extra := range notify[1:] {
			warnings = append(warnings, fmt.Sprintf("codex runs a single notify hook; %s skipped", extra))
		}
	}

	out, err := toml.Marshal(doc)
	if err != nil {
		return nil, nil, fmt.Errorf("encoding config.toml: %w", err)
	}
	return out, warnings, nil
}
