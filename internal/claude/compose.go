package claude

import (
	"context"
	"os"
	"path/filepath"

	"github.com/papapumpkin/asp/internal/harness"
)

// ComposeTarget implements harness.Adapter. Plugins land under
// plugins/NNN-<id>/ in load order next to the merged mcp.json and
// settings.json.
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

	plugins, err := harness.Assemble(staged, "plugins", in.Artifacts)
	if err != nil {
		return nil, err
	}
	b := &harness.Bundle{
		Harness:   harness.Claude,
		Target:    in.Target,
		Root:      staged,
		Spaces:    harness.SpaceKeys(in.Artifacts),
		Artifacts: plugins,
	}

	servers, warnings, err := harness.MergeArtifactMCP(in.Artifacts)
	if err != nil {
		return nil, err
	}
	b.Warnings = warnings
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

	if err := harness.WriteBundle(staged, b); err != nil {
		return nil, err
	}
	if err := harness.ReplaceDir(staged, in.OutputDir); err != nil {
		return nil, err
	}
	return a.LoadTargetBundle(in.OutputDir)
}
