package harness

import (
	"encoding/json"
	"fmt"
	"path/filepath"
)

// ArtifactDirName returns the load-order prefixed directory name for the
// i-th artifact, e.g. "003-frontend".
func ArtifactDirName(i int, a Artifact) string {
	return fmt.Sprintf("%03d-%s", i+1, a.Key.ID())
}

// Assemble copies artifacts, in order, into numbered directories under
// root/sub and returns their paths.
func Assemble(root, sub string, artifacts []Artifact) ([]string, error) {
	paths := make([]string, 0, len(artifacts))
	for i, a := range artifacts {
		dst := filepath.Join(root, sub, ArtifactDirName(i, a))
		if err := CopyTree(a.Dir, dst); err != nil {
			return nil, fmt.Errorf("assembling %s: %w", a.Key, err)
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// MergeArtifactMCP merges the normalized mcp.json of each artifact in
// load order.
func MergeArtifactMCP(artifacts []Artifact) (map[string]json.RawMessage, []string, error) {
	sources := make([]MCPSource, 0, len(artifacts))
	for _, a := range artifacts {
		servers, err := ReadArtifactMCP(a.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", a.Key, err)
		}
		sources = append(sources, MCPSource{Origin: a.Key.String(), Servers: servers})
	}
	merged, warnings := MergeMCP(sources)
	return merged, warnings, nil
}

// MergeArtifactSettings merges each artifact's settings.json in load
// order, then the project-level override.
func MergeArtifactSettings(artifacts []Artifact, override map[string]any) (map[string]any, error) {
	docs := make([]map[string]any, 0, len(artifacts)+1)
	for _, a := range artifacts {
		doc, err := ReadSettings(filepath.Join(a.Dir, SettingsFile))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Key, err)
		}
		docs = append(docs, doc)
	}
	return MergeSettings(append(docs, override)...), nil
}

// SpaceKeys lists the artifact keys in order.
func SpaceKeys(artifacts []Artifact) []string {
	out := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		out = append(out, a.Key.String())
	}
	return out
}
