package harness

import (
	"encoding/json"
	"fmt"
	"maps"
	"path/filepath"
	"slices"
)

// MCPDocument is the normalized tool server configuration shape shared by
// every harness artifact: {"mcpServers": {<name>: <server>}}.
type MCPDocument struct {
	Servers map[string]json.RawMessage `json:"mcpServers"`
}

// MCPSource is one artifact's servers, labeled for collision warnings.
type MCPSource struct {
	Origin  string
	Servers map[string]json.RawMessage
}

// ReadMCP loads a Space's mcp/mcp.json. A missing file yields no servers.
func ReadMCP(dir string) (map[string]json.RawMessage, error) {
	return readMCPFile(filepath.Join(dir, MCPFile))
}

// ReadArtifactMCP loads the normalized mcp.json an adapter wrote into an
// artifact or bundle directory.
func ReadArtifactMCP(dir string) (map[string]json.RawMessage, error) {
	return readMCPFile(filepath.Join(dir, "mcp.json"))
}

func readMCPFile(path string) (map[string]json.RawMessage, error) {
	var doc MCPDocument
	if _, err := ReadJSONC(path, &doc); err != nil {
		return nil, err
	}
	for name, raw := range doc.Servers {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, fmt.Errorf("%s: server %q is not an object", path, name)
		}
	}
	return doc.Servers, nil
}

// MergeMCP merges server maps in order. The first source to declare a name
// keeps it; later declarations are dropped with a warning.
func MergeMCP(sources []MCPSource) (map[string]json.RawMessage, []string) {
	out := make(map[string]json.RawMessage)
	owner := make(map[string]string)
	var warnings []string
	for _, src := range sources {
		for _, name := range slices.Sorted(maps.Keys(src.Servers)) {
			if prev, ok := owner[name]; ok {
				warnings = append(warnings, fmt.Sprintf(
					"mcp server %q from %s ignored; already provided by %s", name, src.Origin, prev))
				continue
			}
			owner[name] = src.Origin
			out[name] = src.Servers[name]
		}
	}
	return out, warnings
}

// WriteMCP writes servers as a normalized mcp.json. Nothing is written for
// an empty map and false is returned.
func WriteMCP(path string, servers map[string]json.RawMessage) (bool, error) {
	if len(servers) == 0 {
		return false, nil
	}
	return true, WriteJSON(path, MCPDocument{Servers: servers})
}
