package harness

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
)

// BundleFile is the descriptor every composed bundle carries.
const BundleFile = "bundle.json"

// Bundle is a composed target for one harness. Paths are absolute in
// memory and stored relative to Root on disk.
type Bundle struct {
	Harness   ID
	Target    string
	Root      string
	Spaces    []string
	Artifacts []string
	MCPConfig string
	Settings  string
	Home      string
	Warnings  []string
}

type bundleJSON struct {
	Harness   ID       `json:"harness"`
	Target    string   `json:"target"`
	Spaces    []string `json:"spaces"`
	Artifacts []string `json:"artifacts"`
	MCPConfig string   `json:"mcpConfig,omitempty"`
	Settings  string   `json:"settings,omitempty"`
	Home      string   `json:"home,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// WriteBundle writes b's descriptor into dir, storing paths relative to
// b.Root.
func WriteBundle(dir string, b *Bundle) error {
	rel := func(p string) (string, error) {
		if p == "" {
			return "", nil
		}
		r, err := filepath.Rel(b.Root, p)
		if err != nil {
			return "", err
		}
		return filepath.ToSlash(r), nil
	}
	out := bundleJSON{
		Harness:   b.Harness,
		Target:    b.Target,
		Spaces:    b.Spaces,
		Artifacts: make([]string, 0, len(b.Artifacts)),
		Warnings:  b.Warnings,
	}
	if out.Spaces == nil {
		out.Spaces = []string{}
	}
	for _, a := range b.Artifacts {
		r, err := rel(a)
		if err != nil {
			return err
		}
		out.Artifacts = append(out.Artifacts, r)
	}
	var err error
	if out.MCPConfig, err = rel(b.MCPConfig); err != nil {
		return err
	}
	if out.Settings, err = rel(b.Settings); err != nil {
		return err
	}
	if out.Home, err = rel(b.Home); err != nil {
		return err
	}
	return WriteJSON(filepath.Join(dir, BundleFile), out)
}

// ReadBundle loads the descriptor in dir and checks it belongs to want.
func ReadBundle(dir string, want ID) (*Bundle, error) {
	data, err := os.ReadFile(filepath.Join(dir, BundleFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoBundle, dir)
	}
	if err != nil {
		return nil, err
	}
	var in bundleJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", BundleFile, err)
	}
	if in.Harness != want {
		return nil, fmt.Errorf("%w: %s holds %q, want %q", ErrBundleMismatch, dir, in.Harness, want)
	}
	abs := func(p string) string {
		if p == "" {
			return ""
		}
		return filepath.Join(dir, filepath.FromSlash(p))
	}
	b := &Bundle{
		Harness:   in.Harness,
		Target:    in.Target,
		Root:      dir,
		Spaces:    in.Spaces,
		MCPConfig: abs(in.MCPConfig),
		Settings:  abs(in.Settings),
		Home:      abs(in.Home),
		Warnings:  in.Warnings,
	}
	for _, a := range in.Artifacts {
		b.Artifacts = append(b.Artifacts, abs(a))
	}
	return b, nil
}

// EnvHash fingerprints a harness invocation: argv and the sorted
// environment delta.
func EnvHash(argv []string, env map[string]string) string {
	h := sha256.New()
	for _, a := range argv {
		h.Write([]byte(a))
		h.Write([]byte{0})
	}
	h.Write([]byte{0})
	for _, k := range slices.Sorted(maps.Keys(env)) {
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(env[k]))
		h.Write([]byte{0})
	}
	return "sha256:" + hex.EncodeToString(h.Sum(nil))
}
