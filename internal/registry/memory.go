package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Memory is an in-process registry. Files whose name ends in ".sh" are
// extracted executable. WorkingPath resolves under the optional working
// root so dev selectors can point at a real directory.
type Memory struct {
	mu          sync.RWMutex
	spaces      map[string]*memorySpace
	workingRoot string
	fetches     int
}

type memorySpace struct {
	commits  map[string]map[string]string
	tags     []Tag
	distTags map[string]string
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{spaces: make(map[string]*memorySpace)}
}

// SetWorkingRoot sets the directory WorkingPath resolves under.
func (m *Memory) SetWorkingRoot(dir string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workingRoot = dir
}

// AddCommit stores an untagged commit for id and returns its commit id,
// which is derived from the content.
func (m *Memory) AddCommit(id string, files map[string]string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.space(id)
	commit := contentCommit(id, files)
	s.commits[commit] = maps.Clone(files)
	return commit
}

// Publish stores a commit for id and tags it with version.
func (m *Memory) Publish(id, version string, files map[string]string) string {
	commit := m.AddCommit(id, files)
	m.mu.Lock()
	defer m.mu.Unlock()
	v := strings.TrimPrefix(version, "v")
	s := m.space(id)
	s.tags = append(s.tags, Tag{Name: TagName(id, v), Version: v, Commit: commit})
	return commit
}

// PublishSpace publishes a Space with a generated space.toml declaring the
// given dependencies, plus any extra files.
func (m *Memory) PublishSpace(id, version string, deps []string, extra map[string]string) string {
	files := maps.Clone(extra)
	if files == nil {
		files = make(map[string]string)
	}
	files["space.toml"] = SpaceTOML(id, version, deps)
	return m.Publish(id, version, files)
}

// SetDistTag points a dist-tag of id at a version.
func (m *Memory) SetDistTag(id, tag, pointer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.space(id).distTags[tag] = pointer
}

// Fetches reports how many times Fetch was called.
func (m *Memory) Fetches() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fetches
}

// Fetch implements Access.
func (m *Memory) Fetch(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetches++
	return nil
}

// ListTags implements Access.
func (m *Memory) ListTags(_ context.Context, id string) ([]Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpace, id)
	}
	return slices.Clone(s.tags), nil
}

// ResolveDistTag implements Access.
func (m *Memory) ResolveDistTag(_ context.Context, id, tag string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spaces[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSpace, id)
	}
	pointer, ok := s.distTags[tag]
	if !ok {
		return "", fmt.Errorf("%w: %s@%s", ErrUnknownDistTag, id, tag)
	}
	return resolvePointer(id, tag, pointer, s.tags)
}

// ResolveCommit implements Access. rev may be any unique prefix.
func (m *Memory) ResolveCommit(_ context.Context, id, rev string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spaces[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSpace, id)
	}
	var match string
	for commit := range s.commits {
		if !strings.HasPrefix(commit, rev) {
			continue
		}
		if match != "" {
			return "", fmt.Errorf("%w: %s revision %s is ambiguous", ErrUnknownCommit, id, rev)
		}
		match = commit
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s@%s", ErrUnknownCommit, id, rev)
	}
	return match, nil
}

// ReadFile implements Access.
func (m *Memory) ReadFile(_ context.Context, id, commit, name string) ([]byte, error) {
	files, err := m.files(id, commit)
	if err != nil {
		return nil, err
	}
	content, ok := files[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s:%s", ErrFileNotFound, id, commit, name)
	}
	return []byte(content), nil
}

// Extract implements Access.
func (m *Memory) Extract(_ context.Context, id, commit, dest string) error {
	files, err := m.files(id, commit)
	if err != nil {
		return err
	}
	for _, name := range slices.Sorted(maps.Keys(files)) {
		path := filepath.Join(dest, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
		mode := os.FileMode(0o644)
		if strings.HasSuffix(name, ".sh") {
			mode = 0o755
		}
		if err := os.WriteFile(path, []byte(files[name]), mode); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
		if err := os.Chmod(path, mode); err != nil {
			return fmt.Errorf("extracting %s: %w", name, err)
		}
	}
	return nil
}

// SpacePath implements Access.
func (m *Memory) SpacePath(id string) string { return SpacePath(id) }

// WorkingPath implements Access.
func (m *Memory) WorkingPath(id string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return filepath.Join(m.workingRoot, SpacesDir, id)
}

// Describe implements Access.
func (m *Memory) Describe() Info {
	return Info{Type: "memory", URL: "memory://"}
}

func (m *Memory) files(id, commit string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.spaces[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSpace, id)
	}
	files, ok := s.commits[commit]
	if !ok {
		return nil, fmt.Errorf("%w: %s@%s", ErrUnknownCommit, id, commit)
	}
	return files, nil
}

// space returns the entry for id, creating it. Callers hold m.mu.
func (m *Memory) space(id string) *memorySpace {
	s, ok := m.spaces[id]
	if !ok {
		s = &memorySpace{
			commits:  make(map[string]map[string]string),
			distTags: make(map[string]string),
		}
		m.spaces[id] = s
	}
	return s
}

// SpaceTOML renders a minimal space.toml.
func SpaceTOML(id, version string, deps []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema = 1\nid = %q\nversion = %q\n", id, strings.TrimPrefix(version, "v"))
	if len(deps) > 0 {
		quoted := make([]string, len(deps))
		for i, d := range deps {
			quoted[i] = fmt.Sprintf("%q", d)
		}
		fmt.Fprintf(&b, "\n[deps]\nspaces = [%s]\n", strings.Join(quoted, ", "))
	}
	return b.String()
}

func contentCommit(id string, files map[string]string) string {
	h := sha256.New()
	h.Write([]byte(id))
	for _, name := range slices.Sorted(maps.Keys(files)) {
		h.Write([]byte{0})
		h.Write([]byte(name))
		h.Write([]byte{0})
		h.Write([]byte(files[name]))
	}
	return hex.EncodeToString(h.Sum(nil))[:40]
}
