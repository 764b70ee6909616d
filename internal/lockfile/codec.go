package lockfile

import (
	"encoding/json"

	"github.com/papapumpkin/asp/internal/ref"
)

type lockFileJSON struct {
	LockfileVersion int                         `json:"lockfileVersion"`
	ResolverVersion int                         `json:"resolverVersion"`
	GeneratedAt     string                      `json:"generatedAt"`
	Registry        Registry                    `json:"registry"`
	Spaces          map[ref.SpaceKey]SpaceEntry `json:"spaces"`
	Targets         map[string]TargetEntry      `json:"targets"`
}

type spaceEntryJSON struct {
	ID        string         `json:"id"`
	Commit    string         `json:"commit"`
	Path      string         `json:"path"`
	Integrity string         `json:"integrity"`
	Plugin    Plugin         `json:"plugin"`
	Deps      []ref.SpaceKey `json:"deps"`
}

type targetEntryJSON struct {
	Compose   []string                `json:"compose"`
	Roots     []ref.SpaceKey          `json:"roots"`
	LoadOrder []ref.SpaceKey          `json:"loadOrder"`
	Harnesses map[string]HarnessEntry `json:"harnesses"`
}

type harnessEntryJSON struct {
	EnvHash  string   `json:"envHash"`
	Warnings []string `json:"warnings"`
}

// MarshalJSON implements json.Marshaler.
func (lf LockFile) MarshalJSON() ([]byte, error) {
	spaces := lf.Spaces
	if spaces == nil {
		spaces = map[ref.SpaceKey]SpaceEntry{}
	}
	targets := lf.Targets
	if targets == nil {
		targets = map[string]TargetEntry{}
	}
	return withExtra(lockFileJSON{
		LockfileVersion: lf.LockfileVersion,
		ResolverVersion: lf.ResolverVersion,
		GeneratedAt:     lf.GeneratedAt,
		Registry:        lf.Registry,
		Spaces:          spaces,
		Targets:         targets,
	}, lf.extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (lf *LockFile) UnmarshalJSON(data []byte) error {
	var v lockFileJSON
	extra, err := splitExtra(data, &v,
		"lockfileVersion", "resolverVersion", "generatedAt", "registry", "spaces", "targets")
	if err != nil {
		return err
	}
	*lf = LockFile{
		LockfileVersion: v.LockfileVersion,
		ResolverVersion: v.ResolverVersion,
		GeneratedAt:     v.GeneratedAt,
		Registry:        v.Registry,
		Spaces:          v.Spaces,
		Targets:         v.Targets,
		extra:           extra,
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (e SpaceEntry) MarshalJSON() ([]byte, error) {
	return withExtra(spaceEntryJSON{
		ID:        e.ID,
		Commit:    e.Commit,
		Path:      e.Path,
		Integrity: e.Integrity,
		Plugin:    e.Plugin,
		Deps:      nonNil(e.Deps),
	}, e.extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (e *SpaceEntry) UnmarshalJSON(data []byte) error {
	var v spaceEntryJSON
	extra, err := splitExtra(data, &v, "id", "commit", "path", "integrity", "plugin", "deps")
	if err != nil {
		return err
	}
	*e = SpaceEntry{
		ID:        v.ID,
		Commit:    v.Commit,
		Path:      v.Path,
		Integrity: v.Integrity,
		Plugin:    v.Plugin,
		Deps:      v.Deps,
		extra:     extra,
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t TargetEntry) MarshalJSON() ([]byte, error) {
	harnesses := t.Harnesses
	if harnesses == nil {
		harnesses = map[string]HarnessEntry{}
	}
	return withExtra(targetEntryJSON{
		Compose:   nonNil(t.Compose),
		Roots:     nonNil(t.Roots),
		LoadOrder: nonNil(t.LoadOrder),
		Harnesses: harnesses,
	}, t.extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TargetEntry) UnmarshalJSON(data []byte) error {
	var v targetEntryJSON
	extra, err := splitExtra(data, &v, "compose", "roots", "loadOrder", "harnesses")
	if err != nil {
		return err
	}
	*t = TargetEntry{
		Compose:   v.Compose,
		Roots:     v.Roots,
		LoadOrder: v.LoadOrder,
		Harnesses: v.Harnesses,
		extra:     extra,
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (h HarnessEntry) MarshalJSON() ([]byte, error) {
	return withExtra(harnessEntryJSON{
		EnvHash:  h.EnvHash,
		Warnings: nonNil(h.Warnings),
	}, h.extra)
}

// UnmarshalJSON implements json.Unmarshaler.
func (h *HarnessEntry) UnmarshalJSON(data []byte) error {
	var v harnessEntryJSON
	extra, err := splitExtra(data, &v, "envHash", "warnings")
	if err != nil {
		return err
	}
	*h = HarnessEntry{EnvHash: v.EnvHash, Warnings: v.Warnings, extra: extra}
	return nil
}

// withExtra marshals known and overlays it on the preserved unknown keys.
// Encoding through a map keeps the output key order sorted.
func withExtra(known any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	for k, v := range extra {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

// splitExtra decodes data into known and returns the keys not listed in
// declared.
func splitExtra(data []byte, known any, declared ...string) (map[string]json.RawMessage, error) {
	if err := json.Unmarshal(data, known); err != nil {
		return nil, err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range declared {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
