package manifest

import (
	"fmt"
	"maps"
	"os"
	"slices"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/asp/internal/ref"
)

// ProjectFileName is the default project manifest name.
const ProjectFileName = "asp-targets.toml"

// RegistryGit is the only registry type a project may declare.
const RegistryGit = "git"

// Project is the parsed asp-targets.toml.
type Project struct {
	Schema   int                       `toml:"schema"`
	Registry RegistryConfig            `toml:"registry"`
	Harness  map[string]HarnessOptions `toml:"harness"`
	Targets  map[string]Target         `toml:"targets"`
}

// RegistryConfig names the registry the project resolves against. When URL
// is set it overrides the registry from the user's configuration.
type RegistryConfig struct {
	Type string `toml:"type"`
	URL  string `toml:"url"`
}

// HarnessOptions are per-harness run options. They can be declared
// project-wide under [harness.<id>] and overridden per target.
type HarnessOptions struct {
	Model    string            `toml:"model,omitempty"`
	Args     []string          `toml:"args,omitempty"`
	Binary   string            `toml:"binary,omitempty"`
	Settings map[string]any    `toml:"settings,omitempty"`
	Env      map[string]string `toml:"env,omitempty"`
}

// Target is one named composition profile.
type Target struct {
	Description string                    `toml:"description,omitempty"`
	Compose     []string                  `toml:"compose"`
	Harness     map[string]HarnessOptions `toml:"harness,omitempty"`
}

// ParseProject decodes asp-targets.toml content.
func ParseProject(data []byte) (*Project, error) {
	var p Project
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", ProjectFileName, err)
	}
	return &p, nil
}

// LoadProject reads a project manifest from path.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNoManifest, path)
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return ParseProject(data)
}

// TargetNames returns every target name in sorted order.
func (p *Project) TargetNames() []string {
	return slices.Sorted(maps.Keys(p.Targets))
}

// Target looks up a target by name.
func (p *Project) Target(name string) (Target, error) {
	t, ok := p.Targets[name]
	if !ok {
		return Target{}, fmt.Errorf("%w: %q", ErrUnknownTarget, name)
	}
	return t, nil
}

// References parses the target's compose list in declared order.
func (t Target) References() ([]ref.Reference, error) {
	return ref.ParseAll(t.Compose)
}

// HarnessOptions returns the effective options for one target and harness:
// project-wide defaults with the target's overrides applied on top. Scalars
// and args are replaced when the override sets them; settings and env are
// merged key by key.
func (p *Project) HarnessOptions(target, harnessID string) HarnessOptions {
	out := cloneOptions(p.Harness[harnessID])
	t, ok := p.Targets[target]
	if !ok {
		return out
	}
	o, ok := t.Harness[harnessID]
	if !ok {
		return out
	}
	if o.Model != "" {
		out.Model = o.Model
	}
	if o.Binary != "" {
		out.Binary = o.Binary
	}
	if o.Args != nil {
		out.Args = slices.Clone(o.Args)
	}
	for k, v := range o.Settings {
		if out.Settings == nil {
			out.Settings = make(map[string]any)
		}
		out.Settings[k] = v
	}
	for k, v := range o.Env {
		if out.Env == nil {
			out.Env = make(map[string]string)
		}
		out.Env[k] = v
	}
	return out
}

func cloneOptions(o HarnessOptions) HarnessOptions {
	return HarnessOptions{
		Model:    o.Model,
		Args:     slices.Clone(o.Args),
		Binary:   o.Binary,
		Settings: maps.Clone(o.Settings),
		Env:      maps.Clone(o.Env),
	}
}

// Validate checks the project manifest: supported schema and registry
// type, at least one target, kebab-case target names, non-empty compose
// lists of parseable references with no id listed twice.
func (p *Project) Validate() []ValidationError {
	var errs []ValidationError
	add := func(cat ValidationCategory, field string, err error) {
		errs = append(errs, ValidationError{Category: cat, File: ProjectFileName, Field: field, Err: err})
	}

	if p.Schema != SchemaVersion {
		add(ValCatSchema, "schema", fmt.Errorf("%w: %d", ErrUnsupportedSchema, p.Schema))
	}
	if t := p.Registry.Type; t != "" && t != RegistryGit {
		add(ValCatSchema, "registry.type", fmt.Errorf("%w: %q", ErrUnsupportedRegistry, t))
	}
	if len(p.Targets) == 0 {
		add(ValCatMissingField, "targets", fmt.Errorf("%w: at least one target", ErrMissingField))
	}

	for _, name := range p.TargetNames() {
		t := p.Targets[name]
		prefix := "targets." + name
		if !ref.IsKebab(name) {
			add(ValCatIdentity, prefix, fmt.Errorf("target name %q is not kebab-case", name))
		}
		if len(t.Compose) == 0 {
			add(ValCatMissingField, prefix+".compose", fmt.Errorf("%w: compose", ErrMissingField))
			continue
		}
		seen := make(map[string]bool)
		for i, raw := range t.Compose {
			field := fmt.Sprintf("%s.compose[%d]", prefix, i)
			r, err := ref.Parse(raw)
			if err != nil {
				add(ValCatReference, field, err)
				continue
			}
			if seen[r.ID] {
				add(ValCatDuplicate, field, fmt.Errorf("%w: %s", ErrDuplicateSpace, r.ID))
			}
			seen[r.ID] = true
		}
	}
	return errs
}
