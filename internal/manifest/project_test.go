package manifest

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const projectTOML = `schema = 1

[registry]
type = "git"
url = "https://example.com/spaces.git"

[harness.claude]
model = "sonnet"
args = ["--verbose"]
settings = { includeCoAuthoredBy = false, theme = "dark" }
env = { FOO = "bar" }

[targets.default]
description = "everyday"
compose = ["space:base@stable", "space:frontend@^1.0.0"]

[targets.default.harness.claude]
model = "opus"
settings = { theme = "light" }
env = { BAZ = "qux" }

[targets.review]
compose = ["space:review@dev"]
`

func TestParseProject(t *testing.T) {
	t.Parallel()
	p, err := ParseProject([]byte(projectTOML))
	if err != nil {
		t.Fatalf("ParseProject: %v", err)
	}
	if errs := p.Validate(); len(errs) != 0 {
		t.Fatalf("Validate: %v", errs)
	}
	if diff := cmp.Diff([]string{"default", "review"}, p.TargetNames()); diff != "" {
		t.Errorf("TargetNames (-want +got):\n%s", diff)
	}
	if p.Registry.URL != "https://example.com/spaces.git" {
		t.Errorf("Registry.URL = %q", p.Registry.URL)
	}

	target, err := p.Target("default")
	if err != nil {
		t.Fatal(err)
	}
	refs, err := target.References()
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 || refs[1].ID != "frontend" {
		t.Errorf("References = %+v", refs)
	}
}

func TestProject_HarnessOptionsOverride(t *testing.T) {
	t.Parallel()
	p, err := ParseProject([]byte(projectTOML))
	if err != nil {
		t.Fatal(err)
	}

	got := p.HarnessOptions("default", "claude")
	want := HarnessOptions{
		Model:    "opus",
		Args:     []string{"--verbose"},
		Settings: map[string]any{"includeCoAuthoredBy": false, "theme": "light"},
		Env:      map[string]string{"FOO": "bar", "BAZ": "qux"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HarnessOptions(default) (-want +got):\n%s", diff)
	}

	review := p.HarnessOptions("review", "claude")
	if review.Model != "sonnet" {
		t.Errorf("review model = %q, want project default", review.Model)
	}

	// The project-wide map must not be mutated by overrides.
	if p.Harness["claude"].Settings["theme"] != "dark" {
		t.Error("project-wide settings were mutated")
	}

	if none := p.HarnessOptions("default", "codex"); none.Model != "" || none.Env != nil {
		t.Errorf("codex options = %+v, want zero", none)
	}
}

func TestProject_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		project Project
		wantErr error
		wantCat ValidationCategory
	}{
		{"no targets", Project{Schema: 1}, ErrMissingField, ValCatMissingField},
		{"empty compose", Project{Schema: 1, Targets: map[string]Target{"a": {}}}, ErrMissingField, ValCatMissingField},
		{"duplicate id", Project{Schema: 1, Targets: map[string]Target{"a": {Compose: []string{"space:x", "space:x@dev"}}}}, ErrDuplicateSpace, ValCatDuplicate},
		{"bad schema", Project{Schema: 0, Targets: map[string]Target{"a": {Compose: []string{"space:x"}}}}, ErrUnsupportedSchema, ValCatSchema},
		{"bad name", Project{Schema: 1, Targets: map[string]Target{"Bad_Name": {Compose: []string{"space:x"}}}}, nil, ValCatIdentity},
		{"bad ref", Project{Schema: 1, Targets: map[string]Target{"a": {Compose: []string{"x"}}}}, nil, ValCatReference},
		{"bad registry", Project{Schema: 1, Registry: RegistryConfig{Type: "svn"}, Targets: map[string]Target{"a": {Compose: []string{"space:x"}}}}, ErrUnsupportedRegistry, ValCatSchema},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			errs := tt.project.Validate()
			if len(errs) != 1 {
				t.Fatalf("got %d errors (%v), want 1", len(errs), errs)
			}
			if errs[0].Category != tt.wantCat {
				t.Errorf("Category = %q, want %q", errs[0].Category, tt.wantCat)
			}
			if tt.wantErr != nil && !errors.Is(Join(errs), tt.wantErr) {
				t.Errorf("joined error does not wrap %v", tt.wantErr)
			}
		})
	}
}

func TestProject_UnknownTarget(t *testing.T) {
	t.Parallel()
	p := &Project{}
	if _, err := p.Target("nope"); !errors.Is(err, ErrUnknownTarget) {
		t.Errorf("Target(nope) = %v, want ErrUnknownTarget", err)
	}
}
