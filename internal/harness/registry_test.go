package harness

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/asp/internal/manifest"
)

type stubAdapter struct{ id ID }

func (s stubAdapter) ID() ID { return s.id }
func (s stubAdapter) MaterializerVersion() string { return "1" }
func (s stubAdapter) Detect(context.Context, RunOptions) DetectResult {
	return DetectResult{}
}
func (s stubAdapter) ValidateSpace(SpaceInput) Validation { return Validation{} }
func (s stubAdapter) MaterializeSpace(context.Context, SpaceInput, string) ([]string, error) {
	return nil, nil
}
func (s stubAdapter) ComposeTarget(context.Context, ComposeInput) (*Bundle, error) {
	return &Bundle{}, nil
}
func (s stubAdapter) BuildRunArgs(*Bundle, RunOptions) []string { return nil }
func (s stubAdapter) RunEnv(*Bundle, RunOptions) map[string]string { return nil }
func (s stubAdapter) DefaultRunOptions(manifest.HarnessOptions) RunOptions { return RunOptions{} }
func (s stubAdapter) LoadTargetBundle(string) (*Bundle, error) { return nil, nil }
func (s stubAdapter) TargetOutputPath(string, string) string { return "" }

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	for _, id := range []ID{"zeta", "alpha"} {
		if err := r.Register(stubAdapter{id: id}); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}

	if err := r.Register(stubAdapter{id: "alpha"}); !errors.Is(err, ErrDuplicateHarness) {
		t.Errorf("duplicate Register err = %v, want ErrDuplicateHarness", err)
	}
	if diff := cmp.Diff([]ID{"alpha", "zeta"}, r.IDs()); diff != "" {
		t.Errorf("IDs (-want +got):\n%s", diff)
	}
	a, err := r.Get("zeta")
	if err != nil || a.ID() != "zeta" {
		t.Errorf("Get(zeta) = %v, %v", a, err)
	}
	if _, err := r.Get("nope"); !errors.Is(err, ErrUnknownHarness) {
		t.Errorf("Get(nope) err = %v, want ErrUnknownHarness", err)
	}
}

func TestRegistryResolve(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	r.Register(stubAdapter{id: "b"})
	r.Register(stubAdapter{id: "a"})

	tests := []struct {
		name    string
		ids     []string
		want    []ID
		wantErr error
	}{
		{name: "all when empty", want: []ID{"a", "b"}},
		{name: "requested order", ids: []string{"b", "a"}, want: []ID{"b", "a"}},
		{name: "unknown", ids: []string{"a", "x"}, wantErr: ErrUnknownHarness},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := r.Resolve(tt.ids)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			var ids []ID
			for _, a := range got {
				ids = append(ids, a.ID())
			}
			if diff := cmp.Diff(tt.want, ids); diff != "" {
				t.Errorf("Resolve (-want +got):\n%s", diff)
			}
		})
	}
}

func TestValidationErr(t *testing.T) {
	t.Parallel()
	if err := (Validation{Warnings: []string{"w"}}).Err(); err != nil {
		t.Errorf("warnings only: Err() = %v, want nil", err)
	}
	boom := errors.New("boom")
	err := Validation{Errors: []error{boom}}.Err()
	if !errors.Is(err, ErrInvalidSpace) || !errors.Is(err, boom) {
		t.Errorf("Err() = %v, want ErrInvalidSpace wrapping boom", err)
	}
}

func TestFromProject(t *testing.T) {
	t.Parallel()
	got := FromProject(manifest.HarnessOptions{Model: "opus"}, "claude")
	if got.Binary != "claude" || got.Model != "opus" || !got.Interactive {
		t.Errorf("FromProject = %+v", got)
	}
	got = FromProject(manifest.HarnessOptions{Binary: "/opt/claude"}, "claude")
	if got.Binary != "/opt/claude" {
		t.Errorf("Binary = %q, want /opt/claude", got.Binary)
	}
}
