package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/registry"
)

var ignoreExtra = cmpopts.IgnoreUnexported(lockfile.SpaceEntry{}, lockfile.TargetEntry{})

func lockTarget(t *testing.T, reg registry.Access, compose []string, pins map[string]string) (*Closure, lockfile.TargetEntry, map[ref.SpaceKey]lockfile.SpaceEntry) {
	t.Helper()
	c, err := New(reg).Resolve(context.Background(), refs(t, compose...), Options{Pinned: pins})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	target, spaces, err := Lock(context.Background(), reg, compose, c, &fakeIntegrity{})
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	return c, target, spaces
}

func TestLock_Entries(t *testing.T) {
	t.Parallel()
	m := frontendRegistry(t)
	compose := []string{"space:base@stable", "space:frontend@^1.0.0"}
	c, target, spaces := lockTarget(t, m, compose, nil)

	if diff := cmp.Diff(compose, target.Compose); diff != "" {
		t.Errorf("Compose (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(c.LoadOrder, target.LoadOrder); diff != "" {
		t.Errorf("LoadOrder (-want +got):\n%s", diff)
	}
	base := spaces[c.LoadOrder[0]]
	if base.Path != "spaces/base" || base.Plugin != (lockfile.Plugin{Name: "base", Version: "1.0.0"}) {
		t.Errorf("base entry = %+v", base)
	}
	fe := spaces[c.LoadOrder[1]]
	if diff := cmp.Diff([]ref.SpaceKey{c.LoadOrder[0]}, fe.Deps); diff != "" {
		t.Errorf("frontend deps (-want +got):\n%s", diff)
	}
}

func TestLock_Deterministic(t *testing.T) {
	t.Parallel()
	m := frontendRegistry(t)
	compose := []string{"space:frontend@^1.0.0", "space:base@stable"}
	_, t1, s1 := lockTarget(t, m, compose, nil)
	_, t2, s2 := lockTarget(t, m, compose, nil)
	if diff := cmp.Diff(t1, t2, ignoreExtra); diff != "" {
		t.Errorf("target entries differ (-first +second):\n%s", diff)
	}
	if diff := cmp.Diff(s1, s2, ignoreExtra); diff != "" {
		t.Errorf("space entries differ (-first +second):\n%s", diff)
	}
}

func TestLock_IngestError(t *testing.T) {
	t.Parallel()
	m := frontendRegistry(t)
	c, err := New(m).Resolve(context.Background(), refs(t, "space:base"), Options{})
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("boom")
	_, _, err = Lock(context.Background(), m, nil, c, failingSource{boom})
	if !errors.Is(err, boom) {
		t.Errorf("Lock = %v, want boom", err)
	}
}

type failingSource struct{ err error }

func (f failingSource) Ingest(context.Context, string, string) (string, error) { return "", f.err }

func TestPinned_HoldsLockedVersions(t *testing.T) {
	t.Parallel()
	m := registry.NewMemory()
	old := m.PublishSpace("base", "1.0.0", nil, nil)
	compose := []string{"space:base@^1.0.0"}

	_, target, spaces := lockTarget(t, m, compose, nil)
	lf := lockfile.New(lockfile.Registry{})
	if err := lf.MergeTarget("default", target, spaces); err != nil {
		t.Fatal(err)
	}

	m.PublishSpace("base", "1.1.0", nil, nil)

	c, _, _ := lockTarget(t, m, compose, PinnedFromLock(lf, "default", nil))
	if got := c.LoadOrder[0].Commit(); got != old {
		t.Errorf("pinned resolve moved to %s, want %s", got, old)
	}

	unpinned, _, _ := lockTarget(t, m, compose, nil)
	if unpinned.LoadOrder[0].Commit() == old {
		t.Error("unpinned resolve did not pick up 1.1.0")
	}
}

func TestPinned_ViolatedSelectorIsConflict(t *testing.T) {
	t.Parallel()
	m := registry.NewMemory()
	old := m.PublishSpace("base", "1.0.0", nil, nil)
	m.PublishSpace("base", "1.1.0", nil, nil)

	_, err := New(m).Resolve(context.Background(), refs(t, "space:base@^1.1.0"), Options{Pinned: map[string]string{"base": old}})
	var re *Error
	if !errors.As(err, &re) || re.Kind != KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
}
