package materialize

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/papapumpkin/asp/internal/harness"
	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/store"
)

func spaceIDs(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = ref.SpaceKey(k).ID()
	}
	return out
}

func TestMaterializeTarget_OrderAndCache(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	alpha := newFake("alpha")
	p := fx.pipeline(t, alpha)
	ctx := context.Background()

	first, err := p.MaterializeTarget(ctx, Request{Target: "default", Lock: fx.lock, Harness: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"base", "frontend"}, spaceIDs(first.Bundle.Spaces)); diff != "" {
		t.Errorf("bundle spaces (-want +got):\n%s", diff)
	}
	if first.CacheMisses != 2 || first.CacheHits != 0 {
		t.Errorf("first run hits=%d misses=%d, want 0/2", first.CacheHits, first.CacheMisses)
	}
	wantDir := filepath.Join(fx.modules, "default", "alpha")
	if first.Bundle.Root != wantDir {
		t.Errorf("bundle root = %q, want %q", first.Bundle.Root, wantDir)
	}
	for i, dir := range first.Bundle.Artifacts {
		data, err := os.ReadFile(filepath.Join(dir, "marker"))
		if err != nil {
			t.Fatal(err)
		}
		if got := string(data); got != string(first.Bundle.Spaces[i]) {
			t.Errorf("artifact %d marker = %q, want %q", i, got, first.Bundle.Spaces[i])
		}
	}

	second, err := p.MaterializeTarget(ctx, Request{Target: "default", Lock: fx.lock, Harness: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if second.CacheHits != 2 || second.CacheMisses != 0 {
		t.Errorf("second run hits=%d misses=%d, want 2/0", second.CacheHits, second.CacheMisses)
	}
	if n := alpha.buildCount(fx.key(t, "base")); n != 1 {
		t.Errorf("base built %d times, want 1", n)
	}
	// Validation warnings survive the cache.
	if diff := cmp.Diff(first.Warnings, second.Warnings); diff != "" {
		t.Errorf("warnings differ between miss and hit (-miss +hit):\n%s", diff)
	}
}

func TestMaterializeTarget_VersionBumpInvalidates(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	alpha := newFake("alpha")
	ctx := context.Background()
	req := Request{Target: "default", Lock: fx.lock, Harness: "alpha"}

	if _, err := fx.pipeline(t, alpha).MaterializeTarget(ctx, req); err != nil {
		t.Fatal(err)
	}
	alpha.version = "2"
	res, err := fx.pipeline(t, alpha).MaterializeTarget(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheMisses != 2 {
		t.Errorf("misses after version bump = %d, want 2", res.CacheMisses)
	}
	if n := alpha.buildCount(fx.key(t, "frontend")); n != 2 {
		t.Errorf("frontend built %d times, want 2", n)
	}
}

func TestMaterializeTarget_IndependentHarnesses(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	alpha, beta := newFake("alpha"), newFake("beta")
	p := fx.pipeline(t, alpha, beta)
	ctx := context.Background()

	a, err := p.MaterializeTarget(ctx, Request{Target: "default", Lock: fx.lock, Harness: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	b, err := p.MaterializeTarget(ctx, Request{Target: "default", Lock: fx.lock, Harness: "beta"})
	if err != nil {
		t.Fatal(err)
	}
	if a.Bundle.Root == b.Bundle.Root {
		t.Fatalf("both harnesses share %s", a.Bundle.Root)
	}
	if b.CacheMisses != 2 {
		t.Errorf("beta misses = %d, want 2", b.CacheMisses)
	}
	if _, err := os.Stat(a.Bundle.Root); err != nil {
		t.Errorf("alpha bundle removed by beta compose: %v", err)
	}
}

func TestMaterializeTarget_FailureIdentifiesSpace(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	alpha := newFake("alpha")
	alpha.failFor = "frontend"
	p := fx.pipeline(t, alpha)

	_, err := p.MaterializeTarget(context.Background(), Request{Target: "default", Lock: fx.lock, Harness: "alpha"})
	var se *SpaceError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SpaceError", err)
	}
	if se.Key.ID() != "frontend" || se.Target != "default" || se.Harness != "alpha" {
		t.Errorf("space error = %+v", se)
	}
	if !errors.Is(err, errBuild) {
		t.Errorf("err = %v, want wrapping errBuild", err)
	}
	if _, err := os.Stat(filepath.Join(fx.modules, "default", "alpha")); !os.IsNotExist(err) {
		t.Errorf("bundle written despite failure: %v", err)
	}

	// base completed before the failure and stays cached.
	alpha.failFor = ""
	res, err := p.MaterializeTarget(context.Background(), Request{Target: "default", Lock: fx.lock, Harness: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if res.CacheHits != 1 || res.CacheMisses != 1 {
		t.Errorf("retry hits=%d misses=%d, want 1/1", res.CacheHits, res.CacheMisses)
	}
}

func TestMaterializeTarget_HarnessUnavailable(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	alpha := newFake("alpha")
	alpha.missing = true
	req := Request{Target: "default", Lock: fx.lock, Harness: "alpha"}

	res, err := fx.pipeline(t, alpha).MaterializeTarget(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) == 0 || res.Warnings[0] != "harness alpha not available: not on PATH" {
		t.Errorf("warnings = %q", res.Warnings)
	}
	if res.Bundle == nil {
		t.Error("bundle not composed for unavailable harness")
	}

	p := fx.pipeline(t, alpha)
	p.opts.RequireHarness = true
	if _, err := p.MaterializeTarget(context.Background(), req); !errors.Is(err, harness.ErrHarnessUnavailable) {
		t.Errorf("err = %v, want ErrHarnessUnavailable", err)
	}
}

func TestMaterializeTarget_UnknownHarnessAndTarget(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	p := fx.pipeline(t, newFake("alpha"))
	ctx := context.Background()

	if _, err := p.MaterializeTarget(ctx, Request{Target: "default", Lock: fx.lock, Harness: "gamma"}); !errors.Is(err, harness.ErrUnknownHarness) {
		t.Errorf("unknown harness err = %v", err)
	}
	if _, err := p.MaterializeTarget(ctx, Request{Target: "nope", Lock: fx.lock, Harness: "alpha"}); !errors.Is(err, lockfile.ErrUnknownTarget) {
		t.Errorf("unknown target err = %v", err)
	}
}

func TestMaterializeTarget_LeasesHoldAgainstGC(t *testing.T) {
	t.Parallel()
	fx := newFixture(t)
	alpha := newFake("alpha")
	var report store.GCReport
	var gcErr error
	alpha.onBuild = func(in harness.SpaceInput) {
		if in.Identity.Name != "frontend" {
			return
		}
		report, gcErr = fx.store.GC(context.Background(), store.Reachability{})
	}
	p := fx.pipeline(t, alpha)

	if _, err := p.MaterializeTarget(context.Background(), Request{Target: "default", Lock: fx.lock, Harness: "alpha"}); err != nil {
		t.Fatal(err)
	}
	if gcErr != nil {
		t.Fatal(gcErr)
	}
	if len(report.RemovedSnapshots) != 0 {
		t.Errorf("GC removed leased snapshots %v", report.RemovedSnapshots)
	}
	if len(report.SkippedLeased) == 0 {
		t.Error("GC reported no leased entries")
	}
}

func TestMaterializeTarget_DevSpace(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, "space:local@dev")
	alpha := newFake("alpha")
	p := fx.pipeline(t, alpha)

	res, err := p.MaterializeTarget(context.Background(), Request{Target: "default", Lock: fx.lock, Harness: "alpha"})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"base", "local"}, spaceIDs(res.Bundle.Spaces)); diff != "" {
		t.Errorf("bundle spaces (-want +got):\n%s", diff)
	}
	if res.CacheMisses != 1 || res.CacheHits != 0 {
		t.Errorf("hits=%d misses=%d, want 0/1 (dev not counted)", res.CacheHits, res.CacheMisses)
	}
	dev := DevPath(fx.modules, "alpha", "default", "local")
	if _, err := os.Stat(filepath.Join(dev, "marker")); err != nil {
		t.Errorf("dev build missing: %v", err)
	}

	// Dev Spaces rebuild every run.
	if _, err := p.MaterializeTarget(context.Background(), Request{Target: "default", Lock: fx.lock, Harness: "alpha"}); err != nil {
		t.Fatal(err)
	}
	if n := alpha.buildCount(fx.key(t, "local")); n != 2 {
		t.Errorf("local built %d times, want 2", n)
	}
}

func TestReachability(t *testing.T) {
	t.Parallel()
	fx := newFixture(t, "space:base@stable", "space:local@dev")
	hr := harness.NewRegistry()
	alpha := newFake("alpha")
	alpha.version = "7"
	if err := hr.Register(alpha); err != nil {
		t.Fatal(err)
	}

	r := Reachability([]*lockfile.LockFile{fx.lock}, hr)
	base := fx.lock.Spaces[fx.key(t, "base")].Integrity
	if diff := cmp.Diff(map[string]bool{base: true}, r.Integrities); diff != "" {
		t.Errorf("integrities (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(map[string]string{"alpha": "7"}, r.MaterializerVersions); diff != "" {
		t.Errorf("versions (-want +got):\n%s", diff)
	}
}
