package resolve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"testing"

	"github.com/papapumpkin/asp/internal/ref"
	"github.com/papapumpkin/asp/internal/registry"
)

// fakeIntegrity derives a stable integrity from id and commit and counts calls.
type fakeIntegrity struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeIntegrity) Ingest(_ context.Context, id, commit string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[id+"@"+commit]++
	sum := sha256.Sum256([]byte(id + "\x00" + commit))
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

func refs(t *testing.T, in ...string) []ref.Reference {
	t.Helper()
	out, err := ref.ParseAll(in)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func ids(keys []ref.SpaceKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.ID()
	}
	return out
}

// frontendRegistry publishes base 1.0.0 (stable) and frontend 1.0.0, which
// depends on base@stable.
func frontendRegistry(t *testing.T) *registry.Memory {
	t.Helper()
	m := registry.NewMemory()
	m.PublishSpace("base", "1.0.0", nil, nil)
	m.SetDistTag("base", "stable", "1.0.0")
	m.PublishSpace("frontend", "1.0.0", []string{"space:base@stable"}, nil)
	return m
}
