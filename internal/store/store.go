// Package store is the content-addressed store shared by every project on
// a machine. It holds immutable Space snapshots keyed by integrity hash,
// per-harness materialization cache entries keyed by cache key, and a
// sqlite index of GC roots and read leases.
package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/papapumpkin/asp/internal/integrity"
	"github.com/papapumpkin/asp/internal/registry"
)

const (
	snapshotsDir = "snapshots"
	cacheDir     = "cache"
	tmpDir       = "tmp"
	indexFile    = "index.db"
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the writer used for verbose progress lines.
func WithLogger(w io.Writer) Option {
	return func(s *Store) { s.logger = w }
}

// WithVerbose enables progress lines.
func WithVerbose(v bool) Option {
	return func(s *Store) { s.verbose = v }
}

// WithVerify re-hashes an existing snapshot before reusing it.
func WithVerify(v bool) Option {
	return func(s *Store) { s.verify = v }
}

// WithLeaseTTL bounds how long a lease row protects an entry from GC if
// its holder dies without releasing it.
func WithLeaseTTL(d time.Duration) Option {
	return func(s *Store) { s.leaseTTL = d }
}

// Store is a content-addressed store rooted at one directory. It is safe
// for concurrent use.
type Store struct {
	root     string
	reg      registry.Access
	index    *index
	flight   singleflight.Group
	encMode  cbor.EncMode
	decMode  cbor.DecMode
	holder   string
	leaseTTL time.Duration
	logger   io.Writer
	verbose  bool
	verify   bool

	mu     sync.Mutex
	leases map[string]int

	// gcHook, when set, runs before each GC removal. Tests use it to take
	// a lease mid-collection.
	gcHook func(kind, key string)
}

// Open creates the store layout under root if needed and opens its index.
// reg may be nil for stores used only for GC or cache reads.
func Open(ctx context.Context, root string, reg registry.Access, opts ...Option) (*Store, error) {
	for _, dir := range []string{
		filepath.Join(root, snapshotsDir, "sha256"),
		filepath.Join(root, cacheDir),
		filepath.Join(root, tmpDir),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create %s: %w", dir, err)
		}
	}

	idx, err := openIndex(ctx, filepath.Join(root, indexFile))
	if err != nil {
		return nil, err
	}

	encMode, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		idx.close()
		return nil, fmt.Errorf("store: cbor encoder: %w", err)
	}
	decMode, err := cbor.DecOptions{}.DecMode()
	if err != nil {
		idx.close()
		return nil, fmt.Errorf("store: cbor decoder: %w", err)
	}

	s := &Store{
		root:     root,
		reg:      reg,
		index:    idx,
		encMode:  encMode,
		decMode:  decMode,
		holder:   uuid.NewString(),
		leaseTTL: time.Hour,
		leases:   make(map[string]int),
	}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = os.Stderr
	}
	return s, nil
}

// Close releases the index. Outstanding leases held by this Store are
// dropped.
func (s *Store) Close() error {
	return s.index.close()
}

// Root returns the store directory.
func (s *Store) Root() string { return s.root }

// SnapshotPath returns where the snapshot for integrity lives.
func (s *Store) SnapshotPath(integ string) (string, error) {
	hex, err := integrity.Hex(integ)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, snapshotsDir, "sha256", hex), nil
}

// SnapshotExists reports whether the snapshot for integrity is present.
func (s *Store) SnapshotExists(integ string) bool {
	path, err := s.SnapshotPath(integ)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (s *Store) logf(format string, args ...any) {
	if s.verbose {
		fmt.Fprintf(s.logger, "[asp] "+format+"\n", args...)
	}
}

// stage creates a fresh staging directory under tmp/.
func (s *Store) stage(prefix string) (string, error) {
	dir, err := os.MkdirTemp(filepath.Join(s.root, tmpDir), prefix)
	if err != nil {
		return "", fmt.Errorf("store: staging: %w", err)
	}
	return dir, nil
}

// place renames a staged directory to dest. If dest already exists another
// creator won; the staged copy is discarded and dest is kept.
func place(staged, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		os.RemoveAll(staged)
		return err
	}
	if err := os.Rename(staged, dest); err != nil {
		if _, statErr := os.Stat(dest); statErr == nil {
			os.RemoveAll(staged)
			return nil
		}
		os.RemoveAll(staged)
		return err
	}
	return nil
}
