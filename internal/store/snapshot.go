package store

import (
	"context"
	"fmt"
	"os"

	"github.com/papapumpkin/asp/internal/integrity"
)

// CreateSnapshot ensures the snapshot for id@commit exists and matches
// expected, returning its path. Concurrent calls for the same integrity
// share one extraction. On mismatch nothing is placed and an
// *IntegrityError is returned.
func (s *Store) CreateSnapshot(ctx context.Context, id, commit, expected string) (string, error) {
	dest, err := s.SnapshotPath(expected)
	if err != nil {
		return "", err
	}

	v, err, _ := s.flight.Do("snapshot:"+expected, func() (any, error) {
		if s.SnapshotExists(expected) {
			if !s.verify {
				return dest, nil
			}
			if err := s.verifyAt(dest, id, commit, expected); err != nil {
				return nil, err
			}
			return dest, nil
		}

		staged, actual, err := s.extract(ctx, id, commit)
		if err != nil {
			return nil, err
		}
		if actual != expected {
			os.RemoveAll(staged)
			return nil, &IntegrityError{ID: id, Commit: commit, Expected: expected, Actual: actual}
		}
		if err := place(staged, dest); err != nil {
			return nil, fmt.Errorf("store: placing snapshot %s: %w", expected, err)
		}
		if err := s.index.recordSnapshot(ctx, id, commit, expected); err != nil {
			return nil, err
		}
		s.logf("snapshot %s@%s -> %s", id, commit, expected)
		return dest, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Ingest extracts id@commit, computes its integrity, and places the
// snapshot under that hash. It is how integrity is first learned when a
// lock entry is created.
func (s *Store) Ingest(ctx context.Context, id, commit string) (string, error) {
	v, err, _ := s.flight.Do("ingest:"+id+"@"+commit, func() (any, error) {
		known, err := s.index.knownIntegrity(ctx, id, commit)
		if err != nil {
			return nil, err
		}
		if known != "" && s.SnapshotExists(known) {
			return known, nil
		}

		staged, actual, err := s.extract(ctx, id, commit)
		if err != nil {
			return nil, err
		}
		dest, err := s.SnapshotPath(actual)
		if err != nil {
			os.RemoveAll(staged)
			return nil, err
		}
		if err := place(staged, dest); err != nil {
			return nil, fmt.Errorf("store: placing snapshot %s: %w", actual, err)
		}
		if err := s.index.recordSnapshot(ctx, id, commit, actual); err != nil {
			return nil, err
		}
		s.logf("ingested %s@%s -> %s", id, commit, actual)
		return actual, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// VerifySnapshot re-hashes a stored snapshot.
func (s *Store) VerifySnapshot(integ string) error {
	path, err := s.SnapshotPath(integ)
	if err != nil {
		return err
	}
	if !s.SnapshotExists(integ) {
		return fmt.Errorf("%w: %s", ErrSnapshotMissing, integ)
	}
	return s.verifyAt(path, "", "", integ)
}

func (s *Store) verifyAt(path, id, commit, expected string) error {
	actual, err := integrity.HashDir(path)
	if err != nil {
		return err
	}
	if actual != expected {
		return &IntegrityError{ID: id, Commit: commit, Expected: expected, Actual: actual}
	}
	return nil
}

// extract stages id@commit from the registry and hashes it. The caller
// owns the staged directory.
func (s *Store) extract(ctx context.Context, id, commit string) (staged, integ string, err error) {
	if s.reg == nil {
		return "", "", ErrNoRegistry
	}
	staged, err = s.stage("snap-")
	if err != nil {
		return "", "", err
	}
	if err := s.reg.Extract(ctx, id, commit, staged); err != nil {
		os.RemoveAll(staged)
		return "", "", fmt.Errorf("store: extracting %s@%s: %w", id, commit, err)
	}
	integ, err = integrity.HashDir(staged)
	if err != nil {
		os.RemoveAll(staged)
		return "", "", err
	}
	return staged, integ, nil
}
