package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// staleTemp is how old a tmp/ entry must be before GC removes it.
const staleTemp = time.Hour

// Reachability is the union of everything referenced by live lock files.
type Reachability struct {
	// Integrities holds every reachable snapshot integrity.
	Integrities map[string]bool
	// MaterializerVersions maps harness id to its current materializer
	// version. Cache entries built by an older version are unreachable.
	MaterializerVersions map[string]string
}

// GCReport summarizes one collection.
type GCReport struct {
	RemovedSnapshots []string
	RemovedCache     []string
	SkippedLeased    []string
	RemovedTemp      int
}

// RegisterRoot records a project lock file as a GC root.
func (s *Store) RegisterRoot(ctx context.Context, lockPath string) error {
	abs, err := filepath.Abs(lockPath)
	if err != nil {
		return fmt.Errorf("store: resolving root %s: %w", lockPath, err)
	}
	return s.index.addRoot(ctx, abs)
}

// Roots lists registered lock file paths.
func (s *Store) Roots(ctx context.Context) ([]string, error) {
	return s.index.roots(ctx)
}

// RemoveRoot unregisters a lock file, typically one that no longer exists.
func (s *Store) RemoveRoot(ctx context.Context, lockPath string) error {
	return s.index.removeRoot(ctx, lockPath)
}

// GC deletes snapshots and cache entries not in reach, skipping anything
// leased at the moment of removal, and clears stale staging directories.
func (s *Store) GC(ctx context.Context, reach Reachability) (GCReport, error) {
	var report GCReport
	active, err := s.index.activeLeases(ctx, time.Now())
	if err != nil {
		return report, err
	}

	snapRoot := filepath.Join(s.root, snapshotsDir, "sha256")
	hexes, err := listDirs(snapRoot)
	if err != nil {
		return report, err
	}
	for _, hex := range hexes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		integ := "sha256:" + hex
		if reach.Integrities[integ] {
			continue
		}
		if s.leased(active, LeaseSnapshot, integ) {
			report.SkippedLeased = append(report.SkippedLeased, integ)
			continue
		}
		removed, err := s.removeUnleased(ctx, LeaseSnapshot, integ, filepath.Join(snapRoot, hex))
		if err != nil {
			return report, fmt.Errorf("store: removing snapshot %s: %w", integ, err)
		}
		if !removed {
			report.SkippedLeased = append(report.SkippedLeased, integ)
			continue
		}
		if err := s.index.forgetSnapshot(ctx, integ); err != nil {
			return report, err
		}
		report.RemovedSnapshots = append(report.RemovedSnapshots, integ)
	}

	harnesses, err := listDirs(filepath.Join(s.root, cacheDir))
	if err != nil {
		return report, err
	}
	for _, h := range harnesses {
		keys, err := listDirs(filepath.Join(s.root, cacheDir, h))
		if err != nil {
			return report, err
		}
		for _, key := range keys {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			name := h + "/" + key
			dir := s.CachePath(h, key)
			if s.cacheReachable(dir, h, reach) {
				continue
			}
			if s.leased(active, LeaseCache, name) {
				report.SkippedLeased = append(report.SkippedLeased, name)
				continue
			}
			removed, err := s.removeUnleased(ctx, LeaseCache, name, dir)
			if err != nil {
				return report, fmt.Errorf("store: removing cache %s: %w", name, err)
			}
			if !removed {
				report.SkippedLeased = append(report.SkippedLeased, name)
				continue
			}
			report.RemovedCache = append(report.RemovedCache, name)
		}
	}

	n, err := s.sweepTemp(time.Now().Add(-staleTemp))
	if err != nil {
		return report, err
	}
	report.RemovedTemp = n

	sort.Strings(report.RemovedSnapshots)
	sort.Strings(report.RemovedCache)
	sort.Strings(report.SkippedLeased)
	s.logf("gc: removed %d snapshots, %d cache entries, %d temp dirs",
		len(report.RemovedSnapshots), len(report.RemovedCache), report.RemovedTemp)
	return report, nil
}

func (s *Store) cacheReachable(dir, harness string, reach Reachability) bool {
	rec, err := s.readRecord(dir)
	if err != nil {
		return false
	}
	if !reach.Integrities[rec.Integrity] {
		return false
	}
	if want, ok := reach.MaterializerVersions[harness]; ok && want != rec.MaterializerVersion {
		return false
	}
	return true
}

func (s *Store) sweepTemp(cutoff time.Time) (int, error) {
	dir := filepath.Join(s.root, tmpDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("store: reading %s: %w", dir, err)
	}
	n := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return n, fmt.Errorf("store: removing temp %s: %w", e.Name(), err)
		}
		n++
	}
	return n, nil
}

// listDirs returns the sorted names of subdirectories of dir. A missing dir
// yields nothing.
func listDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: reading %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}
