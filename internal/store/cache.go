package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EntryRecordName is the file inside every cache entry that describes it.
// Harness adapters skip files with the ".asp-" prefix when copying.
const EntryRecordName = ".asp-entry.cbor"

// CacheRecord describes one materialized plugin directory.
type CacheRecord struct {
	Harness             string    `cbor:"harness"`
	Key                 string    `cbor:"key"`
	Integrity           string    `cbor:"integrity"`
	MaterializerVersion string    `cbor:"materializerVersion"`
	SpaceKey            string    `cbor:"spaceKey"`
	PluginName          string    `cbor:"pluginName"`
	PluginVersion       string    `cbor:"pluginVersion"`
	Warnings            []string  `cbor:"warnings,omitempty"`
	CreatedAt           time.Time `cbor:"createdAt"`
}

// CachePath returns where the cache entry for harness/key lives.
func (s *Store) CachePath(harness, key string) string {
	return filepath.Join(s.root, cacheDir, harness, key)
}

// CacheEntry reads the record of an existing cache entry. A missing entry
// returns ok == false and no error.
func (s *Store) CacheEntry(harness, key string) (CacheRecord, bool, error) {
	rec, err := s.readRecord(s.CachePath(harness, key))
	if errors.Is(err, os.ErrNotExist) {
		return CacheRecord{}, false, nil
	}
	if err != nil {
		return CacheRecord{}, false, err
	}
	return rec, true, nil
}

// CommitCache builds a cache entry with build and publishes it atomically.
// Warnings returned by build are stored in the record. If the entry
// already exists it is returned untouched. A failed build leaves nothing
// behind.
func (s *Store) CommitCache(ctx context.Context, harness, key string, rec CacheRecord, build func(dir string) ([]string, error)) (string, error) {
	dest := s.CachePath(harness, key)

	v, err, _ := s.flight.Do("cache:"+harness+"/"+key, func() (any, error) {
		if _, ok, err := s.CacheEntry(harness, key); err == nil && ok {
			return dest, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		staged, err := s.stage("cache-")
		if err != nil {
			return nil, err
		}
		warnings, err := build(staged)
		if err != nil {
			os.RemoveAll(staged)
			return nil, err
		}
		rec.Warnings = append(rec.Warnings, warnings...)

		rec.Harness = harness
		rec.Key = key
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		if err := s.writeRecord(staged, rec); err != nil {
			os.RemoveAll(staged)
			return nil, err
		}

		// A half-written entry from a crashed run has no record.
		if _, statErr := os.Stat(dest); statErr == nil {
			if err := os.RemoveAll(dest); err != nil {
				os.RemoveAll(staged)
				return nil, fmt.Errorf("store: clearing stale cache %s: %w", dest, err)
			}
		}
		if err := place(staged, dest); err != nil {
			return nil, fmt.Errorf("store: placing cache %s/%s: %w", harness, key, err)
		}
		s.logf("cached %s/%s (%s)", harness, key, rec.SpaceKey)
		return dest, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (s *Store) writeRecord(dir string, rec CacheRecord) error {
	data, err := s.encMode.Marshal(rec)
	if err != nil {
		return fmt.Errorf("store: encoding cache record: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, EntryRecordName), data, 0o644); err != nil {
		return fmt.Errorf("store: writing cache record: %w", err)
	}
	return nil
}

func (s *Store) readRecord(dir string) (CacheRecord, error) {
	data, err := os.ReadFile(filepath.Join(dir, EntryRecordName))
	if err != nil {
		return CacheRecord{}, err
	}
	var rec CacheRecord
	if err := s.decMode.Unmarshal(data, &rec); err != nil {
		return CacheRecord{}, fmt.Errorf("store: decoding cache record in %s: %w", dir, err)
	}
	return rec, nil
}
