package store

import (
	"context"
	"os"
	"time"
)

// Lease kinds.
const (
	LeaseSnapshot = "snapshot"
	LeaseCache    = "cache"
)

// Lease marks an entry as in use so GC, in this or another process, leaves
// it alone until the returned release is called or the lease expires.
// Leases are reference counted within one Store.
func (s *Store) Lease(ctx context.Context, kind, key string) (release func(), err error) {
	id := kind + "\x00" + key

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leases[id] == 0 {
		if err := s.index.putLease(ctx, kind, key, s.holder, time.Now().Add(s.leaseTTL)); err != nil {
			return nil, err
		}
	}
	s.leases[id]++

	var once bool
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if once {
			return
		}
		once = true
		s.leases[id]--
		if s.leases[id] <= 0 {
			delete(s.leases, id)
			_ = s.index.dropLease(context.Background(), kind, key, s.holder)
		}
	}, nil
}

// leased reports whether kind/key is leased by this Store or appears in
// the active cross-process lease set.
func (s *Store) leased(active map[string]map[string]bool, kind, key string) bool {
	s.mu.Lock()
	n := s.leases[kind+"\x00"+key]
	s.mu.Unlock()
	return n > 0 || active[kind][key]
}

// removeUnleased deletes path unless kind/key is leased now. The GC pass
// reads the lease table once up front; this re-checks right before the
// delete. s.mu is held across the check and the removal, so a Lease on this
// Store either lands first and wins or waits for the removal to finish.
func (s *Store) removeUnleased(ctx context.Context, kind, key, path string) (bool, error) {
	if s.gcHook != nil {
		s.gcHook(kind, key)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leases[kind+"\x00"+key] > 0 {
		return false, nil
	}
	held, err := s.index.leaseHeld(ctx, kind, key, time.Now())
	if err != nil || held {
		return false, err
	}
	return true, os.RemoveAll(path)
}
