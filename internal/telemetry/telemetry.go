// Package telemetry provides a JSONL event stream for install and build
// runs. Resolution, snapshot creation, cache hits and misses, composition
// and GC are each recorded as one structured JSON line tagged with the run
// that produced it.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event kinds identify the type of telemetry event.
const (
	KindRunStart         = "run_start"
	KindRunDone          = "run_done"
	KindResolved         = "resolved"
	KindLockWritten      = "lock_written"
	KindSnapshotCreated  = "snapshot_created"
	KindCacheHit         = "cache_hit"
	KindCacheMiss        = "cache_miss"
	KindMaterialized     = "materialized"
	KindComposed         = "composed"
	KindHarnessMissing   = "harness_missing"
	KindGCDone           = "gc_done"
	KindMaterializeError = "materialize_error"
)

// Event represents a single telemetry record. Each event carries a
// timestamp, a kind tag, the run ID, and optional context identifiers
// (target, harness, space key) along with arbitrary structured data.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Kind      string    `json:"kind"`
	RunID     string    `json:"run,omitempty"`
	Target    string    `json:"target,omitempty"`
	Harness   string    `json:"harness,omitempty"`
	Space     string    `json:"space,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// Emitter writes telemetry events to a JSONL file. It is safe for concurrent
// use by multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	file  *os.File
	enc   *json.Encoder
	runID string
	mu    sync.Mutex
}

// NewEmitter creates a new Emitter that writes JSONL events to the file at
// path. The file is created if it does not exist, or appended to if it does.
// Every event emitted through it is stamped with a fresh run ID.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	return &Emitter{
		file:  f,
		enc:   json.NewEncoder(f),
		runID: uuid.NewString(),
	}, nil
}

// RunID returns the ID stamped on this emitter's events, or "" for a nil
// emitter.
func (e *Emitter) RunID() string {
	if e == nil {
		return ""
	}
	return e.runID
}

// Emit writes a single event to the JSONL file. A zero Timestamp is set to
// now and an empty RunID to the emitter's. Calling Emit on a nil Emitter is
// a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now().UTC()
	}
	if evt.RunID == "" {
		evt.RunID = e.runID
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying file. Calling Close on a nil
// Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.file.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
