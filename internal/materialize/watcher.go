package materialize

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/papapumpkin/asp/internal/lockfile"
	"github.com/papapumpkin/asp/internal/registry"
)

// Change reports that a dev Space's working tree changed.
type Change struct {
	ID   string // Space id
	File string // Absolute path of the last changed file
}

// Watcher monitors dev Space working trees using fsnotify and emits one
// debounced Change per Space.
type Watcher struct {
	Changes <-chan Change // Read-only external channel

	roots    map[string]string // dir -> space id
	changes  chan Change       // Internal write channel
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
	watcher  *fsnotify.Watcher
	debounce time.Duration
}

// DevSpaces returns the ids of dev Spaces in the given targets of a lock,
// mapped to their working tree. Unknown targets are skipped.
func DevSpaces(lf *lockfile.LockFile, targets []string, reg registry.Access) map[string]string {
	out := make(map[string]string)
	for _, name := range targets {
		t, err := lf.Target(name)
		if err != nil {
			continue
		}
		for _, key := range t.LoadOrder {
			if key.IsDev() {
				out[key.ID()] = reg.WorkingPath(key.ID())
			}
		}
	}
	return out
}

// NewWatcher creates a watcher over the given id -> working tree map.
func NewWatcher(spaces map[string]string, debounce time.Duration) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}

	ch := make(chan Change, 16)
	w := &Watcher{
		Changes:  ch,
		roots:    make(map[string]string, len(spaces)),
		changes:  ch,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		watcher:  fw,
		debounce: debounce,
	}
	for id, dir := range spaces {
		abs, err := filepath.Abs(dir)
		if err != nil {
			fw.Close()
			return nil, err
		}
		w.roots[abs] = id
	}
	return w, nil
}

// Start begins watching every Space tree, including subdirectories.
func (w *Watcher) Start() error {
	for dir := range w.roots {
		if err := w.addTree(dir); err != nil {
			return err
		}
	}
	go w.loop()
	return nil
}

// Stop closes the watcher and channels. It does not wait for a reader:
// changes nobody has received are dropped. Stop is safe to call twice.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.watcher.Close()
		<-w.done // Wait for loop to exit
		close(w.changes)
	})
}

// addTree watches dir and every directory below it. fsnotify watches are
// not recursive.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if d.Name() == ".git" {
			return filepath.SkipDir
		}
		return w.watcher.Add(path)
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	// Debounce: track last event time per space.
	pending := make(map[string]time.Time)
	last := make(map[string]string)
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				// Drain pending on close.
				for id := range pending {
					select {
					case w.changes <- Change{ID: id, File: last[id]}:
					default:
					}
				}
				return
			}
			id := w.spaceOf(event.Name)
			if id == "" {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = w.addTree(event.Name)
				}
			}
			pending[id] = time.Now()
			last[id] = event.Name

		case now := <-ticker.C:
			for id, t := range pending {
				if now.Sub(t) < w.debounce {
					continue
				}
				select {
				case w.changes <- Change{ID: id, File: last[id]}:
					delete(pending, id)
				case <-w.stop:
					return
				}
			}

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Ignore watch errors; they're non-fatal.
		}
	}
}

// spaceOf maps a path to the id of the Space tree containing it.
func (w *Watcher) spaceOf(path string) string {
	if strings.Contains(filepath.ToSlash(path), "/.git/") {
		return ""
	}
	for root, id := range w.roots {
		if path == root || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return id
		}
	}
	return ""
}
