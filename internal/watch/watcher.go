// Package watch reports changes to board files on disk.
//
// The watcher observes the directory containing each file rather than the
// file itself: a commit replaces the file by renaming a temp file over it,
// which would silently end a watch on the old inode.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"boardedit/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Handler is called once per settled change. exists is false when the
// file was removed or renamed away.
type Handler func(ctx context.Context, path string, exists bool)

// Stats counts what the watcher has seen.
type Stats struct {
	Created       int
	Modified      int
	Removed       int
	Delivered     int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

// Watcher debounces filesystem events for a set of files.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	handler     Handler
	files       map[string]bool
	pending     map[string]pendingEvent
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool

	stats Stats
}

type pendingEvent struct {
	at     time.Time
	exists bool
}

// DefaultDebounce is the quiet period before a change is delivered. Editors
// and commits often produce several events for one save.
const DefaultDebounce = 200 * time.Millisecond

// New creates a watcher that calls handler for changes to the given files.
func New(handler Handler, debounce time.Duration, files ...string) (*Watcher, error) {
	if handler == nil {
		return nil, fmt.Errorf("watch: nil handler")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: %w", err)
	}
	w := &Watcher{
		watcher:     fw,
		handler:     handler,
		files:       make(map[string]bool),
		pending:     make(map[string]pendingEvent),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, f := range files {
		abs, err := filepath.Abs(f)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("watch: %w", err)
		}
		w.files[abs] = true
	}
	return w, nil
}

// Start begins watching. It returns once the directories are registered.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	dirs := make(map[string]bool)
	for f := range w.files {
		dirs[filepath.Dir(f)] = true
	}
	for dir := range dirs {
		if err := w.watcher.Add(dir); err != nil {
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		logging.Watch("watching %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop ends the watch and waits for the event loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		_ = w.watcher.Close()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.WatchWarn("error closing watcher: %v", err)
	}
	logging.Watch("watcher stopped")
}

// Done is closed when the event loop exits.
func (w *Watcher) Done() <-chan struct{} { return w.doneCh }

// Stats returns a copy of the counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := time.NewTicker(w.debounceDur / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.WatchDebug("context cancelled")
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.WatchWarn("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()
		case <-tick.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if !w.files[path] {
		return
	}

	var kind string
	exists := true
	switch {
	case event.Op&fsnotify.Create != 0:
		kind = "create"
	case event.Op&fsnotify.Write != 0:
		kind = "modify"
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		kind = "remove"
		exists = false
	default:
		return
	}
	logging.WatchDebug("%s event for %s", kind, path)

	w.mu.Lock()
	defer w.mu.Unlock()
	now := time.Now()
	w.stats.LastEventTime = now
	w.stats.LastEventPath = path
	w.stats.LastEventType = kind
	switch kind {
	case "create":
		w.stats.Created++
	case "modify":
		w.stats.Modified++
	case "remove":
		w.stats.Removed++
	}
	w.pending[path] = pendingEvent{at: now, exists: exists}
}

// flush delivers changes that have been quiet for the debounce period.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	var exists []bool
	for path, ev := range w.pending {
		if now.Sub(ev.at) >= w.debounceDur {
			ready = append(ready, path)
			exists = append(exists, ev.exists)
			delete(w.pending, path)
		}
	}
	w.stats.Delivered += len(ready)
	w.mu.Unlock()

	for i, path := range ready {
		w.handler(ctx, path, exists[i])
	}
}
