package embedcache

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watchdog watches the cache directory for mutations of *.vec files and
// metadata.json. The cache directory is meant to be exclusive to one
// process, but nothing enforces that at the filesystem level, so this
// is a best-effort detector, not a lock. It does not tell this
// process's own writes apart from another process's: every create,
// write, remove or rename event on such a file, including the ones
// Cache.Set and Cache.Invalidate cause, is logged as a warning, with
// rapid events on the same path debounced into a single log line.
type Watchdog struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	mu       sync.Mutex
	pending  map[string]time.Time
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewWatchdog builds a Watchdog over dir.
func NewWatchdog(dir string) (*Watchdog, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watchdog{
		watcher:  fsWatcher,
		dir:      dir,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]time.Time),
		stopCh:   make(chan struct{}),
	}, nil
}

// Watch blocks, watching dir until ctx is canceled or Stop is called.
func (w *Watchdog) Watch(ctx context.Context) error {
	if err := w.watcher.Add(w.dir); err != nil {
		return err
	}

	go w.processDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("Warning: embedding cache watchdog error: %v", err)
		}
	}
}

// Stop releases the underlying fsnotify watcher.
func (w *Watchdog) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
	})
}

func (w *Watchdog) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if name != "metadata.json" && !strings.HasSuffix(name, ".vec") {
		return
	}
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.mu.Lock()
	w.pending[event.Name] = time.Now()
	w.mu.Unlock()
}

func (w *Watchdog) processDebounced(ctx context.Context) {
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.flush()
		}
	}
}

func (w *Watchdog) flush() {
	w.mu.Lock()
	now := time.Now()
	var ready []string
	for path, at := range w.pending {
		if now.Sub(at) >= w.debounce {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		log.Printf("Warning: embedding cache detected a write to %s; cache directory is expected to be single-process-exclusive", path)
	}
}
