package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"dataset-tagger/internal/imagetypes"
	"dataset-tagger/internal/logging"
	"dataset-tagger/internal/metrics"

	"github.com/fsnotify/fsnotify"
)

var log = logging.For("watcher")

// DefaultDebounce is how long a path must be quiet before it is ingested
const DefaultDebounce = 500 * time.Millisecond

// Target receives the changes the watcher observes.
type Target interface {
	Ingest(ctx context.Context, path string) (imagetypes.ImageID, error)
	Forget(path string) bool
	ForgetUnder(dir string) int
}

// Watcher watches one dataset root.
type Watcher struct {
	root     string
	target   Target
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*pendingIngest
	wg      sync.WaitGroup

	ready chan struct{}
}

type pendingIngest struct {
	timer *time.Timer
}

// New returns a watcher for root. A non-positive debounce selects
// DefaultDebounce.
func New(root string, target Target, debounce time.Duration) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		root:     root,
		target:   target,
		debounce: debounce,
		pending:  make(map[string]*pendingIngest),
		ready:    make(chan struct{}),
	}
}

// Run watches until ctx is done. It returns an error only if the watcher
// cannot be created.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return err
	}
	defer func() {
		if err := fw.Close(); err != nil {
			log.Error("failed to close file watcher: %v", err)
		}
	}()

	count := w.addTree(fw, w.root)
	metrics.WatchedDirectories.Set(float64(count))
	log.Info("watching %d directories under %s", count, w.root)
	close(w.ready)

	defer w.stopPending()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, event)
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			log.Error("watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

// Ready is closed once the initial directories are being watched.
func (w *Watcher) Ready() <-chan struct{} { return w.ready }

// addTree watches dir and every non-hidden directory below it.
func (w *Watcher) addTree(fw *fsnotify.Watcher, dir string) int {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && hidden(d.Name()) {
			return filepath.SkipDir
		}
		if addErr := fw.Add(path); addErr != nil {
			log.Warn("failed to watch %s: %v", path, addErr)
			metrics.WatcherErrors.Inc()
			return nil
		}
		count++
		return nil
	})
	if err != nil {
		log.Error("failed to walk %s for watching: %v", dir, err)
		metrics.WatcherErrors.Inc()
	}
	return count
}

func hidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// hiddenPath reports whether any element of path below the root is hidden.
func (w *Watcher) hiddenPath(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if hidden(part) {
			return true
		}
	}
	return false
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	if w.hiddenPath(event.Name) {
		return
	}
	metrics.WatcherEventsTotal.WithLabelValues(eventType(event.Op)).Inc()

	switch {
	case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		w.cancelPending(event.Name)
		if w.target.Forget(event.Name) {
			log.Debug("removed %s", event.Name)
			return
		}
		if n := w.target.ForgetUnder(event.Name); n > 0 {
			log.Info("directory %s removed, dropped %d images", event.Name, n)
		}
	case event.Op&fsnotify.Create != 0:
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			n := w.addTree(fw, event.Name)
			metrics.WatchedDirectories.Add(float64(n))
			w.ingestTree(ctx, event.Name)
			return
		}
		w.schedule(ctx, event.Name)
	case event.Op&fsnotify.Write != 0:
		w.schedule(ctx, event.Name)
	}
}

// ingestTree schedules every image already inside a new directory.
func (w *Watcher) ingestTree(ctx context.Context, dir string) {
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && hidden(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !hidden(d.Name()) {
			w.schedule(ctx, path)
		}
		return nil
	})
}

// schedule ingests path once no event has touched it for the debounce period.
func (w *Watcher) schedule(ctx context.Context, path string) {
	if !imagetypes.IsSupportedImage(path) {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		p.timer.Reset(w.debounce)
		return
	}

	p := &pendingIngest{}
	w.wg.Add(1)
	p.timer = time.AfterFunc(w.debounce, func() {
		defer w.wg.Done()
		w.mu.Lock()
		if w.pending[path] == p {
			delete(w.pending, path)
		}
		w.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		if _, err := w.target.Ingest(ctx, path); err != nil {
			log.Warn("ingest %s: %v", path, err)
			return
		}
		log.Debug("ingested %s", path)
	})
	w.pending[path] = p
}

func (w *Watcher) cancelPending(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if p, ok := w.pending[path]; ok && p.timer.Stop() {
		delete(w.pending, path)
		w.wg.Done()
	}
}

// stopPending drops timers that have not fired and waits for running ones.
func (w *Watcher) stopPending() {
	w.mu.Lock()
	for path, p := range w.pending {
		if p.timer.Stop() {
			delete(w.pending, path)
			w.wg.Done()
		}
	}
	w.mu.Unlock()
	w.wg.Wait()
}

func eventType(op fsnotify.Op) string {
	switch {
	case op&fsnotify.Create != 0:
		return "create"
	case op&fsnotify.Write != 0:
		return "write"
	case op&fsnotify.Remove != 0:
		return "remove"
	case op&fsnotify.Rename != 0:
		return "rename"
	case op&fsnotify.Chmod != 0:
		return "chmod"
	default:
		return "unknown"
	}
}
