// Package watcher tracks file system changes under a project root and
// reports them in debounced batches of root-relative paths, sized for
// incremental index refresh.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	ignore "github.com/sabhiram/go-gitignore"

	"crev/internal/config"
	"crev/internal/index"
	"crev/internal/logging"
)

// BatchHandler receives the relative paths that changed since the last
// flush. Paths may no longer exist on disk; deletions are reported too.
type BatchHandler func(paths []string)

// Watcher monitors a project tree and coalesces raw events into batches.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	root      string
	ignorer   *ignore.GitIgnore
	debounce  time.Duration
	onBatch   BatchHandler

	mu      sync.Mutex
	pending map[string]time.Time
	running bool

	done     chan struct{}
	stopOnce sync.Once
}

// New creates a watcher for root. A disabled config yields an inert
// watcher whose Start and Stop are no-ops.
func New(root string, cfg config.WatcherConfig) (*Watcher, error) {
	if !cfg.Enabled {
		return &Watcher{root: root}, nil
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}

	w := &Watcher{
		fsWatcher: fsWatcher,
		root:      root,
		debounce:  debounce,
		pending:   make(map[string]time.Time),
		done:      make(chan struct{}),
	}
	if data, err := os.ReadFile(filepath.Join(root, ".gitignore")); err == nil {
		w.ignorer = ignore.CompileIgnoreLines(strings.Split(string(data), "\n")...)
	}
	return w, nil
}

// SetOnBatch sets the callback invoked with each debounced batch.
func (w *Watcher) SetOnBatch(handler BatchHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onBatch = handler
}

// Start registers the directory tree and begins event processing.
func (w *Watcher) Start() error {
	if w.fsWatcher == nil {
		return nil
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.addDirectories(); err != nil {
		return err
	}

	go w.processEvents()
	go w.processDebounce()
	return nil
}

// Stop halts event processing and releases the OS watches.
func (w *Watcher) Stop() error {
	if w.fsWatcher == nil {
		return nil
	}

	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.stopOnce.Do(func() {
		close(w.done)
	})
	return w.fsWatcher.Close()
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) addDirectories() error {
	return filepath.Walk(w.root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			return nil
		}
		if path != w.root && index.SkipDir(info.Name()) {
			return filepath.SkipDir
		}
		if w.ignored(path, true) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			logging.Warn("watch directory", "path", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	base := filepath.Base(path)
	if len(base) > 0 && (base[0] == '.' || base[0] == '#' || base[len(base)-1] == '~') {
		return
	}

	// New directories get added to the watch list so their contents are
	// covered too.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !index.SkipDir(info.Name()) && !w.ignored(path, true) {
				if err := w.fsWatcher.Add(path); err != nil {
					logging.Warn("watch directory", "path", path, "error", err)
				}
			}
			return
		}
	}

	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)
	if !index.IsSourceFile(rel) {
		return
	}
	if w.ignored(path, false) {
		return
	}

	w.mu.Lock()
	w.pending[rel] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounce() {
	interval := w.debounce / 2
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.flushPending()
		}
	}
}

// flushPending batches paths whose last event is older than the debounce
// window and hands them to the callback.
func (w *Watcher) flushPending() {
	w.mu.Lock()
	handler := w.onBatch
	if handler == nil || len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}

	now := time.Now()
	var batch []string
	for rel, eventTime := range w.pending {
		if now.Sub(eventTime) >= w.debounce {
			batch = append(batch, rel)
			delete(w.pending, rel)
		}
	}
	w.mu.Unlock()

	if len(batch) > 0 {
		handler(batch)
	}
}

func (w *Watcher) ignored(path string, isDir bool) bool {
	if w.ignorer == nil {
		return false
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	rel = filepath.ToSlash(rel)
	if isDir {
		rel += "/"
	}
	return w.ignorer.MatchesPath(rel)
}
