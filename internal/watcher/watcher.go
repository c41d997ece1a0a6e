// Package watcher provides drop-directory ingestion: spreadsheets copied into
// a watched inbox are debounced and handed to a processing callback.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 2 * time.Second

// outputPrefix marks generated workbooks so an inbox that doubles as the
// output directory never re-ingests its own results.
const outputPrefix = "RTM_"

// ProcessFunc handles one detected spreadsheet. It is invoked from the
// watcher's goroutines after the debounce window closes.
type ProcessFunc func(path string)

// Watcher watches inbox directories and invokes a ProcessFunc for each new or
// rewritten spreadsheet.
type Watcher struct {
	roots       []string
	extensions  []string
	recursive   bool
	process     ProcessFunc
	debounce    time.Duration
	watcher     *fsnotify.Watcher
	mu          sync.Mutex
	debounceMap map[string]*time.Timer
	inflight    map[string]bool
	done        chan struct{}
	started     bool
	stopOnce    sync.Once
	logger      *zap.Logger
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithLogger sets a logger for event output.
func WithLogger(l *zap.Logger) Option {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce overrides the debounce window applied to file events.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) { w.debounce = d }
}

// New creates a watcher over the given inbox roots. extensions filters which
// files are ingested (empty = all); process is called for each detected file.
func New(roots []string, extensions []string, recursive bool, process ProcessFunc, opts ...Option) *Watcher {
	w := &Watcher{
		roots:       roots,
		extensions:  extensions,
		recursive:   recursive,
		process:     process,
		debounce:    defaultDebounce,
		debounceMap: make(map[string]*time.Timer),
		inflight:    make(map[string]bool),
		done:        make(chan struct{}),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins watching. It runs until ctx is cancelled or Stop is called.
// Missing inbox directories are created.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	w.watcher = watcher
	w.started = true
	w.logger.Info("inbox watcher starting",
		zap.Strings("directories", w.roots),
		zap.Strings("extensions", w.extensions),
		zap.Bool("recursive", w.recursive))
	for _, root := range w.roots {
		if err := w.addRootLocked(root); err != nil {
			_ = w.watcher.Close()
			w.watcher = nil
			w.started = false
			w.mu.Unlock()
			return err
		}
	}
	w.mu.Unlock()
	go w.run(ctx)
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Warn("inbox watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	path := ev.Name
	switch ev.Op {
	case fsnotify.Create, fsnotify.Write:
		info, err := os.Stat(path)
		if err == nil && info.IsDir() {
			w.handleNewDirectory(path)
			return
		}
		if w.ingestible(path) {
			w.debounceProcess(path)
		}
	case fsnotify.Remove, fsnotify.Rename:
		w.cancelDebounce(path)
	}
}

// handleNewDirectory registers a directory created inside a watched root and
// ingests any spreadsheets already inside it.
func (w *Watcher) handleNewDirectory(dirPath string) {
	w.mu.Lock()
	recursive := w.recursive
	watcher := w.watcher
	w.mu.Unlock()

	if watcher == nil || !recursive {
		return
	}
	w.logger.Debug("inbox watcher adding new directory", zap.String("path", dirPath))

	filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if err := watcher.Add(path); err != nil {
				w.logger.Warn("inbox watcher failed to watch directory",
					zap.String("path", path), zap.Error(err))
			}
		}
		return nil
	})
	w.syncDirectory(dirPath)
}

// ingestible reports whether path looks like a source spreadsheet: the
// extension matches, and the file is neither an editor temp file nor one of
// our own generated workbooks.
func (w *Watcher) ingestible(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false
	}
	if strings.HasPrefix(base, outputPrefix) {
		return false
	}
	return matchExtension(path, w.extensions)
}

func matchExtension(path string, extensions []string) bool {
	if len(extensions) == 0 {
		return true
	}
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	for _, e := range extensions {
		if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
			return true
		}
	}
	return false
}

// debounceProcess schedules processing for path, resetting the timer on every
// new event so a file still being copied is picked up only once, after writes
// settle.
func (w *Watcher) debounceProcess(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
	}
	t := time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.debounceMap, path)
		w.mu.Unlock()
		w.dispatch(path)
	})
	w.debounceMap[path] = t
}

func (w *Watcher) cancelDebounce(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t, ok := w.debounceMap[path]; ok {
		t.Stop()
		delete(w.debounceMap, path)
	}
}

// dispatch runs the processing callback for path unless a run for the same
// path is already in flight.
func (w *Watcher) dispatch(path string) {
	w.mu.Lock()
	if w.inflight[path] || w.process == nil {
		w.mu.Unlock()
		return
	}
	w.inflight[path] = true
	w.mu.Unlock()

	w.logger.Info("inbox watcher ingesting spreadsheet", zap.String("path", path))
	w.process(path)

	w.mu.Lock()
	delete(w.inflight, path)
	w.mu.Unlock()
}

func (w *Watcher) addRootLocked(root string) error {
	root = filepath.Clean(root)
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(root, 0o755); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	if !w.recursive {
		return w.watcher.Add(root)
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.watcher.Add(path)
		}
		return nil
	})
}

func (w *Watcher) syncDirectory(root string) {
	filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		if w.ingestible(path) {
			go w.dispatch(path)
		}
		return nil
	})
}

// ProcessExisting ingests spreadsheets already present in the watched roots.
// Call after Start to pick up files dropped while the service was down.
func (w *Watcher) ProcessExisting() {
	w.mu.Lock()
	roots := append([]string(nil), w.roots...)
	w.mu.Unlock()
	for _, root := range roots {
		w.syncDirectory(root)
	}
}

// Directories returns a copy of the watched inbox roots.
func (w *Watcher) Directories() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.roots...)
}

// Stop stops the watcher and releases resources.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started || w.watcher == nil {
		w.mu.Unlock()
		return
	}
	for path, t := range w.debounceMap {
		t.Stop()
		delete(w.debounceMap, path)
	}
	_ = w.watcher.Close()
	w.watcher = nil
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
