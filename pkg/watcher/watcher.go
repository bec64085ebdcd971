// Package watcher batches file-system changes under a set of roots and hands
// them to handlers once the tree has been quiet for a debounce delay.
package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const DefaultDebounceDelay = 500 * time.Millisecond

// DefaultSkipDirs contains directories never watched or walked.
// Organized by language/ecosystem but applied universally for simplicity.
var DefaultSkipDirs = map[string]bool{
	// Version control
	".git": true, ".svn": true, ".hg": true,

	// qguard history
	".qguard": true,

	// Node/JavaScript/TypeScript
	"node_modules": true,
	"dist":         true,
	".next":        true,
	"coverage":     true,
	".cache":       true,

	// Python
	"__pycache__":   true,
	".venv":         true,
	"venv":          true,
	".tox":          true,
	".mypy_cache":   true,
	".pytest_cache": true,
	"site-packages": true,

	// Go
	"vendor": true,

	// Rust
	"target": true,

	// Java/Kotlin/Gradle
	"build":   true,
	".gradle": true,

	// IDE/Editor
	".idea":   true,
	".vscode": true,
}

// SkipDir reports whether a directory with this base name is excluded by
// default: the names above and any other hidden directory.
func SkipDir(name string) bool {
	return DefaultSkipDirs[name] || (len(name) > 1 && name[0] == '.')
}

// Config configures a Watcher.
type Config struct {
	Paths         []string
	DebounceDelay time.Duration
	SkipDirs      []string
	FileFilter    func(path string) bool
	Logger        *zap.Logger
}

// FileChangeHandler receives each debounced batch of changes.
type FileChangeHandler interface {
	OnChanges(files map[string]fsnotify.Op)
}

type FileChangeHandlerFunc func(files map[string]fsnotify.Op)

func (f FileChangeHandlerFunc) OnChanges(files map[string]fsnotify.Op) {
	f(files)
}

type Watcher struct {
	fsnotify  *fsnotify.Watcher
	config    Config
	skip      map[string]bool
	handlers  []FileChangeHandler
	log       *zap.Logger
	stop      chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	startTime time.Time

	mu          sync.Mutex
	pending     map[string]fsnotify.Op
	armed       bool
	watchPaths  []string
	dirsWatched int
}

func New(config Config, handlers ...FileChangeHandler) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if config.DebounceDelay <= 0 {
		config.DebounceDelay = DefaultDebounceDelay
	}
	log := config.Logger
	if log == nil {
		log = zap.NewNop()
	}

	skip := make(map[string]bool, len(DefaultSkipDirs)+len(config.SkipDirs))
	for k, v := range DefaultSkipDirs {
		skip[k] = v
	}
	for _, d := range config.SkipDirs {
		skip[d] = true
	}

	return &Watcher{
		fsnotify: fsWatcher,
		config:   config,
		skip:     skip,
		handlers: handlers,
		log:      log,
		stop:     make(chan struct{}),
		pending:  make(map[string]fsnotify.Op),
	}, nil
}

// AddHandler must be called before Start.
func (w *Watcher) AddHandler(h FileChangeHandler) {
	w.handlers = append(w.handlers, h)
}

func (w *Watcher) skipDir(name string) bool {
	return w.skip[name] || (len(name) > 1 && name[0] == '.')
}

func (w *Watcher) Start() error {
	paths := w.config.Paths
	if len(paths) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		paths = []string{cwd}
	}

	w.watchPaths = paths

	for _, root := range paths {
		err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil
			}
			if path != root && w.skipDir(d.Name()) {
				return filepath.SkipDir
			}
			w.addDir(path)
			return nil
		})
		if err != nil {
			return err
		}
	}

	w.startTime = time.Now()
	w.wg.Add(1)
	go w.processEvents()

	w.log.Info("watching",
		zap.Int("dirs", w.DirsWatched()),
		zap.Strings("paths", paths),
		zap.Duration("debounce", w.config.DebounceDelay))
	return nil
}

func (w *Watcher) addDir(path string) bool {
	if err := w.fsnotify.Add(path); err != nil {
		w.log.Debug("cannot watch directory", zap.String("path", path), zap.Error(err))
		return false
	}
	w.mu.Lock()
	w.dirsWatched++
	w.mu.Unlock()
	return true
}

// Stop discards pending changes and waits for in-flight handlers.
func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
	return w.fsnotify.Close()
}

// DirsWatched returns the number of directories registered so far.
func (w *Watcher) DirsWatched() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dirsWatched
}

func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return WatcherStats{
		Paths:        w.watchPaths,
		DirsWatched:  w.dirsWatched,
		Debounce:     w.config.DebounceDelay,
		PendingFiles: len(w.pending),
		Uptime:       time.Since(w.startTime),
	}
}

type WatcherStats struct {
	Paths        []string
	DirsWatched  int
	Debounce     time.Duration
	PendingFiles int
	Uptime       time.Duration
}

// ignoredFile matches editor swap and temp files.
func ignoredFile(name string) bool {
	return strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasSuffix(name, ".tmp")
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !w.skipDir(filepath.Base(event.Name)) && w.addDir(event.Name) {
						w.log.Debug("watching new directory", zap.String("path", event.Name))
					}
					continue
				}
			}

			if ignoredFile(filepath.Base(event.Name)) {
				continue
			}
			if w.config.FileFilter != nil && !w.config.FileFilter(event.Name) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0 {
				w.queueChange(event.Name, event.Op)
			}

		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			w.log.Warn("watch error", zap.Error(err))
		}
	}
}

func (w *Watcher) queueChange(path string, op fsnotify.Op) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] |= op
	if w.armed {
		return
	}
	w.armed = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		select {
		case <-time.After(w.config.DebounceDelay):
			w.flushPending()
		case <-w.stop:
		}
	}()
}

func (w *Watcher) flushPending() {
	w.mu.Lock()
	pending := w.pending
	w.pending = make(map[string]fsnotify.Op)
	w.armed = false
	w.mu.Unlock()

	if len(pending) == 0 {
		return
	}

	w.log.Debug("processing file changes", zap.Int("files", len(pending)))

	for _, h := range w.handlers {
		h.OnChanges(pending)
	}
}

// IsRemove reports whether op includes a removal. Ops accumulate over a
// debounce window, so a file removed and recreated reports true as well.
func IsRemove(op fsnotify.Op) bool {
	return op&fsnotify.Remove != 0
}
