package watcher

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gobwas/glob"

	"declimp/internal/shared/observability"
)

// Watcher debounces file system events on module files and reports changed
// paths in batches.
type Watcher struct {
	fsWatcher    *fsnotify.Watcher
	debounce     time.Duration
	suffix       string
	excludeDirs  []glob.Glob
	excludeFiles []glob.Glob
	onChange     func([]string)
	callbackMu   sync.Mutex

	pending   map[string]time.Time
	pendingMu sync.Mutex
	timer     *time.Timer
	done      chan struct{}
}

func New(debounce time.Duration, suffix string, excludeDirs, excludeFiles []string, onChange func([]string)) (*Watcher, error) {
	if onChange == nil {
		return nil, os.ErrInvalid
	}
	if suffix == "" {
		suffix = ".mod"
	}

	compiledDirs := make([]glob.Glob, 0, len(excludeDirs))
	for _, pattern := range excludeDirs {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiledDirs = append(compiledDirs, g)
	}
	compiledFiles := make([]glob.Glob, 0, len(excludeFiles))
	for _, pattern := range excludeFiles {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}
		compiledFiles = append(compiledFiles, g)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		fsWatcher:    fsw,
		debounce:     debounce,
		suffix:       suffix,
		excludeDirs:  compiledDirs,
		excludeFiles: compiledFiles,
		onChange:     onChange,
		pending:      make(map[string]time.Time),
		done:         make(chan struct{}),
	}, nil
}

// Watch registers the root and all non-excluded subdirectories, then starts
// the event loop.
func (w *Watcher) Watch(root string) error {
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		for _, g := range w.excludeDirs {
			if g.Match(d.Name()) {
				return filepath.SkipDir
			}
		}
		return w.fsWatcher.Add(path)
	})
	if err != nil {
		return err
	}

	go w.loop()
	return nil
}

func (w *Watcher) Close() error {
	close(w.done)
	return w.fsWatcher.Close()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			observability.WatcherEventsTotal.Inc()
			if !w.relevant(event) {
				continue
			}
			w.enqueue(event.Name)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, w.suffix) {
		return false
	}
	for _, g := range w.excludeFiles {
		if g.Match(name) {
			return false
		}
	}
	return true
}

func (w *Watcher) enqueue(path string) {
	w.pendingMu.Lock()
	defer w.pendingMu.Unlock()

	w.pending[path] = time.Now()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

func (w *Watcher) flush() {
	w.pendingMu.Lock()
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]time.Time)
	w.pendingMu.Unlock()

	if len(paths) == 0 {
		return
	}

	w.callbackMu.Lock()
	defer w.callbackMu.Unlock()
	w.onChange(paths)
}
