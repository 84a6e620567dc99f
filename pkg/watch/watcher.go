// Package watch regenerates the document whenever the source tree changes.
package watch

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"src2org/pkg/ignore"
)

// DefaultDebounce is used when Options.Debounce is not positive.
const DefaultDebounce = 300 * time.Millisecond

// Regenerate rebuilds the whole output document.
type Regenerate func() error

// Options tunes a Watcher.
type Options struct {
	Debounce time.Duration
	// Ignore drops events under paths the conversion would skip anyway.
	Ignore *ignore.Matcher
	// Exclude lists paths, such as the output document, whose events are dropped.
	Exclude []string
}

// Watcher runs Regenerate after each burst of filesystem changes under a root.
type Watcher struct {
	watcher   *fsnotify.Watcher
	root      string
	onlyFile  string // set when the root is a single file
	ignore    *ignore.Matcher
	excluded  map[string]struct{}
	debouncer *Debouncer
	regen     Regenerate
	logger    *zap.Logger

	mu sync.Mutex // serializes regenerations
}

// New creates a Watcher for root, a file or directory. A symlinked root is
// watched at its target.
func New(root string, regen Regenerate, logger *zap.Logger, opts Options) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	if abs, err = filepath.EvalSymlinks(abs); err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("stat watch root: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		watcher:  fw,
		root:     abs,
		ignore:   opts.Ignore,
		excluded: make(map[string]struct{}, 2*len(opts.Exclude)),
		regen:    regen,
		logger:   logger,
	}
	w.debouncer = NewDebouncer(debounce, w.regenerate)
	for _, p := range opts.Exclude {
		p, err := filepath.Abs(p)
		if err != nil {
			continue
		}
		w.excluded[p] = struct{}{}
		if rp, err := filepath.EvalSymlinks(p); err == nil {
			w.excluded[rp] = struct{}{}
		}
	}

	if info.IsDir() {
		err = w.addRecursive(abs)
	} else {
		w.onlyFile = abs
		err = fw.Add(filepath.Dir(abs))
	}
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	return w, nil
}

// addRecursive watches dir and every directory below it that is not ignored.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && w.ignored(path, true) {
			w.logger.Debug("Not watching ignored directory", zap.String("path", path))
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("watch %s: %w", path, err)
		}
		return nil
	})
}

// ignored reports whether path matches an ignore pattern relative to the root.
func (w *Watcher) ignored(path string, isDir bool) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	return w.ignore.Match(rel, isDir)
}

// Relevant reports whether an event on path should trigger a regeneration.
func (w *Watcher) Relevant(path string) bool {
	path = filepath.Clean(path)
	if _, ok := w.excluded[path]; ok {
		return false
	}
	if w.onlyFile != "" {
		return path == w.onlyFile
	}
	// A removed path no longer stats; patterns for its contents still match.
	info, err := os.Lstat(path)
	isDir := err == nil && info.IsDir()
	return !w.ignored(path, isDir)
}

// Run blocks until ctx is cancelled, regenerating after each debounced burst.
// Changes still inside the debounce window at cancellation are written out
// before Run returns.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	defer w.debouncer.Stop()

	w.logger.Info("Watching for changes", zap.String("path", w.root))
	for {
		select {
		case <-ctx.Done():
			if w.debouncer.Pending() {
				w.logger.Info("Flushing pending changes before exit")
			}
			w.debouncer.Flush()
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.Relevant(event.Name) || event.Op == fsnotify.Chmod {
				continue
			}
			if event.Op.Has(fsnotify.Create) && w.onlyFile == "" {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						w.logger.Warn("Failed to watch new directory", zap.String("path", event.Name), zap.Error(err))
					}
				}
			}
			w.logger.Debug("Change detected", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			w.debouncer.Trigger()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher error: %w", err)
		}
	}
}

func (w *Watcher) regenerate(changes int) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.logger.Info("Regenerating document", zap.String("path", w.root), zap.Int("changes", changes))
	if err := w.regen(); err != nil {
		w.logger.Error("Regeneration failed", zap.Error(err))
	}
}
