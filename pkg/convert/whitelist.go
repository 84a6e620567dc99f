package convert

import (
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// Whitelist holds the directories that have at least one regular file
// somewhere beneath them. Membership is by exact cleaned path.
type Whitelist map[string]struct{}

// Contains reports whether dir is reachable.
func (wl Whitelist) Contains(dir string) bool {
	_, ok := wl[filepath.Clean(dir)]
	return ok
}

// markAncestors adds dir and each of its ancestors up to root.
func (wl Whitelist) markAncestors(root, dir string) {
	for {
		if _, ok := wl[dir]; ok {
			return
		}
		wl[dir] = struct{}{}
		if dir == root {
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return
		}
		dir = parent
	}
}

type entryKind int

const (
	kindOther entryKind = iota
	kindFile
	kindDir
)

// resolveKind classifies an entry, following symlinks. A dangling link is kindOther.
func resolveKind(path string, d fs.DirEntry) entryKind {
	mode := d.Type()
	if mode&fs.ModeSymlink != 0 {
		info, err := os.Stat(path)
		if err != nil {
			return kindOther
		}
		mode = info.Mode().Type()
	}
	switch {
	case mode.IsDir():
		return kindDir
	case mode.IsRegular():
		return kindFile
	default:
		return kindOther
	}
}

// buildWhitelist walks the tree under w.root once. Symlinked directories are
// not descended, so they never become reachable.
func (w *walk) buildWhitelist() (Whitelist, error) {
	wl := Whitelist{}
	err := filepath.WalkDir(w.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if path == w.root {
			return nil
		}
		if w.skip(path, d.IsDir()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || resolveKind(path, d) != kindFile {
			return nil
		}
		wl.markAncestors(w.root, filepath.Dir(path))
		return nil
	})
	w.logger.Debug("Built directory whitelist", zap.Int("directories", len(wl)))
	return wl, err
}
