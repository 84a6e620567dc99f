// Package convert walks a source tree and writes it as an org-mode outline
// with one tangle-annotated source block per file.
package convert

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"src2org/pkg/classify"
	"src2org/pkg/ignore"
	"src2org/pkg/orgdoc"
)

var (
	// ErrInvalidPath is returned when the root is neither a file nor a directory.
	ErrInvalidPath = errors.New("wrong path")
	// ErrOutputIsSource is returned when the output file is the file being converted.
	ErrOutputIsSource = errors.New("output file is the source file")
)

// Options configures a Converter. Zero values select the defaults.
type Options struct {
	Classifier *classify.Classifier // language table; classify.Default when nil
	Ignore     *ignore.Matcher      // excluded paths; nothing when nil
	Exclude    []string             // absolute paths that are always skipped
}

// Stats summarizes one conversion.
type Stats struct {
	Dirs         int // directory headings written
	Files        int // source blocks written
	SkippedDirs  int // directories pruned as empty
	SkippedFiles int // files with unsupported extensions
	Invalid      int // entries that are neither file nor directory
}

// Converter turns a file or directory tree into an org document.
type Converter struct {
	classifier *classify.Classifier
	ignore     *ignore.Matcher
	exclude    []string
	logger     *zap.Logger
}

// New returns a Converter. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger, opts Options) *Converter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Classifier == nil {
		opts.Classifier = classify.Default
	}
	return &Converter{
		classifier: opts.Classifier,
		ignore:     opts.Ignore,
		exclude:    opts.Exclude,
		logger:     logger,
	}
}

// resolveRoot returns the absolute root path and its file info.
func resolveRoot(root string) (string, os.FileInfo, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", nil, fmt.Errorf("%w %q: %v", ErrInvalidPath, root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", nil, fmt.Errorf("%w %q: %v", ErrInvalidPath, root, err)
	}
	if !info.IsDir() && !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%w %q: not a file or directory", ErrInvalidPath, root)
	}
	return abs, info, nil
}

// Convert writes the document for root to w. An empty title defaults to the
// base name of root.
func (c *Converter) Convert(root string, w io.Writer, title string) (Stats, error) {
	abs, info, err := resolveRoot(root)
	if err != nil {
		c.logger.Error("Invalid source path", zap.String("path", root), zap.Error(err))
		return Stats{}, err
	}
	return c.convert(abs, info, w, title, c.exclude)
}

// ConvertToFile writes the document for root to the file output. The root is
// validated before output is created, and output is closed on every path.
// The output file itself is never embedded.
func (c *Converter) ConvertToFile(root, output, title string) (stats Stats, err error) {
	abs, info, err := resolveRoot(root)
	if err != nil {
		c.logger.Error("Invalid source path", zap.String("path", root), zap.Error(err))
		return Stats{}, err
	}
	outAbs, err := filepath.Abs(output)
	if err != nil {
		return Stats{}, fmt.Errorf("resolve output path: %w", err)
	}
	if outInfo, statErr := os.Stat(outAbs); statErr == nil && os.SameFile(info, outInfo) {
		c.logger.Error("Output would overwrite source", zap.String("path", root), zap.String("output", outAbs))
		return Stats{}, fmt.Errorf("%w: %s", ErrOutputIsSource, outAbs)
	}

	outFile, err := os.Create(outAbs)
	if err != nil {
		c.logger.Error("Failed to create output file", zap.String("file", outAbs), zap.Error(err))
		return Stats{}, fmt.Errorf("create output file: %w", err)
	}
	defer func() {
		if closeErr := outFile.Close(); closeErr != nil {
			c.logger.Error("Failed to close output file", zap.String("file", outAbs), zap.Error(closeErr))
			err = multierr.Append(err, fmt.Errorf("close output file: %w", closeErr))
		}
	}()

	writer := bufio.NewWriter(outFile)
	exclude := append([]string{outAbs}, c.exclude...)
	stats, err = c.convert(abs, info, writer, title, exclude)
	if flushErr := writer.Flush(); flushErr != nil {
		err = multierr.Append(err, fmt.Errorf("flush output: %w", flushErr))
	}
	return stats, err
}

func (c *Converter) convert(root string, info os.FileInfo, w io.Writer, title string, exclude []string) (Stats, error) {
	startTime := time.Now()
	if title == "" {
		title = filepath.Base(root)
	}

	wk := &walk{
		root:       root,
		rootName:   dirName(root),
		classifier: c.classifier,
		ignore:     c.ignore,
		exclude:    make(map[string]struct{}, len(exclude)),
		out:        orgdoc.NewWriter(w),
		logger:     c.logger,
	}
	for _, p := range exclude {
		wk.exclude[filepath.Clean(p)] = struct{}{}
	}
	if info.IsDir() {
		// Both passes walk the resolved tree; a symlinked root is otherwise
		// never descended by filepath.WalkDir.
		resolved, err := filepath.EvalSymlinks(root)
		if err != nil {
			return wk.stats, fmt.Errorf("%w %q: %v", ErrInvalidPath, root, err)
		}
		wk.root = resolved
		for _, p := range exclude {
			if rp, err := filepath.EvalSymlinks(p); err == nil {
				wk.exclude[rp] = struct{}{}
			}
		}
	}

	c.logger.Info("Write org-mode headers", zap.String("title", title))
	if err := wk.out.WriteHeader(title); err != nil {
		return wk.stats, err
	}

	if info.IsDir() {
		wl, err := wk.buildWhitelist()
		if err != nil {
			return wk.stats, fmt.Errorf("scan %s: %w", root, err)
		}
		wk.whitelist = wl
		if err := wk.dir(wk.root, RootContext()); err != nil {
			return wk.stats, err
		}
	} else if err := wk.file(root, RootContext()); err != nil {
		return wk.stats, err
	}

	c.logger.Info("Conversion completed",
		zap.String("path", root),
		zap.Int("directories", wk.stats.Dirs),
		zap.Int("files", wk.stats.Files),
		zap.Duration("elapsed", time.Since(startTime)))
	return wk.stats, nil
}

// walk is the state of one conversion run.
type walk struct {
	root       string // resolved root directory
	rootName   string // name of the root as given, "" for the filesystem root
	classifier *classify.Classifier
	ignore     *ignore.Matcher
	exclude    map[string]struct{}
	whitelist  Whitelist
	out        *orgdoc.Writer
	stats      Stats
	logger     *zap.Logger
}

// skip reports whether path is excluded or matches an ignore pattern.
func (w *walk) skip(path string, isDir bool) bool {
	if _, ok := w.exclude[path]; ok {
		return true
	}
	rel, err := filepath.Rel(w.root, path)
	if err != nil {
		return false
	}
	matched, p := w.ignore.MatchWithPattern(rel, isDir)
	if matched {
		w.logger.Debug("Ignored path",
			zap.String("path", path),
			zap.String("pattern", p.Line),
			zap.Int("lineNo", p.LineNo))
	}
	return matched
}

// dirName is the heading name and tangle component of a directory. The
// filesystem root has none.
func dirName(path string) string {
	name := filepath.Base(path)
	if name == string(filepath.Separator) || name == "." {
		return ""
	}
	return name
}

// dirHeading is the heading text of a directory named name.
func dirHeading(name string) string {
	return name + "/"
}

// dir emits a directory heading followed by its subdirectories and files.
func (w *walk) dir(path string, ctx Context) error {
	if !w.whitelist.Contains(path) {
		w.logger.Warn("Skip directory", zap.String("path", path))
		w.stats.SkippedDirs++
		return nil
	}
	w.logger.Info("Convert directory", zap.String("path", path))

	name := filepath.Base(path)
	if path == w.root {
		name = w.rootName
	}
	if err := w.out.WriteHeading(ctx.Depth, dirHeading(name)); err != nil {
		return err
	}
	w.stats.Dirs++

	entries, err := os.ReadDir(path)
	if err != nil {
		w.logger.Error("Failed to read directory", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("read directory %s: %w", path, err)
	}

	var dirs, files []string
	for _, entry := range entries {
		entryPath := filepath.Join(path, entry.Name())
		switch resolveKind(entryPath, entry) {
		case kindDir:
			if w.skip(entryPath, true) {
				w.logger.Debug("Ignored directory", zap.String("path", entryPath))
				continue
			}
			dirs = append(dirs, entryPath)
		case kindFile:
			if w.skip(entryPath, false) {
				w.logger.Debug("Ignored file", zap.String("path", entryPath))
				continue
			}
			files = append(files, entryPath)
		default:
			w.logger.Error("Wrong path", zap.String("path", entryPath))
			w.stats.Invalid++
		}
	}
	sort.Strings(dirs)
	sort.Strings(files)

	child := ctx.Descend(name)
	for _, d := range dirs {
		if err := w.dir(d, child); err != nil {
			return err
		}
	}
	for _, f := range files {
		if err := w.file(f, child); err != nil {
			return err
		}
	}
	return nil
}

// file emits a heading and a source block for one file. Unsupported
// extensions are skipped; read failures abort the run.
func (w *walk) file(path string, ctx Context) error {
	w.logger.Info("Convert file", zap.String("path", path))

	name := filepath.Base(path)
	lang, err := w.classifier.Classify(name)
	if err != nil {
		w.logger.Warn("Unsupported file extension", zap.String("path", path))
		w.stats.SkippedFiles++
		return nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		w.logger.Error("Failed to read file", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("read file %s: %w", path, err)
	}

	if err := w.out.WriteHeading(ctx.Depth, name); err != nil {
		return err
	}
	if err := w.out.WriteBlock(orgdoc.Block{
		Lang:    string(lang),
		Tangle:  ctx.Target(name),
		Mkdirp:  ctx.Mkdirp(),
		Content: content,
	}); err != nil {
		return err
	}
	w.stats.Files++
	return nil
}
