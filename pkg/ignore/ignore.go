// Package ignore matches slash-separated paths against gitignore-style patterns.
package ignore

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// DefaultFileName is looked up in the root directory when no ignore file is given.
const DefaultFileName = ".src2orgignore"

// Pattern is one compiled ignore line.
type Pattern struct {
	Line    string // Original pattern line.
	LineNo  int    // Line number in the source (1-based).
	Negate  bool   // Pattern started with '!'.
	DirOnly bool   // Pattern ended with '/'.

	self  *regexp.Regexp // matches the path itself
	under *regexp.Regexp // matches paths below a matching directory
}

// Matcher is an ordered list of patterns; the last matching pattern wins.
type Matcher struct {
	patterns []*Pattern
	logger   *zap.Logger
}

// New returns an empty Matcher. A nil logger is replaced with a no-op logger.
func New(logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{logger: logger}
}

// Load compiles every file in order. Missing files are skipped; other read
// errors are collected and returned together with the partial Matcher.
func Load(logger *zap.Logger, files ...string) (*Matcher, error) {
	m := New(logger)
	var errs error
	for _, file := range files {
		if file == "" {
			continue
		}
		if err := m.CompileFile(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				m.logger.Debug("Ignore file does not exist", zap.String("filePath", file))
				continue
			}
			errs = multierr.Append(errs, err)
		}
	}
	return m, errs
}

// CompileFile reads an ignore file and appends its patterns.
func (m *Matcher) CompileFile(path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.ReplaceAll(string(content), "\r\n", "\n"), "\n")
	n := m.compile(lines, 1)
	m.logger.Info("Compiled ignore patterns", zap.String("filePath", path), zap.Int("patternCount", n))
	return nil
}

// CompileLines appends patterns given directly, e.g. from flags.
func (m *Matcher) CompileLines(lines ...string) {
	m.compile(lines, 1)
}

func (m *Matcher) compile(lines []string, firstLineNo int) int {
	n := 0
	for i, line := range lines {
		p, err := parsePatternLine(line)
		if err != nil {
			m.logger.Warn("Invalid ignore pattern", zap.String("pattern", line), zap.Error(err))
			continue
		}
		if p == nil {
			continue
		}
		p.LineNo = firstLineNo + i
		m.patterns = append(m.patterns, p)
		n++
		m.logger.Debug("Compiled ignore pattern",
			zap.Int("lineNo", p.LineNo),
			zap.String("pattern", p.Line),
			zap.Bool("negate", p.Negate))
	}
	return n
}

// Len returns the number of compiled patterns.
func (m *Matcher) Len() int {
	if m == nil {
		return 0
	}
	return len(m.patterns)
}

// Match reports whether rel, a path relative to the walk root, is ignored.
// A nil Matcher ignores nothing.
func (m *Matcher) Match(rel string, isDir bool) bool {
	matched, _ := m.MatchWithPattern(rel, isDir)
	return matched
}

// MatchWithPattern is Match that also returns the deciding pattern.
func (m *Matcher) MatchWithPattern(rel string, isDir bool) (bool, *Pattern) {
	if m == nil || len(m.patterns) == 0 {
		return false, nil
	}
	rel = strings.Trim(filepath.ToSlash(rel), "/")
	if rel == "" || rel == "." {
		return false, nil
	}

	matched := false
	var decided *Pattern
	for _, p := range m.patterns {
		if !p.matches(rel, isDir) {
			continue
		}
		matched = !p.Negate
		decided = p
	}
	return matched, decided
}

func (p *Pattern) matches(rel string, isDir bool) bool {
	if p.under.MatchString(rel) {
		return true
	}
	if p.DirOnly && !isDir {
		return false
	}
	return p.self.MatchString(rel)
}

// parsePatternLine compiles one line. Blank lines and comments yield nil.
func parsePatternLine(line string) (*Pattern, error) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return nil, nil
	}

	p := &Pattern{Line: line}
	if strings.HasPrefix(trimmed, "!") {
		p.Negate = true
		trimmed = trimmed[1:]
	}
	if strings.HasPrefix(trimmed, `\#`) || strings.HasPrefix(trimmed, `\!`) {
		trimmed = trimmed[1:]
	}
	if strings.HasSuffix(trimmed, "/") {
		p.DirOnly = true
		trimmed = strings.TrimRight(trimmed, "/")
	}
	// A slash anywhere but the end anchors the pattern to the root.
	anchored := strings.Contains(trimmed, "/")
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == "" {
		return nil, nil
	}

	prefix := "^(?:.*/)?"
	if anchored {
		prefix = "^"
	}
	core := prefix + globToRegex(trimmed)

	var err error
	if p.self, err = regexp.Compile(core + "$"); err != nil {
		return nil, err
	}
	if p.under, err = regexp.Compile(core + "/.+$"); err != nil {
		return nil, err
	}
	return p, nil
}

// globToRegex converts '*', '?' and '**' to regex; everything else is literal.
func globToRegex(glob string) string {
	var sb strings.Builder
	for i := 0; i < len(glob); i++ {
		c := glob[i]
		switch {
		case c == '*' && i+1 < len(glob) && glob[i+1] == '*':
			i++
			if i+1 < len(glob) && glob[i+1] == '/' {
				i++
				sb.WriteString("(?:.*/)?")
			} else {
				sb.WriteString(".*")
			}
		case c == '*':
			sb.WriteString("[^/]*")
		case c == '?':
			sb.WriteString("[^/]")
		default:
			sb.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return sb.String()
}
