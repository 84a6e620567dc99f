// Package classify maps source file names to org-mode source block languages.
package classify

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedExtension is returned when a file extension has no known language.
var ErrUnsupportedExtension = errors.New("unsupported file extension")

// Lang is the language label written after #+begin_src.
type Lang string

const (
	Python Lang = "python"
	Text   Lang = "text"
	C      Lang = "C"
	CPP    Lang = "C++"
	HTML   Lang = "html"
	CSS    Lang = "css"
	JS     Lang = "js"
	Conf   Lang = "conf"
)

// builtin is never written to after initialization.
var builtin = map[string]Lang{
	".py":   Python,
	".txt":  Text,
	".c":    C,
	".h":    C,
	".cpp":  CPP,
	".hpp":  CPP,
	".html": HTML,
	".css":  CSS,
	".js":   JS,
	".ini":  Conf,
}

// Classifier resolves file names against the built-in table and any extra mappings.
type Classifier struct {
	extra map[string]Lang
}

// Default classifies with the built-in table only.
var Default = &Classifier{}

// New returns a Classifier whose extra mappings extend or override the built-in table.
// Keys may be given with or without the leading dot and in any case.
func New(extra map[string]Lang) *Classifier {
	c := &Classifier{extra: make(map[string]Lang, len(extra))}
	for ext, lang := range extra {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || lang == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.extra[ext] = lang
	}
	return c
}

// Classify returns the language for name, or ErrUnsupportedExtension.
func (c *Classifier) Classify(name string) (Lang, error) {
	ext := Extension(name)
	if lang, ok := c.extra[ext]; ok {
		return lang, nil
	}
	if lang, ok := builtin[ext]; ok {
		return lang, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedExtension, name)
}

// Classify classifies name with the built-in table.
func Classify(name string) (Lang, error) {
	return Default.Classify(name)
}

// Extension returns the lower-cased extension of name including the dot.
// Leading dots of the base name do not start an extension, so ".bashrc" and
// ".py" have none.
func Extension(name string) string {
	base := strings.TrimLeft(filepath.Base(name), ".")
	return strings.ToLower(filepath.Ext(base))
}
