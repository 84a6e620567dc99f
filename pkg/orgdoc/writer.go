// Package orgdoc writes the org-mode outline document: a fixed header,
// headings, and tangle-annotated source blocks.
package orgdoc

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrHeaderWritten is returned by a second call to WriteHeader.
	ErrHeaderWritten = errors.New("org header already written")
	// ErrNoHeader is returned when a node is written before the header.
	ErrNoHeader = errors.New("org header not written")
)

// Header lines written at the top of every document.
var headerLines = []string{
	"# -*- coding: utf-8; mode: org -*-",
	"#+startup: fold",
}

const (
	beginSrc = "#+begin_src"
	endSrc   = "#+end_src"
)

// Block is one embedded file.
type Block struct {
	Lang    string // language label after #+begin_src
	Tangle  string // destination path the file is tangled to
	Mkdirp  bool   // create missing parent directories on tangle
	Content []byte // raw file content, written verbatim
}

// Writer appends document parts to an underlying stream.
type Writer struct {
	w             io.Writer
	headerWritten bool
}

// NewWriter returns a Writer over w. Callers that write to a file should
// pass a buffered writer and flush it themselves.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteHeader writes the document preamble and title. It may be called once.
func (d *Writer) WriteHeader(title string) error {
	if d.headerWritten {
		return ErrHeaderWritten
	}
	var sb strings.Builder
	for _, line := range headerLines {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	fmt.Fprintf(&sb, "#+title: %s\n\n\n", title)
	if _, err := io.WriteString(d.w, sb.String()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	d.headerWritten = true
	return nil
}

// WriteHeading writes an outline heading of the given depth.
func (d *Writer) WriteHeading(depth int, text string) error {
	if !d.headerWritten {
		return ErrNoHeader
	}
	if depth < 1 {
		return fmt.Errorf("invalid heading depth %d", depth)
	}
	if _, err := fmt.Fprintf(d.w, "%s %s\n", strings.Repeat("*", depth), text); err != nil {
		return fmt.Errorf("write heading %q: %w", text, err)
	}
	return nil
}

// WriteBlock writes a source block. The content is not escaped; a newline is
// added only when the content does not already end with one.
func (d *Writer) WriteBlock(b Block) error {
	if !d.headerWritten {
		return ErrNoHeader
	}
	open := fmt.Sprintf("%s %s :tangle %s", beginSrc, b.Lang, b.Tangle)
	if b.Mkdirp {
		open += " :mkdirp yes"
	}
	if _, err := io.WriteString(d.w, open+"\n"); err != nil {
		return fmt.Errorf("write block header for %s: %w", b.Tangle, err)
	}
	if _, err := d.w.Write(b.Content); err != nil {
		return fmt.Errorf("write block content for %s: %w", b.Tangle, err)
	}
	tail := endSrc + "\n\n"
	if len(b.Content) > 0 && b.Content[len(b.Content)-1] != '\n' {
		tail = "\n" + tail
	}
	if _, err := io.WriteString(d.w, tail); err != nil {
		return fmt.Errorf("write block footer for %s: %w", b.Tangle, err)
	}
	return nil
}
