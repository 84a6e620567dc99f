package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		want     bool
	}{
		{"no patterns", nil, "a.py", false, false},
		{"basename anywhere", []string{"*.pyc"}, "pkg/sub/x.pyc", false, true},
		{"basename no match", []string{"*.pyc"}, "pkg/sub/x.py", false, false},
		{"star does not cross slash", []string{"pkg/*.py"}, "pkg/sub/x.py", false, false},
		{"anchored", []string{"/build"}, "build", true, true},
		{"anchored not nested", []string{"/build"}, "src/build", true, false},
		{"unanchored nested", []string{"build"}, "src/build", true, true},
		{"content under dir", []string{"build"}, "build/out.txt", false, true},
		{"dir only matches dir", []string{"cache/"}, "cache", true, true},
		{"dir only skips file", []string{"cache/"}, "cache", false, false},
		{"dir only content", []string{"cache/"}, "cache/x.txt", false, true},
		{"double star middle", []string{"a/**/b.txt"}, "a/x/y/b.txt", false, true},
		{"double star middle zero", []string{"a/**/b.txt"}, "a/b.txt", false, true},
		{"double star leading", []string{"**/gen"}, "x/y/gen", true, true},
		{"double star trailing", []string{"docs/**"}, "docs/a/b.txt", false, true},
		{"question mark", []string{"?.c"}, "a.c", false, true},
		{"question mark one char", []string{"?.c"}, "ab.c", false, false},
		{"dots literal", []string{"a.c"}, "abc", false, false},
		{"negation", []string{"*.txt", "!keep.txt"}, "keep.txt", false, false},
		{"negation order", []string{"!keep.txt", "*.txt"}, "keep.txt", false, true},
		{"comment", []string{"# *.txt"}, "a.txt", false, false},
		{"escaped hash", []string{`\#x`}, "#x", false, true},
		{"root never matches", []string{"*"}, ".", true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(nil)
			m.CompileLines(tt.patterns...)
			assert.Equal(t, tt.want, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatchWithPattern(t *testing.T) {
	m := New(nil)
	m.CompileLines("*.log", "", "tmp/")
	require.Equal(t, 2, m.Len())

	matched, p := m.MatchWithPattern("tmp/x", false)
	assert.True(t, matched)
	require.NotNil(t, p)
	assert.Equal(t, "tmp/", p.Line)
	assert.Equal(t, 3, p.LineNo)
	assert.True(t, p.DirOnly)
}

func TestNilMatcher(t *testing.T) {
	var m *Matcher
	assert.False(t, m.Match("a", false))
	assert.Equal(t, 0, m.Len())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(file, []byte("# comment\n*.tmp\r\nvendor/\n"), 0o644))

	m, err := Load(nil, file, filepath.Join(dir, "missing"), "")
	require.NoError(t, err)
	assert.Equal(t, 2, m.Len())
	assert.True(t, m.Match("a/b.tmp", false))
	assert.True(t, m.Match("vendor", true))
}

func TestLoad_ReadError(t *testing.T) {
	dir := t.TempDir()
	// reading a directory as a file fails with something other than not-exist
	m, err := Load(nil, dir)
	assert.Error(t, err)
	assert.NotNil(t, m)
}
