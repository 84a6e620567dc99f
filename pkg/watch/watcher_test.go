package watch

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"src2org/pkg/ignore"
)

func TestRelevant(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "a.org")

	w, err := New(dir, func() error { return nil }, nil, Options{Exclude: []string{output}})
	require.NoError(t, err)
	defer w.watcher.Close()

	assert.False(t, w.Relevant(output))
	assert.True(t, w.Relevant(filepath.Join(dir, "x.py")))
}

func TestRelevant_SingleFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "foo.c")
	require.NoError(t, os.WriteFile(file, []byte("int x;\n"), 0o644))

	w, err := New(file, func() error { return nil }, nil, Options{})
	require.NoError(t, err)
	defer w.watcher.Close()

	assert.True(t, w.Relevant(file))
	assert.False(t, w.Relevant(filepath.Join(dir, "other.c")))
}

func TestNew_MissingRoot(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing"), nil, nil, Options{})
	assert.Error(t, err)
}

func TestRun_RegeneratesOnWrite(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(file, []byte("a = 1\n"), 0o644))

	var runs atomic.Int32
	w, err := New(dir, func() error {
		runs.Add(1)
		return nil
	}, nil, Options{Debounce: 30 * time.Millisecond})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, []byte("a = 2\n"), 0o644))

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestRun_IgnoresOutputFile(t *testing.T) {
	dir := t.TempDir()
	output := filepath.Join(dir, "a.org")

	var runs atomic.Int32
	w, err := New(dir, func() error {
		runs.Add(1)
		return nil
	}, nil, Options{Debounce: 20 * time.Millisecond, Exclude: []string{output}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(output, []byte("* doc\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(0), runs.Load())
}

func TestRelevant_IgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0o755))
	m := ignore.New(nil)
	m.CompileLines("build/", "*.tmp")

	w, err := New(dir, func() error { return nil }, nil, Options{Ignore: m})
	require.NoError(t, err)
	defer w.watcher.Close()

	assert.False(t, w.Relevant(filepath.Join(dir, "build")))
	assert.False(t, w.Relevant(filepath.Join(dir, "build", "out.py")))
	assert.False(t, w.Relevant(filepath.Join(dir, "src", "cache.tmp")))
	assert.True(t, w.Relevant(filepath.Join(dir, "src", "main.py")))
	assert.NotContains(t, w.watcher.WatchList(), filepath.Join(dir, "build"))
	assert.Contains(t, w.watcher.WatchList(), dir)
}

func TestRun_IgnoredDirectoryDoesNotRegenerate(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build"), 0o755))
	m := ignore.New(nil)
	m.CompileLines("build/")

	var runs atomic.Int32
	w, err := New(dir, func() error {
		runs.Add(1)
		return nil
	}, nil, Options{Debounce: 20 * time.Millisecond, Ignore: m})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "build", "out.py"), []byte("x\n"), 0o644))
	time.Sleep(200 * time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, int32(0), runs.Load())
}

func TestRun_FlushesPendingChangesOnCancel(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.py")
	require.NoError(t, os.WriteFile(file, []byte("a = 1\n"), 0o644))

	var runs atomic.Int32
	w, err := New(dir, func() error {
		runs.Add(1)
		return nil
	}, nil, Options{Debounce: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, os.WriteFile(file, []byte("a = 2\n"), 0o644))
	assert.Eventually(t, w.debouncer.Pending, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), runs.Load())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), runs.Load())
}
