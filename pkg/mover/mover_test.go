package mover

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	for name, content := range files {
		path := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func defaultOptions() Options {
	return Options{
		Exclude: []*regexp.Regexp{regexp.MustCompile("demo"), regexp.MustCompile("test")},
		Entry:   "index.js",
		Clean:   true,
	}
}

func TestMoveFiltersExcludedPaths(t *testing.T) {
	src := t.TempDir()
	dest := filepath.Join(t.TempDir(), "lib")
	writeTree(t, src, map[string]string{
		"index.js":                  "export * from './button'",
		"button/index.js":           "export { default } from './button.vue'",
		"button/button.vue":         "<template><button /></template>",
		"button/demo/basic.vue":     "<template><div /></template>",
		"button/button.test.js":     "test()",
		"test/helpers.js":           "",
		"assets/_style/global.styl": "body\n  margin 0",
	})

	copied, err := Move(context.Background(), src, dest, defaultOptions())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"assets",
		"assets/_style",
		"assets/_style/global.styl",
		"button",
		"button/button.vue",
		"button/index.js",
	}, copied)

	assert.FileExists(t, filepath.Join(dest, "button", "index.js"))
	assert.FileExists(t, filepath.Join(dest, "assets", "_style", "global.styl"))
	assert.NoFileExists(t, filepath.Join(dest, "index.js"))
	assert.NoDirExists(t, filepath.Join(dest, "button", "demo"))
	assert.NoFileExists(t, filepath.Join(dest, "button", "button.test.js"))
	assert.NoDirExists(t, filepath.Join(dest, "test"))
}

func TestMoveCleansDestination(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeTree(t, src, map[string]string{"a.js": "new"})
	writeTree(t, dest, map[string]string{"stale.js": "old", "a.js": "old"})

	_, err := Move(context.Background(), src, dest, defaultOptions())
	require.NoError(t, err)

	assert.NoFileExists(t, filepath.Join(dest, "stale.js"))
	data, err := os.ReadFile(filepath.Join(dest, "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestMoveOverwritesWithoutClean(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeTree(t, src, map[string]string{"a.js": "new"})
	writeTree(t, dest, map[string]string{"stale.js": "old", "a.js": "older content"})

	opts := defaultOptions()
	opts.Clean = false
	_, err := Move(context.Background(), src, dest, opts)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dest, "stale.js"))
	data, err := os.ReadFile(filepath.Join(dest, "a.js"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestMovePreservesMode(t *testing.T) {
	src := t.TempDir()
	dest := t.TempDir()
	writeTree(t, src, map[string]string{"run.sh": "#!/bin/sh"})
	require.NoError(t, os.Chmod(filepath.Join(src, "run.sh"), 0o755))

	_, err := Move(context.Background(), src, dest, defaultOptions())
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dest, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o755), info.Mode().Perm())
}

func TestMoveMissingSource(t *testing.T) {
	_, err := Move(context.Background(), filepath.Join(t.TempDir(), "nope"), t.TempDir(), defaultOptions())
	assert.Error(t, err)
}

func TestMoveCancelled(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.js": ""})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Move(ctx, src, t.TempDir(), defaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExcluded(t *testing.T) {
	opts := defaultOptions()

	assert.True(t, opts.Excluded("index.js"))
	assert.False(t, opts.Excluded("button/index.js"))
	assert.True(t, opts.Excluded("button/demo"))
	assert.True(t, opts.Excluded(filepath.Join("form", "latest.js")))
	assert.False(t, opts.Excluded("button/button.vue"))
}
