package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWrite(t *testing.T) {
	t.Run("writes content", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, AtomicWrite(path, []byte(`{"serial": 1}`), 0644))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, `{"serial": 1}`, string(data))
	})

	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a", "b", "state.json")
		require.NoError(t, AtomicWrite(path, []byte("x"), 0644))
		assert.True(t, Exists(path))
	})

	t.Run("replaces existing file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "state.json")
		require.NoError(t, AtomicWrite(path, []byte("old"), 0644))
		require.NoError(t, AtomicWrite(path, []byte("new"), 0644))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "new", string(data))
	})

	t.Run("leaves no temp file behind", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "state.json")
		require.NoError(t, AtomicWrite(path, []byte("x"), 0644))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Len(t, entries, 1)
	})
}

func TestCopyFile(t *testing.T) {
	t.Run("copies content", func(t *testing.T) {
		dir := t.TempDir()
		src := filepath.Join(dir, "src.json")
		dst := filepath.Join(dir, "backups", "dst.json")
		require.NoError(t, os.WriteFile(src, []byte("payload"), 0644))

		require.NoError(t, CopyFile(src, dst))

		data, err := os.ReadFile(dst)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})

	t.Run("missing source", func(t *testing.T) {
		dir := t.TempDir()
		err := CopyFile(filepath.Join(dir, "nope"), filepath.Join(dir, "dst"))
		assert.Error(t, err)
	})
}

func TestCopyDir(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "nested"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "plugin.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "nested", "main.go"), []byte("package main"), 0644))

	dst := filepath.Join(t.TempDir(), "copy")
	require.NoError(t, CopyDir(src, dst))

	assert.True(t, Exists(filepath.Join(dst, "plugin.json")))
	data, err := os.ReadFile(filepath.Join(dst, "nested", "main.go"))
	require.NoError(t, err)
	assert.Equal(t, "package main", string(data))
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	assert.True(t, Exists(dir))
	assert.False(t, Exists(filepath.Join(dir, "nope")))

	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
	assert.True(t, Exists(path))
	assert.True(t, IsDir(dir))
	assert.False(t, IsDir(path))
}
