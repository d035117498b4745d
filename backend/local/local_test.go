package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastash/stash/core"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func TestExists(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.txt"), "hello")

	b := New()
	ctx := context.Background()

	ok, err := b.Exists(ctx, filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(ctx, "file://"+filepath.Join(dir, "a.txt"))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Exists(ctx, filepath.Join(dir, "missing.txt"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetSingleFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "a.txt")
	dst := filepath.Join(dir, "dst", "a.txt")
	writeFile(t, src, "hello")

	b := New()
	got, err := b.Get(context.Background(), src, dst, false)
	require.NoError(t, err)
	assert.Equal(t, dst, got)
	assert.Equal(t, "hello", readFile(t, dst))
}

func TestGetIntoExistingDirectory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dstDir := filepath.Join(dir, "out")
	writeFile(t, src, "hello")
	require.NoError(t, os.MkdirAll(dstDir, 0o755))

	b := New()
	got, err := b.Get(context.Background(), src, dstDir, false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dstDir, "a.txt"), got)
	assert.Equal(t, "hello", readFile(t, filepath.Join(dstDir, "a.txt")))
}

func TestPutRecursive(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	dst := filepath.Join(dir, "copy")
	writeFile(t, filepath.Join(src, "a.txt"), "a")
	writeFile(t, filepath.Join(src, "nested", "b.txt"), "b")

	b := New()
	_, err := b.Put(context.Background(), src, dst, true, core.PutOptions{})
	require.NoError(t, err)

	assert.Equal(t, "a", readFile(t, filepath.Join(dst, "a.txt")))
	assert.Equal(t, "b", readFile(t, filepath.Join(dst, "nested", "b.txt")))
}

func TestCopyTree(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "tree")
	dst := filepath.Join(dir, "copy")
	writeFile(t, filepath.Join(src, "x", "y.txt"), "deep")

	b := New(WithCopyConcurrency(2))
	got, err := b.CopyTree(context.Background(), src, dst)
	require.NoError(t, err)
	assert.Equal(t, dst, got)
	assert.Equal(t, "deep", readFile(t, filepath.Join(dst, "x", "y.txt")))
}

func TestOpenWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deep", "out.bin")

	b := New()
	w, err := b.OpenWrite(context.Background(), path)
	require.NoError(t, err)

	_, err = w.Write([]byte("stream"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	assert.Equal(t, "stream", readFile(t, path))
}

func TestGetMissingSource(t *testing.T) {
	dir := t.TempDir()

	b := New()
	_, err := b.Get(context.Background(), filepath.Join(dir, "nope.txt"), filepath.Join(dir, "out.txt"), false)
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}
