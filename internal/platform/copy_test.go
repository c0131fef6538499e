package platform

import (
	"context"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openDst(t *testing.T, path string) *os.File {
	t.Helper()
	fd, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	require.NoError(t, err)
	t.Cleanup(func() { fd.Close() })
	return fd
}

func TestCopyFileBasic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	data := []byte("hello, span!")
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dstFd := openDst(t, dst)
	result, err := CopyFile(CopyFileParams{
		SrcPath: src,
		DstFd:   dstFd,
		SrcSize: int64(len(data)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.BytesWritten)

	dstFd.Close()
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyFileLarge(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	// 4 MiB, larger than the 1 MiB buffer.
	size := 4 * 1024 * 1024
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dstFd := openDst(t, dst)
	result, err := CopyFile(CopyFileParams{
		SrcPath: src,
		DstFd:   dstFd,
		SrcSize: int64(size),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(size), result.BytesWritten)

	dstFd.Close()
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyFileEmpty(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, nil, 0o644))

	result, err := CopyFile(CopyFileParams{
		SrcPath: src,
		DstFd:   openDst(t, filepath.Join(dir, "dst")),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.BytesWritten)
}

func TestCopyFileMissingSource(t *testing.T) {
	dir := t.TempDir()
	_, err := CopyFile(CopyFileParams{
		SrcPath: filepath.Join(dir, "nope"),
		DstFd:   openDst(t, filepath.Join(dir, "dst")),
		SrcSize: 10,
	})
	require.Error(t, err)
}

func TestCopyFileCancelled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := CopyFile(CopyFileParams{
		Ctx:     ctx,
		SrcPath: src,
		DstFd:   openDst(t, filepath.Join(dir, "dst")),
		SrcSize: 4,
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCopyReadWrite(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	data := []byte("read-write fallback test")
	require.NoError(t, os.WriteFile(src, data, 0o644))

	dstFd := openDst(t, dst)
	result, err := CopyReadWrite(CopyFileParams{
		SrcPath: src,
		DstFd:   dstFd,
		SrcSize: int64(len(data)),
	})
	require.NoError(t, err)
	assert.Equal(t, ReadWrite, result.Method)
	assert.Equal(t, int64(len(data)), result.BytesWritten)

	dstFd.Close()
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestCopyReadWriteThrottled(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")

	data := make([]byte, 8*1024)
	_, err := rand.Read(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(src, data, 0o644))

	// 4 KiB/s with a 4 KiB burst: the second chunk has to wait.
	lim := NewBWLimiter(4 * 1024)
	dstFd := openDst(t, dst)

	start := time.Now()
	result, err := CopyReadWrite(CopyFileParams{
		Limiter: lim,
		SrcPath: src,
		DstFd:   dstFd,
		SrcSize: int64(len(data)),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), result.BytesWritten)
	assert.GreaterOrEqual(t, time.Since(start), 500*time.Millisecond)

	dstFd.Close()
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestNewBWLimiter(t *testing.T) {
	t.Run("burst capped to rate when rate < 1MiB", func(t *testing.T) {
		assert.Equal(t, 1024, NewBWLimiter(1024).Burst())
	})
	t.Run("burst is 1MiB when rate >= 1MiB", func(t *testing.T) {
		assert.Equal(t, 1<<20, NewBWLimiter(10*1024*1024).Burst())
	})
}

func TestChunkSize(t *testing.T) {
	assert.Equal(t, bufferSize, CopyFileParams{}.chunkSize())
	assert.Equal(t, 512, CopyFileParams{Limiter: NewBWLimiter(512)}.chunkSize())
}

func TestCopyMethodString(t *testing.T) {
	assert.Equal(t, "read_write", ReadWrite.String())
	assert.Equal(t, "copy_file_range", CopyFileRange.String())
	assert.Equal(t, "sendfile", Sendfile.String())
	assert.Equal(t, "unknown", CopyMethod(99).String())
}

func TestApplyMetadata(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(dst, []byte("x"), 0o644))

	mtime := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	info, err := os.Lstat(src)
	require.NoError(t, err)
	require.NoError(t, ApplyMetadata(dst, MetadataOf(info)))

	got, err := os.Lstat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), got.Mode().Perm())
	assert.True(t, got.ModTime().Equal(mtime))
}
