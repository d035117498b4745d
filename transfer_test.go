package stash

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datastash/stash/config"
	"github.com/datastash/stash/core"
)

func newTestProviderWith(t *testing.T, opts ...Option) *Provider {
	t.Helper()
	dir := t.TempDir()
	p, err := New(filepath.Join(dir, "sandbox"), filepath.Join(dir, "raw"), config.Default(), opts...)
	require.NoError(t, err)
	return p
}

// fakeBackend is a scriptable core.Backend for exercising the fallback and
// retry paths without a real object store.
type fakeBackend struct {
	scheme string

	existsResult bool
	existsErr    error
	getErr       error
	putErr       error

	existsCalls int
	getCalls    int
	putCalls    int
	lastOpts    core.PutOptions
}

func (f *fakeBackend) Scheme() string    { return f.scheme }
func (f *fakeBackend) Separator() string { return "/" }

func (f *fakeBackend) Exists(_ context.Context, _ string) (bool, error) {
	f.existsCalls++
	return f.existsResult, f.existsErr
}

func (f *fakeBackend) Get(_ context.Context, _, to string, _ bool) (string, error) {
	f.getCalls++
	if f.getErr != nil {
		return "", f.getErr
	}
	return to, nil
}

func (f *fakeBackend) Put(_ context.Context, _, to string, _ bool, opts core.PutOptions) (string, error) {
	f.putCalls++
	f.lastOpts = opts
	if f.putErr != nil {
		return "", f.putErr
	}
	return to, nil
}

func (f *fakeBackend) OpenWrite(_ context.Context, _ string) (io.WriteCloser, error) {
	return nil, errors.New("not implemented")
}

func TestExists(t *testing.T) {
	auth := &fakeBackend{scheme: "s3", existsResult: true}
	p := newTestProviderWith(t, WithBackend("s3", false, auth))

	ok, err := p.Exists(context.Background(), "s3://bucket/key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, auth.existsCalls)
}

func TestExistsAnonymousFallbackOnPermissionError(t *testing.T) {
	auth := &fakeBackend{scheme: "s3", existsErr: fs.ErrPermission}
	anon := &fakeBackend{scheme: "s3", existsResult: true}
	p := newTestProviderWith(t,
		WithBackend("s3", false, auth),
		WithBackend("s3", true, anon),
	)

	ok, err := p.Exists(context.Background(), "s3://bucket/public-key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, auth.existsCalls)
	assert.Equal(t, 1, anon.existsCalls)
}

func TestExistsAnonymousFallbackOnAnyIOError(t *testing.T) {
	auth := &fakeBackend{scheme: "s3", existsErr: errors.New("connection refused")}
	anon := &fakeBackend{scheme: "s3", existsResult: true}
	p := newTestProviderWith(t,
		WithBackend("s3", false, auth),
		WithBackend("s3", true, anon),
	)

	ok, err := p.Exists(context.Background(), "s3://bucket/key")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, anon.existsCalls)
}

func TestExistsPropagatesWhenNoAnonymousHandle(t *testing.T) {
	boom := errors.New("connection refused")
	auth := &fakeBackend{scheme: "abfs", existsErr: boom}
	// No azure account is configured, so the anonymous handle cannot be
	// built and the original error must surface.
	p := newTestProviderWith(t, WithBackend("abfs", false, auth))

	_, err := p.Exists(context.Background(), "abfs://container/key")
	assert.ErrorIs(t, err, boom)
}

func TestGetMissingSourceIsNotFound(t *testing.T) {
	auth := &fakeBackend{scheme: "s3", getErr: errors.New("download failed"), existsResult: false}
	anon := &fakeBackend{scheme: "s3"}
	p := newTestProviderWith(t,
		WithBackend("s3", false, auth),
		WithBackend("s3", true, anon),
	)

	_, err := p.Get(context.Background(), "s3://bucket/missing", "/tmp/out", false)
	require.Error(t, err)

	var nf *core.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "s3://bucket/missing", nf.Path)
	assert.Zero(t, anon.getCalls, "a genuinely missing source is never retried anonymously")
}

func TestGetAnonymousFallbackRetriesExactlyOnce(t *testing.T) {
	auth := &fakeBackend{scheme: "s3", getErr: errors.New("access denied"), existsResult: true}
	anon := &fakeBackend{scheme: "s3"}
	p := newTestProviderWith(t,
		WithBackend("s3", false, auth),
		WithBackend("s3", true, anon),
	)

	dst, err := p.Get(context.Background(), "s3://bucket/public", "/tmp/out", false)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/out", dst)
	assert.Equal(t, 1, auth.getCalls)
	assert.Equal(t, 1, anon.getCalls)
}

func TestGetAnonymousFailurePropagates(t *testing.T) {
	anonErr := errors.New("anonymous also denied")
	auth := &fakeBackend{scheme: "s3", getErr: errors.New("access denied"), existsResult: true}
	anon := &fakeBackend{scheme: "s3", getErr: anonErr}
	p := newTestProviderWith(t,
		WithBackend("s3", false, auth),
		WithBackend("s3", true, anon),
	)

	_, err := p.Get(context.Background(), "s3://bucket/key", "/tmp/out", false)
	assert.ErrorIs(t, err, anonErr)
	assert.Equal(t, 1, anon.getCalls)
}

func TestPutLocalEndToEnd(t *testing.T) {
	p := newTestProvider(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "in.txt")
	dst := filepath.Join(dir, "out", "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("payload"), 0o644))

	got, err := p.Put(context.Background(), src, dst, false, nil)
	require.NoError(t, err)
	assert.Equal(t, dst, got)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestPutRecursiveRequiresDirectory(t *testing.T) {
	p := newTestProvider(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "file.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	_, err := p.Put(context.Background(), src, filepath.Join(dir, "out"), true, nil)
	assert.ErrorIs(t, err, core.ErrPrecondition)

	_, err = p.Put(context.Background(), filepath.Join(dir, "missing"), filepath.Join(dir, "out"), true, nil)
	assert.ErrorIs(t, err, core.ErrPrecondition)
}

func TestPutMergesExecutionMetadata(t *testing.T) {
	fake := &fakeBackend{scheme: "s3"}
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Generic.AttachExecutionMetadata = true

	p, err := New(filepath.Join(dir, "sandbox"), filepath.Join(dir, "raw"), cfg,
		WithBackend("s3", false, fake),
		WithExecutionMetadata(map[string]string{"run": "r-123", "owner": "system"}),
	)
	require.NoError(t, err)

	src := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	_, err = p.Put(context.Background(), src, "s3://bucket/in.txt", false, map[string]string{
		"owner": "caller",
		"tag":   "v1",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"run":   "r-123",
		"owner": "system", // execution metadata wins collisions
		"tag":   "v1",
	}, fake.lastOpts.Metadata)
	assert.Equal(t, int64(config.DefaultWriteChunkBytes), fake.lastOpts.ChunkSizeBytes)
}

func TestPutDropsExecutionMetadataWhenDisabled(t *testing.T) {
	fake := &fakeBackend{scheme: "s3"}
	dir := t.TempDir()

	p, err := New(filepath.Join(dir, "sandbox"), filepath.Join(dir, "raw"), config.Default(),
		WithBackend("s3", false, fake),
		WithExecutionMetadata(map[string]string{"run": "r-123"}),
	)
	require.NoError(t, err)

	src := filepath.Join(dir, "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	_, err = p.Put(context.Background(), src, "s3://bucket/in.txt", false, nil)
	require.NoError(t, err)
	assert.Empty(t, fake.lastOpts.Metadata)
}

func TestGetDataWrapsFailures(t *testing.T) {
	auth := &fakeBackend{scheme: "s3", getErr: errors.New("wire failure"), existsResult: true}
	anon := &fakeBackend{scheme: "s3", getErr: errors.New("still failing")}
	p := newTestProviderWith(t,
		WithBackend("s3", false, auth),
		WithBackend("s3", true, anon),
	)

	local := filepath.Join(t.TempDir(), "nested", "out.txt")
	_, err := p.GetData(context.Background(), "s3://bucket/key", local, false)
	require.Error(t, err)

	var de *core.DownloadError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "s3://bucket/key", de.From)
	assert.Equal(t, local, de.To)

	// The parent directory was still created.
	info, serr := os.Stat(filepath.Dir(local))
	require.NoError(t, serr)
	assert.True(t, info.IsDir())
}

func TestGetDataNotFoundPassesThrough(t *testing.T) {
	auth := &fakeBackend{scheme: "s3", getErr: errors.New("no such key"), existsResult: false}
	anon := &fakeBackend{scheme: "s3"}
	p := newTestProviderWith(t,
		WithBackend("s3", false, auth),
		WithBackend("s3", true, anon),
	)

	_, err := p.GetData(context.Background(), "s3://bucket/missing", filepath.Join(t.TempDir(), "out"), false)
	require.Error(t, err)

	var nf *core.NotFoundError
	assert.ErrorAs(t, err, &nf)
	var de *core.DownloadError
	assert.False(t, errors.As(err, &de))
}

func TestPutDataWrapsFailures(t *testing.T) {
	fake := &fakeBackend{scheme: "s3", putErr: errors.New("wire failure")}
	p := newTestProviderWith(t, WithBackend("s3", false, fake))

	src := filepath.Join(t.TempDir(), "in.txt")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o644))

	_, err := p.PutData(context.Background(), src, "s3://bucket/in.txt", false, nil)
	require.Error(t, err)

	var ue *core.UploadError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, src, ue.From)
	assert.Equal(t, "s3://bucket/in.txt", ue.To)
}

func TestDownloadUploadAliases(t *testing.T) {
	p := newTestProvider(t)
	dir := t.TempDir()

	src := filepath.Join(dir, "tree")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))

	remote := filepath.Join(dir, "remote")
	_, err := p.UploadDirectory(context.Background(), src, remote)
	require.NoError(t, err)

	back := filepath.Join(dir, "back")
	_, err = p.DownloadDirectory(context.Background(), remote, back)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(back, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))

	single := filepath.Join(dir, "single.txt")
	require.NoError(t, os.WriteFile(single, []byte("s"), 0o644))
	_, err = p.Upload(context.Background(), single, filepath.Join(dir, "single-copy.txt"))
	require.NoError(t, err)
	_, err = p.Download(context.Background(), filepath.Join(dir, "single-copy.txt"), filepath.Join(dir, "single-back.txt"))
	require.NoError(t, err)
}
