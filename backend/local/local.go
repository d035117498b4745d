// Package local provides the local-filesystem backend over go-billy's osfs.
// Parent directories are created automatically on write, and the recursive
// copy merges into an existing destination.
package local

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/sourcegraph/conc/pool"

	"github.com/datastash/stash/core"
)

// DefaultCopyConcurrency bounds parallel file copies during recursive
// transfers.
const DefaultCopyConcurrency = 8

// Backend implements core.Backend for the local filesystem.
type Backend struct {
	fsys        billy.Filesystem
	concurrency int
}

// Option configures backend creation.
type Option func(*Backend)

// WithCopyConcurrency sets the worker bound for recursive copies.
func WithCopyConcurrency(n int) Option {
	return func(b *Backend) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithFilesystem replaces the underlying billy filesystem. Intended for
// tests that want an in-memory filesystem.
func WithFilesystem(fsys billy.Filesystem) Option {
	return func(b *Backend) { b.fsys = fsys }
}

// New creates a local backend rooted at the filesystem root.
func New(opts ...Option) *Backend {
	b := &Backend{
		fsys:        osfs.New("/"),
		concurrency: DefaultCopyConcurrency,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Scheme returns "file".
func (b *Backend) Scheme() string { return core.FileScheme }

// Separator returns the OS path separator.
func (b *Backend) Separator() string { return string(filepath.Separator) }

// clean strips a file:// prefix and trailing separators.
func clean(path string) string {
	path = core.StripFilePrefix(path)
	if len(path) > 1 {
		path = strings.TrimRight(path, string(filepath.Separator))
	}
	return path
}

// Exists reports whether the named file or directory exists.
func (b *Backend) Exists(_ context.Context, path string) (bool, error) {
	_, err := b.fsys.Stat(clean(path))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Get copies from into to. Both are local paths for this backend.
func (b *Backend) Get(ctx context.Context, from, to string, recursive bool) (string, error) {
	return b.copy(ctx, from, to, recursive)
}

// Put copies from into to. PutOptions are ignored: the local filesystem has
// no object metadata or chunked writes.
func (b *Backend) Put(ctx context.Context, from, to string, recursive bool, _ core.PutOptions) (string, error) {
	return b.copy(ctx, from, to, recursive)
}

// OpenWrite creates the named file for writing, making parent directories
// as needed.
func (b *Backend) OpenWrite(_ context.Context, path string) (io.WriteCloser, error) {
	path = clean(path)
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := b.fsys.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return b.fsys.Create(path)
}

// CopyTree recursively copies the directory from into to, merging into an
// existing destination. It implements core.TreeCopier.
func (b *Backend) CopyTree(ctx context.Context, from, to string) (string, error) {
	return b.copy(ctx, from, to, true)
}

func (b *Backend) copy(ctx context.Context, from, to string, recursive bool) (string, error) {
	from, to = clean(from), clean(to)
	if recursive {
		if err := b.copyDir(ctx, from, to); err != nil {
			return "", err
		}
		return to, nil
	}

	dst, err := b.copyFile(from, to)
	if err != nil {
		return "", err
	}
	return dst, nil
}

// copyFile copies a single file. A destination that is an existing directory
// receives the source's base name inside it.
func (b *Backend) copyFile(from, to string) (string, error) {
	if info, err := b.fsys.Stat(to); err == nil && info.IsDir() {
		to = filepath.Join(to, filepath.Base(from))
	}

	if dir := filepath.Dir(to); dir != "" && dir != "." {
		if err := b.fsys.MkdirAll(dir, 0o755); err != nil {
			return "", err
		}
	}

	src, err := b.fsys.Open(from)
	if err != nil {
		return "", err
	}
	defer func() { _ = src.Close() }()

	dst, err := b.fsys.Create(to)
	if err != nil {
		return "", err
	}

	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", err
	}
	return to, dst.Close()
}

// copyDir walks from and copies every regular file into to, preserving the
// relative layout. File copies run on a bounded worker pool.
func (b *Backend) copyDir(ctx context.Context, from, to string) error {
	if _, err := b.fsys.Stat(from); err != nil {
		return err
	}
	if err := b.fsys.MkdirAll(to, 0o755); err != nil {
		return err
	}

	p := pool.New().
		WithMaxGoroutines(b.concurrency).
		WithContext(ctx).
		WithCancelOnError()

	err := util.Walk(b.fsys, from, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(from, path)
		if err != nil {
			return err
		}
		target := filepath.Join(to, rel)
		if info.IsDir() {
			return b.fsys.MkdirAll(target, 0o755)
		}
		if !info.Mode().IsRegular() {
			// Symlinks and specials are skipped rather than followed.
			return nil
		}
		p.Go(func(context.Context) error {
			_, cerr := b.copyFile(path, target)
			return cerr
		})
		return nil
	})
	if werr := p.Wait(); err == nil {
		err = werr
	}
	return err
}

// Compile-time interface checks.
var (
	_ core.Backend    = (*Backend)(nil)
	_ core.TreeCopier = (*Backend)(nil)
)
