package stash

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/datastash/stash/config"
	"github.com/datastash/stash/core"
	"github.com/datastash/stash/retry"
)

// Exists reports whether path exists. An error from the authenticated
// handle triggers exactly one re-check through the anonymous handle,
// covering public objects in buckets the ambient credentials cannot see;
// when no anonymous handle can be built the original error propagates.
func (p *Provider) Exists(ctx context.Context, path string) (bool, error) {
	b, err := p.ResolveBackendForPath(path, false)
	if err != nil {
		return false, err
	}

	return retry.Do(ctx, func(ctx context.Context) (bool, error) {
		ok, err := b.Exists(ctx, path)
		if err == nil || retry.IsRateLimited(err) {
			return ok, err
		}

		anon, aerr := p.ResolveBackendForPath(path, true)
		if aerr != nil {
			return false, err
		}
		p.log.Debug().Str("path", path).Err(err).Msg("re-checking existence anonymously")
		return anon.Exists(ctx, path)
	}, retry.WithAttempts(p.retries))
}

// Get downloads from into to. Recursive transfers copy whole trees. The
// returned string is the path actually written, which is to unless the
// backend reports otherwise.
//
// When the authenticated transfer fails for a reason other than throttling,
// the existence of the source is checked first: a genuinely absent source
// surfaces as a NotFoundError, while an existing one is retried exactly once
// through the anonymous handle. If that attempt fails too, its error is the
// one propagated.
func (p *Provider) Get(ctx context.Context, from, to string, recursive bool) (string, error) {
	b, err := p.ResolveBackendForPath(from, false)
	if err != nil {
		return "", err
	}
	if recursive {
		from, to = p.RecursivePaths(from, to)
	}

	return retry.Do(ctx, func(ctx context.Context) (string, error) {
		return p.getOnce(ctx, b, from, to, recursive)
	}, retry.WithAttempts(p.retries))
}

func (p *Provider) getOnce(ctx context.Context, b core.Backend, from, to string, recursive bool) (string, error) {
	if recursive && b.Scheme() == core.FileScheme && runtime.GOOS == "windows" {
		if tc, ok := b.(core.TreeCopier); ok {
			return tc.CopyTree(ctx, core.StripFilePrefix(from), core.StripFilePrefix(to))
		}
	}

	dst, err := b.Get(ctx, from, to, recursive)
	if err == nil {
		if dst == "" {
			dst = to
		}
		return dst, nil
	}
	if retry.IsRateLimited(err) {
		return "", err
	}

	// Distinguish a missing source from a failed transfer before falling
	// back to anonymous access.
	if exists, eerr := b.Exists(ctx, from); eerr == nil && !exists {
		return "", &core.NotFoundError{Path: from}
	}

	anon, aerr := p.ResolveBackendForPath(from, true)
	if aerr != nil {
		return "", err
	}
	p.log.Debug().
		Str("from", from).
		Err(err).
		Msg("authenticated get failed, retrying anonymously")

	dst, aerr = anon.Get(ctx, from, to, recursive)
	if aerr != nil {
		return "", aerr
	}
	if dst == "" {
		dst = to
	}
	return dst, nil
}

// Put uploads the local path from to the destination to. Recursive uploads
// require from to be an existing directory. Caller metadata is merged with
// the provider's execution metadata, the latter winning on key collisions.
func (p *Provider) Put(ctx context.Context, from, to string, recursive bool, metadata map[string]string) (string, error) {
	b, err := p.ResolveBackendForPath(to, false)
	if err != nil {
		return "", err
	}

	from = core.StripFilePrefix(from)
	if recursive {
		info, serr := os.Stat(from)
		if serr != nil || !info.IsDir() {
			return "", fmt.Errorf("%w: source %s of a recursive put must be an existing directory", core.ErrPrecondition, from)
		}
		if b.Scheme() == core.FileScheme && runtime.GOOS == "windows" {
			if tc, ok := b.(core.TreeCopier); ok {
				return tc.CopyTree(ctx, from, core.StripFilePrefix(to))
			}
		}
		from, to = p.RecursivePaths(from, to)
	}

	opts := core.PutOptions{Metadata: p.mergeMetadata(metadata)}
	if b.Scheme() == "s3" {
		opts.ChunkSizeBytes = config.WriteChunkBytes()
	}

	return retry.Do(ctx, func(ctx context.Context) (string, error) {
		dst, err := b.Put(ctx, from, to, recursive, opts)
		if err != nil {
			return "", err
		}
		if dst == "" {
			dst = to
		}
		return dst, nil
	}, retry.WithAttempts(p.retries))
}

func (p *Provider) mergeMetadata(md map[string]string) map[string]string {
	if len(p.execMetadata) == 0 {
		return md
	}
	out := make(map[string]string, len(md)+len(p.execMetadata))
	for k, v := range md {
		out[k] = v
	}
	for k, v := range p.execMetadata {
		out[k] = v
	}
	return out
}

// GetData downloads a remote path into the local filesystem, creating the
// local parent directory first. Not-found conditions propagate unchanged;
// every other failure is wrapped in a DownloadError carrying both paths.
func (p *Provider) GetData(ctx context.Context, remote, local string, recursive bool) (string, error) {
	localPath := core.StripFilePrefix(local)
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return "", &core.DownloadError{From: remote, To: local, Recursive: recursive, Err: err}
	}

	dst, err := p.Get(ctx, remote, local, recursive)
	if err != nil {
		var nf *core.NotFoundError
		if errors.As(err, &nf) {
			return "", err
		}
		return "", &core.DownloadError{From: remote, To: local, Recursive: recursive, Err: err}
	}

	p.log.Debug().
		Str("from", remote).
		Str("to", dst).
		Bool("recursive", recursive).
		Msg("downloaded data")
	return dst, nil
}

// PutData uploads a local path to remote storage. Failures are wrapped in an
// UploadError carrying both paths.
func (p *Provider) PutData(ctx context.Context, local, remote string, recursive bool, metadata map[string]string) (string, error) {
	dst, err := p.Put(ctx, local, remote, recursive, metadata)
	if err != nil {
		return "", &core.UploadError{From: local, To: remote, Recursive: recursive, Err: err}
	}

	p.log.Debug().
		Str("from", local).
		Str("to", dst).
		Bool("recursive", recursive).
		Msg("uploaded data")
	return dst, nil
}

// Download fetches a single remote object to a local path.
func (p *Provider) Download(ctx context.Context, remote, local string) (string, error) {
	return p.GetData(ctx, remote, local, false)
}

// DownloadDirectory fetches a remote tree to a local directory.
func (p *Provider) DownloadDirectory(ctx context.Context, remote, local string) (string, error) {
	return p.GetData(ctx, remote, local, true)
}

// Upload sends a single local file to a remote path.
func (p *Provider) Upload(ctx context.Context, local, remote string) (string, error) {
	return p.PutData(ctx, local, remote, false, nil)
}

// UploadDirectory sends a local directory tree to a remote path.
func (p *Provider) UploadDirectory(ctx context.Context, local, remote string) (string, error) {
	return p.PutData(ctx, local, remote, true, nil)
}
