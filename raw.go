package stash

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/datastash/stash/core"
)

// DefaultReadChunkBytes is the buffer size used when draining a reader
// source in PutRaw.
const DefaultReadChunkBytes = 1024

type rawOptions struct {
	uploadPrefix  *string
	fileName      string
	readChunk     int
	encoding      string
	skipRawPrefix bool
}

// RawOption configures a PutRaw call.
type RawOption func(*rawOptions)

// WithUploadPrefix fixes the directory segment under the raw output prefix
// instead of a random key. An empty prefix writes directly under the raw
// output prefix.
func WithUploadPrefix(prefix string) RawOption {
	return func(o *rawOptions) { o.uploadPrefix = &prefix }
}

// WithFileName fixes the final path segment of the uploaded artifact.
func WithFileName(name string) RawOption {
	return func(o *rawOptions) { o.fileName = name }
}

// WithReadChunkSize sets the buffer size for reader sources.
func WithReadChunkSize(n int) RawOption {
	return func(o *rawOptions) {
		if n > 0 {
			o.readChunk = n
		}
	}
}

// WithTextEncoding transcodes a reader source from UTF-8 into the named
// IANA character set before upload.
func WithTextEncoding(name string) RawOption {
	return func(o *rawOptions) { o.encoding = name }
}

// WithoutRawPrefix treats the upload prefix as a complete destination URI
// rather than a segment under the raw output prefix.
func WithoutRawPrefix() RawOption {
	return func(o *rawOptions) { o.skipRawPrefix = true }
}

// PutRaw uploads arbitrary data under the raw output prefix and returns the
// remote path it was written to. The source may be a local path (string), a
// byte slice, or an io.Reader; directories named by a path source are
// uploaded recursively. The destination is
// {rawOutputPrefix}/{uploadPrefix or random}/{fileName or source tail or random}.
func (p *Provider) PutRaw(ctx context.Context, src any, opts ...RawOption) (string, error) {
	o := rawOptions{readChunk: DefaultReadChunkBytes}
	for _, opt := range opts {
		opt(&o)
	}

	prefix := RandomKey()
	if o.uploadPrefix != nil {
		prefix = *o.uploadPrefix
	}
	var to string
	if o.skipRawPrefix {
		to = prefix
	} else {
		to = p.Join(p.rawOutputPrefix, prefix)
	}

	switch s := src.(type) {
	case string:
		return p.putRawPath(ctx, s, to, o)
	case []byte:
		return p.putRawReader(ctx, bytes.NewReader(s), p.rawDest(to, o, ""), o)
	case io.Reader:
		if s == nil {
			return "", fmt.Errorf("%w: reader source must not be nil", core.ErrPrecondition)
		}
		return p.putRawReader(ctx, s, p.rawDest(to, o, ""), o)
	default:
		return "", fmt.Errorf("%w: unsupported source type %T", core.ErrPrecondition, src)
	}
}

// rawDest appends the artifact's file name: an explicit name wins, then the
// source path's tail, then a random key.
func (p *Provider) rawDest(to string, o rawOptions, srcPath string) string {
	name := o.fileName
	if name == "" && srcPath != "" {
		name = FileTail(srcPath)
	}
	if name == "" {
		name = RandomKey()
	}
	return p.Join(to, name)
}

func (p *Provider) putRawPath(ctx context.Context, src, to string, o rawOptions) (string, error) {
	local := core.StripFilePrefix(src)
	info, err := os.Lstat(local)
	if err != nil {
		return "", fmt.Errorf("%w: file %s does not exist", core.ErrPrecondition, src)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return "", fmt.Errorf("%w: symlink %s cannot be uploaded", core.ErrPrecondition, src)
	}

	if info.IsDir() {
		return p.Put(ctx, src, p.rawDest(to, o, local), true, nil)
	}
	return p.Put(ctx, src, p.rawDest(to, o, local), false, nil)
}

func (p *Provider) putRawReader(ctx context.Context, r io.Reader, to string, o rawOptions) (string, error) {
	b, err := p.ResolveBackendForPath(to, false)
	if err != nil {
		return "", err
	}

	w, err := b.OpenWrite(ctx, to)
	if err != nil {
		return "", &core.UploadError{To: to, Err: err}
	}

	var dst io.Writer = w
	var enc io.WriteCloser
	if o.encoding != "" && !strings.EqualFold(o.encoding, "utf-8") {
		e, err := ianaindex.IANA.Encoding(o.encoding)
		if err != nil || e == nil {
			_ = w.Close()
			return "", fmt.Errorf("%w: unknown text encoding %q", core.ErrPrecondition, o.encoding)
		}
		enc = transform.NewWriter(w, e.NewEncoder())
		dst = enc
	}

	buf := make([]byte, o.readChunk)
	if _, err := io.CopyBuffer(dst, r, buf); err != nil {
		if enc != nil {
			_ = enc.Close()
		}
		_ = w.Close()
		return "", &core.UploadError{To: to, Err: err}
	}
	if enc != nil {
		if err := enc.Close(); err != nil {
			_ = w.Close()
			return "", &core.UploadError{To: to, Err: err}
		}
	}
	if err := w.Close(); err != nil {
		return "", &core.UploadError{To: to, Err: err}
	}

	p.log.Debug().Str("to", to).Msg("uploaded raw data")
	return to, nil
}
