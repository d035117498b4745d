package core

import (
	"context"
	"io"
)

// PutOptions carries optional parameters for Backend.Put.
//
// Backends that cannot honor a field ignore it: the local backend has no
// object metadata, and only the object-storage backends apply ChunkSizeBytes.
type PutOptions struct {
	// Metadata is attached to the written object(s) when the backend
	// supports per-object metadata.
	Metadata map[string]string

	// ChunkSizeBytes overrides the backend's write chunk (part) size for
	// large-object writes. Zero means use the backend default.
	ChunkSizeBytes int64
}

// Backend is a configured client for one storage scheme in one credential
// mode. A Backend is immutable once constructed and safe for concurrent use.
//
// Paths passed to Backend methods are full URIs for remote schemes
// (e.g. "s3://bucket/key") and plain or file://-prefixed paths for the local
// scheme. Each backend strips its own scheme prefix.
type Backend interface {
	// Scheme returns the URI scheme this backend serves (e.g. "file", "s3").
	Scheme() string

	// Separator returns the path separator used by this backend.
	Separator() string

	// Exists reports whether the named object or directory exists.
	// A false result with a non-nil error means existence could not be
	// determined, not that the object is missing.
	Exists(ctx context.Context, path string) (bool, error)

	// Get copies from the backend to a local destination. When recursive is
	// set both paths are treated as directories. It returns the destination
	// path actually written, which may be a canonicalized form of to.
	Get(ctx context.Context, from, to string, recursive bool) (string, error)

	// Put copies a local source into the backend. When recursive is set both
	// paths are treated as directories. It returns the remote path actually
	// written, which may be a canonicalized form of to.
	Put(ctx context.Context, from, to string, recursive bool, opts PutOptions) (string, error)

	// OpenWrite opens a streaming write handle for a single object.
	// The write is not durable until Close returns nil.
	OpenWrite(ctx context.Context, path string) (io.WriteCloser, error)
}

// TreeCopier is an optional capability for backends that provide a native
// merging directory copy. It is used as the recursive-transfer fallback on
// platforms where the generic path is unreliable.
//
// Use a type assertion to check for support:
//
//	if tc, ok := backend.(TreeCopier); ok {
//	    dst, err := tc.CopyTree(ctx, from, to)
//	}
type TreeCopier interface {
	// CopyTree recursively copies the directory from into to, creating to if
	// needed and merging into an existing destination.
	CopyTree(ctx context.Context, from, to string) (string, error)
}
