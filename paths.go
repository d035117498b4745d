package stash

import (
	"encoding/hex"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/datastash/stash/core"
)

// RandomKey returns a 32-character hex string suitable as a collision-free
// path segment.
func RandomKey() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// FileTail returns the final path segment of a local path or URI.
func FileTail(p string) string {
	return path.Base(filepath.ToSlash(p))
}

// Separator returns the path separator of the default backend.
func (p *Provider) Separator() string {
	return p.defaultBackend.Separator()
}

// Join concatenates path segments with the default backend's separator.
// Exactly one trailing separator is stripped from the first segment before
// joining, so "s3://bucket/dir/" and "s3://bucket/dir" join identically, but
// deliberately doubled separators deeper in the base survive.
func (p *Provider) Join(elems ...string) string {
	return p.join(false, elems...)
}

// JoinUnstripped is Join but guarantees the result carries the default
// backend's scheme prefix.
func (p *Provider) JoinUnstripped(elems ...string) string {
	return p.join(true, elems...)
}

func (p *Provider) join(unstrip bool, elems ...string) string {
	if len(elems) == 0 {
		return ""
	}
	b := p.defaultBackend
	base := elems[0]
	if s := core.Scheme(base); s != b.Scheme() {
		p.log.Warn().
			Str("path", base).
			Str("scheme", s).
			Str("backend", b.Scheme()).
			Msg("joining a path whose scheme does not match the default backend")
	}

	sep := b.Separator()
	base = strings.TrimSuffix(base, sep)

	out := base
	for _, e := range elems[1:] {
		out += sep + e
	}
	if unstrip && !strings.Contains(out, "://") {
		out = b.Scheme() + "://" + out
	}
	return out
}

// RecursivePaths normalizes a source/destination pair for a directory
// transfer so both name directories. The destination always gains a trailing
// separator. The source gains one only when it is remote or when it is a
// local path that actually exists as a directory; a missing or non-directory
// local source is left untouched so the backend reports the real failure.
func (p *Provider) RecursivePaths(from, to string) (string, string) {
	if core.IsRemote(from) {
		from = ensureTrailing(from, "/")
	} else {
		local := core.StripFilePrefix(from)
		if info, err := os.Stat(local); err == nil && info.IsDir() {
			from = ensureTrailing(from, string(os.PathSeparator))
		}
	}

	sep := "/"
	if !core.IsRemote(to) {
		sep = string(os.PathSeparator)
	}
	to = ensureTrailing(to, sep)
	return from, to
}

func ensureTrailing(p, sep string) string {
	if strings.HasSuffix(p, sep) {
		return p
	}
	return p + sep
}

// RandomRemotePath returns a fresh path under the raw output prefix. When
// hint names a file, its base name is preserved under a random directory so
// the artifact keeps a recognizable name.
func (p *Provider) RandomRemotePath(hint string) string {
	key := RandomKey()
	if hint != "" {
		return p.Join(p.rawOutputPrefix, key, FileTail(hint))
	}
	return p.Join(p.rawOutputPrefix, key)
}

// RandomRemoteDirectory returns a fresh directory path under the raw output
// prefix.
func (p *Provider) RandomRemoteDirectory() string {
	return p.Join(p.rawOutputPrefix, RandomKey())
}

// CustomPath rewrites the raw output prefix's bucket segment with alt, then
// appends stem, or a random key when stem is empty. With an s3://bucket/root
// prefix and alt "staging", the result lands under s3://staging/root/....
func (p *Provider) CustomPath(alt, stem string) string {
	sep := p.defaultBackend.Separator()
	parts := strings.Split(p.rawOutputPrefix, sep)
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	if alt != "" && len(parts) > 2 {
		parts[2] = alt
	}
	if stem == "" {
		stem = RandomKey()
	}
	parts = append(parts, stem)
	return strings.Join(parts, sep)
}

// RandomLocalPath returns a fresh path inside the sandbox directory. When
// hint names a file, its base name is kept under a random subdirectory.
func (p *Provider) RandomLocalPath(hint string) string {
	if hint != "" {
		return filepath.Join(p.sandboxDir, RandomKey(), FileTail(hint))
	}
	return filepath.Join(p.sandboxDir, RandomKey())
}

// RandomLocalDirectory creates and returns a fresh directory inside the
// sandbox.
func (p *Provider) RandomLocalDirectory() (string, error) {
	dir := filepath.Join(p.sandboxDir, RandomKey())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
