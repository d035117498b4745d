// Package ftp provides the FTP backend over jlaffaye/ftp. Connection
// parameters are parsed out of the target URI itself rather than supplied
// through configuration.
package ftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/textproto"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/datastash/stash/core"
)

// DefaultPort is used when the URI carries no explicit port.
const DefaultPort = "21"

// DialTimeout bounds connection establishment.
const DialTimeout = 30 * time.Second

// Config holds FTP connection parameters.
type Config struct {
	// Host is the server address including port.
	Host string

	// User and Password authenticate the session. An empty user defaults to
	// anonymous login.
	User     string
	Password string
}

// ParseURL extracts connection parameters from an ftp:// URI.
func ParseURL(rawURL string) (Config, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Config{}, fmt.Errorf("invalid ftp url %q: %w", rawURL, err)
	}
	if u.Host == "" {
		return Config{}, fmt.Errorf("ftp url %q has no host", rawURL)
	}

	host := u.Host
	if u.Port() == "" {
		host = u.Hostname() + ":" + DefaultPort
	}

	cfg := Config{Host: host, User: "anonymous"}
	if u.User != nil {
		if name := u.User.Username(); name != "" {
			cfg.User = name
		}
		cfg.Password, _ = u.User.Password()
	}
	return cfg, nil
}

// Backend implements core.Backend for FTP servers. Each operation dials a
// fresh session; FTP control connections are cheap and many servers drop
// idle ones.
type Backend struct {
	cfg Config
}

// New creates an FTP backend for one server.
func New(cfg Config) (*Backend, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("host is required")
	}
	if cfg.User == "" {
		cfg.User = "anonymous"
	}
	return &Backend{cfg: cfg}, nil
}

// Scheme returns "ftp".
func (b *Backend) Scheme() string { return "ftp" }

// Separator returns the remote path separator.
func (b *Backend) Separator() string { return "/" }

// Host returns the server address this backend talks to.
func (b *Backend) Host() string { return b.cfg.Host }

func (b *Backend) connect(ctx context.Context) (*ftp.ServerConn, error) {
	conn, err := ftp.Dial(b.cfg.Host, ftp.DialWithContext(ctx), ftp.DialWithTimeout(DialTimeout))
	if err != nil {
		return nil, fmt.Errorf("ftp dial %s: %w", b.cfg.Host, err)
	}
	if err := conn.Login(b.cfg.User, b.cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, fmt.Errorf("ftp login %s: %w", b.cfg.Host, err)
	}
	return conn, nil
}

// remotePath strips the scheme and host from an ftp URI.
func remotePath(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// Exists reports whether the named file or directory exists.
func (b *Backend) Exists(ctx context.Context, p string) (bool, error) {
	conn, err := b.connect(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = conn.Quit() }()

	rp := strings.TrimSuffix(remotePath(p), "/")
	if _, err := conn.FileSize(rp); err == nil {
		return true, nil
	}
	entries, err := conn.List(rp)
	if err != nil {
		return false, nil
	}
	return len(entries) > 0, nil
}

// Get downloads from into the local path to.
func (b *Backend) Get(ctx context.Context, from, to string, recursive bool) (string, error) {
	conn, err := b.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Quit() }()

	to = core.StripFilePrefix(to)
	rp := remotePath(from)

	if !recursive {
		return to, retrFile(conn, rp, to)
	}

	root := strings.TrimSuffix(rp, "/")
	walker := conn.Walk(root)
	found := false
	for walker.Next() {
		entry := walker.Stat()
		if entry.Type != ftp.EntryTypeFile {
			continue
		}
		found = true
		rel := strings.TrimPrefix(strings.TrimPrefix(walker.Path(), root), "/")
		dst := filepath.Join(to, filepath.FromSlash(rel))
		if err := retrFile(conn, walker.Path(), dst); err != nil {
			return "", err
		}
	}
	if err := walker.Err(); err != nil {
		return "", fmt.Errorf("ftp walk %s: %w", root, err)
	}
	if !found {
		return "", fs.ErrNotExist
	}
	return to, nil
}

func retrFile(conn *ftp.ServerConn, from, to string) error {
	resp, err := conn.Retr(from)
	if err != nil {
		var protoErr *textproto.Error
		if errors.As(err, &protoErr) && protoErr.Code == ftp.StatusFileUnavailable {
			return fs.ErrNotExist
		}
		return fmt.Errorf("ftp retr %s: %w", from, err)
	}
	defer func() { _ = resp.Close() }()

	if dir := filepath.Dir(to); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// Put uploads the local path from to the remote destination dest.
func (b *Backend) Put(ctx context.Context, from, dest string, recursive bool, _ core.PutOptions) (string, error) {
	conn, err := b.connect(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Quit() }()

	from = core.StripFilePrefix(from)
	rp := remotePath(dest)

	if !recursive {
		if strings.HasSuffix(rp, "/") {
			rp = path.Join(rp, filepath.Base(from))
		}
		return dest, storFile(conn, from, rp)
	}

	root := strings.TrimRight(from, string(filepath.Separator))
	prefix := strings.TrimSuffix(rp, "/")
	err = filepath.WalkDir(root, func(p string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, rerr := filepath.Rel(root, p)
		if rerr != nil {
			return rerr
		}
		return storFile(conn, p, path.Join(prefix, filepath.ToSlash(rel)))
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func storFile(conn *ftp.ServerConn, from, to string) error {
	makeParents(conn, to)

	f, err := os.Open(from)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if err := conn.Stor(to, f); err != nil {
		return fmt.Errorf("ftp stor %s: %w", to, err)
	}
	return nil
}

// makeParents best-effort creates every directory above a remote path.
// Existing directories answer with an error the server is free to phrase
// however it likes, so failures are ignored.
func makeParents(conn *ftp.ServerConn, to string) {
	dir := path.Dir(to)
	if dir == "/" || dir == "." {
		return
	}
	var acc string
	for _, seg := range strings.Split(strings.Trim(dir, "/"), "/") {
		acc = acc + "/" + seg
		_ = conn.MakeDir(acc)
	}
}

// OpenWrite opens a streaming write handle for a single remote file. Data is
// piped into a background Stor; Close waits for the transfer result.
func (b *Backend) OpenWrite(ctx context.Context, p string) (io.WriteCloser, error) {
	conn, err := b.connect(ctx)
	if err != nil {
		return nil, err
	}

	rp := remotePath(p)
	makeParents(conn, rp)

	pr, pw := io.Pipe()
	res := make(chan error, 1)

	go func() {
		serr := conn.Stor(rp, pr)
		_ = pr.CloseWithError(serr)
		_ = conn.Quit()
		if serr != nil {
			serr = fmt.Errorf("ftp stor %s: %w", rp, serr)
		}
		res <- serr
		close(res)
	}()

	return &pipeWriter{pw: pw, res: res}, nil
}

type pipeWriter struct {
	pw     *io.PipeWriter
	res    chan error
	closed bool
}

func (w *pipeWriter) Write(p []byte) (int, error) { return w.pw.Write(p) }

func (w *pipeWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.pw.Close()
	return <-w.res
}

// Compile-time interface check.
var _ core.Backend = (*Backend)(nil)
