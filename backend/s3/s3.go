// Package s3 provides the S3-compatible object-storage backend over
// minio-go. It supports static or anonymous credentials, custom endpoints,
// and a tuned write part size for large objects.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/datastash/stash/core"
	"github.com/datastash/stash/internal/pathutil"
)

const (
	// DefaultEndpoint is used when no custom endpoint is configured.
	DefaultEndpoint = "s3.amazonaws.com"

	// DefaultPartSize is the write chunk size for multipart uploads (25 MiB).
	DefaultPartSize = 25 * 1 << 20

	// DefaultTransferConcurrency bounds parallel object transfers during
	// recursive gets and puts.
	DefaultTransferConcurrency = 10
)

// Config holds S3 backend configuration.
type Config struct {
	// Endpoint is the object-store host (e.g. "localhost:9000"). Scheme
	// prefixes are accepted and control TLS unless Insecure is set.
	Endpoint string

	// Region is the signing region. Optional.
	Region string

	// AccessKey and SecretKey authenticate requests. Ignored in anonymous
	// mode.
	AccessKey string
	SecretKey string

	// Anonymous requests omit credentials entirely, for reads of public
	// objects.
	Anonymous bool

	// Insecure disables TLS.
	Insecure bool

	// PartSize is the write chunk size for large-object writes.
	// Zero means DefaultPartSize.
	PartSize int64

	// TransferConcurrency bounds parallel transfers for recursive
	// operations. Zero means DefaultTransferConcurrency.
	TransferConcurrency int

	// Client is an optional pre-configured client. If provided, the
	// connection fields above are ignored.
	Client *minio.Client
}

func (c *Config) validate() error {
	if c.Client != nil {
		return nil
	}
	if c.Anonymous {
		return nil
	}
	if c.AccessKey == "" && c.SecretKey == "" {
		// Credential-less non-anonymous configs are allowed; the service
		// may grant access by other means (e.g. instance profiles proxied
		// by the endpoint). Nothing to check.
		return nil
	}
	if c.AccessKey == "" {
		return fmt.Errorf("access key is required when a secret key is set")
	}
	if c.SecretKey == "" {
		return fmt.Errorf("secret key is required when an access key is set")
	}
	return nil
}

// Backend implements core.Backend for S3-compatible object stores.
type Backend struct {
	client      *minio.Client
	partSize    uint64
	concurrency int
	anonymous   bool
}

// New creates an S3 backend from cfg.
func New(cfg Config) (*Backend, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := cfg.Client
	if client == nil {
		endpoint, secure := splitEndpoint(cfg.Endpoint, !cfg.Insecure)

		creds := credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, "")
		if cfg.Anonymous || (cfg.AccessKey == "" && cfg.SecretKey == "") {
			creds = credentials.NewStatic("", "", "", credentials.SignatureAnonymous)
		}

		var err error
		client, err = minio.New(endpoint, &minio.Options{
			Creds:  creds,
			Secure: secure,
			Region: cfg.Region,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create s3 client: %w", err)
		}
	}

	partSize := cfg.PartSize
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	concurrency := cfg.TransferConcurrency
	if concurrency <= 0 {
		concurrency = DefaultTransferConcurrency
	}

	return &Backend{
		client:      client,
		partSize:    uint64(partSize),
		concurrency: concurrency,
		anonymous:   cfg.Anonymous,
	}, nil
}

// splitEndpoint strips a scheme prefix from an endpoint and derives TLS use.
func splitEndpoint(endpoint string, secure bool) (string, bool) {
	switch {
	case endpoint == "":
		return DefaultEndpoint, secure
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimPrefix(endpoint, "https://"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimPrefix(endpoint, "http://"), false
	default:
		return endpoint, secure
	}
}

// Scheme returns "s3".
func (b *Backend) Scheme() string { return "s3" }

// Separator returns the object-key separator.
func (b *Backend) Separator() string { return "/" }

// translate converts client errors to the module's error taxonomy. Missing
// keys and buckets map to fs.ErrNotExist; everything else keeps its message
// so the retry policy can classify throttling responses.
func translate(err error) error {
	if err == nil {
		return nil
	}
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NoSuchBucket":
		return fs.ErrNotExist
	case "AccessDenied":
		return fmt.Errorf("s3: %w: %s", fs.ErrPermission, resp.Message)
	}
	return fmt.Errorf("s3: %w", err)
}

// Exists reports whether the named object exists. A key with no object match
// still exists when it names a virtual directory, so a prefix probe backs up
// the stat.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	bucket, key, err := pathutil.SplitURI(path)
	if err != nil {
		return false, err
	}
	key = strings.TrimSuffix(key, "/")

	_, serr := b.client.StatObject(ctx, bucket, key, minio.StatObjectOptions{})
	if serr == nil {
		return true, nil
	}
	if terr := translate(serr); !errors.Is(terr, fs.ErrNotExist) {
		return false, terr
	}

	for object := range b.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:  key + "/",
		MaxKeys: 1,
	}) {
		if object.Err != nil {
			return false, translate(object.Err)
		}
		return true, nil
	}
	return false, nil
}

// Get downloads from into the local path to. Recursive gets mirror the whole
// prefix with a bounded worker pool.
func (b *Backend) Get(ctx context.Context, from, to string, recursive bool) (string, error) {
	bucket, key, err := pathutil.SplitURI(from)
	if err != nil {
		return "", err
	}
	to = core.StripFilePrefix(to)

	if !recursive {
		if err := b.client.FGetObject(ctx, bucket, key, to, minio.GetObjectOptions{}); err != nil {
			return "", translate(err)
		}
		return to, nil
	}

	prefix := strings.TrimSuffix(key, "/") + "/"
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.concurrency)

	found := false
	for object := range b.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return "", translate(object.Err)
		}
		if strings.HasSuffix(object.Key, "/") {
			continue
		}
		found = true
		objectKey := object.Key
		eg.Go(func() error {
			rel := strings.TrimPrefix(objectKey, prefix)
			dst := filepath.Join(to, filepath.FromSlash(rel))
			return translate(b.client.FGetObject(egCtx, bucket, objectKey, dst, minio.GetObjectOptions{}))
		})
	}
	if err := eg.Wait(); err != nil {
		return "", err
	}
	if !found {
		return "", fs.ErrNotExist
	}
	return to, nil
}

// Put uploads the local path from to the remote destination to. Recursive
// puts walk the source tree and upload files in parallel.
func (b *Backend) Put(ctx context.Context, from, to string, recursive bool, opts core.PutOptions) (string, error) {
	bucket, key, err := pathutil.SplitURI(to)
	if err != nil {
		return "", err
	}
	from = core.StripFilePrefix(from)
	putOpts := b.putOptions(opts)

	if !recursive {
		if strings.HasSuffix(key, "/") {
			key = pathutil.JoinKey(strings.TrimSuffix(key, "/"), filepath.Base(from))
		}
		if _, err := b.client.FPutObject(ctx, bucket, key, from, putOpts); err != nil {
			return "", translate(err)
		}
		return to, nil
	}

	root := strings.TrimRight(from, string(filepath.Separator))
	prefix := strings.TrimSuffix(key, "/")

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(b.concurrency)

	walkErr := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		localPath := path
		objectKey := pathutil.JoinKey(prefix, filepath.ToSlash(rel))
		eg.Go(func() error {
			_, perr := b.client.FPutObject(egCtx, bucket, objectKey, localPath, putOpts)
			return translate(perr)
		})
		return nil
	})
	if err := eg.Wait(); err != nil {
		return "", err
	}
	if walkErr != nil {
		return "", walkErr
	}
	return to, nil
}

func (b *Backend) putOptions(opts core.PutOptions) minio.PutObjectOptions {
	partSize := b.partSize
	if opts.ChunkSizeBytes > 0 {
		partSize = uint64(opts.ChunkSizeBytes)
	}
	return minio.PutObjectOptions{
		UserMetadata: opts.Metadata,
		PartSize:     partSize,
		ContentType:  "application/octet-stream",
	}
}

// OpenWrite opens a streaming write handle for a single object. Data is
// piped into a background PutObject; Close waits for the upload result.
func (b *Backend) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	bucket, key, err := pathutil.SplitURI(path)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	res := make(chan error, 1)

	go func() {
		_, perr := b.client.PutObject(ctx, bucket, key, pr, -1, b.putOptions(core.PutOptions{}))
		_ = pr.CloseWithError(perr)
		res <- translate(perr)
		close(res)
	}()

	return &pipeWriter{pw: pw, res: res}, nil
}

// pipeWriter finalizes a streamed upload on Close.
type pipeWriter struct {
	pw     *io.PipeWriter
	res    chan error
	closed bool
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

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
