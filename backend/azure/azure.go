// Package azure provides the Azure blob-storage backend over the Azure SDK.
// It supports shared-key, service-principal, and anonymous credential modes.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/datastash/stash/core"
	"github.com/datastash/stash/internal/pathutil"
)

// Config holds Azure blob backend configuration.
type Config struct {
	// AccountName identifies the storage account. Required unless Client is
	// provided.
	AccountName string

	// AccountKey enables shared-key authentication.
	AccountKey string

	// ClientID, ClientSecret, and TenantID enable service-principal
	// authentication when AccountKey is unset.
	ClientID     string
	ClientSecret string
	TenantID     string

	// Anonymous requests omit credentials, for reads of public containers.
	Anonymous bool

	// Scheme is the URI scheme this backend serves ("abfs" or "abfss").
	Scheme string

	// BlockSize is the write chunk size for large-blob writes. Zero means
	// the SDK default.
	BlockSize int64

	// Client is an optional pre-configured client. If provided, the
	// credential fields above are ignored.
	Client *azblob.Client
}

// Backend implements core.Backend for Azure blob storage.
type Backend struct {
	client    *azblob.Client
	scheme    string
	blockSize int64
}

// New creates an Azure blob backend from cfg, choosing the credential mode
// in order: injected client, anonymous, shared key, service principal.
func New(cfg Config) (*Backend, error) {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = "abfs"
	}

	client := cfg.Client
	if client == nil {
		if cfg.AccountName == "" {
			return nil, fmt.Errorf("account name is required when client is not provided")
		}
		serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.AccountName)

		var err error
		switch {
		case cfg.Anonymous:
			client, err = azblob.NewClientWithNoCredential(serviceURL, nil)
		case cfg.AccountKey != "":
			var cred *azblob.SharedKeyCredential
			cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
			if err == nil {
				client, err = azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
			}
		case cfg.ClientID != "" && cfg.ClientSecret != "" && cfg.TenantID != "":
			var cred *azidentity.ClientSecretCredential
			cred, err = azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
			if err == nil {
				client, err = azblob.NewClient(serviceURL, cred, nil)
			}
		default:
			return nil, fmt.Errorf("either an account key or a client id/secret/tenant id triple is required")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to create azure client: %w", err)
		}
	}

	return &Backend{client: client, scheme: scheme, blockSize: cfg.BlockSize}, nil
}

// Scheme returns the configured URI scheme.
func (b *Backend) Scheme() string { return b.scheme }

// Separator returns the blob-name separator.
func (b *Backend) Separator() string { return "/" }

func ptr[T any](v T) *T { return &v }

func translate(err error) error {
	if err == nil {
		return nil
	}
	if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
		return fs.ErrNotExist
	}
	if bloberror.HasCode(err, bloberror.AuthorizationFailure, bloberror.InsufficientAccountPermissions) {
		return fmt.Errorf("azure: %w: %v", fs.ErrPermission, err)
	}
	return fmt.Errorf("azure: %w", err)
}

// Exists reports whether the named blob or virtual directory exists.
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	container, key, err := pathutil.SplitURI(path)
	if err != nil {
		return false, err
	}
	key = strings.TrimSuffix(key, "/")

	blobClient := b.client.ServiceClient().NewContainerClient(container).NewBlobClient(key)
	if _, gerr := blobClient.GetProperties(ctx, nil); gerr == nil {
		return true, nil
	} else if terr := translate(gerr); !errors.Is(terr, fs.ErrNotExist) {
		return false, terr
	}

	pager := b.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{
		Prefix:     ptr(key + "/"),
		MaxResults: ptr(int32(1)),
	})
	if pager.More() {
		resp, perr := pager.NextPage(ctx)
		if perr != nil {
			return false, translate(perr)
		}
		return len(resp.Segment.BlobItems) > 0, nil
	}
	return false, nil
}

// Get downloads from into the local path to.
func (b *Backend) Get(ctx context.Context, from, to string, recursive bool) (string, error) {
	container, key, err := pathutil.SplitURI(from)
	if err != nil {
		return "", err
	}
	to = core.StripFilePrefix(to)

	if !recursive {
		return to, b.downloadBlob(ctx, container, key, to)
	}

	prefix := strings.TrimSuffix(key, "/") + "/"
	pager := b.client.NewListBlobsFlatPager(container, &azblob.ListBlobsFlatOptions{
		Prefix: ptr(prefix),
	})
	found := false
	for pager.More() {
		resp, perr := pager.NextPage(ctx)
		if perr != nil {
			return "", translate(perr)
		}
		for _, item := range resp.Segment.BlobItems {
			name := *item.Name
			if strings.HasSuffix(name, "/") {
				continue
			}
			found = true
			rel := strings.TrimPrefix(name, prefix)
			dst := filepath.Join(to, filepath.FromSlash(rel))
			if derr := b.downloadBlob(ctx, container, name, dst); derr != nil {
				return "", derr
			}
		}
	}
	if !found {
		return "", fs.ErrNotExist
	}
	return to, nil
}

func (b *Backend) downloadBlob(ctx context.Context, container, key, dst string) error {
	if dir := filepath.Dir(dst); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := b.client.DownloadFile(ctx, container, key, f, nil); err != nil {
		return translate(err)
	}
	return nil
}

// Put uploads the local path from to the remote destination dest.
func (b *Backend) Put(ctx context.Context, from, dest string, recursive bool, opts core.PutOptions) (string, error) {
	container, key, err := pathutil.SplitURI(dest)
	if err != nil {
		return "", err
	}
	from = core.StripFilePrefix(from)
	uploadOpts := b.uploadOptions(opts)

	if !recursive {
		if strings.HasSuffix(key, "/") {
			key = pathutil.JoinKey(strings.TrimSuffix(key, "/"), filepath.Base(from))
		}
		return dest, b.uploadFile(ctx, container, key, from, uploadOpts)
	}

	root := strings.TrimRight(from, string(filepath.Separator))
	prefix := strings.TrimSuffix(key, "/")
	err = filepath.WalkDir(root, func(path string, d os.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, rerr := filepath.Rel(root, path)
		if rerr != nil {
			return rerr
		}
		return b.uploadFile(ctx, container, pathutil.JoinKey(prefix, filepath.ToSlash(rel)), path, uploadOpts)
	})
	if err != nil {
		return "", err
	}
	return dest, nil
}

func (b *Backend) uploadOptions(opts core.PutOptions) *azblob.UploadFileOptions {
	o := &azblob.UploadFileOptions{}
	if b.blockSize > 0 {
		o.BlockSize = b.blockSize
	}
	if opts.ChunkSizeBytes > 0 {
		o.BlockSize = opts.ChunkSizeBytes
	}
	if len(opts.Metadata) > 0 {
		o.Metadata = make(map[string]*string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			o.Metadata[k] = ptr(v)
		}
	}
	return o
}

func (b *Backend) uploadFile(ctx context.Context, container, key, from string, opts *azblob.UploadFileOptions) error {
	f, err := os.Open(from)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	if _, err := b.client.UploadFile(ctx, container, key, f, opts); err != nil {
		return translate(err)
	}
	return nil
}

// OpenWrite opens a streaming write handle for a single blob. Data is piped
// into a background UploadStream; Close waits for the upload result.
func (b *Backend) OpenWrite(ctx context.Context, path string) (io.WriteCloser, error) {
	container, key, err := pathutil.SplitURI(path)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	res := make(chan error, 1)

	go func() {
		_, uerr := b.client.UploadStream(ctx, container, key, pr, nil)
		_ = pr.CloseWithError(uerr)
		res <- translate(uerr)
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
