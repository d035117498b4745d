package stash

import (
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/datastash/stash/config"
	"github.com/datastash/stash/core"
	"github.com/datastash/stash/retry"
)

// DefaultAsyncWorkers bounds the provider-owned executor for the async
// calling convention.
const DefaultAsyncWorkers = 8

// handleKey identifies one backend handle: scheme plus credential mode.
// FTP handles additionally key on the server host, since the connection
// parameters live in the URI.
type handleKey struct {
	scheme    string
	host      string
	anonymous bool
}

// Provider is the session-scoped entry point for moving data between a
// local working directory and remote durable storage. It owns the local
// sandbox directory, resolves and caches one backend handle per
// (scheme, credential-mode) pair, and exposes the transfer operations.
//
// A Provider is immutable after construction apart from the handle cache
// and is safe for concurrent use.
type Provider struct {
	sandboxDir      string
	rawOutputPrefix string
	cfg             config.DataConfig
	execMetadata    map[string]string
	retries         int
	log             zerolog.Logger

	mu             sync.Mutex
	handles        map[handleKey]core.Backend
	defaultBackend core.Backend

	asyncOnce    sync.Once
	asyncSem     chan struct{}
	asyncWorkers int
}

// Option configures Provider construction.
type Option func(*Provider)

// WithLogger attaches a logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(p *Provider) { p.log = log }
}

// WithExecutionMetadata supplies key/value tags attached to every upload
// this provider performs. The tags are dropped unless the configuration
// enables AttachExecutionMetadata.
func WithExecutionMetadata(md map[string]string) Option {
	return func(p *Provider) { p.execMetadata = md }
}

// WithBackend seeds the handle cache with a pre-built backend for a
// (scheme, mode) pair, bypassing resolution. Intended for tests and for
// callers that construct clients themselves.
func WithBackend(scheme string, anonymous bool, b core.Backend) Option {
	return func(p *Provider) {
		p.handles[handleKey{scheme: scheme, anonymous: anonymous}] = b
	}
}

// WithAsyncWorkers bounds the executor behind the async calling convention.
func WithAsyncWorkers(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.asyncWorkers = n
		}
	}
}

// New creates a Provider. The sandbox directory is created eagerly and is
// never removed by this layer. The raw output prefix names where new remote
// artifacts are written by default; its scheme selects the default backend
// and the prefix is normalized to end with that backend's separator.
func New(sandboxDir, rawOutputPrefix string, cfg config.DataConfig, opts ...Option) (*Provider, error) {
	if sandboxDir == "" {
		return nil, fmt.Errorf("%w: a provider needs a valid local sandbox directory", core.ErrPrecondition)
	}
	if runtime.GOOS == "windows" && strings.HasPrefix(rawOutputPrefix, "file://") {
		return nil, fmt.Errorf("%w: the file:// prefix cannot be used on windows", core.ErrPrecondition)
	}

	p := &Provider{
		sandboxDir:      sandboxDir,
		rawOutputPrefix: rawOutputPrefix,
		cfg:             cfg,
		retries:         cfg.S3.Retries,
		log:             zerolog.Nop(),
		handles:         make(map[handleKey]core.Backend),
		asyncWorkers:    DefaultAsyncWorkers,
	}
	if p.retries <= 0 {
		p.retries = retry.DefaultAttempts
	}
	for _, opt := range opts {
		opt(p)
	}
	if !cfg.Generic.AttachExecutionMetadata {
		p.execMetadata = nil
	}

	if err := os.MkdirAll(sandboxDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sandbox directory %s: %w", sandboxDir, err)
	}

	b, err := p.ResolveBackendForPath(rawOutputPrefix, false)
	if err != nil {
		return nil, err
	}
	p.defaultBackend = b

	if sep := b.Separator(); !strings.HasSuffix(p.rawOutputPrefix, sep) {
		p.rawOutputPrefix += sep
	}

	p.log.Debug().
		Str("sandbox", sandboxDir).
		Str("raw_output_prefix", p.rawOutputPrefix).
		Str("scheme", b.Scheme()).
		Msg("storage provider ready")

	return p, nil
}

// SandboxDir returns the local scratch directory owned by this provider.
func (p *Provider) SandboxDir() string { return p.sandboxDir }

// RawOutputPrefix returns the normalized default remote write root. It
// always ends with the default backend's separator.
func (p *Provider) RawOutputPrefix() string { return p.rawOutputPrefix }

// RawOutputBackend returns the backend handle resolved from the raw output
// prefix's scheme.
func (p *Provider) RawOutputBackend() core.Backend { return p.defaultBackend }

// DataConfig returns the opaque per-backend-family configuration.
func (p *Provider) DataConfig() config.DataConfig { return p.cfg }
