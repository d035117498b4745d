package stash

import (
	"fmt"

	"github.com/datastash/stash/backend/azure"
	"github.com/datastash/stash/backend/ftp"
	"github.com/datastash/stash/backend/local"
	"github.com/datastash/stash/backend/s3"
	"github.com/datastash/stash/config"
	"github.com/datastash/stash/core"
)

// ResolveBackend returns a backend handle for a scheme. Handles are built
// at most once per (scheme, mode) pair and cached for the life of the
// provider; the anonymous mode yields a distinct handle with no ambient
// credentials applied. Unknown schemes fail with core.ErrUnsupportedScheme.
func (p *Provider) ResolveBackend(scheme string, anonymous bool) (core.Backend, error) {
	return p.resolve(scheme, anonymous, "")
}

// ResolveBackendForPath resolves a backend from a path's scheme. A path
// with no scheme resolves to the local filesystem backend. FTP paths carry
// their connection parameters in the URI, so the handle is additionally
// keyed on the host.
func (p *Provider) ResolveBackendForPath(path string, anonymous bool) (core.Backend, error) {
	return p.resolve(core.Scheme(path), anonymous, path)
}

func (p *Provider) resolve(scheme string, anonymous bool, path string) (core.Backend, error) {
	key := handleKey{scheme: scheme, anonymous: anonymous}
	if scheme == "ftp" {
		cfg, err := ftp.ParseURL(path)
		if err != nil {
			return nil, err
		}
		key.host = cfg.Host
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if b, ok := p.handles[key]; ok {
		return b, nil
	}

	b, err := p.build(scheme, anonymous, path)
	if err != nil {
		return nil, err
	}
	p.handles[key] = b

	p.log.Debug().
		Str("scheme", scheme).
		Bool("anonymous", anonymous).
		Msg("resolved storage backend")

	return b, nil
}

func (p *Provider) build(scheme string, anonymous bool, path string) (core.Backend, error) {
	switch scheme {
	case core.FileScheme:
		return local.New(), nil
	case "s3":
		cfg := s3.Config{
			Endpoint:  p.cfg.S3.Endpoint,
			Region:    p.cfg.S3.Region,
			Insecure:  p.cfg.S3.Insecure,
			Anonymous: anonymous,
			PartSize:  config.WriteChunkBytes(),
		}
		if !anonymous {
			cfg.AccessKey = p.cfg.S3.AccessKeyID
			cfg.SecretKey = p.cfg.S3.SecretAccessKey
		}
		return s3.New(cfg)
	case "abfs", "abfss":
		cfg := azure.Config{
			AccountName: p.cfg.Azure.AccountName,
			Scheme:      scheme,
			Anonymous:   anonymous,
			BlockSize:   config.WriteChunkBytes(),
		}
		if !anonymous {
			cfg.AccountKey = p.cfg.Azure.AccountKey
			cfg.ClientID = p.cfg.Azure.ClientID
			cfg.ClientSecret = p.cfg.Azure.ClientSecret
			cfg.TenantID = p.cfg.Azure.TenantID
		}
		return azure.New(cfg)
	case "ftp":
		cfg, err := ftp.ParseURL(path)
		if err != nil {
			return nil, err
		}
		if anonymous {
			cfg.User = "anonymous"
			cfg.Password = ""
		}
		return ftp.New(cfg)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedScheme, scheme)
	}
}
