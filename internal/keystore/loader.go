package keystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
)

// CacheObserver is told about cache hits and misses
type CacheObserver interface {
	CertificateCache(hit bool)
}

// LoaderConfig holds the sources and cache settings of a Loader
type LoaderConfig struct {
	References ReferenceSource
	Blobs      BlobStore
	Secrets    SecretStore
	// Validator checks the certificate chain when set
	Validator security.CertificateValidator
	TTL       time.Duration
	// LoadTimeout bounds a shared load, which outlives any single caller
	LoadTimeout time.Duration
	Sealer      *Sealer
	Observer    CacheObserver
	Logger      *slog.Logger
	Now         func() time.Time
}

// Loader resolves, parses and caches company certificates. It is safe for
// concurrent use.
type Loader struct {
	refs      ReferenceSource
	blobs     BlobStore
	secrets   SecretStore
	validator security.CertificateValidator
	ttl       time.Duration
	timeout   time.Duration
	sealer    *Sealer
	observer  CacheObserver
	logger    *slog.Logger
	now       func() time.Time

	cache *gocache.Cache
	group singleflight.Group
}

// NewLoader creates a loader
func NewLoader(cfg LoaderConfig) (*Loader, error) {
	if cfg.References == nil || cfg.Blobs == nil || cfg.Secrets == nil {
		return nil, fmt.Errorf("references, blobs and secrets are required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = time.Minute
	}
	if cfg.Sealer == nil {
		s, err := NewSealer(nil)
		if err != nil {
			return nil, err
		}
		cfg.Sealer = s
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Loader{
		refs:      cfg.References,
		blobs:     cfg.Blobs,
		secrets:   cfg.Secrets,
		validator: cfg.Validator,
		ttl:       cfg.TTL,
		timeout:   cfg.LoadTimeout,
		sealer:    cfg.Sealer,
		observer:  cfg.Observer,
		logger:    cfg.Logger,
		now:       cfg.Now,
		cache:     gocache.New(cfg.TTL, cfg.TTL*2),
	}, nil
}

// Load returns the credentials of a company, from cache when possible
func (l *Loader) Load(ctx context.Context, companyID string) (*Credentials, error) {
	if companyID == "" {
		return nil, ErrNotConfigured
	}
	if v, ok := l.cache.Get(companyID); ok {
		creds := v.(*Credentials)
		if l.now().Before(creds.NotAfter()) {
			l.observe(true)
			return creds, nil
		}
		l.cache.Delete(companyID)
	}
	l.observe(false)

	// The shared load is detached from the first caller so one cancelled
	// request does not fail the others waiting on it.
	ch := l.group.DoChan(companyID, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.timeout)
		defer cancel()
		creds, err := l.load(loadCtx, companyID)
		if err != nil {
			return nil, err
		}
		ttl := l.ttl
		if remaining := creds.NotAfter().Sub(l.now()); remaining < ttl {
			ttl = remaining
		}
		l.cache.Set(companyID, creds, ttl)
		return creds, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Credentials), nil
	}
}

func (l *Loader) load(ctx context.Context, companyID string) (*Credentials, error) {
	logger := l.logger.With("company", companyID)

	ref, err := l.refs.Reference(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("resolving certificate reference: %w", err)
	}
	blob, err := l.blobs.Fetch(ctx, ref.Bundle)
	if err != nil {
		return nil, fmt.Errorf("fetching certificate bundle: %w", err)
	}
	if len(blob) == 0 {
		return nil, ErrEmptyBundle
	}
	password, err := l.secrets.Secret(ctx, ref.PasswordRef)
	if err != nil {
		return nil, fmt.Errorf("retrieving certificate password: %w", err)
	}

	bundle, err := security.ParseBundle(blob, password)
	if err != nil {
		logger.Warn("certificate bundle rejected", "error", err)
		return nil, err
	}
	now := l.now()
	if err := bundle.CheckValidity(now); err != nil {
		logger.Warn("certificate outside validity period", "not_after", bundle.Certificate.NotAfter)
		return nil, err
	}
	if l.validator != nil {
		if err := l.validator.ValidateCertificate(bundle.Certificate, bundle.Chain, now); err != nil {
			return nil, err
		}
	}

	sealed, err := l.sealer.Seal([]byte(password))
	if err != nil {
		return nil, err
	}
	logger.Info("certificate loaded", "subject", bundle.Subject(), "not_after", bundle.Certificate.NotAfter)
	return &Credentials{
		CompanyID:      companyID,
		Bundle:         bundle,
		LoadedAt:       now,
		blob:           blob,
		sealedPassword: sealed,
		sealer:         l.sealer,
	}, nil
}

// Invalidate drops a company from the cache, for example after a certificate
// has been replaced
func (l *Loader) Invalidate(companyID string) {
	l.cache.Delete(companyID)
}

// Cached reports how many companies are cached
func (l *Loader) Cached() int {
	return l.cache.ItemCount()
}

func (l *Loader) observe(hit bool) {
	if l.observer != nil {
		l.observer.CertificateCache(hit)
	}
}

// IsNotConfigured reports whether err means the company has no certificate
func IsNotConfigured(err error) bool {
	return errors.Is(err, ErrNotConfigured)
}
