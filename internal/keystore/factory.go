package keystore

import (
	"fmt"
	"log/slog"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/config"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
)

// NewFromConfig creates a Loader from the certificates configuration section
func NewFromConfig(cfg *config.CertificatesConfig, observer CacheObserver, logger *slog.Logger) (*Loader, error) {
	refs := make(map[string]Reference, len(cfg.Companies))
	for id, c := range cfg.Companies {
		refs[id] = Reference{Bundle: c.Bundle, PasswordRef: c.PasswordRef}
	}

	var blobs BlobStore
	switch cfg.Blob.Backend {
	case "minio":
		m := cfg.Blob.MinIO
		store, err := NewMinIOBlobStore(MinIOConfig{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			return nil, err
		}
		blobs = store
	case "file", "":
		dir := cfg.Blob.Dir
		if dir == "" {
			dir = "./certificates"
		}
		blobs = NewFileBlobStore(dir)
	default:
		return nil, fmt.Errorf("unknown certificate blob backend: %s", cfg.Blob.Backend)
	}

	var secrets SecretStore
	switch cfg.Secrets.Backend {
	case "vault":
		v := cfg.Secrets.Vault
		secrets = NewVaultSecretStore(VaultConfig{Address: v.Address, Token: v.Token, Mount: v.Mount, Timeout: v.Timeout})
	case "env", "":
		secrets = NewEnvSecretStore(cfg.Secrets.EnvPrefix)
	default:
		return nil, fmt.Errorf("unknown certificate secrets backend: %s", cfg.Secrets.Backend)
	}

	var validator security.CertificateValidator
	if cfg.ChainBundle != "" {
		roots, err := security.LoadCertPool(cfg.ChainBundle)
		if err != nil {
			return nil, err
		}
		validator = security.NewChainValidator(roots)
	}

	return NewLoader(LoaderConfig{
		References: NewStaticReferences(refs),
		Blobs:      blobs,
		Secrets:    secrets,
		Validator:  validator,
		TTL:        cfg.CacheTTL,
		Observer:   observer,
		Logger:     logger,
	})
}
