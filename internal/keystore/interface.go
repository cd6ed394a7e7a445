// Package keystore loads and caches the A1 certificates companies use to sign
// NF-e documents and to authenticate to SEFAZ.
//
// A certificate is resolved in three steps, each behind an interface so the
// backends can be swapped independently:
//
//   - ReferenceSource: which PKCS#12 blob and which password reference belong
//     to a company
//   - BlobStore: where the PKCS#12 bytes live (directory or MinIO/S3)
//   - SecretStore: where the password lives (vault KV or environment)
//
// Loaded certificates are kept in a TTL cache; concurrent cold loads for the
// same company are collapsed into one.
package keystore

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
)

// Common errors
var (
	ErrNotConfigured  = errors.New("no certificate configured for company")
	ErrEmptyBundle    = errors.New("certificate bundle is empty")
	ErrBlobNotFound   = errors.New("certificate bundle not found")
	ErrSecretNotFound = errors.New("certificate password not found")
	// ErrCertificateExpired matches expired certificates rejected at load time
	ErrCertificateExpired = security.ErrCertificateExpired
)

// Reference points at a company's certificate material
type Reference struct {
	CompanyID   string
	Bundle      string
	PasswordRef string
}

// ReferenceSource resolves the certificate reference of a company
type ReferenceSource interface {
	Reference(ctx context.Context, companyID string) (Reference, error)
}

// BlobStore fetches PKCS#12 bytes by name
type BlobStore interface {
	Fetch(ctx context.Context, name string) ([]byte, error)
}

// SecretStore resolves a password reference
type SecretStore interface {
	Secret(ctx context.Context, ref string) (string, error)
}

// Credentials is a loaded, unexpired A1 certificate
type Credentials struct {
	CompanyID string
	Bundle    *security.Bundle
	LoadedAt  time.Time

	blob           []byte
	sealedPassword []byte
	sealer         *Sealer
}

// Certificate returns the signing certificate
func (c *Credentials) Certificate() *x509.Certificate {
	return c.Bundle.Certificate
}

// TLSCertificate returns the certificate for mutual TLS
func (c *Credentials) TLSCertificate() tls.Certificate {
	return c.Bundle.TLSCertificate()
}

// NotAfter returns the end of the certificate validity
func (c *Credentials) NotAfter() time.Time {
	return c.Bundle.Certificate.NotAfter
}

// Signing returns the PKCS#12 bundle and its password for security.Sign
func (c *Credentials) Signing() (security.Credentials, error) {
	password, err := c.sealer.Open(c.sealedPassword)
	if err != nil {
		return security.Credentials{}, err
	}
	return security.Credentials{Bundle: c.blob, Password: string(password)}, nil
}

// CertificateLoader is implemented by Loader
type CertificateLoader interface {
	Load(ctx context.Context, companyID string) (*Credentials, error)
}
