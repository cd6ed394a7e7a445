package security

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"time"
)

// CertificateValidator decides whether a signing certificate may be used
type CertificateValidator interface {
	ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, now time.Time) error
}

// ChainValidator verifies certificates against a fixed root pool
type ChainValidator struct {
	roots *x509.CertPool
}

// NewChainValidator creates a validator using roots
func NewChainValidator(roots *x509.CertPool) *ChainValidator {
	return &ChainValidator{roots: roots}
}

// ValidateCertificate checks the validity window and builds a chain to the roots
func (v *ChainValidator) ValidateCertificate(cert *x509.Certificate, intermediates []*x509.Certificate, now time.Time) error {
	b := &Bundle{Certificate: cert}
	if err := b.CheckValidity(now); err != nil {
		return err
	}

	opts := x509.VerifyOptions{
		Roots:         v.roots,
		CurrentTime:   now,
		Intermediates: x509.NewCertPool(),
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	}
	for _, intermediate := range intermediates {
		opts.Intermediates.AddCert(intermediate)
	}
	if _, err := cert.Verify(opts); err != nil {
		return newError(KindCertificate, ReasonUntrusted, err, "certificate %q does not chain to a trusted root", cert.Subject.CommonName)
	}
	return nil
}

// LoadCertPool reads a PEM bundle into a certificate pool
func LoadCertPool(path string) (*x509.CertPool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trust bundle: %w", err)
	}
	return ParseCertPool(data)
}

// ParseCertPool parses concatenated PEM certificates
func ParseCertPool(data []byte) (*x509.CertPool, error) {
	pool := x509.NewCertPool()
	count := 0
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("parsing trust bundle certificate %d: %w", count+1, err)
		}
		pool.AddCert(cert)
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("trust bundle contains no certificates")
	}
	return pool, nil
}
