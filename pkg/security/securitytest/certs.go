// Package securitytest generates throwaway A1 certificates for tests.
package securitytest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

// Password protects every generated bundle unless overridden
const Password = "test-password"

// Certificate is a generated key pair and its PKCS#12 encoding
type Certificate struct {
	Key  *rsa.PrivateKey
	Cert *x509.Certificate
	PFX  []byte
}

// Options tune the generated certificate
type Options struct {
	NotBefore  time.Time
	NotAfter   time.Time
	Password   string
	CommonName string
}

// Generate creates a self-signed RSA certificate valid for a year and encodes it as PKCS#12
func Generate(t testing.TB) *Certificate {
	return GenerateWith(t, Options{})
}

// GenerateWith creates a certificate using opts
func GenerateWith(t testing.TB, opts Options) *Certificate {
	t.Helper()
	if opts.NotBefore.IsZero() {
		opts.NotBefore = time.Now().Add(-time.Hour)
	}
	if opts.NotAfter.IsZero() {
		opts.NotAfter = time.Now().Add(365 * 24 * time.Hour)
	}
	if opts.Password == "" {
		opts.Password = Password
	}
	if opts.CommonName == "" {
		opts.CommonName = "DESDOBRA COMERCIO LTDA:12345678000195"
	}

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"ICP-Brasil"},
			CommonName:   opts.CommonName,
		},
		NotBefore:             opts.NotBefore,
		NotAfter:              opts.NotAfter,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	pfx, err := pkcs12.Modern.Encode(key, cert, nil, opts.Password)
	require.NoError(t, err)

	return &Certificate{Key: key, Cert: cert, PFX: pfx}
}

// TLSCertificate returns the pair for use as a TLS client certificate
func (c *Certificate) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{c.Cert.Raw},
		PrivateKey:  c.Key,
		Leaf:        c.Cert,
	}
}
