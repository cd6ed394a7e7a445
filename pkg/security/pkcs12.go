package security

import (
	"bytes"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"time"

	"software.sslmate.com/src/go-pkcs12"
)

// Bundle is a decoded PKCS#12 (A1) certificate
type Bundle struct {
	Certificate *x509.Certificate
	PrivateKey  *rsa.PrivateKey
	// Chain holds the CA certificates shipped in the file
	Chain []*x509.Certificate
}

// ParseBundle decodes a PKCS#12 file. Failures are certificate signing errors
// whose reason distinguishes a wrong password, a corrupt file and an
// unsupported encoding.
func ParseBundle(data []byte, password string) (*Bundle, error) {
	if len(data) == 0 {
		return nil, newError(KindCertificate, ReasonCorrupt, nil, "certificate bundle is empty")
	}
	trimmed := bytes.TrimSpace(data)
	if bytes.HasPrefix(trimmed, []byte("-----BEGIN")) {
		return nil, newError(KindCertificate, ReasonUnsupportedEncoding, nil, "PEM input is not a PKCS#12 bundle")
	}

	key, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, classifyPKCS12Error(err)
	}
	if cert == nil {
		return nil, newError(KindCertificate, ReasonCorrupt, nil, "bundle has no certificate")
	}
	if key == nil {
		return nil, newError(KindCertificate, ReasonNoPrivateKey, nil, "bundle has no private key")
	}
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, newError(KindCertificate, ReasonUnsupportedKey, nil, "private key is %T, RSA required", key)
	}
	return &Bundle{Certificate: cert, PrivateKey: rsaKey, Chain: chain}, nil
}

func classifyPKCS12Error(err error) *SigningError {
	var notImplemented pkcs12.NotImplementedError
	switch {
	case errors.Is(err, pkcs12.ErrIncorrectPassword):
		return newError(KindCertificate, ReasonWrongPassword, err, "certificate password is incorrect")
	case errors.As(err, &notImplemented):
		return newError(KindCertificate, ReasonUnsupportedEncoding, err, "bundle uses an unsupported algorithm")
	case errors.Is(err, pkcs12.ErrDecryption):
		return newError(KindCertificate, ReasonCorrupt, err, "bundle could not be decrypted")
	default:
		return newError(KindCertificate, ReasonCorrupt, err, "bundle is not valid PKCS#12")
	}
}

// CheckValidity rejects certificates outside their validity window at now
func (b *Bundle) CheckValidity(now time.Time) error {
	if now.Before(b.Certificate.NotBefore) {
		return newError(KindCertificate, ReasonNotYetValid, nil, "certificate is valid from %s", b.Certificate.NotBefore.Format(time.RFC3339))
	}
	if now.After(b.Certificate.NotAfter) {
		return newError(KindCertificate, ReasonExpired, nil, "certificate expired at %s", b.Certificate.NotAfter.Format(time.RFC3339))
	}
	return nil
}

// TLSCertificate returns the bundle as a client certificate for mutual TLS
func (b *Bundle) TLSCertificate() tls.Certificate {
	chain := [][]byte{b.Certificate.Raw}
	for _, c := range b.Chain {
		chain = append(chain, c.Raw)
	}
	return tls.Certificate{
		Certificate: chain,
		PrivateKey:  b.PrivateKey,
		Leaf:        b.Certificate,
	}
}

// Subject returns the certificate's common name
func (b *Bundle) Subject() string {
	return b.Certificate.Subject.CommonName
}
