package security

import (
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security/securitytest"
)

func TestChainValidator(t *testing.T) {
	trusted := securitytest.Generate(t)
	other := securitytest.Generate(t)

	pemData := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: trusted.Cert.Raw})
	pool, err := ParseCertPool(pemData)
	require.NoError(t, err)

	v := NewChainValidator(pool)
	assert.NoError(t, v.ValidateCertificate(trusted.Cert, nil, time.Now()))

	err = v.ValidateCertificate(other.Cert, nil, time.Now())
	var se *SigningError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ReasonUntrusted, se.Reason)

	err = v.ValidateCertificate(trusted.Cert, nil, time.Now().Add(2*365*24*time.Hour))
	assert.True(t, errors.Is(err, ErrCertificateExpired))
}

func TestParseCertPoolRejectsEmpty(t *testing.T) {
	_, err := ParseCertPool([]byte("nothing here"))
	assert.Error(t, err)
}

func TestParseBundle(t *testing.T) {
	c := securitytest.Generate(t)
	b, err := ParseBundle(c.PFX, securitytest.Password)
	require.NoError(t, err)
	assert.True(t, b.Certificate.Equal(c.Cert))
	assert.Equal(t, c.Key.N, b.PrivateKey.N)

	tlsCert := b.TLSCertificate()
	require.Len(t, tlsCert.Certificate, 1)
	leaf, err := x509.ParseCertificate(tlsCert.Certificate[0])
	require.NoError(t, err)
	assert.True(t, leaf.Equal(c.Cert))
	assert.Equal(t, "DESDOBRA COMERCIO LTDA:12345678000195", b.Subject())
}
