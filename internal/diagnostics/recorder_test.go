package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
)

const signedRequest = `<soap12:Envelope xmlns:soap12="http://www.w3.org/2003/05/soap-envelope"><soap12:Body><NFe><infNFe Id="NFe1"/><Signature xmlns="http://www.w3.org/2000/09/xmldsig#"><SignedInfo><Reference><DigestValue>abc=</DigestValue></Reference></SignedInfo><SignatureValue>c2lnbmF0dXJl</SignatureValue><KeyInfo><X509Data><X509Certificate>MIIBcert</X509Certificate></X509Data></KeyInfo></Signature></NFe></soap12:Body></soap12:Envelope>`

func TestNewRefusesProduction(t *testing.T) {
	_, err := New(Config{Dir: t.TempDir(), Environment: draft.EnvProduction}, nil)
	assert.ErrorIs(t, err, ErrRefusedInProduction)

	_, err = New(Config{Dir: t.TempDir(), Environment: draft.EnvProduction, AllowInProduction: true}, nil)
	assert.NoError(t, err)

	_, err = New(Config{Environment: draft.EnvHomologation}, nil)
	assert.Error(t, err)
}

func TestRedact(t *testing.T) {
	out := string(Redact([]byte(signedRequest)))
	assert.NotContains(t, out, "MIIBcert")
	assert.NotContains(t, out, "c2lnbmF0dXJl")
	assert.NotContains(t, out, "abc=")
	assert.Contains(t, out, "<X509Certificate>[redacted]</X509Certificate>")
	assert.Contains(t, out, `<infNFe Id="NFe1"/>`)

	assert.Equal(t, "Service Unavailable", string(Redact([]byte("Service Unavailable"))))
	assert.Nil(t, Redact(nil))
}

func TestRecordWritesCapture(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{Dir: dir, Environment: draft.EnvHomologation}, nil)
	require.NoError(t, err)
	r.now = func() time.Time { return time.Date(2023, 10, 27, 10, 0, 0, 0, time.UTC) }

	capDir, err := r.write(sefaz.Capture{
		Service:    sefaz.ServiceAuthorization,
		Endpoint:   "https://homologacao.nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx",
		Request:    []byte(signedRequest),
		Response:   []byte("<retEnviNFe><cStat>103</cStat></retEnviNFe>"),
		HTTPStatus: 200,
		Duration:   1500 * time.Millisecond,
		Err:        errors.New("boom"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20231027"), filepath.Dir(capDir))

	req, err := os.ReadFile(filepath.Join(capDir, "request.xml"))
	require.NoError(t, err)
	assert.NotContains(t, string(req), "MIIBcert")

	resp, err := os.ReadFile(filepath.Join(capDir, "response.xml"))
	require.NoError(t, err)
	assert.Contains(t, string(resp), "<cStat>103</cStat>")

	raw, err := os.ReadFile(filepath.Join(capDir, "meta.yaml"))
	require.NoError(t, err)
	var meta Meta
	require.NoError(t, yaml.Unmarshal(raw, &meta))
	assert.Equal(t, string(sefaz.ServiceAuthorization), meta.Service)
	assert.Equal(t, 200, meta.HTTPStatus)
	assert.Equal(t, 1500*time.Millisecond, meta.Duration)
	assert.Equal(t, "boom", meta.Error)
	assert.NotEmpty(t, meta.ID)
}

func TestRecordSwallowsFailures(t *testing.T) {
	dir := t.TempDir()
	r, err := New(Config{Dir: dir, Environment: draft.EnvHomologation}, nil)
	require.NoError(t, err)
	// A file where the dated directory should go makes the write fail
	r.now = func() time.Time { return time.Date(2023, 10, 27, 10, 0, 0, 0, time.UTC) }
	require.NoError(t, os.WriteFile(filepath.Join(dir, "20231027"), []byte("x"), 0o600))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), sefaz.Capture{Service: sefaz.ServiceStatus, Request: []byte("<a/>")})
	})
}
