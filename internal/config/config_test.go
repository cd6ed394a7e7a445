package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
)

const sample = `
sefaz:
  state: sp
  environment: homologacao
  timeout: 15s
  endpoints:
    - state: BA
      environment: homologation
      service: NFeStatusServico4
      url: https://hnfe.sefaz.ba.gov.br/webservices/NFeStatusServico4/NFeStatusServico4.asmx
polling:
  maxAttempts: 5
certificates:
  secrets:
    backend: vault
    vault:
      address: https://vault.internal
      token: ${TEST_VAULT_TOKEN}
  companies:
    acme:
      bundle: acme/a1.pfx
      passwordRef: nfe/acme#password
storage:
  backend: memory
logging:
  format: text
`

func TestParse(t *testing.T) {
	t.Setenv("TEST_VAULT_TOKEN", "s.abc123")

	cfg, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "SP", cfg.Sefaz.State)
	assert.Equal(t, draft.EnvHomologation, cfg.Environment())
	assert.Equal(t, 15*time.Second, cfg.Sefaz.Timeout)
	assert.Equal(t, "-03:00", cfg.Sefaz.TimezoneOffset)
	require.Len(t, cfg.Sefaz.Endpoints, 1)

	assert.Equal(t, 5, cfg.Polling.MaxAttempts)
	assert.Equal(t, 90*time.Second, cfg.Polling.MaxElapsed)
	assert.Equal(t, 2*time.Second, cfg.Polling.Base)
	assert.Equal(t, 1.5, cfg.Polling.Multiplier)

	assert.Equal(t, "s.abc123", cfg.Certificates.Secrets.Vault.Token)
	assert.Equal(t, "secret", cfg.Certificates.Secrets.Vault.Mount)
	assert.Equal(t, "file", cfg.Certificates.Blob.Backend)
	assert.Equal(t, 30*time.Minute, cfg.Certificates.CacheTTL)
	assert.Equal(t, "acme/a1.pfx", cfg.Certificates.Companies["acme"].Bundle)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "@every 1m", cfg.Reconciler.Schedule)
	assert.Equal(t, "/metrics", cfg.Metrics.Metrics.Path)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: memory\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "reading config file")
}

func TestLoadExampleConfig(t *testing.T) {
	t.Setenv("VAULT_TOKEN", "s.example")
	cfg, err := Load(filepath.Join("..", "..", "examples", "emitter.yaml"))
	require.NoError(t, err)

	assert.Equal(t, draft.EnvHomologation, cfg.Environment())
	assert.Equal(t, "s.example", cfg.Certificates.Secrets.Vault.Token)
	assert.Equal(t, 90*time.Second, cfg.Polling.MaxElapsed)
	assert.Equal(t, 2*time.Minute, cfg.Reconciler.MinAge)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Events.Kafka.Brokers)
	require.Len(t, cfg.Sefaz.Endpoints, 1)
	assert.Equal(t, "desdobra/a1.pfx", cfg.Certificates.Companies["desdobra"].Bundle)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"mongo without uri", "storage:\n  backend: mongodb\n", "storage.mongodb.uri"},
		{"unknown storage", "storage:\n  backend: redis\n", "storage.backend"},
		{"bad environment", "storage:\n  backend: memory\nsefaz:\n  environment: staging\n", "sefaz.environment"},
		{"bad state", "storage:\n  backend: memory\nsefaz:\n  state: XX\n", "sefaz.state"},
		{"bad offset", "storage:\n  backend: memory\nsefaz:\n  timezoneOffset: BRT\n", "timezoneOffset"},
		{"minio without bucket", "storage:\n  backend: memory\ncertificates:\n  blob:\n    backend: minio\n", "minio"},
		{"vault without address", "storage:\n  backend: memory\ncertificates:\n  secrets:\n    backend: vault\n", "vault.address"},
		{"company without password", "storage:\n  backend: memory\ncertificates:\n  companies:\n    acme:\n      bundle: a.pfx\n", "companies.acme"},
		{"bad polling", "storage:\n  backend: memory\npolling:\n  multiplier: 0.5\n", "polling"},
		{"diagnostics in production", "storage:\n  backend: memory\nsefaz:\n  environment: production\ndiagnostics:\n  enabled: true\n", "allowInProduction"},
		{"endpoint without url", "storage:\n  backend: memory\nsefaz:\n  endpoints:\n    - state: SP\n      environment: production\n      service: NFeStatusServico4\n", "sefaz.endpoints[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestDiagnosticsAllowedInProductionWhenForced(t *testing.T) {
	cfg, err := Parse([]byte("storage:\n  backend: memory\nsefaz:\n  environment: production\ndiagnostics:\n  enabled: true\n  allowInProduction: true\n"))
	require.NoError(t, err)
	assert.Equal(t, draft.EnvProduction, cfg.Environment())
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.validate())
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, draft.EnvHomologation, cfg.Environment())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	LoggingConfig{Level: "warn", Format: "json"}.NewLogger(&buf).Info("hidden")
	assert.Empty(t, buf.String())

	LoggingConfig{Level: "debug", Format: "text"}.NewLogger(&buf).Debug("shown", "company", "acme")
	assert.Contains(t, buf.String(), "company=acme")
}
