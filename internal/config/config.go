// Package config handles configuration loading for the NF-e emitter.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax), so certificate passwords,
// database credentials and vault tokens can be injected at runtime.
//
// # Configuration Sections
//
//   - server: HTTP API settings
//   - sefaz: authorizer state, environment, trust bundle, endpoint overrides
//   - polling: bounds of the batch result polling loop
//   - certificates: A1 certificate sources and cache
//   - storage: emission record backend (mongodb, postgres or memory)
//   - diagnostics: capture of raw SOAP exchanges
//   - events: Kafka status events
//   - reconciler: background re-polling of pending batches
//   - observability: metrics endpoint
//
// # Example Configuration
//
//	sefaz:
//	  state: SP
//	  environment: homologation
//	  trustBundle: /etc/nfe/icp-brasil.pem
//
//	certificates:
//	  blob:
//	    backend: minio
//	    minio:
//	      endpoint: minio:9000
//	      bucket: certificates
//	  secrets:
//	    backend: vault
//	    vault:
//	      address: https://vault.internal
//	      token: ${VAULT_TOKEN}
//	  companies:
//	    acme:
//	      bundle: acme/a1.pfx
//	      passwordRef: nfe/acme#password
//
//	storage:
//	  backend: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/accesskey"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/nfexml"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/reliability"
)

// Config is the root configuration structure
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Sefaz        SefazConfig        `yaml:"sefaz"`
	Polling      reliability.Policy `yaml:"polling"`
	Certificates CertificatesConfig `yaml:"certificates"`
	Storage      StorageConfig      `yaml:"storage"`
	Diagnostics  DiagnosticsConfig  `yaml:"diagnostics"`
	Events       EventsConfig       `yaml:"events"`
	Reconciler   ReconcilerConfig   `yaml:"reconciler"`
	Metrics      MetricsConfig      `yaml:"observability"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Port     int    `yaml:"port"`
	AdminKey string `yaml:"adminKey"` // API key required on every route except health
}

// SefazConfig holds web service settings
type SefazConfig struct {
	State       string        `yaml:"state"`
	Environment string        `yaml:"environment"`
	Timeout     time.Duration `yaml:"timeout"`
	// TrustBundle is a PEM file with the roots used to verify SEFAZ servers
	TrustBundle     string             `yaml:"trustBundle"`
	Endpoints       []EndpointOverride `yaml:"endpoints"`
	RateLimit       float64            `yaml:"rateLimit"`
	Burst           int                `yaml:"burst"`
	CompressBatches bool               `yaml:"compressBatches"`
	Synchronous     bool               `yaml:"synchronous"`
	TimezoneOffset  string             `yaml:"timezoneOffset"`
	AppVersion      string             `yaml:"appVersion"`
}

// EndpointOverride replaces one service URL
type EndpointOverride struct {
	State       string `yaml:"state"`
	Environment string `yaml:"environment"`
	Service     string `yaml:"service"`
	URL         string `yaml:"url"`
}

// CertificatesConfig holds A1 certificate settings
type CertificatesConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// ChainBundle enables chain validation against these roots when set
	ChainBundle string                        `yaml:"chainBundle"`
	Blob        BlobConfig                    `yaml:"blob"`
	Secrets     SecretsConfig                 `yaml:"secrets"`
	Companies   map[string]CompanyCertificate `yaml:"companies"`
}

// BlobConfig selects where PKCS#12 files are read from
type BlobConfig struct {
	Backend string      `yaml:"backend"` // file or minio
	Dir     string      `yaml:"dir"`
	MinIO   MinIOConfig `yaml:"minio"`
}

// MinIOConfig holds S3 compatible storage settings
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
}

// SecretsConfig selects where certificate passwords are read from
type SecretsConfig struct {
	Backend   string      `yaml:"backend"` // vault or env
	Vault     VaultConfig `yaml:"vault"`
	EnvPrefix string      `yaml:"envPrefix"`
}

// VaultConfig holds KV v2 settings
type VaultConfig struct {
	Address string        `yaml:"address"`
	Token   string        `yaml:"token"`
	Mount   string        `yaml:"mount"`
	Timeout time.Duration `yaml:"timeout"`
}

// CompanyCertificate references a company's certificate and password
type CompanyCertificate struct {
	Bundle      string `yaml:"bundle"`
	PasswordRef string `yaml:"passwordRef"`
}

// StorageConfig holds emission record storage settings
type StorageConfig struct {
	Backend  string         `yaml:"backend"` // mongodb, postgres or memory
	MongoDB  MongoDBConfig  `yaml:"mongodb"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
	GridFS   struct {
		BucketName     string `yaml:"bucketName"`
		ChunkSizeBytes int32  `yaml:"chunkSizeBytes"`
	} `yaml:"gridfs"`
}

// PostgresConfig holds PostgreSQL connection settings
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// DiagnosticsConfig controls capture of raw exchanges
type DiagnosticsConfig struct {
	Enabled           bool   `yaml:"enabled"`
	Dir               string `yaml:"dir"`
	AllowInProduction bool   `yaml:"allowInProduction"`
}

// EventsConfig holds status event publishing settings
type EventsConfig struct {
	Kafka struct {
		Brokers []string `yaml:"brokers"`
		Topic   string   `yaml:"topic"`
	} `yaml:"kafka"`
}

// ReconcilerConfig controls background re-polling
type ReconcilerConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Schedule  string        `yaml:"schedule"`
	BatchSize int           `yaml:"batchSize"`
	MinAge    time.Duration `yaml:"minAge"`
}

// MetricsConfig holds observability settings
type MetricsConfig struct {
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// LoggingConfig holds slog settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse reads configuration from YAML bytes
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Default returns a validated in-memory configuration for homologation
func Default() *Config {
	cfg := &Config{}
	cfg.Sefaz.State = "SP"
	cfg.Storage.Backend = "memory"
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Sefaz.Environment == "" {
		c.Sefaz.Environment = string(draft.EnvHomologation)
	}
	c.Sefaz.State = strings.ToUpper(c.Sefaz.State)
	if c.Sefaz.Timeout == 0 {
		c.Sefaz.Timeout = 30 * time.Second
	}
	if c.Sefaz.TimezoneOffset == "" {
		c.Sefaz.TimezoneOffset = nfexml.DefaultTimezoneOffset
	}
	if c.Sefaz.AppVersion == "" {
		c.Sefaz.AppVersion = "nfe-emitter 1.0"
	}

	def := reliability.DefaultPolicy()
	if c.Polling.MaxAttempts == 0 {
		c.Polling.MaxAttempts = def.MaxAttempts
	}
	if c.Polling.MaxElapsed == 0 {
		c.Polling.MaxElapsed = def.MaxElapsed
	}
	if c.Polling.Base == 0 {
		c.Polling.Base = def.Base
	}
	if c.Polling.Multiplier == 0 {
		c.Polling.Multiplier = def.Multiplier
	}
	if c.Polling.Cap == 0 {
		c.Polling.Cap = def.Cap
	}
	if c.Polling.Jitter == 0 {
		c.Polling.Jitter = def.Jitter
	}

	if c.Certificates.CacheTTL == 0 {
		c.Certificates.CacheTTL = 30 * time.Minute
	}
	if c.Certificates.Blob.Backend == "" {
		c.Certificates.Blob.Backend = "file"
	}
	if c.Certificates.Secrets.Backend == "" {
		c.Certificates.Secrets.Backend = "env"
	}
	if c.Certificates.Secrets.EnvPrefix == "" {
		c.Certificates.Secrets.EnvPrefix = "NFE_CERT_PASSWORD_"
	}
	if c.Certificates.Secrets.Vault.Mount == "" {
		c.Certificates.Secrets.Vault.Mount = "secret"
	}
	if c.Certificates.Secrets.Vault.Timeout == 0 {
		c.Certificates.Secrets.Vault.Timeout = 10 * time.Second
	}

	if c.Storage.Backend == "" {
		c.Storage.Backend = "mongodb"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "nfe"
	}
	if c.Storage.MongoDB.GridFS.BucketName == "" {
		c.Storage.MongoDB.GridFS.BucketName = "nfeproc"
	}
	if c.Storage.MongoDB.GridFS.ChunkSizeBytes == 0 {
		c.Storage.MongoDB.GridFS.ChunkSizeBytes = 261120 // 255KB
	}

	if c.Diagnostics.Dir == "" {
		c.Diagnostics.Dir = "diagnostics"
	}
	if c.Events.Kafka.Topic == "" {
		c.Events.Kafka.Topic = "nfe.emission.status"
	}
	if c.Reconciler.Schedule == "" {
		c.Reconciler.Schedule = "@every 1m"
	}
	if c.Reconciler.BatchSize == 0 {
		c.Reconciler.BatchSize = 50
	}
	if c.Reconciler.MinAge == 0 {
		c.Reconciler.MinAge = 2 * time.Minute
	}
	if c.Metrics.Metrics.Path == "" {
		c.Metrics.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	env, ok := draft.ParseEnvironment(c.Sefaz.Environment)
	if !ok {
		return fmt.Errorf("sefaz.environment must be 'production' or 'homologation', got '%s'", c.Sefaz.Environment)
	}
	c.Sefaz.Environment = string(env)
	if c.Sefaz.State != "" {
		if _, ok := accesskey.StateCodeFor(c.Sefaz.State); !ok {
			return fmt.Errorf("sefaz.state '%s' is not a Brazilian state", c.Sefaz.State)
		}
	}
	if !nfexml.ValidOffset(c.Sefaz.TimezoneOffset) {
		return fmt.Errorf("sefaz.timezoneOffset must look like -03:00, got '%s'", c.Sefaz.TimezoneOffset)
	}
	for i, ep := range c.Sefaz.Endpoints {
		if ep.State == "" || ep.Service == "" || ep.URL == "" {
			return fmt.Errorf("sefaz.endpoints[%d] needs state, service and url", i)
		}
		if _, ok := draft.ParseEnvironment(ep.Environment); !ok {
			return fmt.Errorf("sefaz.endpoints[%d].environment is invalid", i)
		}
	}
	if err := c.Polling.Validate(); err != nil {
		return fmt.Errorf("polling: %w", err)
	}

	switch c.Certificates.Blob.Backend {
	case "file":
	case "minio":
		if c.Certificates.Blob.MinIO.Endpoint == "" || c.Certificates.Blob.MinIO.Bucket == "" {
			return fmt.Errorf("certificates.blob.minio.endpoint and bucket are required when backend is 'minio'")
		}
	default:
		return fmt.Errorf("certificates.blob.backend must be 'file' or 'minio', got '%s'", c.Certificates.Blob.Backend)
	}
	switch c.Certificates.Secrets.Backend {
	case "env":
	case "vault":
		if c.Certificates.Secrets.Vault.Address == "" {
			return fmt.Errorf("certificates.secrets.vault.address is required when backend is 'vault'")
		}
	default:
		return fmt.Errorf("certificates.secrets.backend must be 'vault' or 'env', got '%s'", c.Certificates.Secrets.Backend)
	}
	for id, ref := range c.Certificates.Companies {
		if ref.Bundle == "" || ref.PasswordRef == "" {
			return fmt.Errorf("certificates.companies.%s needs bundle and passwordRef", id)
		}
	}

	switch c.Storage.Backend {
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required")
		}
	case "memory":
	default:
		return fmt.Errorf("storage.backend must be 'mongodb', 'postgres' or 'memory', got '%s'", c.Storage.Backend)
	}

	if c.Diagnostics.Enabled && env == draft.EnvProduction && !c.Diagnostics.AllowInProduction {
		return fmt.Errorf("diagnostics capture is refused in production unless diagnostics.allowInProduction is set")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be 'json' or 'text', got '%s'", c.Logging.Format)
	}
	return nil
}

// Environment returns the configured SEFAZ environment
func (c *Config) Environment() draft.Environment {
	env, _ := draft.ParseEnvironment(c.Sefaz.Environment)
	return env
}
