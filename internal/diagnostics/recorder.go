// Package diagnostics captures SEFAZ request and response bodies to disk for
// offline debugging.
//
// Every capture is a directory holding request.xml, response.xml and
// meta.yaml. Certificate material and signature values are replaced before
// anything is written. Capture is refused in production unless explicitly
// allowed.
package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/beevik/etree"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
)

// ErrRefusedInProduction is returned when capture is requested for the
// production environment without AllowInProduction
var ErrRefusedInProduction = errors.New("diagnostic capture is refused in production")

// Redacted replaces sensitive element content
const Redacted = "[redacted]"

// sensitive lists elements whose text never reaches disk
var sensitive = []string{"X509Certificate", "SignatureValue", "DigestValue"}

// Config holds recorder settings
type Config struct {
	Dir               string
	Environment       draft.Environment
	AllowInProduction bool
}

// Recorder implements sefaz.Recorder
type Recorder struct {
	dir    string
	logger *slog.Logger
	now    func() time.Time
}

// Meta is written next to the captured bodies
type Meta struct {
	ID         string        `yaml:"id"`
	Service    string        `yaml:"service"`
	Endpoint   string        `yaml:"endpoint"`
	HTTPStatus int           `yaml:"httpStatus,omitempty"`
	Duration   time.Duration `yaml:"duration"`
	Error      string        `yaml:"error,omitempty"`
	At         time.Time     `yaml:"at"`
}

// New creates a recorder writing below cfg.Dir
func New(cfg Config, logger *slog.Logger) (*Recorder, error) {
	if cfg.Environment == draft.EnvProduction && !cfg.AllowInProduction {
		return nil, ErrRefusedInProduction
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("diagnostics directory is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating diagnostics directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{dir: cfg.Dir, logger: logger, now: time.Now}, nil
}

// Record writes one capture. Failures are logged, never returned: capture
// must not affect the call being captured.
func (r *Recorder) Record(_ context.Context, c sefaz.Capture) {
	if _, err := r.write(c); err != nil {
		r.logger.Warn("diagnostic capture failed", "service", c.Service, "error", err)
	}
}

func (r *Recorder) write(c sefaz.Capture) (string, error) {
	at := r.now()
	meta := Meta{
		ID:         uuid.NewString(),
		Service:    string(c.Service),
		Endpoint:   c.Endpoint,
		HTTPStatus: c.HTTPStatus,
		Duration:   c.Duration,
		At:         at,
	}
	if c.Err != nil {
		meta.Error = c.Err.Error()
	}

	dir := filepath.Join(r.dir, at.Format("20060102"), fmt.Sprintf("%s-%s-%s", at.Format("150405.000"), c.Service, meta.ID))
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}

	metaYAML, err := yaml.Marshal(meta)
	if err != nil {
		return "", err
	}
	files := map[string][]byte{
		"meta.yaml":    metaYAML,
		"request.xml":  Redact(c.Request),
		"response.xml": Redact(c.Response),
	}
	for name, data := range files {
		if len(data) == 0 {
			continue
		}
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
			return "", err
		}
	}
	return dir, nil
}

// Redact blanks certificate and signature content. Bodies that are not XML
// are returned unchanged since they cannot carry a signature.
func Redact(body []byte) []byte {
	if len(body) == 0 {
		return nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(body); err != nil {
		return body
	}
	changed := false
	for _, tag := range sensitive {
		for _, el := range doc.FindElements("//" + tag) {
			el.SetText(Redacted)
			changed = true
		}
	}
	if !changed {
		return body
	}
	out, err := doc.WriteToBytes()
	if err != nil {
		return nil
	}
	return out
}
