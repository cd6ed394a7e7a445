// Package transport implements the mutually authenticated HTTPS transport used
// to reach SEFAZ web services
package transport

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// MaxResponseSize bounds how much of a response body is read
const MaxResponseSize = 16 << 20

// RecommendedTLS12CipherSuites are the RSA suites accepted by SEFAZ endpoints
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
}

// HTTPSConfig contains HTTPS client configuration
type HTTPSConfig struct {
	MinTLSVersion   uint16
	MaxTLSVersion   uint16
	CipherSuites    []uint16
	RootCAs         *x509.CertPool
	Timeout         time.Duration
	IdleConnTimeout time.Duration
	// ClientTTL is how long an unused per-certificate client is kept
	ClientTTL time.Duration
	UserAgent string
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:   TLS12,
		MaxTLSVersion:   TLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		Timeout:         30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
		ClientTTL:       30 * time.Minute,
		UserAgent:       "nfe-emitter/1.0",
	}
}

// Response is the raw HTTP outcome of a request
type Response struct {
	StatusCode int
	Body       []byte
}

// HTTPSClient posts SOAP requests authenticated with a per-call client
// certificate. One http.Client is kept per certificate so connections are
// reused between calls for the same company. Clients unused for ClientTTL are
// evicted and their idle connections closed.
type HTTPSClient struct {
	config  *HTTPSConfig
	mu      sync.Mutex
	clients *gocache.Cache
}

// NewHTTPSClient creates a new HTTPS client
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	if config == nil {
		config = DefaultHTTPSConfig()
	}
	ttl := config.ClientTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	clients := gocache.New(ttl, ttl)
	clients.OnEvicted(func(_ string, v interface{}) {
		v.(*http.Client).CloseIdleConnections()
	})
	return &HTTPSClient{
		config:  config,
		clients: clients,
	}
}

func (c *HTTPSClient) clientFor(cert tls.Certificate) (*http.Client, error) {
	if len(cert.Certificate) == 0 {
		return nil, ErrNoClientCertificate
	}
	fp := sha256.Sum256(cert.Certificate[0])
	key := hex.EncodeToString(fp[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if v, ok := c.clients.Get(key); ok {
		hc := v.(*http.Client)
		// Refresh the expiry on use
		c.clients.SetDefault(key, hc)
		return hc, nil
	}

	tlsConfig := &tls.Config{
		MinVersion:   c.config.MinTLSVersion,
		MaxVersion:   c.config.MaxTLSVersion,
		CipherSuites: c.config.CipherSuites,
		Certificates: []tls.Certificate{cert},
		RootCAs:      c.config.RootCAs,
		// SEFAZ servers request renegotiation on some endpoints
		Renegotiation: tls.RenegotiateOnceAsClient,
	}
	hc := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig:     tlsConfig,
			IdleConnTimeout:     c.config.IdleConnTimeout,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			ForceAttemptHTTP2:   false,
		},
		Timeout: c.config.Timeout,
	}
	c.clients.SetDefault(key, hc)
	return hc, nil
}

// Send posts message to endpoint with the given content type. Any HTTP status
// is returned as a Response; only connection level failures are errors.
func (c *HTTPSClient) Send(ctx context.Context, endpoint string, cert tls.Certificate, message []byte, contentType string) (*Response, error) {
	hc, err := c.clientFor(cert)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(message))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// CloseIdleConnections closes idle connections of every cached client
func (c *HTTPSClient) CloseIdleConnections() {
	for _, item := range c.clients.Items() {
		item.Object.(*http.Client).CloseIdleConnections()
	}
}

// ErrNoClientCertificate is returned when Send is called without a certificate
var ErrNoClientCertificate = errors.New("client certificate is required")

// IsCertificateError reports whether err comes from server certificate
// verification during the TLS handshake
func IsCertificateError(err error) bool {
	var unknown x509.UnknownAuthorityError
	var invalid x509.CertificateInvalidError
	var hostname x509.HostnameError
	var verify *tls.CertificateVerificationError
	return errors.As(err, &unknown) ||
		errors.As(err, &invalid) ||
		errors.As(err, &hostname) ||
		errors.As(err, &verify)
}
