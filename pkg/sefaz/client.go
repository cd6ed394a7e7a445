package sefaz

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/beevik/etree"
	"golang.org/x/time/rate"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/compression"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/message"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/transport"
)

// Response is the raw HTTP outcome of a SOAP call
type Response struct {
	HTTPStatus int
	Body       []byte
}

// Exchange holds the request and response bodies of one call
type Exchange struct {
	Endpoint   string
	Request    []byte
	Response   []byte
	HTTPStatus int
}

// Capture is handed to a Recorder after every call
type Capture struct {
	Service    Service
	Endpoint   string
	Request    []byte
	Response   []byte
	HTTPStatus int
	Duration   time.Duration
	Err        error
}

// Recorder receives diagnostic captures of every call
type Recorder interface {
	Record(ctx context.Context, c Capture)
}

// Observer receives per-call outcomes for metrics
type Observer interface {
	ObserveRequest(svc Service, outcome string, d time.Duration)
}

// Target selects the authorizer and environment of a call
type Target struct {
	State       string
	Environment draft.Environment
}

// Config configures a Client
type Config struct {
	HTTPS     *transport.HTTPSConfig
	Directory *Directory
	// RateLimit is requests per second per endpoint; zero disables limiting
	RateLimit float64
	Burst     int
	// Compress sends large batches through nfeAutorizacaoLoteZip
	Compress bool
	Recorder Recorder
	Observer Observer
	Logger   *slog.Logger
}

// Client talks to SEFAZ web services
type Client struct {
	https      *transport.HTTPSClient
	directory  *Directory
	compressor *compression.Compressor
	compress   bool
	recorder   Recorder
	observer   Observer
	logger     *slog.Logger

	rateLimit rate.Limit
	burst     int
	mu        sync.Mutex
	limiters  map[string]*rate.Limiter
}

// NewClient creates a client
func NewClient(cfg Config) *Client {
	if cfg.Directory == nil {
		cfg.Directory = NewDirectory()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		https:      transport.NewHTTPSClient(cfg.HTTPS),
		directory:  cfg.Directory,
		compressor: compression.NewCompressor(),
		compress:   cfg.Compress,
		recorder:   cfg.Recorder,
		observer:   cfg.Observer,
		logger:     cfg.Logger,
		rateLimit:  limit,
		burst:      cfg.Burst,
		limiters:   make(map[string]*rate.Limiter),
	}
}

// Directory returns the endpoint directory in use
func (c *Client) Directory() *Directory {
	return c.directory
}

func (c *Client) limiter(endpoint string) *rate.Limiter {
	host := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		host = u.Host
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[host]
	if !ok {
		l = rate.NewLimiter(c.rateLimit, c.burst)
		c.limiters[host] = l
	}
	return l
}

// Request posts an envelope for op to endpointURL using cert for mutual TLS.
// Any HTTP status is returned as a Response; connection failures are
// classified as CERTIFICATE or TRANSPORT errors.
func (c *Client) Request(ctx context.Context, endpointURL string, op Operation, envelope []byte, cert tls.Certificate) (*Response, error) {
	if err := c.limiter(endpointURL).Wait(ctx); err != nil {
		return nil, protocolError(KindTransport, op.Service, err, "rate limiter wait aborted")
	}

	start := time.Now()
	resp, err := c.https.Send(ctx, endpointURL, cert, envelope, message.ContentType(op.SOAPAction()))
	elapsed := time.Since(start)

	capture := Capture{Service: op.Service, Endpoint: endpointURL, Request: envelope, Duration: elapsed}
	if err != nil {
		kind := KindTransport
		if transport.IsCertificateError(err) || errors.Is(err, transport.ErrNoClientCertificate) {
			kind = KindCertificate
		}
		perr := protocolError(kind, op.Service, err, "request to %s failed", endpointURL)
		capture.Err = perr
		c.finish(ctx, capture, string(kind))
		return nil, perr
	}

	capture.Response = resp.Body
	capture.HTTPStatus = resp.StatusCode
	c.finish(ctx, capture, fmt.Sprintf("http_%d", resp.StatusCode))
	return &Response{HTTPStatus: resp.StatusCode, Body: resp.Body}, nil
}

func (c *Client) finish(ctx context.Context, capture Capture, outcome string) {
	if c.recorder != nil {
		c.recorder.Record(ctx, capture)
	}
	if c.observer != nil {
		c.observer.ObserveRequest(capture.Service, outcome, capture.Duration)
	}
}

// call resolves, wraps, sends and parses one operation and returns the
// element named resultTag from the response body
func (c *Client) call(ctx context.Context, t Target, op Operation, payload []byte, cert tls.Certificate, resultTag string) (*etree.Element, *Exchange, error) {
	endpoint, err := c.directory.Resolve(t.State, t.Environment, op.Service)
	if err != nil {
		return nil, nil, err
	}

	var opts []message.Option
	if op.Compressed {
		opts = append(opts, message.WithCompression(c.compressor))
	}
	envelope, err := message.NewEnvelope(op.Namespace(), payload, opts...).Build()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build %s envelope: %w", op.Action, err)
	}

	logger := c.logger.With("service", string(op.Service), "state", t.State, "environment", string(t.Environment))
	resp, err := c.Request(ctx, endpoint, op, envelope, cert)
	if err != nil {
		logger.Warn("SEFAZ request failed", "error", err)
		return nil, &Exchange{Endpoint: endpoint, Request: envelope}, err
	}
	ex := &Exchange{Endpoint: endpoint, Request: envelope, Response: resp.Body, HTTPStatus: resp.HTTPStatus}

	el, err := extract(op.Service, resp, resultTag)
	if err != nil {
		logger.Warn("SEFAZ response not usable", "http_status", resp.HTTPStatus, "error", err)
		return nil, ex, err
	}
	logger.Debug("SEFAZ response received", "http_status", resp.HTTPStatus, "cstat", text(el, "cStat"))
	return el, ex, nil
}

func extract(svc Service, resp *Response, resultTag string) (*etree.Element, error) {
	ok := resp.HTTPStatus >= 200 && resp.HTTPStatus < 300
	parsed, err := message.Parse(resp.Body)
	if err != nil {
		if !ok {
			return nil, &ProtocolError{Kind: KindHTTP, Service: svc, HTTPStatus: resp.HTTPStatus, Message: fmt.Sprintf("unexpected HTTP status %d", resp.HTTPStatus)}
		}
		return nil, protocolError(KindParse, svc, err, "response is not a SOAP envelope")
	}
	if parsed.Fault != nil {
		return nil, &FaultError{Service: svc, Code: parsed.Fault.Code, Reason: parsed.Fault.Reason, HTTPStatus: resp.HTTPStatus}
	}
	if !ok {
		return nil, &ProtocolError{Kind: KindHTTP, Service: svc, HTTPStatus: resp.HTTPStatus, Message: fmt.Sprintf("unexpected HTTP status %d", resp.HTTPStatus)}
	}
	el := parsed.Find(resultTag)
	if el == nil {
		return nil, protocolError(KindParse, svc, nil, "response has no <%s>", resultTag)
	}
	if text(el, "cStat") == "" {
		return nil, protocolError(KindParse, svc, nil, "<%s> has no cStat", resultTag)
	}
	return el, nil
}

// SubmitBatch sends an enviNFe to the authorization service
func (c *Client) SubmitBatch(ctx context.Context, t Target, enviNFe []byte, cert tls.Certificate) (*BatchResult, *Exchange, error) {
	op := OpAuthorize
	if c.compress && compression.ShouldCompress(len(enviNFe)) {
		op = OpAuthorizeZip
	}
	el, ex, err := c.call(ctx, t, op, enviNFe, cert, "retEnviNFe")
	if err != nil {
		return nil, ex, err
	}
	return parseBatch(el), ex, nil
}

// FetchBatchResult asks for the outcome of an asynchronous batch
func (c *Client) FetchBatchResult(ctx context.Context, t Target, receipt string, cert tls.Certificate) (*BatchResult, *Exchange, error) {
	payload, err := ReturnAuthorizationRequest(t.Environment, receipt)
	if err != nil {
		return nil, nil, err
	}
	el, ex, err := c.call(ctx, t, OpReturnAuthorize, payload, cert, "retConsReciNFe")
	if err != nil {
		return nil, ex, err
	}
	return parseBatch(el), ex, nil
}

// QueryProtocol looks up the current situation of an access key
func (c *Client) QueryProtocol(ctx context.Context, t Target, key string, cert tls.Certificate) (*ProtocolQueryResult, *Exchange, error) {
	payload, err := ProtocolQueryRequest(t.Environment, key)
	if err != nil {
		return nil, nil, err
	}
	el, ex, err := c.call(ctx, t, OpQueryProtocol, payload, cert, "retConsSitNFe")
	if err != nil {
		return nil, ex, err
	}
	return parseProtocolQuery(el), ex, nil
}

// ServiceStatus asks whether the authorizer is in operation
func (c *Client) ServiceStatus(ctx context.Context, t Target, cert tls.Certificate) (*StatusResult, *Exchange, error) {
	payload, err := StatusRequest(t.Environment, t.State)
	if err != nil {
		return nil, nil, err
	}
	el, ex, err := c.call(ctx, t, OpServiceStatus, payload, cert, "retConsStatServ")
	if err != nil {
		return nil, ex, err
	}
	return parseStatus(el), ex, nil
}

// SendEvents sends an envEvento to the event reception service
func (c *Client) SendEvents(ctx context.Context, t Target, envEvento []byte, cert tls.Certificate) (*EventBatchResult, *Exchange, error) {
	el, ex, err := c.call(ctx, t, OpReceiveEvent, envEvento, cert, "retEnvEvento")
	if err != nil {
		return nil, ex, err
	}
	return parseEventBatch(el), ex, nil
}
