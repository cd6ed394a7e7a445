// Package server provides the HTTP API of the NF-e emitter.
//
// # Emission API (requires X-Admin-Key when configured)
//
//   - POST /v1/companies/{company}/emissions              - Emit a draft
//   - GET  /v1/companies/{company}/emissions/{key}        - Get the emission record
//   - GET  /v1/companies/{company}/emissions/{key}/xml    - Download the nfeProc document
//   - POST /v1/companies/{company}/emissions/{key}/resume - Re-poll a pending batch
//   - POST /v1/companies/{company}/emissions/{key}/cancel - Send a cancellation event
//   - GET  /v1/service-status                             - SEFAZ service status
//
// # Health & Metrics
//
//   - GET /healthz - Liveness probe
//   - GET /readyz  - Storage readiness probe
//   - GET /metrics - Prometheus metrics (if enabled)
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/config"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/keystore"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
)

// maxDraftSize bounds a request body
const maxDraftSize = 4 << 20

// Emitter is the emission surface the API exposes
type Emitter interface {
	Emit(ctx context.Context, companyID string, d *draft.Draft) (*emission.Result, error)
	Resume(ctx context.Context, companyID, accessKey string) (*emission.Result, error)
	Cancel(ctx context.Context, req emission.CancelRequest) (*emission.CancelResult, error)
	ServiceStatus(ctx context.Context, companyID, state string, env draft.Environment) (*sefaz.StatusResult, error)
}

// Server is the emitter HTTP server
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	httpSrv *http.Server
	emitter Emitter
	store   storage.EmissionStore
	metrics http.Handler
}

// Option customizes a Server
type Option func(*Server)

// WithMetrics serves h on the configured metrics path
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// New creates a new server
func New(cfg *config.Config, emitter Emitter, store storage.EmissionStore, logger *slog.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config:  cfg,
		logger:  logger,
		emitter: emitter,
		store:   store,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.Server.AdminKey == "" {
		logger.Warn("server.adminKey not set - emission endpoints accept unauthenticated requests")
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpSrv = &http.Server{
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 3 * time.Minute, // covers the full polling budget
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Start begins listening on the specified address
func (s *Server) Start(addr string) error {
	s.httpSrv.Addr = addr
	s.logger.Info("starting server", "addr", addr)
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the server and closes the store
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return err
	}
	if s.store != nil {
		return s.store.Close(ctx)
	}
	return nil
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	if s.metrics != nil && s.config.Metrics.Metrics.Enabled {
		mux.Handle("GET "+s.config.Metrics.Metrics.Path, s.metrics)
	}

	base := "/v1/companies/{company}/emissions"
	mux.HandleFunc("POST "+base, s.withAdmin(s.handleEmit))
	mux.HandleFunc("GET "+base+"/{key}", s.withAdmin(s.handleGetEmission))
	mux.HandleFunc("GET "+base+"/{key}/xml", s.withAdmin(s.handleGetArtifact))
	mux.HandleFunc("POST "+base+"/{key}/resume", s.withAdmin(s.handleResume))
	mux.HandleFunc("POST "+base+"/{key}/cancel", s.withAdmin(s.handleCancel))
	mux.HandleFunc("GET /v1/service-status", s.withAdmin(s.handleServiceStatus))
}

// Middleware

func (s *Server) withAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		want := s.config.Server.AdminKey
		if want != "" {
			got := r.Header.Get("X-Admin-Key")
			if subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
				s.jsonError(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

// Health handlers

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.jsonError(w, "storage not ready", http.StatusServiceUnavailable)
		return
	}
	s.jsonResponse(w, map[string]string{"status": "ready"}, http.StatusOK)
}

// Emission handlers

func (s *Server) handleEmit(w http.ResponseWriter, r *http.Request) {
	company := r.PathValue("company")

	var d draft.Draft
	body := http.MaxBytesReader(w, r.Body, maxDraftSize)
	if err := json.NewDecoder(body).Decode(&d); err != nil {
		s.jsonError(w, "invalid draft: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Info("emission requested", "company", company, "access_key", d.AccessKey)
	res, err := s.emitter.Emit(r.Context(), company, &d)
	if err != nil {
		s.emissionError(w, company, err)
		return
	}
	s.jsonResponse(w, toEmissionResponse(res), http.StatusOK)
}

func (s *Server) handleGetEmission(w http.ResponseWriter, r *http.Request) {
	rec, err := s.store.Get(r.Context(), r.PathValue("company"), r.PathValue("key"))
	if err != nil {
		s.logger.Error("error loading emission record", "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	if rec == nil {
		s.jsonError(w, "emission not found", http.StatusNotFound)
		return
	}
	s.jsonResponse(w, rec, http.StatusOK)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	company, key := r.PathValue("company"), r.PathValue("key")
	data, err := s.store.GetArtifact(r.Context(), company, key)
	if errors.Is(err, storage.ErrArtifactNotFound) {
		s.jsonError(w, "no authorized document for this key", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("error loading artifact", "company", company, "access_key", key, "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s-procNFe.xml"`, key))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	company := r.PathValue("company")
	res, err := s.emitter.Resume(r.Context(), company, r.PathValue("key"))
	if err != nil {
		s.emissionError(w, company, err)
		return
	}
	s.jsonResponse(w, toEmissionResponse(res), http.StatusOK)
}

type cancelRequest struct {
	Reason   string `json:"reason"`
	Sequence int    `json:"sequence,omitempty"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	company := r.PathValue("company")

	var req cancelRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 64<<10)).Decode(&req); err != nil {
		s.jsonError(w, "invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	res, err := s.emitter.Cancel(r.Context(), emission.CancelRequest{
		CompanyID: company,
		AccessKey: r.PathValue("key"),
		Reason:    req.Reason,
		Sequence:  req.Sequence,
	})
	if err != nil {
		s.emissionError(w, company, err)
		return
	}
	s.jsonResponse(w, cancelResponse{
		Accepted:   res.Accepted,
		StatusCode: res.StatusCode,
		Reason:     res.Reason,
		Protocol:   res.Protocol,
		XML:        string(res.XML),
	}, http.StatusOK)
}

func (s *Server) handleServiceStatus(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	company := q.Get("company")
	if company == "" {
		s.jsonError(w, "company query parameter required", http.StatusBadRequest)
		return
	}
	env := s.config.Environment()
	if v := q.Get("environment"); v != "" {
		parsed, ok := draft.ParseEnvironment(v)
		if !ok {
			s.jsonError(w, "invalid environment: "+v, http.StatusBadRequest)
			return
		}
		env = parsed
	}

	res, err := s.emitter.ServiceStatus(r.Context(), company, q.Get("state"), env)
	if err != nil {
		s.emissionError(w, company, err)
		return
	}
	s.jsonResponse(w, statusResponse{
		Available:   res.Available(),
		StatusCode:  res.Status,
		Reason:      res.Reason,
		State:       res.State,
		AverageTime: res.AverageTime.String(),
	}, http.StatusOK)
}

// emissionError maps the error families to HTTP statuses
func (s *Server) emissionError(w http.ResponseWriter, company string, err error) {
	var be *draft.BuildError
	var se *security.SigningError
	switch {
	case errors.As(err, &be):
		s.jsonResponse(w, map[string]interface{}{"error": "invalid draft", "issues": be.Issues}, http.StatusUnprocessableEntity)
	case keystore.IsNotConfigured(err):
		s.jsonError(w, "company has no certificate configured", http.StatusNotFound)
	case errors.Is(err, emission.ErrNotFound):
		s.jsonError(w, "emission not found", http.StatusNotFound)
	case errors.Is(err, emission.ErrNotResumable), errors.Is(err, emission.ErrNotAuthorized):
		s.jsonError(w, err.Error(), http.StatusConflict)
	case errors.As(err, &se):
		s.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, sefaz.ErrTimeout), errors.Is(err, sefaz.ErrMaxAttempts):
		s.jsonError(w, err.Error(), http.StatusGatewayTimeout)
	case sefaz.KindOf(err) != "":
		s.jsonError(w, err.Error(), http.StatusBadGateway)
	default:
		s.logger.Error("emission request failed", "company", company, "error", err)
		s.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

// Helpers

func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) jsonError(w http.ResponseWriter, message string, status int) {
	s.jsonResponse(w, map[string]string{"error": message}, status)
}
