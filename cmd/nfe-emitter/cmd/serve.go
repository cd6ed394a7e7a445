package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/reconciler"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the reconciler",
	Long: `Start the HTTP API server. When reconciler.enabled is set, pending batches
are re-polled on the configured schedule.

The API provides endpoints for:
  - POST /v1/companies/{company}/emissions              - Emit a draft
  - GET  /v1/companies/{company}/emissions/{key}        - Emission record
  - GET  /v1/companies/{company}/emissions/{key}/xml    - nfeProc document
  - POST /v1/companies/{company}/emissions/{key}/resume - Re-poll a batch
  - POST /v1/companies/{company}/emissions/{key}/cancel - Cancel
  - GET  /v1/service-status?company=...                 - SEFAZ status
  - GET  /healthz, /readyz, /metrics

Examples:
  nfe-emitter serve --config emitter.yaml
  nfe-emitter serve --config emitter.yaml --address :9090`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "address", "", "Listen address (default :server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var opts []server.Option
	if a.metrics != nil {
		opts = append(opts, server.WithMetrics(a.metrics.Handler()))
	}
	srv := server.New(cfg, a.orchestrator, a.store, logger, opts...)

	var rec *reconciler.Reconciler
	if cfg.Reconciler.Enabled {
		rec, err = reconciler.New(a.store, a.orchestrator, &reconciler.Config{
			Schedule:  cfg.Reconciler.Schedule,
			BatchSize: cfg.Reconciler.BatchSize,
			MinAge:    cfg.Reconciler.MinAge,
		}, logger)
		if err != nil {
			a.close(ctx)
			return err
		}
		if err := rec.Start(ctx); err != nil {
			a.close(ctx)
			return err
		}
	}

	addr := serveAddr
	if addr == "" {
		addr = fmt.Sprintf(":%d", cfg.Server.Port)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err = <-errCh:
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	if rec != nil {
		rec.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	// Shutdown closes the store
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("server shutdown failed", "error", serr)
	}
	if a.publisher != nil {
		a.publisher.Close()
	}

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
