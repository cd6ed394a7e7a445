package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/config"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/diagnostics"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/events"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/keystore"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/metrics"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage/backends"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/transport"
)

// app holds the wired components of one process
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	store        storage.EmissionStore
	certificates *keystore.Loader
	client       *sefaz.Client
	orchestrator *emission.Orchestrator
	metrics      *metrics.Collector
	publisher    *events.Publisher
}

// newApp wires the configured backends
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	var cacheObserver keystore.CacheObserver
	var callObserver sefaz.Observer
	sinks := []emission.StatusSink{emission.LogSink{Logger: logger}}
	if cfg.Metrics.Metrics.Enabled {
		a.metrics = metrics.NewCollector()
		cacheObserver = a.metrics
		callObserver = a.metrics
		sinks = append(sinks, a.metrics)
	}

	client, err := newSefazClient(cfg, callObserver, logger)
	if err != nil {
		return nil, err
	}
	a.client = client

	certs, err := keystore.NewFromConfig(&cfg.Certificates, cacheObserver, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing certificate loader: %w", err)
	}
	a.certificates = certs

	if len(cfg.Events.Kafka.Brokers) > 0 {
		pub, err := events.NewPublisher(events.Config{
			Brokers: cfg.Events.Kafka.Brokers,
			Topic:   cfg.Events.Kafka.Topic,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing event publisher: %w", err)
		}
		a.publisher = pub
		sinks = append(sinks, pub)
	}

	store, err := backends.Open(ctx, &cfg.Storage)
	if err != nil {
		a.close(ctx)
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a.store = store

	orch, err := emission.New(emission.Config{
		Client:         client,
		Certificates:   certs,
		Store:          store,
		Sinks:          sinks,
		Policy:         cfg.Polling,
		State:          cfg.Sefaz.State,
		TimezoneOffset: cfg.Sefaz.TimezoneOffset,
		AppVersion:     cfg.Sefaz.AppVersion,
		Synchronous:    cfg.Sefaz.Synchronous,
		Logger:         logger,
	})
	if err != nil {
		a.close(ctx)
		return nil, err
	}
	a.orchestrator = orch
	return a, nil
}

func newSefazClient(cfg *config.Config, observer sefaz.Observer, logger *slog.Logger) (*sefaz.Client, error) {
	https := transport.DefaultHTTPSConfig()
	https.Timeout = cfg.Sefaz.Timeout
	https.UserAgent = "nfe-emitter/" + version
	if cfg.Sefaz.TrustBundle != "" {
		pool, err := security.LoadCertPool(cfg.Sefaz.TrustBundle)
		if err != nil {
			return nil, err
		}
		https.RootCAs = pool
	}

	dir := sefaz.NewDirectory()
	for _, ep := range cfg.Sefaz.Endpoints {
		env, _ := draft.ParseEnvironment(ep.Environment)
		if err := dir.Override(ep.State, env, sefaz.Service(ep.Service), ep.URL); err != nil {
			return nil, fmt.Errorf("sefaz endpoint override: %w", err)
		}
	}

	var recorder sefaz.Recorder
	if cfg.Diagnostics.Enabled {
		rec, err := diagnostics.New(diagnostics.Config{
			Dir:               cfg.Diagnostics.Dir,
			Environment:       cfg.Environment(),
			AllowInProduction: cfg.Diagnostics.AllowInProduction,
		}, logger)
		if err != nil {
			return nil, err
		}
		recorder = rec
		logger.Warn("diagnostic capture enabled", "dir", cfg.Diagnostics.Dir)
	}

	return sefaz.NewClient(sefaz.Config{
		HTTPS:     https,
		Directory: dir,
		RateLimit: cfg.Sefaz.RateLimit,
		Burst:     cfg.Sefaz.Burst,
		Compress:  cfg.Sefaz.CompressBatches,
		Recorder:  recorder,
		Observer:  observer,
		Logger:    logger,
	}), nil
}

func (a *app) close(ctx context.Context) error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.store != nil {
		errs = append(errs, a.store.Close(ctx))
	}
	return errors.Join(errs...)
}
