// Package reconciler completes emissions left pending by an interrupted
// process.
//
// The Reconciler runs as a cron job. Each run lists records in "sent" or
// "processing" that have not changed for MinAge and resumes polling their
// batch with the persisted receipt. A record is never resubmitted from here;
// a batch that still does not resolve ends in "error" with its receipt kept.
//
// # Concurrency
//
// Runs never overlap: a run still in progress when the schedule fires again
// makes the new run skip. Records are resumed sequentially within a run.
package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

// Resumer polls a pending batch to completion
type Resumer interface {
	Resume(ctx context.Context, companyID, accessKey string) (*emission.Result, error)
}

// Config holds reconciler settings
type Config struct {
	// Schedule is a standard cron expression or descriptor such as "@every 1m"
	Schedule  string
	BatchSize int
	MinAge    time.Duration
}

// DefaultConfig returns the defaults used when no configuration is given
func DefaultConfig() *Config {
	return &Config{
		Schedule:  "@every 1m",
		BatchSize: 50,
		MinAge:    2 * time.Minute,
	}
}

// Summary reports one run
type Summary struct {
	Checked  int
	Resolved int
	Pending  int
	Failed   int
}

// Reconciler re-polls pending emissions on a schedule
type Reconciler struct {
	store   storage.EmissionStore
	resumer Resumer
	logger  *slog.Logger
	now     func() time.Time

	schedule  string
	batchSize int
	minAge    time.Duration

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
}

// New creates a reconciler. The schedule is validated here.
func New(store storage.EmissionStore, resumer Resumer, cfg *Config, logger *slog.Logger) (*Reconciler, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("invalid reconciler schedule %q: %w", cfg.Schedule, err)
	}
	return &Reconciler{
		store:     store,
		resumer:   resumer,
		logger:    logger,
		now:       time.Now,
		schedule:  cfg.Schedule,
		batchSize: cfg.BatchSize,
		minAge:    cfg.MinAge,
	}, nil
}

// Start schedules the job
func (r *Reconciler) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)
	log := cronLogger{r.logger}
	r.cron = cron.New(cron.WithLogger(log), cron.WithChain(
		cron.Recover(log),
		cron.SkipIfStillRunning(log),
	))
	if _, err := r.cron.AddFunc(r.schedule, func() {
		if _, err := r.RunOnce(r.ctx); err != nil {
			r.logger.Error("reconciliation run failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("scheduling reconciler: %w", err)
	}
	r.cron.Start()
	r.logger.Info("reconciler started", "schedule", r.schedule, "batch_size", r.batchSize, "min_age", r.minAge)
	return nil
}

// Stop cancels a running pass and waits for it to return
func (r *Reconciler) Stop() {
	if r.cron == nil {
		return
	}
	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info("reconciler stopped")
}

// RunOnce resumes one batch of pending records
func (r *Reconciler) RunOnce(ctx context.Context) (Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var sum Summary
	records, err := r.store.ListPending(ctx,
		[]storage.Status{storage.StatusSent, storage.StatusProcessing},
		r.now().Add(-r.minAge),
		r.batchSize)
	if err != nil {
		return sum, fmt.Errorf("listing pending emissions: %w", err)
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		if rec.Receipt == "" {
			continue
		}
		sum.Checked++
		log := r.logger.With("company", rec.CompanyID, "access_key", rec.AccessKey, "receipt", rec.Receipt)

		res, err := r.resumer.Resume(ctx, rec.CompanyID, rec.AccessKey)
		switch {
		case err != nil && ctx.Err() != nil:
			sum.Pending++
			return sum, ctx.Err()
		case err != nil:
			sum.Failed++
			log.Warn("resuming emission failed", "error", err)
		case res.Status.Terminal():
			sum.Resolved++
			log.Info("pending emission resolved", "status", res.Status, "cstat", res.StatusCode)
		default:
			sum.Pending++
		}
	}

	if sum.Checked > 0 {
		r.logger.Info("reconciliation run complete",
			"checked", sum.Checked, "resolved", sum.Resolved, "pending", sum.Pending, "failed", sum.Failed)
	}
	return sum, nil
}

// cronLogger adapts slog to cron.Logger
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
