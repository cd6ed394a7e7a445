package emission

import (
	"context"
	"errors"
	"fmt"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/reliability"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
)

// poll asks NFeRetAutorizacao4 for the batch outcome until a verdict, the
// attempt limit or the elapsed limit. Exhausting the policy moves the record
// to error but keeps its receipt, so the batch can be resumed.
func (o *Orchestrator) poll(ctx context.Context, r *run) (*Result, error) {
	tracker := reliability.NewTracker(o.policy,
		reliability.WithClock(o.clock),
		reliability.WithRandom(o.random))
	receipt := r.rec.Receipt

	for {
		if err := tracker.Begin(); err != nil {
			return nil, o.exhausted(ctx, r, tracker, err)
		}
		attempt := tracker.Attempts()

		res, ex, err := o.client.FetchBatchResult(ctx, r.target, receipt, r.creds.TLSCertificate())
		switch {
		case err != nil && retryable(err):
			r.log.add("poll %d failed, retrying: %v", attempt, err)
			r.logger.Warn("polling batch failed", "attempt", attempt, "error", err)
		case err != nil:
			r.log.add("poll %d failed: %v", attempt, err)
			o.fail(ctx, r, err, snapshot(sefaz.ServiceReturnAuthorization, ex)...)
			return nil, err
		case res.Status == sefaz.StatusBatchProcessing:
			r.log.add("poll %d: batch %s still processing", attempt, receipt)
			if err := o.transition(ctx, r, storage.Change{
				Transition: storage.Transition{To: storage.StatusProcessing, StatusCode: res.Status, Reason: res.Reason, Attempt: attempt},
				Attempts:   attempt,
				Snapshots:  snapshot(sefaz.ServiceReturnAuthorization, ex),
			}); err != nil {
				return nil, err
			}
		case res.Status == sefaz.StatusBatchProcessed:
			return o.finish(ctx, r, res, storage.Change{
				Attempts:  attempt,
				Snapshots: snapshot(sefaz.ServiceReturnAuthorization, ex),
			})
		default:
			r.log.add("poll %d: batch %s answered %s %s", attempt, receipt, res.Status, res.Reason)
			if err := o.transition(ctx, r, storage.Change{
				Transition: storage.Transition{To: storage.StatusRejected, StatusCode: res.Status, Reason: res.Reason, Attempt: attempt},
				Attempts:   attempt,
				Snapshots:  snapshot(sefaz.ServiceReturnAuthorization, ex),
			}); err != nil {
				return nil, err
			}
			return resultFor(r.rec, r.log), nil
		}

		if err := tracker.Wait(ctx); err != nil {
			if errors.Is(err, reliability.ErrTimeout) || errors.Is(err, reliability.ErrMaxAttempts) {
				return nil, o.exhausted(ctx, r, tracker, err)
			}
			// Cancelled: the record stays pending for Resume
			r.log.add("polling cancelled: %v", err)
			return nil, err
		}
	}
}

// retryable reports whether a polling failure may clear up by itself
func retryable(err error) bool {
	return errors.Is(err, sefaz.ErrTransport) || errors.Is(err, sefaz.ErrHTTP)
}

func (o *Orchestrator) exhausted(ctx context.Context, r *run, tracker *reliability.Tracker, cause error) error {
	kind := sefaz.KindTimeout
	if errors.Is(cause, reliability.ErrMaxAttempts) {
		kind = sefaz.KindMaxAttempts
	}
	err := &sefaz.ProtocolError{
		Kind:    kind,
		Service: sefaz.ServiceReturnAuthorization,
		Message: fmt.Sprintf("batch %s unresolved after %d attempts in %s", r.rec.Receipt, tracker.Attempts(), tracker.Elapsed()),
		Cause:   cause,
	}
	r.log.add("polling gave up: %v", err)
	o.fail(ctx, r, err)
	return err
}

// Resume polls a batch left pending, or failed by polling exhaustion, using
// the persisted receipt
func (o *Orchestrator) Resume(ctx context.Context, companyID, accessKey string) (*Result, error) {
	r := &run{
		log:    &trail{now: o.clock.Now},
		logger: o.logger.With("company", companyID, "access_key", accessKey),
	}
	rec, err := o.store.Get(ctx, companyID, accessKey)
	if err != nil {
		return nil, fmt.Errorf("loading emission record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, accessKey)
	}
	r.rec = rec
	if rec.Status == storage.StatusAuthorized || rec.Status == storage.StatusDenied || rec.Status == storage.StatusCancelled {
		res, _, err := o.shortCircuit(ctx, r)
		return res, err
	}
	return o.resume(ctx, r)
}

func (o *Orchestrator) resume(ctx context.Context, r *run) (*Result, error) {
	if r.rec.Receipt == "" || len(r.rec.SignedXML) == 0 {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotResumable, r.rec.AccessKey, r.rec.Status)
	}
	switch r.rec.Status {
	case storage.StatusSent, storage.StatusProcessing, storage.StatusError:
	default:
		return nil, fmt.Errorf("%w: %s is %s", ErrNotResumable, r.rec.AccessKey, r.rec.Status)
	}
	env, ok := draft.ParseEnvironment(r.rec.Environment)
	if !ok {
		return nil, fmt.Errorf("record %s has unknown environment %q", r.rec.AccessKey, r.rec.Environment)
	}
	state := r.rec.State
	if state == "" {
		state = o.state
	}
	r.target = sefaz.Target{State: state, Environment: env}

	if err := o.loadCredentials(ctx, r); err != nil {
		return nil, err
	}
	if r.rec.Status == storage.StatusError {
		if err := o.transition(ctx, r, storage.Change{
			Transition: storage.Transition{To: storage.StatusSent, Note: "resumed"},
		}); err != nil {
			return nil, err
		}
	}
	r.log.add("resuming batch %s", r.rec.Receipt)
	return o.poll(ctx, r)
}
