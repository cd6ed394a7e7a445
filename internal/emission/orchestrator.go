// Package emission drives an invoice from draft to a terminal SEFAZ verdict:
//
//	draft → signed → sent → processing* → authorized | rejected | denied | error
//
// Every transition is persisted on the Emission Record before it is handed
// to the configured StatusSinks. An authorized record is never submitted
// again; a record left in sent or processing keeps its receipt so Resume can
// finish it later.
package emission

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"strconv"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/keystore"
	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/nfexml"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/reliability"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
)

// Common errors
var (
	ErrNotFound      = storage.ErrNotFound
	ErrNotResumable  = errors.New("emission has no pending receipt")
	ErrNotAuthorized = errors.New("invoice is not authorized")
)

// ProtocolClient is the subset of sefaz.Client the orchestrator uses
type ProtocolClient interface {
	SubmitBatch(ctx context.Context, t sefaz.Target, enviNFe []byte, cert tls.Certificate) (*sefaz.BatchResult, *sefaz.Exchange, error)
	FetchBatchResult(ctx context.Context, t sefaz.Target, receipt string, cert tls.Certificate) (*sefaz.BatchResult, *sefaz.Exchange, error)
	QueryProtocol(ctx context.Context, t sefaz.Target, key string, cert tls.Certificate) (*sefaz.ProtocolQueryResult, *sefaz.Exchange, error)
	ServiceStatus(ctx context.Context, t sefaz.Target, cert tls.Certificate) (*sefaz.StatusResult, *sefaz.Exchange, error)
	SendEvents(ctx context.Context, t sefaz.Target, envEvento []byte, cert tls.Certificate) (*sefaz.EventBatchResult, *sefaz.Exchange, error)
}

// Config holds the collaborators of an Orchestrator
type Config struct {
	Client       ProtocolClient
	Certificates keystore.CertificateLoader
	Store        storage.EmissionStore
	Sinks        []StatusSink

	Policy reliability.Policy
	Clock  reliability.Clock
	// Random is the polling jitter source
	Random func() float64

	// State is the authorizer used when the issuer address has none
	State          string
	TimezoneOffset string
	AppVersion     string
	// Synchronous asks SEFAZ for indSinc=1
	Synchronous bool

	Logger *slog.Logger
}

// Orchestrator runs emissions. It is safe for concurrent use; concurrent
// emissions of the same access key are not coordinated.
type Orchestrator struct {
	client  ProtocolClient
	certs   keystore.CertificateLoader
	store   storage.EmissionStore
	sinks   []StatusSink
	policy  reliability.Policy
	clock   reliability.Clock
	random  func() float64
	state   string
	offset  string
	version string
	sync    bool
	logger  *slog.Logger
	signer  *security.Signer
}

// New creates an orchestrator
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Client == nil || cfg.Certificates == nil || cfg.Store == nil {
		return nil, fmt.Errorf("client, certificates and store are required")
	}
	if cfg.Policy == (reliability.Policy{}) {
		cfg.Policy = reliability.DefaultPolicy()
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Clock == nil {
		cfg.Clock = reliability.RealClock()
	}
	if cfg.Random == nil {
		cfg.Random = rand.Float64
	}
	if cfg.TimezoneOffset == "" {
		cfg.TimezoneOffset = nfexml.DefaultTimezoneOffset
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		client:  cfg.Client,
		certs:   cfg.Certificates,
		store:   cfg.Store,
		sinks:   cfg.Sinks,
		policy:  cfg.Policy,
		clock:   cfg.Clock,
		random:  cfg.Random,
		state:   cfg.State,
		offset:  cfg.TimezoneOffset,
		version: cfg.AppVersion,
		sync:    cfg.Synchronous,
		logger:  cfg.Logger,
		signer:  security.NewSigner().WithClock(cfg.Clock.Now),
	}, nil
}

// run carries the state of one call
type run struct {
	rec    *storage.EmissionRecord
	target sefaz.Target
	creds  *keystore.Credentials
	log    *trail
	logger *slog.Logger
}

// Emit builds, signs and submits a draft for a company and follows the batch
// to a verdict. A draft whose record is already authorized is answered from
// the record without any protocol call.
func (o *Orchestrator) Emit(ctx context.Context, companyID string, d *draft.Draft) (*Result, error) {
	if d == nil || d.AccessKey == "" {
		// Build reports the missing key as a CONFIGURATION issue
		_, err := nfexml.Build(d, nfexml.WithMode(nfexml.ModeTransmissible))
		return nil, err
	}
	r := &run{
		log:    &trail{now: o.clock.Now},
		logger: o.logger.With("company", companyID, "access_key", d.AccessKey),
	}

	rec, err := o.store.Get(ctx, companyID, d.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("loading emission record: %w", err)
	}
	if rec != nil {
		r.rec = rec
		if res, done, err := o.shortCircuit(ctx, r); done {
			return res, err
		}
	} else {
		rec = &storage.EmissionRecord{
			CompanyID:      companyID,
			AccessKey:      d.AccessKey,
			Series:         d.Identification.Series,
			Number:         d.Identification.Number,
			State:          o.stateOf(d),
			Environment:    string(d.Identification.Environment),
			Status:         storage.StatusDraft,
			IssuerDocument: d.Issuer.Document,
			CreatedAt:      o.clock.Now(),
		}
		if err := o.store.Create(ctx, rec); err != nil {
			return nil, fmt.Errorf("creating emission record: %w", err)
		}
		r.rec = rec
		r.log.add("record created for %s", d.AccessKey)
	}
	r.target = sefaz.Target{State: o.stateOf(d), Environment: d.Identification.Environment}

	doc, err := nfexml.Build(d,
		nfexml.WithMode(nfexml.ModeTransmissible),
		nfexml.WithTimezoneOffset(o.offset),
		nfexml.WithAppVersion(o.version))
	if err != nil {
		r.log.add("build failed: %v", err)
		o.fail(ctx, r, err)
		return nil, err
	}

	if err := o.loadCredentials(ctx, r); err != nil {
		return nil, err
	}
	signing, err := r.creds.Signing()
	if err != nil {
		return nil, err
	}
	signed, err := o.signer.Sign(doc.XML, signing, security.InvoiceTarget)
	if err != nil {
		r.log.add("signing failed: %v", err)
		o.fail(ctx, r, err)
		return nil, err
	}
	if err := o.transition(ctx, r, storage.Change{
		Transition: storage.Transition{To: storage.StatusSigned, Note: "signed by " + r.creds.Bundle.Subject()},
		SignedXML:  signed.XML,
	}); err != nil {
		return nil, err
	}
	r.log.add("document signed")

	return o.submit(ctx, r, signed.XML)
}

// shortCircuit answers records that must not be submitted again
func (o *Orchestrator) shortCircuit(ctx context.Context, r *run) (*Result, bool, error) {
	switch r.rec.Status {
	case storage.StatusAuthorized:
		r.log.add("already authorized with protocol %s", r.rec.Protocol)
		res := resultFor(r.rec, r.log)
		if proc, err := o.store.GetArtifact(ctx, r.rec.CompanyID, r.rec.AccessKey); err == nil {
			res.AuthorizedXML = proc
		}
		return res, true, nil
	case storage.StatusDenied, storage.StatusCancelled:
		r.log.add("record is %s; access key cannot be used again", r.rec.Status)
		return resultFor(r.rec, r.log), true, nil
	case storage.StatusSent, storage.StatusProcessing, storage.StatusError:
		// A receipt means SEFAZ already holds the batch
		if r.rec.Receipt != "" {
			r.log.add("batch %s still pending; resuming", r.rec.Receipt)
			res, err := o.resume(ctx, r)
			return res, true, err
		}
	}
	return nil, false, nil
}

func (o *Orchestrator) stateOf(d *draft.Draft) string {
	if s := d.Issuer.Address.State; s != "" {
		return s
	}
	return o.state
}

func (o *Orchestrator) loadCredentials(ctx context.Context, r *run) error {
	creds, err := o.certs.Load(ctx, r.rec.CompanyID)
	if err != nil {
		r.log.add("certificate unavailable: %v", err)
		o.fail(ctx, r, err)
		return err
	}
	r.creds = creds
	return nil
}

func (o *Orchestrator) batchID() string {
	// idLote is at most 15 digits
	return strconv.FormatInt(o.clock.Now().UnixMilli()%1_000_000_000_000_000, 10)
}

func (o *Orchestrator) submit(ctx context.Context, r *run, signedXML []byte) (*Result, error) {
	batchID := o.batchID()
	enviNFe, err := nfexml.WrapBatch(batchID, o.sync, signedXML)
	if err != nil {
		o.fail(ctx, r, err)
		return nil, err
	}

	res, ex, err := o.client.SubmitBatch(ctx, r.target, enviNFe, r.creds.TLSCertificate())
	if err != nil {
		r.log.add("submission failed: %v", err)
		o.fail(ctx, r, err, snapshot(sefaz.ServiceAuthorization, ex)...)
		return nil, err
	}
	r.log.add("batch %s answered %s %s", batchID, res.Status, res.Reason)

	switch res.Status {
	case sefaz.StatusBatchProcessed:
		return o.finish(ctx, r, res, storage.Change{BatchID: batchID, Snapshots: snapshot(sefaz.ServiceAuthorization, ex)})
	case sefaz.StatusBatchReceived:
		if err := o.transition(ctx, r, storage.Change{
			Transition: storage.Transition{To: storage.StatusSent, StatusCode: res.Status, Reason: res.Reason},
			BatchID:    batchID,
			Receipt:    res.Receipt,
			Snapshots:  snapshot(sefaz.ServiceAuthorization, ex),
		}); err != nil {
			return nil, err
		}
		return o.poll(ctx, r)
	default:
		if err := o.transition(ctx, r, storage.Change{
			Transition: storage.Transition{To: storage.StatusRejected, StatusCode: res.Status, Reason: res.Reason},
			BatchID:    batchID,
			Snapshots:  snapshot(sefaz.ServiceAuthorization, ex),
		}); err != nil {
			return nil, err
		}
		return resultFor(r.rec, r.log), nil
	}
}

// finish settles a processed batch by the protNFe of this access key. The
// batch code only says the batch was processed; the verdict is the inner
// protocol status.
func (o *Orchestrator) finish(ctx context.Context, r *run, res *sefaz.BatchResult, change storage.Change) (*Result, error) {
	prot := res.ProtocolFor(r.rec.AccessKey)
	if prot == nil {
		err := &sefaz.ProtocolError{Kind: sefaz.KindParse, Message: "processed batch carries no protocol for " + r.rec.AccessKey}
		o.fail(ctx, r, err, change.Snapshots...)
		return nil, err
	}
	r.log.add("protocol %s: %s %s", prot.Number, prot.Status, prot.Reason)

	change.Transition = storage.Transition{StatusCode: prot.Status, Reason: prot.Reason, Attempt: change.Attempts}
	switch prot.Outcome() {
	case sefaz.OutcomeAuthorized:
		change.Transition.To = storage.StatusAuthorized
		change.Protocol = prot.Number
	case sefaz.OutcomeDenied:
		change.Transition.To = storage.StatusDenied
		change.Protocol = prot.Number
	default:
		change.Transition.To = storage.StatusRejected
	}
	if err := o.transition(ctx, r, change); err != nil {
		return nil, err
	}

	result := resultFor(r.rec, r.log)
	if r.rec.Status == storage.StatusAuthorized {
		proc := nfexml.Combine(r.rec.SignedXML, prot.XML)
		if err := o.store.StoreArtifact(ctx, r.rec.CompanyID, r.rec.AccessKey, proc); err != nil {
			r.logger.Error("storing nfeProc failed", "error", err)
		}
		result.AuthorizedXML = proc
	}
	return result, nil
}

// transition persists a change on the run's record and notifies the sinks
func (o *Orchestrator) transition(ctx context.Context, r *run, change storage.Change) error {
	rec, err := o.store.Transition(ctx, r.rec.CompanyID, r.rec.AccessKey, change)
	if err != nil {
		r.logger.Error("persisting transition failed", "to", string(change.Transition.To), "error", err)
		return fmt.Errorf("persisting %s transition: %w", change.Transition.To, err)
	}
	r.rec = rec
	last, _ := rec.LastTransition()
	r.logger.Info("emission transition", "from", string(last.From), "to", string(last.To), "cstat", last.StatusCode)

	ev := eventFor(rec, last)
	for _, sink := range o.sinks {
		if err := sink.Notify(ctx, ev); err != nil {
			r.logger.Warn("status sink failed", "error", err)
		}
	}
	return nil
}

// fail moves the record to error. The persisting error is logged only; the
// caller returns the original cause.
func (o *Orchestrator) fail(ctx context.Context, r *run, cause error, snapshots ...storage.Snapshot) {
	if r.rec == nil {
		return
	}
	_ = o.transition(context.WithoutCancel(ctx), r, storage.Change{
		Transition: storage.Transition{To: storage.StatusError, Note: errorKind(cause)},
		LastError:  cause.Error(),
		Snapshots:  snapshots,
	})
}

func errorKind(err error) string {
	var be *draft.BuildError
	var se *security.SigningError
	var pe *sefaz.ProtocolError
	var fe *sefaz.FaultError
	switch {
	case errors.As(err, &be):
		return "build"
	case errors.As(err, &se):
		return "signing " + string(se.Kind)
	case errors.As(err, &fe):
		return "protocol " + string(sefaz.KindRemote)
	case errors.As(err, &pe):
		return "protocol " + string(pe.Kind)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "internal"
}

func snapshot(svc sefaz.Service, ex *sefaz.Exchange) []storage.Snapshot {
	if ex == nil {
		return nil
	}
	return []storage.Snapshot{{
		Service:    string(svc),
		Endpoint:   ex.Endpoint,
		Request:    string(ex.Request),
		Response:   string(ex.Response),
		HTTPStatus: ex.HTTPStatus,
	}}
}
