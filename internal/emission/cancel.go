package emission

import (
	"context"
	"fmt"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/accesskey"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/nfexml"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security"
)

// CancelRequest asks for the cancellation of an authorized invoice
type CancelRequest struct {
	CompanyID string
	AccessKey string
	Reason    string
	// Sequence is nSeqEvento; zero means 1
	Sequence int
}

// Cancel signs and sends a cancellation event (110111) for an authorized
// invoice. A refused event is a result with Accepted false.
func (o *Orchestrator) Cancel(ctx context.Context, req CancelRequest) (*CancelResult, error) {
	r := &run{
		log:    &trail{now: o.clock.Now},
		logger: o.logger.With("company", req.CompanyID, "access_key", req.AccessKey),
	}
	rec, err := o.store.Get(ctx, req.CompanyID, req.AccessKey)
	if err != nil {
		return nil, fmt.Errorf("loading emission record: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.AccessKey)
	}
	if rec.Status != storage.StatusAuthorized || rec.Protocol == "" {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotAuthorized, req.AccessKey, rec.Status)
	}
	r.rec = rec

	env, ok := draft.ParseEnvironment(rec.Environment)
	if !ok {
		return nil, fmt.Errorf("record %s has unknown environment %q", rec.AccessKey, rec.Environment)
	}
	state := rec.State
	if state == "" {
		state, _ = accesskey.StateFor(accesskey.StateCode(rec.AccessKey))
	}
	r.target = sefaz.Target{State: state, Environment: env}

	ev, err := nfexml.BuildCancellation(nfexml.CancelRequest{
		AccessKey:      rec.AccessKey,
		Author:         eventAuthor(rec),
		Environment:    env,
		Protocol:       rec.Protocol,
		Reason:         req.Reason,
		Sequence:       req.Sequence,
		At:             o.clock.Now(),
		TimezoneOffset: o.offset,
	})
	if err != nil {
		return nil, err
	}

	creds, err := o.certs.Load(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	signing, err := creds.Signing()
	if err != nil {
		return nil, err
	}
	signed, err := o.signer.Sign(ev.XML, signing, security.EventTarget)
	if err != nil {
		return nil, err
	}
	envEvento, err := nfexml.WrapEventBatch(o.batchID(), signed.XML)
	if err != nil {
		return nil, err
	}

	batch, ex, err := o.client.SendEvents(ctx, r.target, envEvento, creds.TLSCertificate())
	if err != nil {
		r.logger.Warn("cancellation failed", "error", err)
		return nil, err
	}

	out := &CancelResult{StatusCode: batch.Status, Reason: batch.Reason}
	var registered *sefaz.EventResult
	for i := range batch.Events {
		if batch.Events[i].AccessKey == rec.AccessKey {
			registered = &batch.Events[i]
			break
		}
	}

	change := storage.Change{Snapshots: snapshot(sefaz.ServiceEventReception, ex)}
	switch {
	case registered != nil && registered.Accepted():
		out.Accepted = true
		out.StatusCode = registered.Status
		out.Reason = registered.Reason
		out.Protocol = registered.Protocol
		out.XML = nfexml.CombineEvent(signed.XML, registered.XML)
		change.Transition = storage.Transition{To: storage.StatusCancelled, StatusCode: registered.Status, Reason: registered.Reason}
		change.CancelProtocol = registered.Protocol
	case registered != nil:
		out.StatusCode = registered.Status
		out.Reason = registered.Reason
		fallthrough
	default:
		// The invoice stays authorized; the refusal is kept in the history
		change.Transition = storage.Transition{To: storage.StatusAuthorized, Note: "cancellation refused: " + out.StatusCode + " " + out.Reason}
	}
	if err := o.transition(ctx, r, change); err != nil {
		return nil, err
	}
	out.Record = r.rec
	return out, nil
}

// QueryProtocol asks SEFAZ for the current situation of an access key. The
// authorizer is taken from the key's state code.
func (o *Orchestrator) QueryProtocol(ctx context.Context, companyID, key string, env draft.Environment) (*sefaz.ProtocolQueryResult, error) {
	if err := accesskey.Check(key); err != nil {
		return nil, err
	}
	state, ok := accesskey.StateFor(accesskey.StateCode(key))
	if !ok {
		return nil, fmt.Errorf("access key %s has unknown state code", key)
	}
	creds, err := o.certs.Load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	res, _, err := o.client.QueryProtocol(ctx, sefaz.Target{State: state, Environment: env}, key, creds.TLSCertificate())
	return res, err
}

// ServiceStatus asks whether the authorizer of state is in operation
func (o *Orchestrator) ServiceStatus(ctx context.Context, companyID, state string, env draft.Environment) (*sefaz.StatusResult, error) {
	if state == "" {
		state = o.state
	}
	creds, err := o.certs.Load(ctx, companyID)
	if err != nil {
		return nil, err
	}
	res, _, err := o.client.ServiceStatus(ctx, sefaz.Target{State: state, Environment: env}, creds.TLSCertificate())
	return res, err
}

// eventAuthor is the issuer document recorded at emission. Older records
// without it fall back to the document encoded in the access key.
func eventAuthor(rec *storage.EmissionRecord) string {
	if rec.IssuerDocument != "" {
		return rec.IssuerDocument
	}
	return accesskey.Document(rec.AccessKey)
}
