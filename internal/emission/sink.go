package emission

import (
	"context"
	"log/slog"
	"time"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

// Event describes one persisted status transition
type Event struct {
	CompanyID   string         `json:"companyId"`
	AccessKey   string         `json:"accessKey"`
	Environment string         `json:"environment"`
	From        storage.Status `json:"from"`
	To          storage.Status `json:"to"`
	StatusCode  string         `json:"statusCode,omitempty"`
	Reason      string         `json:"reason,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
	Receipt     string         `json:"receipt,omitempty"`
	Protocol    string         `json:"protocol,omitempty"`
	Note        string         `json:"note,omitempty"`
	At          time.Time      `json:"at"`
}

// StatusSink observes transitions after they are persisted. Sinks must not
// block for long; a failing sink never fails the emission.
type StatusSink interface {
	Notify(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to StatusSink
type SinkFunc func(ctx context.Context, ev Event) error

// Notify implements StatusSink
func (f SinkFunc) Notify(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// LogSink writes every transition to a logger
type LogSink struct {
	Logger *slog.Logger
}

// Notify implements StatusSink
func (s LogSink) Notify(_ context.Context, ev Event) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("emission status changed",
		"company", ev.CompanyID,
		"access_key", ev.AccessKey,
		"from", string(ev.From),
		"to", string(ev.To),
		"cstat", ev.StatusCode,
		"attempt", ev.Attempt)
	return nil
}

func eventFor(rec *storage.EmissionRecord, t storage.Transition) Event {
	return Event{
		CompanyID:   rec.CompanyID,
		AccessKey:   rec.AccessKey,
		Environment: rec.Environment,
		From:        t.From,
		To:          t.To,
		StatusCode:  t.StatusCode,
		Reason:      t.Reason,
		Attempt:     t.Attempt,
		Receipt:     rec.Receipt,
		Protocol:    rec.Protocol,
		Note:        t.Note,
		At:          t.At,
	}
}
