// Package storage persists Emission Records, the audit trail of one invoice's
// journey through SEFAZ.
//
// # Interface Design
//
// A record is keyed by (company, access key) and is never deleted. Every
// change is applied through [EmissionStore.Transition], which appends to the
// record's transition history and request/response snapshots instead of
// overwriting them, so concurrent writers on the same key cannot lose history.
//
// # Implementations
//
//   - mongodb: documents with $push updates; nfeProc artifacts in GridFS
//   - postgres: gorm models with transition and snapshot rows
//   - memory: process-local, for tests and the CLI
//
// All implementations are safe for concurrent use.
package storage

import (
	"context"
	"errors"
	"time"
)

// Common errors
var (
	ErrDuplicate        = errors.New("emission record already exists")
	ErrNotFound         = errors.New("emission record not found")
	ErrArtifactNotFound = errors.New("artifact not found")
)

// EmissionStore manages Emission Records
type EmissionStore interface {
	// Create stores a new record. A record with the same (company, access
	// key) yields ErrDuplicate.
	Create(ctx context.Context, rec *EmissionRecord) error

	// Get returns the record or nil when none exists
	Get(ctx context.Context, companyID, accessKey string) (*EmissionRecord, error)

	// Transition applies a change and returns the updated record. A missing
	// record yields ErrNotFound.
	Transition(ctx context.Context, companyID, accessKey string, change Change) (*EmissionRecord, error)

	// ListPending returns records in one of statuses last updated before
	// the given time, oldest first
	ListPending(ctx context.Context, statuses []Status, updatedBefore time.Time, limit int) ([]*EmissionRecord, error)

	// StoreArtifact saves the nfeProc document of an authorized record
	StoreArtifact(ctx context.Context, companyID, accessKey string, data []byte) error

	// GetArtifact returns the nfeProc document
	GetArtifact(ctx context.Context, companyID, accessKey string) ([]byte, error)

	// Close releases storage resources
	Close(ctx context.Context) error

	// Ping checks connectivity
	Ping(ctx context.Context) error
}

// Status is the emission state
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSigned     Status = "signed"
	StatusSent       Status = "sent"
	StatusProcessing Status = "processing"
	StatusAuthorized Status = "authorized"
	StatusRejected   Status = "rejected"
	StatusDenied     Status = "denied"
	StatusError      Status = "error"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether no further protocol exchange is expected
func (s Status) Terminal() bool {
	switch s {
	case StatusAuthorized, StatusRejected, StatusDenied, StatusError, StatusCancelled:
		return true
	}
	return false
}

// Pending reports whether the batch may still resolve on the SEFAZ side
func (s Status) Pending() bool {
	return s == StatusSent || s == StatusProcessing
}

// EmissionRecord tracks one invoice
type EmissionRecord struct {
	ID          string `bson:"_id" json:"id" gorm:"primaryKey;size:36"`
	CompanyID   string `bson:"company_id" json:"companyId" gorm:"size:64;not null;uniqueIndex:idx_company_key"`
	AccessKey   string `bson:"access_key" json:"accessKey" gorm:"size:44;not null;uniqueIndex:idx_company_key"`
	Series      int    `bson:"series" json:"series"`
	Number      int    `bson:"number" json:"number"`
	State       string `bson:"state" json:"state" gorm:"size:2"`
	Environment string `bson:"environment" json:"environment" gorm:"size:16"`
	Status      Status `bson:"status" json:"status" gorm:"size:16;index:idx_status_updated"`
	// IssuerDocument is the issuer CNPJ or CPF, the author of later events
	IssuerDocument string `bson:"issuer_document,omitempty" json:"issuerDocument,omitempty" gorm:"size:14"`

	BatchID    string `bson:"batch_id,omitempty" json:"batchId,omitempty" gorm:"size:15"`
	Receipt    string `bson:"receipt,omitempty" json:"receipt,omitempty" gorm:"size:15"`
	Protocol   string `bson:"protocol,omitempty" json:"protocol,omitempty" gorm:"size:15"`
	StatusCode string `bson:"status_code,omitempty" json:"statusCode,omitempty" gorm:"size:3"`
	Reason     string `bson:"reason,omitempty" json:"reason,omitempty"`
	Attempts   int    `bson:"attempts" json:"attempts"`
	LastError  string `bson:"last_error,omitempty" json:"lastError,omitempty"`

	// SignedXML is the signed NFe, kept so a pending batch can be completed
	// into nfeProc after a later poll
	SignedXML []byte `bson:"signed_xml,omitempty" json:"-"`
	// CancelProtocol is the registration number of a cancellation event
	CancelProtocol string `bson:"cancel_protocol,omitempty" json:"cancelProtocol,omitempty" gorm:"size:15"`

	CreatedAt    time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt    time.Time  `bson:"updated_at" json:"updatedAt" gorm:"index:idx_status_updated"`
	AuthorizedAt *time.Time `bson:"authorized_at,omitempty" json:"authorizedAt,omitempty"`

	Transitions []Transition `bson:"transitions" json:"transitions" gorm:"foreignKey:RecordID"`
	Snapshots   []Snapshot   `bson:"snapshots" json:"snapshots,omitempty" gorm:"foreignKey:RecordID"`
}

// Transition is one entry of the append-only history
type Transition struct {
	ID         uint      `bson:"-" json:"-" gorm:"primaryKey"`
	RecordID   string    `bson:"-" json:"-" gorm:"size:36;index"`
	From       Status    `bson:"from" json:"from" gorm:"size:16"`
	To         Status    `bson:"to" json:"to" gorm:"size:16"`
	StatusCode string    `bson:"status_code,omitempty" json:"statusCode,omitempty" gorm:"size:3"`
	Reason     string    `bson:"reason,omitempty" json:"reason,omitempty"`
	Attempt    int       `bson:"attempt,omitempty" json:"attempt,omitempty"`
	Note       string    `bson:"note,omitempty" json:"note,omitempty"`
	At         time.Time `bson:"at" json:"at"`
}

// Snapshot is a raw request or response body
type Snapshot struct {
	ID         uint      `bson:"-" json:"-" gorm:"primaryKey"`
	RecordID   string    `bson:"-" json:"-" gorm:"size:36;index"`
	Service    string    `bson:"service" json:"service" gorm:"size:32"`
	Endpoint   string    `bson:"endpoint,omitempty" json:"endpoint,omitempty"`
	Request    string    `bson:"request" json:"request"`
	Response   string    `bson:"response,omitempty" json:"response,omitempty"`
	HTTPStatus int       `bson:"http_status,omitempty" json:"httpStatus,omitempty"`
	At         time.Time `bson:"at" json:"at"`
}

// Change describes one transition and the fields it sets. Empty fields
// leave the stored value untouched.
type Change struct {
	Transition     Transition
	BatchID        string
	Receipt        string
	Protocol       string
	CancelProtocol string
	Attempts       int
	LastError      string
	SignedXML      []byte
	Snapshots      []Snapshot
}

// Apply mutates r the way a store applies c. Transition.From is filled from
// the current status and Transition.At defaults to now.
func (r *EmissionRecord) Apply(c *Change, now time.Time) {
	if c.Transition.At.IsZero() {
		c.Transition.At = now
	}
	c.Transition.From = r.Status
	for i := range c.Snapshots {
		if c.Snapshots[i].At.IsZero() {
			c.Snapshots[i].At = c.Transition.At
		}
	}

	r.Status = c.Transition.To
	if c.Transition.StatusCode != "" {
		r.StatusCode = c.Transition.StatusCode
		r.Reason = c.Transition.Reason
	}
	if c.BatchID != "" {
		r.BatchID = c.BatchID
	}
	if c.Receipt != "" {
		r.Receipt = c.Receipt
	}
	if c.Protocol != "" {
		r.Protocol = c.Protocol
	}
	if c.CancelProtocol != "" {
		r.CancelProtocol = c.CancelProtocol
	}
	if c.Attempts > 0 {
		r.Attempts = c.Attempts
	}
	if c.LastError != "" {
		r.LastError = c.LastError
	}
	if len(c.SignedXML) > 0 {
		r.SignedXML = c.SignedXML
	}
	if c.Transition.To == StatusAuthorized && r.AuthorizedAt == nil {
		at := c.Transition.At
		r.AuthorizedAt = &at
	}
	r.UpdatedAt = c.Transition.At
	r.Transitions = append(r.Transitions, c.Transition)
	r.Snapshots = append(r.Snapshots, c.Snapshots...)
}

// Clone returns a deep copy
func (r *EmissionRecord) Clone() *EmissionRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.SignedXML = append([]byte(nil), r.SignedXML...)
	out.Transitions = append([]Transition(nil), r.Transitions...)
	out.Snapshots = append([]Snapshot(nil), r.Snapshots...)
	if r.AuthorizedAt != nil {
		at := *r.AuthorizedAt
		out.AuthorizedAt = &at
	}
	return &out
}

// LastTransition returns the most recent history entry
func (r *EmissionRecord) LastTransition() (Transition, bool) {
	if len(r.Transitions) == 0 {
		return Transition{}, false
	}
	return r.Transitions[len(r.Transitions)-1], true
}
