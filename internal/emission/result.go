package emission

import (
	"fmt"
	"time"

	"github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage"
)

// Result is the outcome of an emission. Rejections and denials by the
// authority are results with Success false; failures to reach a verdict are
// returned as errors.
type Result struct {
	Success    bool
	Status     storage.Status
	StatusCode string
	Reason     string
	// Protocol is the authorization protocol number
	Protocol string
	Record   *storage.EmissionRecord
	// AuthorizedXML is the nfeProc document of an authorized invoice
	AuthorizedXML []byte
	// Log is the step by step trail of this call
	Log []string
}

// CancelResult is the outcome of a cancellation event
type CancelResult struct {
	Accepted   bool
	StatusCode string
	Reason     string
	Protocol   string
	// XML is the procEventoNFe document when the event was registered
	XML    []byte
	Record *storage.EmissionRecord
}

type trail struct {
	now   func() time.Time
	lines []string
}

func (t *trail) add(format string, args ...interface{}) {
	t.lines = append(t.lines, t.now().Format(time.RFC3339)+" "+fmt.Sprintf(format, args...))
}

func resultFor(rec *storage.EmissionRecord, log *trail) *Result {
	return &Result{
		Success:    rec.Status == storage.StatusAuthorized,
		Status:     rec.Status,
		StatusCode: rec.StatusCode,
		Reason:     rec.Reason,
		Protocol:   rec.Protocol,
		Record:     rec,
		Log:        log.lines,
	}
}
