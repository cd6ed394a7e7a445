package nfexml

import (
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/beevik/etree"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/accesskey"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
)

const (
	// EventCancellation is tpEvento for cancelamento
	EventCancellation = "110111"
	// EventIDPrefix prefixes the infEvento Id attribute
	EventIDPrefix = "ID"
)

var (
	ErrReasonLength = errors.New("cancellation reason must have between 15 and 255 characters")
	ErrNoProtocol   = errors.New("authorization protocol is required to cancel")
)

// CancelRequest describes a cancellation event for an authorized invoice
type CancelRequest struct {
	AccessKey string
	// Author is the CNPJ or CPF of the issuer
	Author      string
	Environment draft.Environment
	// Protocol is the authorization protocol number (nProt)
	Protocol       string
	Reason         string
	Sequence       int
	At             time.Time
	TimezoneOffset string
}

// EventDocument is an unsigned evento
type EventDocument struct {
	XML       []byte
	ID        string
	AccessKey string
	Type      string
	Sequence  int
}

// BuildCancellation renders the evento for tpEvento 110111
func BuildCancellation(req CancelRequest) (*EventDocument, error) {
	if err := accesskey.Check(req.AccessKey); err != nil {
		return nil, err
	}
	if req.Protocol == "" {
		return nil, ErrNoProtocol
	}
	reason := Clean(req.Reason)
	if n := utf8.RuneCountInString(reason); n < 15 || n > 255 {
		return nil, ErrReasonLength
	}
	if len(req.Author) != 11 && len(req.Author) != 14 {
		return nil, fmt.Errorf("invalid event author document %q", req.Author)
	}
	seq := req.Sequence
	if seq <= 0 {
		seq = 1
	}
	offset := req.TimezoneOffset
	if offset == "" {
		offset = DefaultTimezoneOffset
	}
	if !ValidOffset(offset) {
		return nil, fmt.Errorf("%q is not a ±HH:MM offset", offset)
	}
	at := req.At
	if at.IsZero() {
		at = time.Now()
	}

	id := fmt.Sprintf("%s%s%s%02d", EventIDPrefix, EventCancellation, req.AccessKey, seq)

	doc := etree.NewDocument()
	evento := doc.CreateElement("evento")
	evento.CreateAttr("xmlns", Namespace)
	evento.CreateAttr("versao", EventVersion)

	inf := evento.CreateElement("infEvento")
	inf.CreateAttr("Id", id)
	add(inf, "cOrgao", accesskey.StateCode(req.AccessKey))
	add(inf, "tpAmb", req.Environment.Code())
	addDocument(inf, req.Author)
	add(inf, "chNFe", req.AccessKey)
	add(inf, "dhEvento", FormatTimestamp(at, offset))
	add(inf, "tpEvento", EventCancellation)
	add(inf, "nSeqEvento", fmt.Sprintf("%d", seq))
	add(inf, "verEvento", EventVersion)

	det := inf.CreateElement("detEvento")
	det.CreateAttr("versao", EventVersion)
	add(det, "descEvento", "Cancelamento")
	add(det, "nProt", req.Protocol)
	add(det, "xJust", reason)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize evento: %w", err)
	}
	return &EventDocument{
		XML:       out,
		ID:        id,
		AccessKey: req.AccessKey,
		Type:      EventCancellation,
		Sequence:  seq,
	}, nil
}
