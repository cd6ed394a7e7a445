package sefaz

import (
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/nfexml"
)

// Protocol is an infProt block: the authority's verdict on one document
type Protocol struct {
	AccessKey   string
	Number      string
	Status      string
	Reason      string
	Digest      string
	Environment string
	ReceivedAt  time.Time
	// XML is the protNFe element as returned, ready for nfeProc
	XML []byte
}

// Outcome classifies the protocol status
func (p *Protocol) Outcome() Outcome {
	return ClassifyProtocol(p.Status)
}

// BatchResult is a retEnviNFe or retConsReciNFe
type BatchResult struct {
	Environment string
	Status      string
	Reason      string
	State       string
	Receipt     string
	AverageTime time.Duration
	ReceivedAt  time.Time
	Protocols   []Protocol
}

// ProtocolFor returns the protocol of the given access key, or the only
// protocol when key is empty
func (r *BatchResult) ProtocolFor(key string) *Protocol {
	for i := range r.Protocols {
		if key == "" || r.Protocols[i].AccessKey == key {
			return &r.Protocols[i]
		}
	}
	return nil
}

// ProtocolQueryResult is a retConsSitNFe
type ProtocolQueryResult struct {
	Environment string
	Status      string
	Reason      string
	AccessKey   string
	Protocol    *Protocol
	Events      []EventResult
}

// StatusResult is a retConsStatServ
type StatusResult struct {
	Environment string
	Status      string
	Reason      string
	State       string
	ReceivedAt  time.Time
	AverageTime time.Duration
	Remarks     string
}

// Available reports whether the service is in operation
func (r *StatusResult) Available() bool {
	return r.Status == StatusServiceRunning
}

// EventResult is one retEvento/infEvento
type EventResult struct {
	Status       string
	Reason       string
	AccessKey    string
	Type         string
	Sequence     int
	Protocol     string
	RegisteredAt time.Time
	// XML is the retEvento element, ready for procEventoNFe
	XML []byte
}

// Accepted reports whether the event was registered
func (r *EventResult) Accepted() bool {
	return EventAccepted(r.Status)
}

// EventBatchResult is a retEnvEvento
type EventBatchResult struct {
	Environment string
	Status      string
	Reason      string
	BatchID     string
	Events      []EventResult
}

func text(el *etree.Element, path string) string {
	if el == nil {
		return ""
	}
	c := el.FindElement(path)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text())
}

func timestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func seconds(s string) time.Duration {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func serialize(el *etree.Element) []byte {
	c := el.Copy()
	if c.SelectAttr("xmlns") == nil {
		c.CreateAttr("xmlns", nfexml.Namespace)
	}
	doc := etree.NewDocument()
	doc.SetRoot(c)
	doc.WriteSettings.CanonicalEndTags = true
	b, err := doc.WriteToBytes()
	if err != nil {
		return nil
	}
	return b
}

func parseProtocol(prot *etree.Element) Protocol {
	inf := prot.SelectElement("infProt")
	return Protocol{
		AccessKey:   text(inf, "chNFe"),
		Number:      text(inf, "nProt"),
		Status:      text(inf, "cStat"),
		Reason:      text(inf, "xMotivo"),
		Digest:      text(inf, "digVal"),
		Environment: text(inf, "tpAmb"),
		ReceivedAt:  timestamp(text(inf, "dhRecbto")),
		XML:         serialize(prot),
	}
}

func parseBatch(ret *etree.Element) *BatchResult {
	r := &BatchResult{
		Environment: text(ret, "tpAmb"),
		Status:      text(ret, "cStat"),
		Reason:      text(ret, "xMotivo"),
		State:       text(ret, "cUF"),
		ReceivedAt:  timestamp(text(ret, "dhRecbto")),
		Receipt:     text(ret, "infRec/nRec"),
		AverageTime: seconds(text(ret, "infRec/tMed")),
	}
	if r.Receipt == "" {
		r.Receipt = text(ret, "nRec")
	}
	for _, prot := range ret.SelectElements("protNFe") {
		r.Protocols = append(r.Protocols, parseProtocol(prot))
	}
	return r
}

func parseEvent(ret *etree.Element) EventResult {
	inf := ret.SelectElement("infEvento")
	seq, _ := strconv.Atoi(text(inf, "nSeqEvento"))
	return EventResult{
		Status:       text(inf, "cStat"),
		Reason:       text(inf, "xMotivo"),
		AccessKey:    text(inf, "chNFe"),
		Type:         text(inf, "tpEvento"),
		Sequence:     seq,
		Protocol:     text(inf, "nProt"),
		RegisteredAt: timestamp(text(inf, "dhRegEvento")),
		XML:          serialize(ret),
	}
}

func parseEventBatch(ret *etree.Element) *EventBatchResult {
	r := &EventBatchResult{
		Environment: text(ret, "tpAmb"),
		Status:      text(ret, "cStat"),
		Reason:      text(ret, "xMotivo"),
		BatchID:     text(ret, "idLote"),
	}
	for _, ev := range ret.SelectElements("retEvento") {
		r.Events = append(r.Events, parseEvent(ev))
	}
	return r
}

func parseProtocolQuery(ret *etree.Element) *ProtocolQueryResult {
	r := &ProtocolQueryResult{
		Environment: text(ret, "tpAmb"),
		Status:      text(ret, "cStat"),
		Reason:      text(ret, "xMotivo"),
		AccessKey:   text(ret, "chNFe"),
	}
	if prot := ret.SelectElement("protNFe"); prot != nil {
		p := parseProtocol(prot)
		r.Protocol = &p
	}
	for _, proc := range ret.SelectElements("procEventoNFe") {
		if ev := proc.SelectElement("retEvento"); ev != nil {
			r.Events = append(r.Events, parseEvent(ev))
		}
	}
	return r
}

func parseStatus(ret *etree.Element) *StatusResult {
	return &StatusResult{
		Environment: text(ret, "tpAmb"),
		Status:      text(ret, "cStat"),
		Reason:      text(ret, "xMotivo"),
		State:       text(ret, "cUF"),
		ReceivedAt:  timestamp(text(ret, "dhRecbto")),
		AverageTime: seconds(text(ret, "tMed")),
		Remarks:     text(ret, "xObs"),
	}
}
