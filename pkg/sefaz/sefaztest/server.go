// Package sefaztest provides a scripted SEFAZ web service for tests.
package sefaztest

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/transport"
)

// Reply is a scripted HTTP answer
type Reply struct {
	Status int
	Body   string
}

// Handler answers one request body
type Handler func(body string) Reply

// Request is a recorded call
type Request struct {
	Service     sefaz.Service
	Action      string
	ContentType string
	Body        string
}

// Server is a mutual TLS server answering SEFAZ operations from scripts
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	scripts  map[sefaz.Service][]Handler
	requests []Request
}

// NewServer starts a server that requires a client certificate
func NewServer(t testing.TB) *Server {
	t.Helper()
	s := &Server{scripts: make(map[sefaz.Service][]Handler)}
	s.Server = httptest.NewUnstartedServer(http.HandlerFunc(s.serve))
	s.Server.TLS = &tls.Config{ClientAuth: tls.RequireAnyClientCert}
	s.Server.StartTLS()
	t.Cleanup(s.Close)
	return s
}

// On queues handlers for a service. The last handler repeats once the
// queue is drained.
func (s *Server) On(svc sefaz.Service, handlers ...Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[svc] = append(s.scripts[svc], handlers...)
}

// Requests returns the calls received so far
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many calls a service received
func (s *Server) Count(svc sefaz.Service) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Service == svc {
			n++
		}
	}
	return n
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	ct := r.Header.Get("Content-Type")
	action := actionOf(ct)
	svc := serviceOf(action)

	s.mu.Lock()
	s.requests = append(s.requests, Request{Service: svc, Action: action, ContentType: ct, Body: string(body)})
	queue := s.scripts[svc]
	var h Handler
	switch {
	case len(queue) > 1:
		h = queue[0]
		s.scripts[svc] = queue[1:]
	case len(queue) == 1:
		h = queue[0]
	}
	s.mu.Unlock()

	if h == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	reply := h(string(body))
	if reply.Status == 0 {
		reply.Status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/soap+xml; charset=utf-8")
	w.WriteHeader(reply.Status)
	io.WriteString(w, reply.Body)
}

func actionOf(ct string) string {
	i := strings.Index(ct, `action="`)
	if i < 0 {
		return ""
	}
	rest := ct[i+len(`action="`):]
	if j := strings.Index(rest, `"`); j >= 0 {
		return rest[:j]
	}
	return rest
}

func serviceOf(action string) sefaz.Service {
	for _, svc := range sefaz.Services {
		if strings.Contains(action, "/"+string(svc)+"/") {
			return svc
		}
	}
	return ""
}

// Directory points every service of state/env at the server
func (s *Server) Directory(t testing.TB, state string, env draft.Environment) *sefaz.Directory {
	t.Helper()
	d := sefaz.EmptyDirectory()
	for _, svc := range sefaz.Services {
		require.NoError(t, d.Override(state, env, svc, s.URL+"/"+string(svc)))
	}
	return d
}

// HTTPSConfig trusts the server certificate
func (s *Server) HTTPSConfig() *transport.HTTPSConfig {
	pool := x509.NewCertPool()
	pool.AddCert(s.Certificate())
	cfg := transport.DefaultHTTPSConfig()
	cfg.RootCAs = pool
	cfg.Timeout = 5 * time.Second
	return cfg
}

// Envelope wraps a result in a SOAP 1.2 response
func Envelope(svc sefaz.Service, result string) string {
	return `<?xml version="1.0" encoding="utf-8"?><soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body>` +
		`<nfeResultMsg xmlns="http://www.portalfiscal.inf.br/nfe/wsdl/` + string(svc) + `">` + result + `</nfeResultMsg></soap:Body></soap:Envelope>`
}

// Fixed replies a constant envelope
func Fixed(svc sefaz.Service, result string) Handler {
	return func(string) Reply { return Reply{Body: Envelope(svc, result)} }
}

// Fault replies a SOAP 1.2 fault with HTTP 500
func Fault(reason string) Handler {
	return func(string) Reply {
		return Reply{Status: http.StatusInternalServerError, Body: `<soap:Envelope xmlns:soap="http://www.w3.org/2003/05/soap-envelope"><soap:Body><soap:Fault><soap:Code><soap:Value>soap:Receiver</soap:Value></soap:Code><soap:Reason><soap:Text>` + reason + `</soap:Text></soap:Reason></soap:Fault></soap:Body></soap:Envelope>`}
	}
}

// Status replies a bare HTTP status with a body
func Status(code int, body string) Handler {
	return func(string) Reply { return Reply{Status: code, Body: body} }
}

const ns = `xmlns="http://www.portalfiscal.inf.br/nfe"`

// Protocol renders a protNFe
func Protocol(key, cStat, reason, number string) string {
	return fmt.Sprintf(`<protNFe versao="4.00"><infProt><tpAmb>2</tpAmb><verAplic>SP_NFE_PL009_V4</verAplic><chNFe>%s</chNFe><dhRecbto>2023-10-27T10:00:05-03:00</dhRecbto><nProt>%s</nProt><digVal>q1w2e3=</digVal><cStat>%s</cStat><xMotivo>%s</xMotivo></infProt></protNFe>`, key, number, cStat, reason)
}

// Received is a retEnviNFe with cStat 103 and a receipt
func Received(receipt string) Handler {
	return Fixed(sefaz.ServiceAuthorization, fmt.Sprintf(`<retEnviNFe %s versao="4.00"><tpAmb>2</tpAmb><verAplic>SP_NFE_PL009_V4</verAplic><cStat>103</cStat><xMotivo>Lote recebido com sucesso</xMotivo><cUF>35</cUF><dhRecbto>2023-10-27T10:00:01-03:00</dhRecbto><infRec><nRec>%s</nRec><tMed>1</tMed></infRec></retEnviNFe>`, ns, receipt))
}

// ProcessedSync is a retEnviNFe with cStat 104 carrying the protocol
func ProcessedSync(protNFe string) Handler {
	return Fixed(sefaz.ServiceAuthorization, fmt.Sprintf(`<retEnviNFe %s versao="4.00"><tpAmb>2</tpAmb><verAplic>SP_NFE_PL009_V4</verAplic><cStat>104</cStat><xMotivo>Lote processado</xMotivo><cUF>35</cUF><dhRecbto>2023-10-27T10:00:01-03:00</dhRecbto>%s</retEnviNFe>`, ns, protNFe))
}

// BatchRejected is a retEnviNFe refusing the whole batch
func BatchRejected(cStat, reason string) Handler {
	return Fixed(sefaz.ServiceAuthorization, fmt.Sprintf(`<retEnviNFe %s versao="4.00"><tpAmb>2</tpAmb><cStat>%s</cStat><xMotivo>%s</xMotivo><cUF>35</cUF></retEnviNFe>`, ns, cStat, reason))
}

// Processing is a retConsReciNFe with cStat 105
func Processing(receipt string) Handler {
	return Fixed(sefaz.ServiceReturnAuthorization, fmt.Sprintf(`<retConsReciNFe %s versao="4.00"><tpAmb>2</tpAmb><nRec>%s</nRec><cStat>105</cStat><xMotivo>Lote em processamento</xMotivo><cUF>35</cUF></retConsReciNFe>`, ns, receipt))
}

// Processed is a retConsReciNFe with cStat 104 carrying the protocol
func Processed(receipt, protNFe string) Handler {
	return Fixed(sefaz.ServiceReturnAuthorization, fmt.Sprintf(`<retConsReciNFe %s versao="4.00"><tpAmb>2</tpAmb><nRec>%s</nRec><cStat>104</cStat><xMotivo>Lote processado</xMotivo><cUF>35</cUF><dhRecbto>2023-10-27T10:00:04-03:00</dhRecbto>%s</retConsReciNFe>`, ns, receipt, protNFe))
}

// ReceiptRejected is a retConsReciNFe with a terminal batch code
func ReceiptRejected(receipt, cStat, reason string) Handler {
	return Fixed(sefaz.ServiceReturnAuthorization, fmt.Sprintf(`<retConsReciNFe %s versao="4.00"><tpAmb>2</tpAmb><nRec>%s</nRec><cStat>%s</cStat><xMotivo>%s</xMotivo><cUF>35</cUF></retConsReciNFe>`, ns, receipt, cStat, reason))
}

// Running is a retConsStatServ with cStat 107
func Running() Handler {
	return Fixed(sefaz.ServiceStatus, fmt.Sprintf(`<retConsStatServ %s versao="4.00"><tpAmb>2</tpAmb><verAplic>SP_NFE_PL009_V4</verAplic><cStat>107</cStat><xMotivo>Servico em Operacao</xMotivo><cUF>35</cUF><dhRecbto>2023-10-27T10:00:00-03:00</dhRecbto><tMed>1</tMed></retConsStatServ>`, ns))
}

// Situation is a retConsSitNFe carrying protNFe
func Situation(key, cStat, reason, protNFe string) Handler {
	return Fixed(sefaz.ServiceProtocolQuery, fmt.Sprintf(`<retConsSitNFe %s versao="4.00"><tpAmb>2</tpAmb><verAplic>SP_NFE_PL009_V4</verAplic><cStat>%s</cStat><xMotivo>%s</xMotivo><cUF>35</cUF><dhRecbto>2023-10-27T11:00:00-03:00</dhRecbto><chNFe>%s</chNFe>%s</retConsSitNFe>`, ns, cStat, reason, key, protNFe))
}

// EventRegistered is a retEnvEvento registering one event
func EventRegistered(key, eventType string, seq int, cStat, protocol string) Handler {
	return Fixed(sefaz.ServiceEventReception, fmt.Sprintf(`<retEnvEvento %s versao="1.00"><idLote>1</idLote><tpAmb>2</tpAmb><verAplic>SP_EVENTOS_PL_100</verAplic><cOrgao>35</cOrgao><cStat>128</cStat><xMotivo>Lote de Evento Processado</xMotivo><retEvento versao="1.00"><infEvento><tpAmb>2</tpAmb><verAplic>SP_EVENTOS_PL_100</verAplic><cOrgao>35</cOrgao><cStat>%s</cStat><xMotivo>Evento registrado e vinculado a NF-e</xMotivo><chNFe>%s</chNFe><tpEvento>%s</tpEvento><xEvento>Cancelamento registrado</xEvento><nSeqEvento>%d</nSeqEvento><dhRegEvento>2023-10-27T12:00:00-03:00</dhRegEvento><nProt>%s</nProt></infEvento></retEvento></retEnvEvento>`, ns, cStat, key, eventType, seq, protocol))
}
