// Package message builds and parses the SOAP 1.2 envelopes exchanged with SEFAZ web services.
package message

// Namespace constants
const (
	NsSOAP12 = "http://www.w3.org/2003/05/soap-envelope"
	NsSOAP11 = "http://schemas.xmlsoap.org/soap/envelope/"
	NsXSI    = "http://www.w3.org/2001/XMLSchema-instance"
	NsXSD    = "http://www.w3.org/2001/XMLSchema"
	// NsWSDLBase prefixes every NF-e service namespace
	NsWSDLBase = "http://www.portalfiscal.inf.br/nfe/wsdl/"
)

// Body element names
const (
	ElementDadosMsg    = "nfeDadosMsg"
	ElementDadosMsgZip = "nfeDadosMsgZip"
)

// ContentType returns the SOAP 1.2 content type carrying the action
func ContentType(action string) string {
	if action == "" {
		return "application/soap+xml; charset=utf-8"
	}
	return `application/soap+xml; charset=utf-8; action="` + action + `"`
}
