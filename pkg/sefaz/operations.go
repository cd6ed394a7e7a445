package sefaz

import "github.com/tagocm/ERP-DESDOBRA-sub001/pkg/message"

// Service names a SEFAZ web service
type Service string

const (
	ServiceAuthorization       Service = "NFeAutorizacao4"
	ServiceReturnAuthorization Service = "NFeRetAutorizacao4"
	ServiceProtocolQuery       Service = "NFeConsultaProtocolo4"
	ServiceStatus              Service = "NFeStatusServico4"
	ServiceEventReception      Service = "NFeRecepcaoEvento4"
)

// Services lists every service an endpoint directory entry must cover
var Services = []Service{
	ServiceAuthorization,
	ServiceReturnAuthorization,
	ServiceProtocolQuery,
	ServiceStatus,
	ServiceEventReception,
}

// Operation is one SOAP action of a service
type Operation struct {
	Service    Service
	Action     string
	Compressed bool
}

// Namespace is the WSDL namespace of the operation's service
func (o Operation) Namespace() string {
	return message.NsWSDLBase + string(o.Service)
}

// SOAPAction is the action parameter of the request content type
func (o Operation) SOAPAction() string {
	return o.Namespace() + "/" + o.Action
}

// The operations used by the emitter
var (
	OpAuthorize       = Operation{Service: ServiceAuthorization, Action: "nfeAutorizacaoLote"}
	OpReturnAuthorize = Operation{Service: ServiceReturnAuthorization, Action: "nfeRetAutorizacaoLote"}
	OpQueryProtocol   = Operation{Service: ServiceProtocolQuery, Action: "nfeConsultaNF"}
	OpServiceStatus   = Operation{Service: ServiceStatus, Action: "nfeStatusServicoNF"}
	OpReceiveEvent    = Operation{Service: ServiceEventReception, Action: "nfeRecepcaoEvento"}

	// OpAuthorizeZip sends the batch gzipped inside nfeDadosMsgZip
	OpAuthorizeZip = Operation{Service: ServiceAuthorization, Action: "nfeAutorizacaoLoteZip", Compressed: true}
)
