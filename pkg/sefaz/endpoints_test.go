package sefaz

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
)

func TestDirectoryBuiltin(t *testing.T) {
	d := NewDirectory()
	tests := []struct {
		state string
		env   draft.Environment
		svc   Service
		want  string
	}{
		{"SP", draft.EnvProduction, ServiceAuthorization, "https://nfe.fazenda.sp.gov.br/ws/nfeautorizacao4.asmx"},
		{"SP", draft.EnvHomologation, ServiceReturnAuthorization, "https://homologacao.nfe.fazenda.sp.gov.br/ws/nferetautorizacao4.asmx"},
		{"MG", draft.EnvProduction, ServiceStatus, "https://nfe.fazenda.mg.gov.br/nfe2/services/NFeStatusServico4"},
		{"MG", draft.EnvHomologation, ServiceEventReception, "https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeRecepcaoEvento4"},
		{"PR", draft.EnvProduction, ServiceProtocolQuery, "https://nfe.sefa.pr.gov.br/nfe/NFeConsultaProtocolo4"},
		{"RS", draft.EnvProduction, ServiceProtocolQuery, "https://nfe.sefazrs.rs.gov.br/ws/NfeConsulta/NfeConsulta4.asmx"},
		{"RS", draft.EnvHomologation, ServiceAuthorization, "https://nfe-homologacao.sefazrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx"},
		{"SC", draft.EnvProduction, ServiceAuthorization, "https://nfe.svrs.rs.gov.br/ws/NfeAutorizacao/NFeAutorizacao4.asmx"},
		{"rj", draft.EnvHomologation, ServiceEventReception, "https://nfe-homologacao.svrs.rs.gov.br/ws/recepcaoevento/recepcaoevento4.asmx"},
	}
	for _, tt := range tests {
		t.Run(tt.state+"/"+string(tt.env)+"/"+string(tt.svc), func(t *testing.T) {
			got, err := d.Resolve(tt.state, tt.env, tt.svc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDirectoryCoversEveryService(t *testing.T) {
	d := NewDirectory()
	for state := range builtinAuthorizers() {
		for _, env := range []draft.Environment{draft.EnvProduction, draft.EnvHomologation} {
			for _, svc := range Services {
				_, err := d.Resolve(state, env, svc)
				assert.NoError(t, err, "%s %s %s", state, env, svc)
			}
		}
	}
}

func TestDirectoryUnknown(t *testing.T) {
	_, err := NewDirectory().Resolve("BA", draft.EnvProduction, ServiceAuthorization)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEndpoint))
	assert.Equal(t, KindEndpoint, KindOf(err))

	_, err = NewDirectory().Resolve("SP", draft.Environment("staging"), ServiceAuthorization)
	assert.True(t, errors.Is(err, ErrEndpoint))
}

func TestDirectoryOverride(t *testing.T) {
	d := NewDirectory()
	require.NoError(t, d.Override("ba", draft.EnvHomologation, ServiceStatus, "https://hnfe.sefaz.ba.gov.br/webservices/NFeStatusServico4/NFeStatusServico4.asmx"))
	require.NoError(t, d.Override("SP", draft.EnvProduction, ServiceAuthorization, "https://proxy.internal/sp/autorizacao"))

	got, err := d.Resolve("BA", draft.EnvHomologation, ServiceStatus)
	require.NoError(t, err)
	assert.Contains(t, got, "sefaz.ba.gov.br")

	_, err = d.Resolve("BA", draft.EnvHomologation, ServiceAuthorization)
	assert.True(t, errors.Is(err, ErrEndpoint))

	got, err = d.Resolve("SP", draft.EnvProduction, ServiceAuthorization)
	require.NoError(t, err)
	assert.Equal(t, "https://proxy.internal/sp/autorizacao", got)

	got, err = d.Resolve("SP", draft.EnvProduction, ServiceStatus)
	require.NoError(t, err)
	assert.Equal(t, "https://nfe.fazenda.sp.gov.br/ws/nfestatusservico4.asmx", got)

	assert.Error(t, d.Override("SP", draft.EnvProduction, ServiceStatus, "http://plain.example/status"))
	assert.Error(t, d.Override("SP", draft.EnvProduction, ServiceStatus, "not a url"))
}

func TestOperationActions(t *testing.T) {
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4/nfeAutorizacaoLote", OpAuthorize.SOAPAction())
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe/wsdl/NFeRetAutorizacao4/nfeRetAutorizacaoLote", OpReturnAuthorize.SOAPAction())
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe/wsdl/NFeConsultaProtocolo4/nfeConsultaNF", OpQueryProtocol.SOAPAction())
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe/wsdl/NFeStatusServico4/nfeStatusServicoNF", OpServiceStatus.SOAPAction())
	assert.Equal(t, "http://www.portalfiscal.inf.br/nfe/wsdl/NFeRecepcaoEvento4/nfeRecepcaoEvento", OpReceiveEvent.SOAPAction())
	assert.True(t, OpAuthorizeZip.Compressed)
}

func TestClassifyProtocol(t *testing.T) {
	for _, c := range []string{"100", "150"} {
		assert.Equal(t, OutcomeAuthorized, ClassifyProtocol(c), c)
	}
	for _, c := range []string{"110", "301", "302", "303"} {
		assert.Equal(t, OutcomeDenied, ClassifyProtocol(c), c)
	}
	for _, c := range []string{"204", "539", "225", "", "105"} {
		assert.Equal(t, OutcomeRejected, ClassifyProtocol(c), c)
	}
	assert.True(t, EventAccepted("135"))
	assert.True(t, EventAccepted("155"))
	assert.False(t, EventAccepted("573"))
}

func TestRequestPayloads(t *testing.T) {
	b, err := ReturnAuthorizationRequest(draft.EnvProduction, "351000012345678")
	require.NoError(t, err)
	assert.Equal(t, `<consReciNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>1</tpAmb><nRec>351000012345678</nRec></consReciNFe>`, string(b))

	b, err = ProtocolQueryRequest(draft.EnvHomologation, "35231012345678000195550010000000011123456786")
	require.NoError(t, err)
	assert.Equal(t, `<consSitNFe xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>2</tpAmb><xServ>CONSULTAR</xServ><chNFe>35231012345678000195550010000000011123456786</chNFe></consSitNFe>`, string(b))

	b, err = StatusRequest(draft.EnvHomologation, "MG")
	require.NoError(t, err)
	assert.Equal(t, `<consStatServ xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00"><tpAmb>2</tpAmb><cUF>31</cUF><xServ>STATUS</xServ></consStatServ>`, string(b))

	_, err = ReturnAuthorizationRequest(draft.EnvProduction, "35100001234567X")
	assert.Error(t, err)
	_, err = ProtocolQueryRequest(draft.EnvProduction, "123")
	assert.Error(t, err)
	_, err = StatusRequest(draft.EnvProduction, "XX")
	assert.Error(t, err)
}

func TestProtocolErrorMessage(t *testing.T) {
	err := protocolError(KindTransport, ServiceStatus, errors.New("connection reset"), "request to %s failed", "https://x")
	assert.Equal(t, "sefaz TRANSPORT error calling NFeStatusServico4: request to https://x failed: connection reset", err.Error())
	assert.False(t, errors.Is(err, ErrHTTP))
	assert.Equal(t, KindOf(errors.New("plain")), ErrorKind(""))
}
