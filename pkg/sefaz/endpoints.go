package sefaz

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
)

// Endpoints maps each service to its URL for one authorizer and environment
type Endpoints map[Service]string

type authorizer struct {
	production   Endpoints
	homologation Endpoints
}

func asmx(host string) Endpoints {
	return Endpoints{
		ServiceAuthorization:       "https://" + host + "/ws/nfeautorizacao4.asmx",
		ServiceReturnAuthorization: "https://" + host + "/ws/nferetautorizacao4.asmx",
		ServiceProtocolQuery:       "https://" + host + "/ws/nfeconsultaprotocolo4.asmx",
		ServiceStatus:              "https://" + host + "/ws/nfestatusservico4.asmx",
		ServiceEventReception:      "https://" + host + "/ws/nferecepcaoevento4.asmx",
	}
}

func services(base string) Endpoints {
	e := Endpoints{}
	for _, svc := range Services {
		e[svc] = base + string(svc)
	}
	return e
}

func rsStyle(host string) Endpoints {
	return Endpoints{
		ServiceAuthorization:       "https://" + host + "/ws/NfeAutorizacao/NFeAutorizacao4.asmx",
		ServiceReturnAuthorization: "https://" + host + "/ws/NfeRetAutorizacao/NFeRetAutorizacao4.asmx",
		ServiceProtocolQuery:       "https://" + host + "/ws/NfeConsulta/NfeConsulta4.asmx",
		ServiceStatus:              "https://" + host + "/ws/NfeStatusServico/NfeStatusServico4.asmx",
		ServiceEventReception:      "https://" + host + "/ws/recepcaoevento/recepcaoevento4.asmx",
	}
}

var (
	authorizerSP = authorizer{
		production:   asmx("nfe.fazenda.sp.gov.br"),
		homologation: asmx("homologacao.nfe.fazenda.sp.gov.br"),
	}
	authorizerMG = authorizer{
		production:   services("https://nfe.fazenda.mg.gov.br/nfe2/services/"),
		homologation: services("https://hnfe.fazenda.mg.gov.br/nfe2/services/"),
	}
	authorizerPR = authorizer{
		production:   services("https://nfe.sefa.pr.gov.br/nfe/"),
		homologation: services("https://homologacao.nfe.sefa.pr.gov.br/nfe/"),
	}
	authorizerRS = authorizer{
		production:   rsStyle("nfe.sefazrs.rs.gov.br"),
		homologation: rsStyle("nfe-homologacao.sefazrs.rs.gov.br"),
	}
	authorizerSVRS = authorizer{
		production:   rsStyle("nfe.svrs.rs.gov.br"),
		homologation: rsStyle("nfe-homologacao.svrs.rs.gov.br"),
	}
)

// States served by the virtual authorizer SVRS
var svrsStates = []string{"AC", "AL", "AP", "DF", "ES", "PB", "PI", "RJ", "RN", "RO", "RR", "SC", "SE", "TO"}

func builtinAuthorizers() map[string]authorizer {
	m := map[string]authorizer{
		"SP": authorizerSP,
		"MG": authorizerMG,
		"PR": authorizerPR,
		"RS": authorizerRS,
	}
	for _, uf := range svrsStates {
		m[uf] = authorizerSVRS
	}
	return m
}

type directoryKey struct {
	state string
	env   draft.Environment
}

// Directory resolves service URLs per state and environment. Overrides take
// precedence over the built-in table.
type Directory struct {
	mu        sync.RWMutex
	builtin   map[string]authorizer
	overrides map[directoryKey]Endpoints
}

// NewDirectory creates a directory with the built-in authorizers
func NewDirectory() *Directory {
	return &Directory{
		builtin:   builtinAuthorizers(),
		overrides: make(map[directoryKey]Endpoints),
	}
}

// EmptyDirectory creates a directory that only knows overrides
func EmptyDirectory() *Directory {
	return &Directory{
		builtin:   map[string]authorizer{},
		overrides: make(map[directoryKey]Endpoints),
	}
}

// Override sets the URL of one service for a state and environment
func (d *Directory) Override(state string, env draft.Environment, svc Service, endpoint string) error {
	u, err := url.Parse(endpoint)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("endpoint override for %s/%s/%s must be an absolute https URL", state, env, svc)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	k := directoryKey{strings.ToUpper(state), env}
	if d.overrides[k] == nil {
		d.overrides[k] = Endpoints{}
	}
	d.overrides[k][svc] = endpoint
	return nil
}

// Resolve returns the URL of svc for the state and environment
func (d *Directory) Resolve(state string, env draft.Environment, svc Service) (string, error) {
	state = strings.ToUpper(state)
	d.mu.RLock()
	defer d.mu.RUnlock()

	if e, ok := d.overrides[directoryKey{state, env}]; ok {
		if u := e[svc]; u != "" {
			return u, nil
		}
	}
	if a, ok := d.builtin[state]; ok {
		var e Endpoints
		switch env {
		case draft.EnvProduction:
			e = a.production
		case draft.EnvHomologation:
			e = a.homologation
		}
		if u := e[svc]; u != "" {
			return u, nil
		}
	}
	return "", protocolError(KindEndpoint, svc, nil, "no endpoint configured for state %q in %s", state, env)
}
