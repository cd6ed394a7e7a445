package sefaz

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/accesskey"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/nfexml"
)

func request(tag string, env draft.Environment) (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	root := doc.CreateElement(tag)
	root.CreateAttr("xmlns", nfexml.Namespace)
	root.CreateAttr("versao", nfexml.Version)
	root.CreateElement("tpAmb").SetText(env.Code())
	return doc, root
}

func render(doc *etree.Document) ([]byte, error) {
	doc.WriteSettings.CanonicalEndTags = true
	return doc.WriteToBytes()
}

// ReturnAuthorizationRequest renders consReciNFe for a batch receipt
func ReturnAuthorizationRequest(env draft.Environment, receipt string) ([]byte, error) {
	if len(receipt) != 15 || !numeric(receipt) {
		return nil, fmt.Errorf("receipt number must have 15 digits, got %q", receipt)
	}
	doc, root := request("consReciNFe", env)
	root.CreateElement("nRec").SetText(receipt)
	return render(doc)
}

// ProtocolQueryRequest renders consSitNFe for an access key
func ProtocolQueryRequest(env draft.Environment, key string) ([]byte, error) {
	if err := accesskey.Check(key); err != nil {
		return nil, err
	}
	doc, root := request("consSitNFe", env)
	root.CreateElement("xServ").SetText("CONSULTAR")
	root.CreateElement("chNFe").SetText(key)
	return render(doc)
}

// StatusRequest renders consStatServ for a state
func StatusRequest(env draft.Environment, state string) ([]byte, error) {
	code, ok := accesskey.StateCodeFor(state)
	if !ok {
		return nil, fmt.Errorf("unknown state %q", state)
	}
	doc, root := request("consStatServ", env)
	root.CreateElement("cUF").SetText(code)
	root.CreateElement("xServ").SetText("STATUS")
	return render(doc)
}

func numeric(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
