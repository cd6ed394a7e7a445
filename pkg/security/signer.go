// Package security implements enveloped XML digital signatures for NF-e documents
package security

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"time"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
)

const (
	// SignatureNamespace is the XML-DSig namespace
	SignatureNamespace = "http://www.w3.org/2000/09/xmldsig#"
	// C14N10 is the inclusive canonicalization algorithm required by SEFAZ
	C14N10 = "http://www.w3.org/TR/2001/REC-xml-c14n-20010315"
	// RSASHA1 is the signature method required by SEFAZ
	RSASHA1 = "http://www.w3.org/2000/09/xmldsig#rsa-sha1"
	// SHA1Digest is the digest method required by SEFAZ
	SHA1Digest = "http://www.w3.org/2000/09/xmldsig#sha1"
)

// Target names the element to sign and the prefix its Id must carry
type Target struct {
	Tag      string
	IDPrefix string
}

var (
	// InvoiceTarget signs infNFe (Id "NFe" + key)
	InvoiceTarget = Target{Tag: "infNFe", IDPrefix: "NFe"}
	// EventTarget signs infEvento (Id "ID" + event type + key + sequence)
	EventTarget = Target{Tag: "infEvento", IDPrefix: "ID"}
)

// Credentials is a PKCS#12 file and its password
type Credentials struct {
	Bundle   []byte
	Password string
}

// SignedDocument is the signer output
type SignedDocument struct {
	XML         []byte
	ID          string
	Certificate *x509.Certificate
	SignedAt    time.Time
}

// Signer produces enveloped RSA-SHA1 signatures placed as the next sibling
// of the signed element.
type Signer struct {
	now func() time.Time
}

// NewSigner creates a signer using the system clock
func NewSigner() *Signer {
	return &Signer{now: time.Now}
}

// WithClock overrides the clock used for certificate validity checks
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

// Sign parses the credentials and signs the target element of xml
func Sign(xml []byte, creds Credentials, target Target) (*SignedDocument, error) {
	return NewSigner().Sign(xml, creds, target)
}

// Sign parses the credentials and signs the target element of xml
func (s *Signer) Sign(xml []byte, creds Credentials, target Target) (*SignedDocument, error) {
	doc, el, err := locate(xml, target)
	if err != nil {
		return nil, err
	}
	bundle, err := ParseBundle(creds.Bundle, creds.Password)
	if err != nil {
		return nil, err
	}
	return s.sign(doc, el, bundle)
}

// SignWithBundle signs using an already decoded bundle
func (s *Signer) SignWithBundle(xml []byte, bundle *Bundle, target Target) (*SignedDocument, error) {
	if bundle == nil || bundle.Certificate == nil || bundle.PrivateKey == nil {
		return nil, newError(KindCertificate, ReasonNoPrivateKey, nil, "no signing certificate")
	}
	doc, el, err := locate(xml, target)
	if err != nil {
		return nil, err
	}
	return s.sign(doc, el, bundle)
}

func (s *Signer) sign(doc *etree.Document, el *etree.Element, bundle *Bundle) (*SignedDocument, error) {
	now := s.now()
	if err := bundle.CheckValidity(now); err != nil {
		return nil, err
	}

	ctx := dsig.NewDefaultSigningContext(dsig.TLSCertKeyStore(tls.Certificate{
		Certificate: [][]byte{bundle.Certificate.Raw},
		PrivateKey:  bundle.PrivateKey,
		Leaf:        bundle.Certificate,
	}))
	ctx.Canonicalizer = dsig.MakeC14N10RecCanonicalizer()
	ctx.IdAttribute = "Id"
	ctx.Prefix = ""
	if err := ctx.SetSignatureMethod(dsig.RSASHA1SignatureMethod); err != nil {
		return nil, newError(KindCertificate, ReasonUnsupportedKey, err, "cannot select RSA-SHA1")
	}

	// The digest covers the element as it appears in the document, so the
	// copy carries every namespace declaration in scope at its position.
	sig, err := ctx.ConstructSignature(detach(el), true)
	if err != nil {
		return nil, newError(KindXML, ReasonMalformed, err, "failed to construct signature")
	}

	parent := el.Parent()
	parent.InsertChildAt(el.Index()+1, sig)

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, newError(KindXML, ReasonMalformed, err, "failed to serialize signed document")
	}
	return &SignedDocument{
		XML:         out,
		ID:          el.SelectAttrValue("Id", ""),
		Certificate: bundle.Certificate,
		SignedAt:    now,
	}, nil
}

// locate parses xml and returns the single target element after checking
// its Id and that the document carries no signature yet.
func locate(xml []byte, target Target) (*etree.Document, *etree.Element, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(xml); err != nil {
		return nil, nil, newError(KindXML, ReasonMalformed, err, "document is not well-formed XML")
	}
	if doc.Root() == nil {
		return nil, nil, newError(KindXML, ReasonMalformed, nil, "document has no root element")
	}

	matches := doc.FindElements("//" + target.Tag)
	switch len(matches) {
	case 0:
		return nil, nil, newError(KindXML, ReasonTargetMissing, nil, "no <%s> element", target.Tag)
	case 1:
	default:
		return nil, nil, newError(KindXML, ReasonTargetAmbiguous, nil, "%d <%s> elements, expected one", len(matches), target.Tag)
	}
	el := matches[0]
	if el.Parent() == nil || el.Parent() == &doc.Element {
		return nil, nil, newError(KindXML, ReasonMalformed, nil, "<%s> must not be the document root", target.Tag)
	}

	id := el.SelectAttrValue("Id", "")
	if id == "" {
		return nil, nil, newError(KindXML, ReasonMissingID, nil, "<%s> has no Id attribute", target.Tag)
	}
	if !strings.HasPrefix(id, target.IDPrefix) || len(id) == len(target.IDPrefix) {
		return nil, nil, newError(KindXML, ReasonMissingID, nil, "Id %q must start with %q", id, target.IDPrefix)
	}
	if strings.Trim(strings.TrimPrefix(id, target.IDPrefix), "0") == "" {
		return nil, nil, newError(KindData, ReasonPlaceholderID, nil, "Id %q is a draft placeholder and cannot be signed", id)
	}

	if len(doc.FindElements("//Signature")) > 0 {
		return nil, nil, newError(KindXML, ReasonAlreadySigned, nil, "document is already signed")
	}
	return doc, el, nil
}

// detach copies el and declares on the copy every namespace inherited from its ancestors
func detach(el *etree.Element) *etree.Element {
	c := el.Copy()
	declared := map[string]bool{}
	for _, a := range c.Attr {
		if key, ok := namespaceDecl(a); ok {
			declared[key] = true
		}
	}
	for p := el.Parent(); p != nil; p = p.Parent() {
		for _, a := range p.Attr {
			key, ok := namespaceDecl(a)
			if !ok || declared[key] {
				continue
			}
			declared[key] = true
			c.CreateAttr(a.FullKey(), a.Value)
		}
	}
	return c
}

func namespaceDecl(a etree.Attr) (string, bool) {
	switch {
	case a.Space == "" && a.Key == "xmlns":
		return "", true
	case a.Space == "xmlns":
		return a.Key, true
	}
	return "", false
}

// certificateFromSignature extracts the X509Certificate carried in KeyInfo
func certificateFromSignature(sig *etree.Element) (*x509.Certificate, error) {
	el := sig.FindElement("./KeyInfo/X509Data/X509Certificate")
	if el == nil {
		return nil, newError(KindXML, ReasonSignatureMissing, nil, "signature has no X509Certificate")
	}
	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(el.Text()), ""))
	if err != nil {
		return nil, newError(KindXML, ReasonMalformed, err, "X509Certificate is not base64")
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, newError(KindCertificate, ReasonCorrupt, err, "X509Certificate cannot be parsed")
	}
	return cert, nil
}
