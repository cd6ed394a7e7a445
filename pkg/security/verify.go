package security

import (
	"crypto/x509"

	"github.com/beevik/etree"
	"github.com/leifj/signedxml"
)

// Verify checks the signature that follows the target element: the reference
// digest is recomputed over a fresh canonicalization and the signature value
// is checked against the certificate embedded in KeyInfo. Certificate validity
// dates are not enforced here; they are checked when signing.
//
// Validation runs on signedxml, a canonicalizer independent of the one Sign
// uses, so a document only verifies when both agree on its canonical form.
func Verify(signedXML []byte, target Target) (*x509.Certificate, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(signedXML); err != nil {
		return nil, newError(KindXML, ReasonMalformed, err, "document is not well-formed XML")
	}
	matches := doc.FindElements("//" + target.Tag)
	if len(matches) != 1 {
		return nil, newError(KindXML, ReasonTargetMissing, nil, "expected one <%s>, found %d", target.Tag, len(matches))
	}
	el := matches[0]

	sig := siblingSignature(el)
	if sig == nil {
		return nil, newError(KindXML, ReasonSignatureMissing, nil, "no Signature follows <%s>", target.Tag)
	}
	cert, err := certificateFromSignature(sig)
	if err != nil {
		return nil, err
	}

	// Rebuild the enveloped form the validator expects: the signed element
	// in its namespace context with the signature as a child. The enveloped
	// signature transform removes it again before digesting.
	enveloped := detach(el)
	enveloped.AddChild(sig.Copy())
	isolated := etree.NewDocument()
	isolated.SetRoot(enveloped)
	xml, err := isolated.WriteToString()
	if err != nil {
		return nil, newError(KindXML, ReasonMalformed, err, "failed to serialize <%s>", target.Tag)
	}

	validator, err := signedxml.NewValidator(xml)
	if err != nil {
		return nil, newError(KindXML, ReasonMalformed, err, "cannot read signature of <%s>", target.Tag)
	}
	validator.Certificates = append(validator.Certificates, *cert)
	validator.SetReferenceIDAttribute("Id")
	if _, err := validator.ValidateReferences(); err != nil {
		return nil, newError(KindXML, ReasonInvalidSignature, err, "signature does not match <%s>", target.Tag)
	}
	return cert, nil
}

func siblingSignature(el *etree.Element) *etree.Element {
	parent := el.Parent()
	if parent == nil {
		return nil
	}
	children := parent.ChildElements()
	for i, child := range children {
		if child != el {
			continue
		}
		if i+1 < len(children) && children[i+1].Tag == "Signature" {
			return children[i+1]
		}
		return nil
	}
	return nil
}
