package nfexml

import (
	"bytes"
	"fmt"
	"regexp"
)

var xmlDeclaration = regexp.MustCompile(`^\s*<\?xml[^>]*\?>\s*`)

// StripDeclaration removes a leading <?xml ...?> declaration
func StripDeclaration(doc []byte) []byte {
	return xmlDeclaration.ReplaceAll(doc, nil)
}

// WrapBatch renders enviNFe around signed NFe documents. The documents are
// embedded byte for byte so their signatures stay intact.
func WrapBatch(batchID string, synchronous bool, signed ...[]byte) ([]byte, error) {
	if len(signed) == 0 || len(signed) > 50 {
		return nil, fmt.Errorf("batch must carry between 1 and 50 documents, got %d", len(signed))
	}
	if batchID == "" || len(batchID) > 15 {
		return nil, fmt.Errorf("invalid batch id %q", batchID)
	}
	indSinc := "0"
	if synchronous {
		indSinc = "1"
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<enviNFe xmlns="%s" versao="%s"><idLote>%s</idLote><indSinc>%s</indSinc>`, Namespace, Version, batchID, indSinc)
	for _, doc := range signed {
		buf.Write(StripDeclaration(doc))
	}
	buf.WriteString("</enviNFe>")
	return buf.Bytes(), nil
}

// WrapEventBatch renders envEvento around signed evento documents
func WrapEventBatch(batchID string, signed ...[]byte) ([]byte, error) {
	if len(signed) == 0 || len(signed) > 20 {
		return nil, fmt.Errorf("event batch must carry between 1 and 20 events, got %d", len(signed))
	}
	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<envEvento xmlns="%s" versao="%s"><idLote>%s</idLote>`, Namespace, EventVersion, batchID)
	for _, doc := range signed {
		buf.Write(StripDeclaration(doc))
	}
	buf.WriteString("</envEvento>")
	return buf.Bytes(), nil
}

// Combine renders nfeProc, the distributable pairing of a signed NFe and its protNFe
func Combine(signedNFe, protNFe []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintf(&buf, `<nfeProc xmlns="%s" versao="%s">`, Namespace, Version)
	buf.Write(StripDeclaration(signedNFe))
	buf.Write(StripDeclaration(protNFe))
	buf.WriteString("</nfeProc>")
	return buf.Bytes()
}

// CombineEvent renders procEventoNFe for a signed evento and its retEvento
func CombineEvent(signedEvent, retEvento []byte) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	fmt.Fprintf(&buf, `<procEventoNFe xmlns="%s" versao="%s">`, Namespace, EventVersion)
	buf.Write(StripDeclaration(signedEvent))
	buf.Write(StripDeclaration(retEvento))
	buf.WriteString("</procEventoNFe>")
	return buf.Bytes()
}
