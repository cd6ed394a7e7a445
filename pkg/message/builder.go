package message

import (
	"bytes"
	"fmt"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/compression"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/nfexml"
)

// EnvelopeBuilder assembles a SOAP 1.2 request around a service payload
type EnvelopeBuilder struct {
	namespace  string
	payload    []byte
	compress   bool
	compressor *compression.Compressor
}

// Option represents a functional option for EnvelopeBuilder
type Option func(*EnvelopeBuilder)

// WithCompression sends the payload as gzip+base64 inside nfeDadosMsgZip
func WithCompression(c *compression.Compressor) Option {
	return func(b *EnvelopeBuilder) {
		b.compress = true
		b.compressor = c
	}
}

// NewEnvelope creates a builder for the given service namespace and payload
func NewEnvelope(serviceNamespace string, payload []byte, opts ...Option) *EnvelopeBuilder {
	b := &EnvelopeBuilder{namespace: serviceNamespace, payload: payload}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build renders the envelope. The payload is written verbatim so that
// signatures inside it remain valid.
func (b *EnvelopeBuilder) Build() ([]byte, error) {
	if b.namespace == "" {
		return nil, fmt.Errorf("service namespace is required")
	}
	if len(bytes.TrimSpace(b.payload)) == 0 {
		return nil, fmt.Errorf("payload is required")
	}
	payload := nfexml.StripDeclaration(b.payload)

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	fmt.Fprintf(&buf, `<soap12:Envelope xmlns:xsi="%s" xmlns:xsd="%s" xmlns:soap12="%s">`, NsXSI, NsXSD, NsSOAP12)
	buf.WriteString(`<soap12:Body>`)
	if b.compress {
		c := b.compressor
		if c == nil {
			c = compression.NewCompressor()
		}
		encoded, err := c.EncodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to compress payload: %w", err)
		}
		fmt.Fprintf(&buf, `<%s xmlns="%s">%s</%s>`, ElementDadosMsgZip, b.namespace, encoded, ElementDadosMsgZip)
	} else {
		fmt.Fprintf(&buf, `<%s xmlns="%s">`, ElementDadosMsg, b.namespace)
		buf.Write(payload)
		fmt.Fprintf(&buf, `</%s>`, ElementDadosMsg)
	}
	buf.WriteString(`</soap12:Body></soap12:Envelope>`)
	return buf.Bytes(), nil
}
