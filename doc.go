// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package nfe issues Brazilian electronic invoices (NF-e, modelo 55) through
the SEFAZ authorization web services.

# Overview

An emission turns a structured draft into an authorized nfeProc document:
the draft is validated, its totals are computed, the XML is rendered in the
layout 4.00 element order, signed with the company's A1 certificate and
submitted as a batch over SOAP 1.2 with mutual TLS. Asynchronous batches are
polled with bounded exponential backoff until SEFAZ decides. Every step is
recorded on an append-only Emission Record.

# Package Structure

	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft        - Draft model and validator
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/money        - Decimal rounding helpers
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/totals       - ICMSTot calculation
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/accesskey    - Access key composition and check digit
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/nfexml       - NF-e, batch, event and nfeProc XML
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/security     - PKCS#12 loading and XML-DSig
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/message      - SOAP 1.2 envelopes and faults
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/transport    - Mutual TLS HTTPS transport
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/compression  - Gzip batch compression
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/reliability  - Polling backoff policy
	github.com/tagocm/ERP-DESDOBRA-sub001/pkg/sefaz        - Web service client, endpoints and codes

	github.com/tagocm/ERP-DESDOBRA-sub001/internal/emission   - Emission orchestrator
	github.com/tagocm/ERP-DESDOBRA-sub001/internal/keystore   - Certificate loader and cache
	github.com/tagocm/ERP-DESDOBRA-sub001/internal/storage    - Emission Record stores
	github.com/tagocm/ERP-DESDOBRA-sub001/internal/reconciler - Re-polling of pending batches
	github.com/tagocm/ERP-DESDOBRA-sub001/internal/server     - HTTP API

# Quick Start

To build and sign an invoice offline:

	doc, err := nfexml.Build(d, nfexml.WithMode(nfexml.ModeTransmissible))
	if err != nil {
	    // *draft.BuildError lists every issue
	}
	signed, err := security.Sign(doc.XML, security.Credentials{
	    Bundle:   pfx,
	    Password: password,
	}, security.InvoiceTarget)

To run a full emission:

	orch, _ := emission.New(emission.Config{
	    Client:       sefaz.NewClient(sefaz.Config{HTTPS: transport.DefaultHTTPSConfig()}),
	    Certificates: loader,
	    Store:        memory.NewStore(),
	})
	res, err := orch.Emit(ctx, "company-id", d)

Rejections and denials by SEFAZ come back as a Result with Success false;
errors mean no verdict was reached.

# Status Codes

  - 100, 150: authorized
  - 110, 301, 302, 303: denied
  - 103: batch received, poll with the receipt
  - 104: batch processed, the verdict is the cStat inside protNFe
  - 105: batch still processing
  - 107: service in operation

# References

  - Portal Nacional da NF-e: https://www.nfe.fazenda.gov.br/portal/
  - Manual de Orientacao do Contribuinte 7.0
  - XML Signature Syntax and Processing: https://www.w3.org/TR/xmldsig-core1/
*/
package nfe
