// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package transport implements the HTTPS transport used to reach SEFAZ.

Every SEFAZ web service requires mutual TLS: the client presents the
company's A1 certificate and verifies the server against the ICP-Brasil
roots.

# TLS Configuration

	config := transport.DefaultHTTPSConfig()
	config.RootCAs = icpBrasilPool

TLS 1.2 and 1.3 are accepted. SEFAZ endpoints still negotiate RSA suites, so
the recommended list keeps them alongside ECDHE.

# Client Usage

	client := transport.NewHTTPSClient(config)
	resp, err := client.Send(ctx, endpoint, companyCert, envelope, contentType)

The certificate is chosen per call. Clients are cached per certificate so
connections to the same endpoint are reused.

Non-2xx responses are returned with their body, which often carries a SOAP
fault. Use [IsCertificateError] to tell handshake verification failures from
other network errors.
*/
package transport
