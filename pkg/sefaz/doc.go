// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package sefaz is the client for the NF-e 4.00 web services of the state tax
authorities (SEFAZ).

# Services

  - NFeAutorizacao4: batch submission (enviNFe), plain or gzipped
  - NFeRetAutorizacao4: batch result by receipt (consReciNFe)
  - NFeConsultaProtocolo4: situation of an access key (consSitNFe)
  - NFeStatusServico4: service availability (consStatServ)
  - NFeRecepcaoEvento4: events such as cancellation (envEvento)

# Endpoints

[Directory] holds the URLs per state and environment for SP, MG, PR, RS and
the states served by SVRS. Configuration may override any entry. A missing
entry fails with an ENDPOINT [ProtocolError].

# Errors

	result, _, err := client.SubmitBatch(ctx, target, enviNFe, cert)
	switch sefaz.KindOf(err) {
	case sefaz.KindCertificate, sefaz.KindTransport:
	    // network or TLS problem, safe to retry later
	case sefaz.KindRemote:
	    // SOAP fault, see *sefaz.FaultError
	}

Rejections by the authority are not errors: they come back as results with
their cStat and xMotivo. [ClassifyProtocol] maps a protocol cStat to
authorized, denied or rejected.
*/
package sefaz
