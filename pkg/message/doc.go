// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package message builds and parses the SOAP 1.2 envelopes used by the SEFAZ
NF-e web services.

# Requests

	env, err := message.NewEnvelope(
	    "http://www.portalfiscal.inf.br/nfe/wsdl/NFeAutorizacao4",
	    enviNFe,
	).Build()

The payload is placed inside nfeDadosMsg without re-serialization. With
[WithCompression] it is gzipped, base64 encoded and sent in nfeDadosMsgZip.

# Responses

[Parse] strips every namespace prefix before looking for the Body, so
services that answer with soap:, env: or unprefixed envelopes are read the
same way. A Fault element is reported as a [*Fault] carrying the SOAP 1.2
Reason/Text or the SOAP 1.1 faultstring.
*/
package message
