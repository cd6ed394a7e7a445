// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package security implements the XML digital signature required by SEFAZ for
NF-e documents and events, and the handling of A1 (PKCS#12) certificates.

# Signing

	signed, err := security.Sign(xml, security.Credentials{
	    Bundle:   pfx,
	    Password: password,
	}, security.InvoiceTarget)

The signature is enveloped and placed as the next sibling of the signed
element (infNFe or infEvento):

  - Inclusive XML Canonicalization 1.0
  - RSA-SHA1 signature, SHA-1 digest
  - Transforms: enveloped-signature, then C14N 1.0
  - Reference URI "#" + Id
  - X509Certificate of the signer in KeyInfo

Documents that already carry a Signature, documents whose Id is the all-zero
draft placeholder and documents with a missing or mis-prefixed Id are
rejected before any cryptographic work.

# Errors

Every failure is a [*SigningError] with a kind (CERTIFICATE, XML, DATA) and a
reason. Match them with errors.Is:

	if errors.Is(err, security.ErrWrongPassword) {
	    // ask for the certificate password again
	}

# Verification

[Verify] recomputes the reference digest over a fresh canonicalization and
checks the signature value with the embedded certificate.

# Certificate chains

[ChainValidator] checks a signing certificate against a configured set of
ICP-Brasil roots.
*/
package security
