// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package nfexml renders NF-e 4.00 documents from validated drafts.

# Building

	doc, err := nfexml.Build(d,
	    nfexml.WithMode(nfexml.ModeTransmissible),
	    nfexml.WithTimezoneOffset("-03:00"),
	)

Build runs [draft.Validate] first and returns a [draft.BuildError] carrying
every issue when the draft cannot be rendered. In draft mode a missing access
key is replaced by 44 zeros and cDV is 0; in transmissible mode the key is
mandatory.

Sections are written in schema order: ide, emit, dest, det, total, transp,
cobr, pag, infAdic. Monetary values use two decimal places; quantities, unit
prices and rates use four. Timestamps are the wall clock of the given time
followed by the configured offset, never "Z".

# Events and envelopes

[BuildCancellation] renders the 110111 evento. [WrapBatch] and
[WrapEventBatch] embed signed documents in enviNFe and envEvento without
re-serializing them, and [Combine] produces the nfeProc distribution file.
*/
package nfexml
