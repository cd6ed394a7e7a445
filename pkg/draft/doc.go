// Copyright (c) 2024 SIROS Foundation
// SPDX-License-Identifier: BSD-2-Clause

/*
Package draft models an NF-e invoice draft and validates it before any XML
is produced.

# Validation

[Validate] runs three independent passes and aggregates every finding:

  - structural: presence, identifier lengths and code formats, driven by
    struct tags and reported with JSON paths such as items[0].product.ncm
  - arithmetic: item numbering, line totals against quantity × unit price
    within 0.01, tax amounts against base × rate
  - tax rules: ICMS situation codes against the issuer regime, and the
    PIS/COFINS situation table

Each finding is an [Issue]; builders wrap them in a [BuildError].

# Tax variants

The ICMS and PIS/COFINS situation tables live in this package and are the
single source both for validation and for choosing the XML group emitted
for an item:

	v, ok := item.Taxes.ICMS.Variant() // v.Tag == "ICMS00"
*/
package draft
