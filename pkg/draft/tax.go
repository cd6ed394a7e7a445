package draft

import (
	"github.com/shopspring/decimal"
)

// Presence describes how a variant treats an optional value group
type Presence int

const (
	// Omitted values are accepted but never emitted
	Omitted Presence = iota
	// Forbidden values must not be supplied
	Forbidden
	// Optional values are emitted when supplied
	Optional
	// Required values must be supplied
	Required
)

// ICMSVariant is one row of the ICMS situation table
type ICMSVariant struct {
	// Tag is the XML group name (ICMS00, ICMSSN102, ...)
	Tag string
	// CodeField is CST or CSOSN
	CodeField string
	Basis     Presence
	Reduction Presence
	Credit    Presence
}

// Emits reports whether base and amount are emitted for the variant
func (v ICMSVariant) Emits() bool {
	return v.Basis == Required || v.Basis == Optional
}

var icmsByCST = map[string]ICMSVariant{
	"00": {Tag: "ICMS00", CodeField: "CST", Basis: Required},
	"20": {Tag: "ICMS20", CodeField: "CST", Basis: Required, Reduction: Required},
	"40": {Tag: "ICMS40", CodeField: "CST"},
	"41": {Tag: "ICMS40", CodeField: "CST"},
	"50": {Tag: "ICMS40", CodeField: "CST"},
	"51": {Tag: "ICMS51", CodeField: "CST", Basis: Optional, Reduction: Optional},
	"60": {Tag: "ICMS60", CodeField: "CST"},
	"90": {Tag: "ICMS90", CodeField: "CST", Basis: Optional, Reduction: Optional},
}

var icmsByCSOSN = map[string]ICMSVariant{
	"101": {Tag: "ICMSSN101", CodeField: "CSOSN", Credit: Required},
	"102": {Tag: "ICMSSN102", CodeField: "CSOSN"},
	"103": {Tag: "ICMSSN102", CodeField: "CSOSN"},
	"300": {Tag: "ICMSSN102", CodeField: "CSOSN"},
	"400": {Tag: "ICMSSN102", CodeField: "CSOSN"},
	"500": {Tag: "ICMSSN500", CodeField: "CSOSN"},
	"900": {Tag: "ICMSSN900", CodeField: "CSOSN", Basis: Optional, Reduction: Optional, Credit: Optional},
}

// Variant resolves the ICMS group from whichever situation code is set
func (i ICMS) Variant() (ICMSVariant, bool) {
	if i.CSOSN != "" {
		v, ok := icmsByCSOSN[i.CSOSN]
		return v, ok
	}
	v, ok := icmsByCST[i.CST]
	return v, ok
}

// Code returns the situation code in use
func (i ICMS) Code() string {
	if i.CSOSN != "" {
		return i.CSOSN
	}
	return i.CST
}

// Assessed returns the base and amount the item contributes to totals.
// Variants that do not emit a base contribute nothing.
func (i ICMS) Assessed() (base, amount decimal.Decimal, ok bool) {
	v, found := i.Variant()
	if !found || !v.Emits() || i.Base == nil {
		return decimal.Zero, decimal.Zero, false
	}
	return *i.Base, assessedAmount(i.Base, i.Rate, i.Amount), true
}

// ContributionVariant is one row of the PIS/COFINS situation table
type ContributionVariant struct {
	// Group is the suffix of the XML group (Aliq, NT, Outr)
	Group     string
	Basis     Presence
	Supported bool
}

// contributionByCST maps PIS/COFINS CST codes to their group
var contributionByCST = map[string]ContributionVariant{
	"01": {Group: "Aliq", Basis: Required, Supported: true},
	"02": {Group: "Aliq", Basis: Required, Supported: true},
	"03": {Group: "Qtde", Basis: Required},
	"04": {Group: "NT", Basis: Forbidden, Supported: true},
	"05": {Group: "NT", Basis: Forbidden, Supported: true},
	"06": {Group: "NT", Basis: Forbidden, Supported: true},
	"07": {Group: "NT", Basis: Forbidden, Supported: true},
	"08": {Group: "NT", Basis: Forbidden, Supported: true},
	"09": {Group: "NT", Basis: Forbidden, Supported: true},
}

var otherOperationCodes = []string{
	"49", "50", "51", "52", "53", "54", "55", "56",
	"60", "61", "62", "63", "64", "65", "66", "67",
	"70", "71", "72", "73", "74", "75", "98", "99",
}

func init() {
	for _, code := range otherOperationCodes {
		contributionByCST[code] = ContributionVariant{Group: "Outr", Basis: Required, Supported: true}
	}
}

// Variant resolves the PIS/COFINS group for the CST
func (c Contribution) Variant() (ContributionVariant, bool) {
	v, ok := contributionByCST[c.CST]
	return v, ok
}

// Assessed returns the contribution amount emitted for the item
func (c Contribution) Assessed() decimal.Decimal {
	v, ok := c.Variant()
	if !ok || v.Basis != Required || c.Base == nil {
		return decimal.Zero
	}
	return assessedAmount(c.Base, c.Rate, c.Amount)
}

func assessedAmount(base, rate, amount *decimal.Decimal) decimal.Decimal {
	if amount != nil {
		return *amount
	}
	if base == nil || rate == nil {
		return decimal.Zero
	}
	return base.Mul(*rate).Div(decimal.NewFromInt(100)).Round(2)
}
