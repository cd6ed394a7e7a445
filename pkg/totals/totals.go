// Package totals derives the ICMSTot group from an invoice's line items.
package totals

import (
	"github.com/shopspring/decimal"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/money"
)

// Totals is an immutable snapshot computed per build
type Totals struct {
	ICMSBase       decimal.Decimal
	ICMS           decimal.Decimal
	ICMSExempt     decimal.Decimal
	STBase         decimal.Decimal
	ST             decimal.Decimal
	Products       decimal.Decimal
	Freight        decimal.Decimal
	Insurance      decimal.Decimal
	Discount       decimal.Decimal
	ImportTax      decimal.Decimal
	IPI            decimal.Decimal
	IPIReturned    decimal.Decimal
	PIS            decimal.Decimal
	COFINS         decimal.Decimal
	Other          decimal.Decimal
	Invoice        decimal.Decimal
	TotalTaxBurden decimal.Decimal
}

// Calculate sums the item values that the XML emits for each item.
//
//	Invoice = Products - Discount + Freight + Insurance + Other + ST + IPI
//
// ST and IPI are included for completeness; no supported item variant
// carries them, so both are zero.
func Calculate(items []draft.Item) Totals {
	t := Totals{
		ICMSBase: money.Zero, ICMS: money.Zero, ICMSExempt: money.Zero,
		STBase: money.Zero, ST: money.Zero, Products: money.Zero,
		Freight: money.Zero, Insurance: money.Zero, Discount: money.Zero,
		ImportTax: money.Zero, IPI: money.Zero, IPIReturned: money.Zero,
		PIS: money.Zero, COFINS: money.Zero, Other: money.Zero,
		TotalTaxBurden: money.Zero,
	}
	for _, item := range items {
		p := item.Product
		t.Products = t.Products.Add(p.Total)
		t.Freight = t.Freight.Add(money.OrZero(p.Freight))
		t.Insurance = t.Insurance.Add(money.OrZero(p.Insurance))
		t.Discount = t.Discount.Add(money.OrZero(p.Discount))
		t.Other = t.Other.Add(money.OrZero(p.Other))

		if base, amount, ok := item.Taxes.ICMS.Assessed(); ok {
			t.ICMSBase = t.ICMSBase.Add(base)
			t.ICMS = t.ICMS.Add(amount)
		}
		t.PIS = t.PIS.Add(item.Taxes.PIS.Assessed())
		t.COFINS = t.COFINS.Add(item.Taxes.COFINS.Assessed())
		t.TotalTaxBurden = t.TotalTaxBurden.Add(money.OrZero(item.Taxes.TotalTaxBurden))
	}
	t.Invoice = t.Products.
		Sub(t.Discount).
		Add(t.Freight).
		Add(t.Insurance).
		Add(t.Other).
		Add(t.ST).
		Add(t.IPI).
		Round(2)
	return t
}
