package nfexml

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/money"
)

const noGTIN = "SEM GTIN"

func (b *builder) det(parent *etree.Element, item draft.Item) {
	det := parent.CreateElement("det")
	det.CreateAttr("nItem", fmt.Sprintf("%d", item.Number))
	prod(det, item.Product)

	imposto := det.CreateElement("imposto")
	addOptionalAmount(imposto, "vTotTrib", item.Taxes.TotalTaxBurden)
	icms(imposto, item.Taxes.ICMS)
	contribution(imposto, "PIS", item.Taxes.PIS)
	contribution(imposto, "COFINS", item.Taxes.COFINS)

	addOptional(det, "infAdProd", item.AdditionalInfo)
}

func prod(parent *etree.Element, p draft.Product) {
	el := parent.CreateElement("prod")
	addText(el, "cProd", p.Code)
	add(el, "cEAN", or(p.GTIN, noGTIN))
	addText(el, "xProd", p.Description)
	add(el, "NCM", p.NCM)
	if p.CEST != "" {
		add(el, "CEST", p.CEST)
	}
	add(el, "CFOP", p.CFOP)
	addText(el, "uCom", p.Unit)
	add(el, "qCom", money.Quantity(p.Quantity))
	add(el, "vUnCom", money.Quantity(p.UnitPrice))
	addAmount(el, "vProd", p.Total)

	add(el, "cEANTrib", or(p.TaxableGTIN, or(p.GTIN, noGTIN)))
	addText(el, "uTrib", or(p.TaxableUnit, p.Unit))
	taxableQty, taxablePrice := p.Quantity, p.UnitPrice
	if p.TaxableQuantity != nil {
		taxableQty = *p.TaxableQuantity
	}
	if p.TaxableUnitPrice != nil {
		taxablePrice = *p.TaxableUnitPrice
	}
	add(el, "qTrib", money.Quantity(taxableQty))
	add(el, "vUnTrib", money.Quantity(taxablePrice))

	addOptionalAmount(el, "vFrete", p.Freight)
	addOptionalAmount(el, "vSeg", p.Insurance)
	addOptionalAmount(el, "vDesc", p.Discount)
	addOptionalAmount(el, "vOutro", p.Other)
	add(el, "indTot", "1")
	addOptional(el, "xPed", p.OrderNumber)
	addOptional(el, "nItemPed", p.OrderItem)
}

func icms(parent *etree.Element, t draft.ICMS) {
	v, _ := t.Variant()
	group := parent.CreateElement("ICMS").CreateElement(v.Tag)
	add(group, "orig", t.Origin)
	add(group, v.CodeField, t.Code())

	baseMode := or(t.BaseMode, "3")
	switch v.Tag {
	case "ICMS00":
		add(group, "modBC", baseMode)
		addAmount(group, "vBC", money.OrZero(t.Base))
		addRate(group, "pICMS", t.Rate)
		_, amount, _ := t.Assessed()
		addAmount(group, "vICMS", amount)
	case "ICMS20":
		add(group, "modBC", baseMode)
		addRate(group, "pRedBC", t.BaseReduction)
		addAmount(group, "vBC", money.OrZero(t.Base))
		addRate(group, "pICMS", t.Rate)
		_, amount, _ := t.Assessed()
		addAmount(group, "vICMS", amount)
	case "ICMS51":
		if t.Base == nil {
			return
		}
		add(group, "modBC", baseMode)
		if t.BaseReduction != nil {
			addRate(group, "pRedBC", t.BaseReduction)
		}
		addAmount(group, "vBC", *t.Base)
		addRate(group, "pICMS", t.Rate)
		_, amount, _ := t.Assessed()
		addAmount(group, "vICMS", amount)
	case "ICMS90", "ICMSSN900":
		if t.Base != nil {
			add(group, "modBC", baseMode)
			addAmount(group, "vBC", *t.Base)
			if t.BaseReduction != nil {
				addRate(group, "pRedBC", t.BaseReduction)
			}
			addRate(group, "pICMS", t.Rate)
			_, amount, _ := t.Assessed()
			addAmount(group, "vICMS", amount)
		}
		if v.Tag == "ICMSSN900" && t.CreditRate != nil && t.CreditAmount != nil {
			addRate(group, "pCredSN", t.CreditRate)
			addAmount(group, "vCredICMSSN", *t.CreditAmount)
		}
	case "ICMSSN101":
		addRate(group, "pCredSN", t.CreditRate)
		addAmount(group, "vCredICMSSN", money.OrZero(t.CreditAmount))
	}
}

func contribution(parent *etree.Element, tax string, c draft.Contribution) {
	v, _ := c.Variant()
	group := parent.CreateElement(tax).CreateElement(tax + v.Group)
	add(group, "CST", c.CST)
	if v.Basis != draft.Required {
		return
	}
	addAmount(group, "vBC", money.OrZero(c.Base))
	addRate(group, "p"+tax, c.Rate)
	addAmount(group, "v"+tax, c.Assessed())
}
