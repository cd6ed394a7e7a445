package totals

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft/drafttest"
)

func TestCalculateSingleItem(t *testing.T) {
	tot := Calculate(drafttest.Valid().Items)

	assert.Equal(t, "30.00", tot.Products.StringFixed(2))
	assert.Equal(t, "30.00", tot.ICMSBase.StringFixed(2))
	assert.Equal(t, "5.40", tot.ICMS.StringFixed(2))
	assert.Equal(t, "0.50", tot.PIS.StringFixed(2))
	assert.Equal(t, "2.28", tot.COFINS.StringFixed(2))
	assert.Equal(t, "30.00", tot.Invoice.StringFixed(2))
	assert.True(t, tot.ST.IsZero())
	assert.True(t, tot.IPI.IsZero())
}

func TestCalculateInvoiceValue(t *testing.T) {
	items := drafttest.Valid().Items
	second := items[0]
	second.Number = 2
	second.Product.Quantity = drafttest.D("1")
	second.Product.UnitPrice = drafttest.D("100.00")
	second.Product.Total = drafttest.D("100.00")
	second.Product.Freight = drafttest.P("12.50")
	second.Product.Insurance = drafttest.P("3.00")
	second.Product.Discount = drafttest.P("10.00")
	second.Product.Other = drafttest.P("1.25")
	items = append(items, second)

	tot := Calculate(items)
	assert.Equal(t, "130.00", tot.Products.StringFixed(2))
	// 130 - 10 + 12.50 + 3 + 1.25
	assert.Equal(t, "136.75", tot.Invoice.StringFixed(2))
}

func TestCalculateSkipsNonAssessedVariants(t *testing.T) {
	d := drafttest.SimpleNational()
	tot := Calculate(d.Items)
	assert.True(t, tot.ICMSBase.IsZero())
	assert.True(t, tot.ICMS.IsZero())
	assert.True(t, tot.PIS.IsZero())
	assert.True(t, tot.COFINS.IsZero())
}

func TestCalculateComputesMissingAmounts(t *testing.T) {
	items := drafttest.Valid().Items
	items[0].Taxes.ICMS.Amount = nil
	items[0].Taxes.PIS = draft.Contribution{CST: "01", Base: drafttest.P("30.00"), Rate: drafttest.P("1.65")}

	tot := Calculate(items)
	assert.Equal(t, "5.40", tot.ICMS.StringFixed(2))
	assert.Equal(t, "0.50", tot.PIS.StringFixed(2))
}
