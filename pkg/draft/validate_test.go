package draft_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft/drafttest"
)

func paths(issues []draft.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, i := range issues {
		out = append(out, i.Path)
	}
	return out
}

func TestValidateAcceptsValidDrafts(t *testing.T) {
	assert.Empty(t, draft.Validate(drafttest.Valid()))
	assert.Empty(t, draft.Validate(drafttest.SimpleNational()))
	assert.Empty(t, draft.Validate(drafttest.WithKey()))
}

func TestValidateStructural(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Product.NCM = "4819"
	d.Items[0].Product.CFOP = "51020"
	d.Issuer.Address.State = "S"
	d.Recipient.Address.PostalCode = "1301"
	d.Recipient.Address.MunicipalityCode = "35095"
	d.Recipient.Document = "123"

	issues := draft.Validate(d)
	p := paths(issues)
	assert.Contains(t, p, "items[0].product.ncm")
	assert.Contains(t, p, "items[0].product.cfop")
	assert.Contains(t, p, "issuer.address.state")
	assert.Contains(t, p, "recipient.address.postalCode")
	assert.Contains(t, p, "recipient.address.municipalityCode")
	assert.Contains(t, p, "recipient.document")
	for _, i := range issues {
		assert.Equal(t, draft.CodeData, i.Code)
	}
}

func TestValidateRequiresItems(t *testing.T) {
	d := drafttest.Valid()
	d.Items = nil
	assert.Contains(t, paths(draft.Validate(d)), "items")
}

func TestValidateLineTotalTolerance(t *testing.T) {
	tests := []struct {
		name  string
		total string
		ok    bool
	}{
		{"exact", "30.00", true},
		{"one cent above", "30.01", true},
		{"one cent below", "29.99", true},
		{"three cents below", "29.97", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := drafttest.Valid()
			d.Items[0].Product.Total = drafttest.D(tt.total)
			issues := draft.Validate(d)
			if tt.ok {
				assert.NotContains(t, paths(issues), "items[0].product.total")
			} else {
				assert.Contains(t, paths(issues), "items[0].product.total")
			}
		})
	}
}

func TestValidateItemSequence(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Number = 2
	assert.Contains(t, paths(draft.Validate(d)), "items[0].number")
}

func TestValidateTaxAmountConsistency(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Taxes.ICMS.Amount = drafttest.P("9.99")
	assert.Contains(t, paths(draft.Validate(d)), "items[0].taxes.icms.amount")
}

func TestValidateContributionTaxedRequiresBaseAndRate(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Taxes.PIS = draft.Contribution{CST: "01"}

	issues := draft.Validate(d)
	p := paths(issues)
	assert.Contains(t, p, "items[0].taxes.pis.base")
	assert.Contains(t, p, "items[0].taxes.pis.rate")
}

func TestValidateContributionNonTaxedRejectsBase(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Taxes.COFINS = draft.Contribution{CST: "07", Base: drafttest.P("30.00"), Rate: drafttest.P("7.60")}

	p := paths(draft.Validate(d))
	assert.Contains(t, p, "items[0].taxes.cofins.base")
	assert.Contains(t, p, "items[0].taxes.cofins.rate")
}

func TestValidateContributionQuantityBasedRejected(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Taxes.PIS = draft.Contribution{CST: "03"}

	issues := draft.Validate(d)
	require.Contains(t, paths(issues), "items[0].taxes.pis.cst")
	for _, i := range issues {
		if i.Path == "items[0].taxes.pis.cst" {
			assert.Contains(t, i.Message, "not supported")
		}
	}
}

func TestValidateContributionOtherOperations(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Taxes.PIS = draft.Contribution{CST: "99", Base: drafttest.P("30.00"), Rate: drafttest.P("1.65")}
	assert.Empty(t, draft.Validate(d))

	d.Items[0].Taxes.PIS = draft.Contribution{CST: "49"}
	assert.Contains(t, paths(draft.Validate(d)), "items[0].taxes.pis.base")
}

func TestValidateICMSRegimeConsistency(t *testing.T) {
	d := drafttest.Valid()
	d.Issuer.TaxRegime = draft.RegimeSimpleNational
	assert.Contains(t, paths(draft.Validate(d)), "items[0].taxes.icms.csosn")

	d = drafttest.SimpleNational()
	d.Issuer.TaxRegime = draft.RegimeNormal
	assert.Contains(t, paths(draft.Validate(d)), "items[0].taxes.icms.cst")

	d = drafttest.Valid()
	d.Items[0].Taxes.ICMS.CST = "10"
	assert.Contains(t, paths(draft.Validate(d)), "items[0].taxes.icms.cst")
}

func TestValidateICMSTaxedVariantNeedsBase(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Taxes.ICMS.Base = nil
	d.Items[0].Taxes.ICMS.Amount = nil
	assert.Contains(t, paths(draft.Validate(d)), "items[0].taxes.icms.base")

	d = drafttest.Valid()
	d.Items[0].Taxes.ICMS.CST = "20"
	assert.Contains(t, paths(draft.Validate(d)), "items[0].taxes.icms.baseReduction")

	d = drafttest.SimpleNational()
	d.Items[0].Taxes.ICMS.CSOSN = "101"
	p := paths(draft.Validate(d))
	assert.Contains(t, p, "items[0].taxes.icms.creditRate")
	assert.Contains(t, p, "items[0].taxes.icms.creditAmount")
}

func TestValidateIssuerRules(t *testing.T) {
	d := drafttest.Valid()
	d.Issuer.TaxRegime = 0
	d.Issuer.StateRegistration = ""
	p := paths(draft.Validate(d))
	assert.Contains(t, p, "issuer.taxRegime")
	assert.Contains(t, p, "issuer.stateRegistration")
}

func TestValidateNegativeLineAmountsInFieldOrder(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Product.Freight = drafttest.P("-1.00")
	d.Items[0].Product.Insurance = drafttest.P("-1.00")
	d.Items[0].Product.Discount = drafttest.P("-1.00")
	d.Items[0].Product.Other = drafttest.P("-1.00")

	want := []string{
		"items[0].product.freight",
		"items[0].product.insurance",
		"items[0].product.discount",
		"items[0].product.other",
	}
	for run := 0; run < 20; run++ {
		var got []string
		for _, p := range paths(draft.Validate(d)) {
			for _, w := range want {
				if p == w {
					got = append(got, p)
				}
			}
		}
		require.Equal(t, want, got, "run %d", run)
	}
}

func TestBuildErrorAggregates(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Product.NCM = ""
	d.Items[0].Taxes.PIS = draft.Contribution{CST: "01"}

	err := &draft.BuildError{Issues: draft.Validate(d)}
	assert.GreaterOrEqual(t, len(err.Issues), 3)
	assert.True(t, err.Has(draft.CodeData))
	assert.False(t, err.Has(draft.CodeConfiguration))
	assert.Len(t, err.At("items[0].taxes.pis.base"), 1)
	assert.Contains(t, err.Error(), "items[0].product.ncm")
}

func TestICMSVariantTable(t *testing.T) {
	tests := []struct {
		icms draft.ICMS
		tag  string
	}{
		{draft.ICMS{CST: "00"}, "ICMS00"},
		{draft.ICMS{CST: "20"}, "ICMS20"},
		{draft.ICMS{CST: "41"}, "ICMS40"},
		{draft.ICMS{CST: "50"}, "ICMS40"},
		{draft.ICMS{CST: "60"}, "ICMS60"},
		{draft.ICMS{CSOSN: "101"}, "ICMSSN101"},
		{draft.ICMS{CSOSN: "400"}, "ICMSSN102"},
		{draft.ICMS{CSOSN: "500"}, "ICMSSN500"},
		{draft.ICMS{CSOSN: "900"}, "ICMSSN900"},
	}
	for _, tt := range tests {
		v, ok := tt.icms.Variant()
		require.True(t, ok, tt.icms.Code())
		assert.Equal(t, tt.tag, v.Tag)
	}
}

func TestParseEnvironment(t *testing.T) {
	env, ok := draft.ParseEnvironment("2")
	assert.True(t, ok)
	assert.Equal(t, draft.EnvHomologation, env)
	assert.Equal(t, "1", draft.EnvProduction.Code())
	_, ok = draft.ParseEnvironment("staging")
	assert.False(t, ok)
}
