package nfexml

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/accesskey"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft/drafttest"
)

func parse(t *testing.T, xml []byte) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(xml))
	return doc.Root()
}

func text(t *testing.T, root *etree.Element, path string) string {
	t.Helper()
	el := root.FindElement(path)
	require.NotNil(t, el, "missing %s", path)
	return el.Text()
}

func TestBuildDraftWithoutKeyUsesPlaceholder(t *testing.T) {
	doc, err := Build(drafttest.Valid())
	require.NoError(t, err)

	root := parse(t, doc.XML)
	assert.Equal(t, "NFe", root.Tag)
	assert.Equal(t, Namespace, root.SelectAttrValue("xmlns", ""))

	inf := root.SelectElement("infNFe")
	require.NotNil(t, inf)
	assert.Equal(t, "NFe"+accesskey.Placeholder, inf.SelectAttrValue("Id", ""))
	assert.Equal(t, "4.00", inf.SelectAttrValue("versao", ""))
	assert.Equal(t, "0", text(t, root, "./infNFe/ide/cDV"))
	assert.Equal(t, "35", text(t, root, "./infNFe/ide/cUF"))
	assert.Equal(t, "NFe"+accesskey.Placeholder, doc.ID)
	assert.Empty(t, doc.AccessKey)
}

func TestBuildWithKey(t *testing.T) {
	doc, err := Build(drafttest.WithKey(), WithMode(ModeTransmissible))
	require.NoError(t, err)

	root := parse(t, doc.XML)
	assert.Equal(t, "NFe"+drafttest.AccessKey, root.SelectElement("infNFe").SelectAttrValue("Id", ""))
	assert.Equal(t, "6", text(t, root, "./infNFe/ide/cDV"))
	assert.Equal(t, drafttest.AccessKey[35:43], text(t, root, "./infNFe/ide/cNF"))
	assert.Equal(t, drafttest.AccessKey, doc.AccessKey)
}

func TestBuildTransmissibleRequiresKey(t *testing.T) {
	_, err := Build(drafttest.Valid(), WithMode(ModeTransmissible))
	require.Error(t, err)

	var buildErr *draft.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.True(t, buildErr.Has(draft.CodeConfiguration))
	assert.Len(t, buildErr.At("accessKey"), 1)
}

func TestBuildRejectsMalformedOffset(t *testing.T) {
	_, err := Build(drafttest.Valid(), WithTimezoneOffset("Z"))
	var buildErr *draft.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Len(t, buildErr.At("options.timezoneOffset"), 1)
	assert.Equal(t, draft.CodeConfiguration, buildErr.Issues[0].Code)
}

func TestBuildReportsValidationIssues(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Product.Total = drafttest.D("29.97")
	_, err := Build(d)

	var buildErr *draft.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Len(t, buildErr.At("items[0].product.total"), 1)
}

func TestBuildTimestampRendering(t *testing.T) {
	d := drafttest.Valid()
	d.Identification.IssuedAt = time.Date(2023, 10, 27, 10, 0, 0, 0, time.UTC)
	doc, err := Build(d, WithTimezoneOffset("-03:00"))
	require.NoError(t, err)

	dhEmi := text(t, parse(t, doc.XML), "./infNFe/ide/dhEmi")
	assert.Equal(t, "2023-10-27T10:00:00-03:00", dhEmi)
	assert.NotContains(t, dhEmi, "Z")
}

func TestFormatTimestampIgnoresLocationAndFractions(t *testing.T) {
	loc := time.FixedZone("X", 5*3600)
	ts := time.Date(2024, 1, 2, 3, 4, 5, 999, loc)
	assert.Equal(t, "2024-01-02T03:04:05-02:00", FormatTimestamp(ts, "-02:00"))
}

func TestBuildSectionOrder(t *testing.T) {
	d := drafttest.Valid()
	d.Billing = &draft.Billing{
		Number: "4411", Original: drafttest.D("30.00"), Net: drafttest.D("30.00"),
		Installments: []draft.Installment{{Number: "001", DueDate: time.Date(2023, 11, 27, 0, 0, 0, 0, time.UTC), Amount: drafttest.D("30.00")}},
	}
	doc, err := Build(d)
	require.NoError(t, err)

	inf := parse(t, doc.XML).SelectElement("infNFe")
	var tags []string
	for _, child := range inf.ChildElements() {
		tags = append(tags, child.Tag)
	}
	assert.Equal(t, []string{"ide", "emit", "dest", "det", "total", "transp", "cobr", "pag", "infAdic"}, tags)
	assert.Equal(t, "2023-11-27", text(t, inf, "./cobr/dup/dVenc"))
}

func TestBuildAmountsAndItems(t *testing.T) {
	doc, err := Build(drafttest.Valid())
	require.NoError(t, err)
	root := parse(t, doc.XML)

	assert.Equal(t, "2.0000", text(t, root, "./infNFe/det/prod/qCom"))
	assert.Equal(t, "15.0000", text(t, root, "./infNFe/det/prod/vUnCom"))
	assert.Equal(t, "30.00", text(t, root, "./infNFe/det/prod/vProd"))
	assert.Equal(t, "SEM GTIN", text(t, root, "./infNFe/det/prod/cEAN"))
	assert.Equal(t, "1", root.FindElement("./infNFe/det").SelectAttrValue("nItem", ""))

	assert.Equal(t, "00", text(t, root, "./infNFe/det/imposto/ICMS/ICMS00/CST"))
	assert.Equal(t, "18.0000", text(t, root, "./infNFe/det/imposto/ICMS/ICMS00/pICMS"))
	assert.Equal(t, "5.40", text(t, root, "./infNFe/det/imposto/ICMS/ICMS00/vICMS"))
	assert.Equal(t, "0.50", text(t, root, "./infNFe/det/imposto/PIS/PISAliq/vPIS"))
	assert.Equal(t, "2.28", text(t, root, "./infNFe/det/imposto/COFINS/COFINSAliq/vCOFINS"))

	assert.Equal(t, "30.00", text(t, root, "./infNFe/total/ICMSTot/vNF"))
	assert.Equal(t, "5.40", text(t, root, "./infNFe/total/ICMSTot/vICMS"))
	assert.Equal(t, "0.00", text(t, root, "./infNFe/total/ICMSTot/vST"))
	assert.Equal(t, "01", text(t, root, "./infNFe/pag/detPag/tPag"))
	assert.Equal(t, "9", text(t, root, "./infNFe/transp/modFrete"))
}

func TestBuildSimpleNationalVariants(t *testing.T) {
	doc, err := Build(drafttest.SimpleNational())
	require.NoError(t, err)
	root := parse(t, doc.XML)

	assert.Equal(t, "102", text(t, root, "./infNFe/det/imposto/ICMS/ICMSSN102/CSOSN"))
	assert.Equal(t, "07", text(t, root, "./infNFe/det/imposto/PIS/PISNT/CST"))
	assert.Nil(t, root.FindElement("./infNFe/det/imposto/PIS/PISNT/vBC"))
	assert.Equal(t, "1", text(t, root, "./infNFe/emit/CRT"))
	assert.Equal(t, "0.00", text(t, root, "./infNFe/total/ICMSTot/vBC"))
}

func TestBuildPartiesAndHomologationName(t *testing.T) {
	d := drafttest.Valid()
	d.Recipient.Document = "12345678909"
	d.Recipient.Name = "JOAO DA SILVA"
	doc, err := Build(d)
	require.NoError(t, err)
	root := parse(t, doc.XML)

	assert.Equal(t, "12345678000195", text(t, root, "./infNFe/emit/CNPJ"))
	assert.Nil(t, root.FindElement("./infNFe/emit/CPF"))
	assert.Equal(t, "12345678909", text(t, root, "./infNFe/dest/CPF"))
	assert.Nil(t, root.FindElement("./infNFe/dest/CNPJ"))
	assert.Equal(t, HomologationRecipientName, text(t, root, "./infNFe/dest/xNome"))

	d.Identification.Environment = draft.EnvProduction
	doc, err = Build(d)
	require.NoError(t, err)
	assert.Equal(t, "JOAO DA SILVA", text(t, parse(t, doc.XML), "./infNFe/dest/xNome"))
}

func TestBuildPaymentMustMatchInvoice(t *testing.T) {
	d := drafttest.Valid()
	d.Payment.Details[0].Amount = drafttest.D("50.00")
	_, err := Build(d)
	var buildErr *draft.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Len(t, buildErr.At("payment.details"), 1)

	d.Payment.Change = drafttest.P("20.00")
	_, err = Build(d)
	assert.NoError(t, err)
}

func TestBuildReportsPaymentWithValidationIssues(t *testing.T) {
	d := drafttest.Valid()
	d.Items[0].Product.NCM = "4819"
	d.Payment.Details[0].Amount = drafttest.D("50.00")
	_, err := Build(d, WithMode(ModeTransmissible))

	var buildErr *draft.BuildError
	require.True(t, errors.As(err, &buildErr))
	assert.Len(t, buildErr.At("items[0].product.ncm"), 1)
	assert.Len(t, buildErr.At("payment.details"), 1)
	assert.True(t, buildErr.Has(draft.CodeConfiguration), "missing access key reported alongside")
}

func TestBuildNormalizesText(t *testing.T) {
	d := drafttest.Valid()
	d.Remarks = "  Pedido\t4411\n entrega   rápida "
	doc, err := Build(d)
	require.NoError(t, err)
	assert.Equal(t, "Pedido 4411 entrega rápida", text(t, parse(t, doc.XML), "./infNFe/infAdic/infCpl"))
}

func TestClean(t *testing.T) {
	// decomposed "é" becomes the composed code point
	assert.Equal(t, "caf\u00e9", Clean("cafe\u0301"))
	assert.Equal(t, "a b", Clean("a\x00\x07b"))
	assert.Equal(t, "", Clean(" \n\t "))
}

func TestBuildHasNoSignature(t *testing.T) {
	doc, err := Build(drafttest.Valid())
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(doc.XML), "Signature"))
}
