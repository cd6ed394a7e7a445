package nfexml

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/accesskey"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/money"
	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/totals"
)

const (
	// Namespace is the NF-e portal namespace
	Namespace = "http://www.portalfiscal.inf.br/nfe"
	// Version is the layout version of infNFe
	Version = "4.00"
	// EventVersion is the layout version of evento
	EventVersion = "1.00"
	// IDPrefix prefixes the infNFe Id attribute
	IDPrefix = "NFe"
	// HomologationRecipientName replaces dest/xNome outside production
	HomologationRecipientName = "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL"
)

// Mode selects how strictly the builder treats the access key
type Mode int

const (
	// ModeDraft allows a missing access key and uses the all-zero placeholder
	ModeDraft Mode = iota
	// ModeTransmissible requires a 44-digit access key
	ModeTransmissible
)

func (m Mode) String() string {
	if m == ModeTransmissible {
		return "transmissible"
	}
	return "draft"
}

// Options controls a build
type Options struct {
	Mode           Mode
	TimezoneOffset string
	// AppVersion is written to verProc
	AppVersion string
}

// Option represents a functional option for Build
type Option func(*Options)

// WithMode sets the build mode
func WithMode(m Mode) Option {
	return func(o *Options) { o.Mode = m }
}

// WithTimezoneOffset sets the ±HH:MM suffix used for timestamps
func WithTimezoneOffset(offset string) Option {
	return func(o *Options) { o.TimezoneOffset = offset }
}

// WithAppVersion sets verProc
func WithAppVersion(v string) Option {
	return func(o *Options) { o.AppVersion = v }
}

// Document is the builder output
type Document struct {
	XML []byte
	// ID is the infNFe Id attribute value
	ID string
	// AccessKey is empty for draft documents built without a key
	AccessKey string
	Mode      Mode
	Totals    totals.Totals
}

// Build validates the draft and renders the unsigned NFe document
func Build(d *draft.Draft, opts ...Option) (*Document, error) {
	o := Options{TimezoneOffset: DefaultTimezoneOffset, AppVersion: "desdobra-1.0"}
	for _, opt := range opts {
		opt(&o)
	}

	issues := draft.Validate(d)
	if d == nil {
		return nil, &draft.BuildError{Issues: issues}
	}
	issues = append(issues, checkOptions(d, o)...)
	t := totals.Calculate(d.Items)
	issues = append(issues, checkPayment(d, t)...)
	if len(issues) > 0 {
		return nil, &draft.BuildError{Issues: issues}
	}

	key := d.AccessKey
	if key == "" {
		key = accesskey.Placeholder
	}
	b := &builder{d: d, opts: o, key: key, totals: t}
	doc := b.document()

	out, err := doc.WriteToBytes()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize NFe: %w", err)
	}
	return &Document{
		XML:       out,
		ID:        IDPrefix + key,
		AccessKey: d.AccessKey,
		Mode:      o.Mode,
		Totals:    t,
	}, nil
}

func checkOptions(d *draft.Draft, o Options) []draft.Issue {
	var issues []draft.Issue
	if o.Mode == ModeTransmissible && d.AccessKey == "" {
		issues = append(issues, draft.Issue{
			Path:    "accessKey",
			Message: "is required in transmissible mode",
			Code:    draft.CodeConfiguration,
		})
	}
	if !ValidOffset(o.TimezoneOffset) {
		issues = append(issues, draft.Issue{
			Path:    "options.timezoneOffset",
			Message: fmt.Sprintf("%q is not a ±HH:MM offset", o.TimezoneOffset),
			Code:    draft.CodeConfiguration,
		})
	}
	if d.AccessKey == "" {
		if _, ok := accesskey.StateCodeFor(d.Issuer.Address.State); !ok && len(d.Issuer.Address.State) == 2 {
			issues = append(issues, draft.Issue{
				Path:    "issuer.address.state",
				Message: fmt.Sprintf("unknown state %q", d.Issuer.Address.State),
				Code:    draft.CodeData,
			})
		}
	}
	return issues
}

func checkPayment(d *draft.Draft, t totals.Totals) []draft.Issue {
	paid := money.Zero
	noPayment := false
	for _, det := range d.Payment.Details {
		paid = paid.Add(det.Amount)
		if det.Method == draft.MethodNoPayment {
			noPayment = true
		}
	}
	if noPayment {
		if !paid.IsZero() {
			return []draft.Issue{{
				Path:    "payment.details",
				Message: "amounts must be zero when the method is 90 (no payment)",
				Code:    draft.CodeData,
			}}
		}
		return nil
	}
	net := paid.Sub(money.OrZero(d.Payment.Change))
	if !money.WithinTolerance(net, t.Invoice) {
		return []draft.Issue{{
			Path:    "payment.details",
			Message: fmt.Sprintf("payments net of change %s do not match invoice value %s", money.Amount(net), money.Amount(t.Invoice)),
			Code:    draft.CodeData,
		}}
	}
	return nil
}

type builder struct {
	d      *draft.Draft
	opts   Options
	key    string
	totals totals.Totals
}

func (b *builder) document() *etree.Document {
	doc := etree.NewDocument()
	nfe := doc.CreateElement("NFe")
	nfe.CreateAttr("xmlns", Namespace)

	inf := nfe.CreateElement("infNFe")
	inf.CreateAttr("versao", Version)
	inf.CreateAttr("Id", IDPrefix+b.key)

	b.ide(inf)
	b.emit(inf)
	b.dest(inf)
	for _, item := range b.d.Items {
		b.det(inf, item)
	}
	b.total(inf)
	b.transp(inf)
	b.cobr(inf)
	b.pag(inf)
	b.infAdic(inf)
	return doc
}

func (b *builder) ide(parent *etree.Element) {
	d := b.d
	id := d.Identification
	ide := parent.CreateElement("ide")

	cUF, _ := accesskey.StateCodeFor(d.Issuer.Address.State)
	cNF := id.NumericCode
	if cNF == "" {
		cNF = "00000000"
	}
	cDV := "0"
	if d.AccessKey != "" {
		cUF = accesskey.StateCode(d.AccessKey)
		cNF = accesskey.NumericCode(d.AccessKey)
		cDV = accesskey.CheckDigitOf(d.AccessKey)
	}
	municipality := id.Municipality
	if municipality == "" {
		municipality = d.Issuer.Address.MunicipalityCode
	}

	add(ide, "cUF", cUF)
	add(ide, "cNF", cNF)
	addText(ide, "natOp", id.OperationNature)
	add(ide, "mod", or(id.Model, "55"))
	add(ide, "serie", fmt.Sprintf("%d", id.Series))
	add(ide, "nNF", fmt.Sprintf("%d", id.Number))
	add(ide, "dhEmi", FormatTimestamp(id.IssuedAt, b.opts.TimezoneOffset))
	if id.DepartureAt != nil {
		add(ide, "dhSaiEnt", FormatTimestamp(*id.DepartureAt, b.opts.TimezoneOffset))
	}
	add(ide, "tpNF", or(id.OperationType, "1"))
	add(ide, "idDest", id.Destination)
	add(ide, "cMunFG", municipality)
	add(ide, "tpImp", or(id.PrintFormat, "1"))
	add(ide, "tpEmis", or(id.EmissionType, "1"))
	add(ide, "cDV", cDV)
	add(ide, "tpAmb", id.Environment.Code())
	add(ide, "finNFe", or(id.Purpose, "1"))
	add(ide, "indFinal", or(id.FinalConsumer, "0"))
	presence := or(id.Presence, "1")
	add(ide, "indPres", presence)
	switch presence {
	case "2", "3", "4", "9":
		add(ide, "indIntermed", "0")
	}
	add(ide, "procEmi", "0")
	add(ide, "verProc", b.opts.AppVersion)
	for _, ref := range d.References {
		nfref := ide.CreateElement("NFref")
		add(nfref, "refNFe", ref.AccessKey)
	}
}

func (b *builder) emit(parent *etree.Element) {
	p := b.d.Issuer
	emit := parent.CreateElement("emit")
	addDocument(emit, p.Document)
	addText(emit, "xNome", p.Name)
	addOptional(emit, "xFant", p.TradeName)
	address(emit, "enderEmit", p.Address)
	add(emit, "IE", p.StateRegistration)
	add(emit, "CRT", fmt.Sprintf("%d", p.TaxRegime))
}

func (b *builder) dest(parent *etree.Element) {
	p := b.d.Recipient
	dest := parent.CreateElement("dest")
	addDocument(dest, p.Document)
	name := p.Name
	if b.d.Identification.Environment != draft.EnvProduction {
		name = HomologationRecipientName
	}
	addText(dest, "xNome", name)
	address(dest, "enderDest", p.Address)
	add(dest, "indIEDest", or(p.IEIndicator, "9"))
	if p.IEIndicator != "2" && p.IEIndicator != "9" {
		addOptional(dest, "IE", p.StateRegistration)
	}
	addOptional(dest, "email", p.Email)
}

func addDocument(parent *etree.Element, doc string) {
	if len(doc) == 14 {
		add(parent, "CNPJ", doc)
		return
	}
	add(parent, "CPF", doc)
}

func address(parent *etree.Element, tag string, a draft.Address) {
	el := parent.CreateElement(tag)
	addText(el, "xLgr", a.Street)
	addText(el, "nro", a.Number)
	addOptional(el, "xCpl", a.Complement)
	addText(el, "xBairro", a.District)
	add(el, "cMun", a.MunicipalityCode)
	addText(el, "xMun", a.MunicipalityName)
	add(el, "UF", a.State)
	add(el, "CEP", a.PostalCode)
	add(el, "cPais", "1058")
	add(el, "xPais", "BRASIL")
	if a.Phone != "" {
		add(el, "fone", a.Phone)
	}
}

func (b *builder) total(parent *etree.Element) {
	t := b.totals
	tot := parent.CreateElement("total").CreateElement("ICMSTot")
	addAmount(tot, "vBC", t.ICMSBase)
	addAmount(tot, "vICMS", t.ICMS)
	addAmount(tot, "vICMSDeson", t.ICMSExempt)
	addAmount(tot, "vFCP", money.Zero)
	addAmount(tot, "vBCST", t.STBase)
	addAmount(tot, "vST", t.ST)
	addAmount(tot, "vFCPST", money.Zero)
	addAmount(tot, "vFCPSTRet", money.Zero)
	addAmount(tot, "vProd", t.Products)
	addAmount(tot, "vFrete", t.Freight)
	addAmount(tot, "vSeg", t.Insurance)
	addAmount(tot, "vDesc", t.Discount)
	addAmount(tot, "vII", t.ImportTax)
	addAmount(tot, "vIPI", t.IPI)
	addAmount(tot, "vIPIDevol", t.IPIReturned)
	addAmount(tot, "vPIS", t.PIS)
	addAmount(tot, "vCOFINS", t.COFINS)
	addAmount(tot, "vOutro", t.Other)
	addAmount(tot, "vNF", t.Invoice)
	if t.TotalTaxBurden.IsPositive() {
		addAmount(tot, "vTotTrib", t.TotalTaxBurden)
	}
}

func (b *builder) transp(parent *etree.Element) {
	tr := b.d.Transport
	transp := parent.CreateElement("transp")
	add(transp, "modFrete", or(tr.Mode, "9"))
	if c := tr.Carrier; c != nil {
		el := transp.CreateElement("transporta")
		if c.Document != "" {
			addDocument(el, c.Document)
		}
		addOptional(el, "xNome", c.Name)
		addOptional(el, "IE", c.StateRegistration)
		addOptional(el, "xEnder", c.Address)
		addOptional(el, "xMun", c.Municipality)
		addOptional(el, "UF", c.State)
	}
	for _, v := range tr.Volumes {
		vol := transp.CreateElement("vol")
		if v.Quantity > 0 {
			add(vol, "qVol", fmt.Sprintf("%d", v.Quantity))
		}
		addOptional(vol, "esp", v.Species)
		addOptional(vol, "marca", v.Brand)
		if v.NetWeight != nil {
			add(vol, "pesoL", v.NetWeight.StringFixed(3))
		}
		if v.GrossWeight != nil {
			add(vol, "pesoB", v.GrossWeight.StringFixed(3))
		}
	}
}

func (b *builder) cobr(parent *etree.Element) {
	bill := b.d.Billing
	if bill == nil {
		return
	}
	cobr := parent.CreateElement("cobr")
	fat := cobr.CreateElement("fat")
	addOptional(fat, "nFat", bill.Number)
	addAmount(fat, "vOrig", bill.Original)
	addAmount(fat, "vDesc", money.OrZero(bill.Discount))
	addAmount(fat, "vLiq", bill.Net)
	for _, inst := range bill.Installments {
		dup := cobr.CreateElement("dup")
		add(dup, "nDup", inst.Number)
		add(dup, "dVenc", FormatDate(inst.DueDate))
		addAmount(dup, "vDup", inst.Amount)
	}
}

func (b *builder) pag(parent *etree.Element) {
	pay := b.d.Payment
	pag := parent.CreateElement("pag")
	for _, det := range pay.Details {
		el := pag.CreateElement("detPag")
		if det.Indicator != "" {
			add(el, "indPag", det.Indicator)
		}
		add(el, "tPag", det.Method)
		addOptional(el, "xPag", det.Description)
		addAmount(el, "vPag", det.Amount)
	}
	addOptionalAmount(pag, "vTroco", pay.Change)
}

func (b *builder) infAdic(parent *etree.Element) {
	fisco, cpl := Clean(b.d.FiscalRemarks), Clean(b.d.Remarks)
	if fisco == "" && cpl == "" {
		return
	}
	el := parent.CreateElement("infAdic")
	addOptional(el, "infAdFisco", fisco)
	addOptional(el, "infCpl", cpl)
}

func or(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
