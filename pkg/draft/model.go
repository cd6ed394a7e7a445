package draft

import (
	"time"

	"github.com/shopspring/decimal"
)

// Environment selects the SEFAZ environment the document is addressed to
type Environment string

const (
	EnvProduction   Environment = "production"
	EnvHomologation Environment = "homologation"
)

// Code returns the tpAmb value (1 production, 2 homologation)
func (e Environment) Code() string {
	if e == EnvProduction {
		return "1"
	}
	return "2"
}

// ParseEnvironment accepts the names used in configuration and the tpAmb codes
func ParseEnvironment(s string) (Environment, bool) {
	switch s {
	case "production", "producao", "1":
		return EnvProduction, true
	case "homologation", "homologacao", "2":
		return EnvHomologation, true
	}
	return "", false
}

// Tax regimes (CRT)
const (
	RegimeSimpleNational       = 1
	RegimeSimpleNationalExcess = 2
	RegimeNormal               = 3
)

// Draft is the structured input for one invoice
type Draft struct {
	// AccessKey is the 44-digit chave de acesso; optional while drafting
	AccessKey      string          `json:"accessKey,omitempty" validate:"omitempty,len=44,numeric"`
	Identification Identification  `json:"identification"`
	Issuer         Party           `json:"issuer"`
	Recipient      Party           `json:"recipient"`
	Items          []Item          `json:"items" validate:"required,min=1,max=990,dive"`
	Transport      Transport       `json:"transport"`
	Payment        Payment         `json:"payment"`
	Billing        *Billing        `json:"billing,omitempty"`
	Remarks        string          `json:"remarks,omitempty" validate:"max=5000"`
	FiscalRemarks  string          `json:"fiscalRemarks,omitempty" validate:"max=2000"`
	References     []RelatedAccess `json:"references,omitempty" validate:"dive"`
}

// Identification carries the ide group
type Identification struct {
	Model           string      `json:"model,omitempty" validate:"omitempty,oneof=55 65"`
	Series          int         `json:"series" validate:"gte=0,lte=999"`
	Number          int         `json:"number" validate:"gte=1,lte=999999999"`
	IssuedAt        time.Time   `json:"issuedAt" validate:"required"`
	DepartureAt     *time.Time  `json:"departureAt,omitempty"`
	OperationNature string      `json:"operationNature" validate:"required,max=60"`
	OperationType   string      `json:"operationType,omitempty" validate:"omitempty,oneof=0 1"`
	Destination     string      `json:"destination" validate:"required,oneof=1 2 3"`
	Environment     Environment `json:"environment" validate:"required,oneof=production homologation"`
	Purpose         string      `json:"purpose,omitempty" validate:"omitempty,oneof=1 2 3 4"`
	FinalConsumer   string      `json:"finalConsumer,omitempty" validate:"omitempty,oneof=0 1"`
	Presence        string      `json:"presence,omitempty" validate:"omitempty,oneof=0 1 2 3 4 5 9"`
	EmissionType    string      `json:"emissionType,omitempty" validate:"omitempty,oneof=1 2 3 4 5 6 7 9"`
	PrintFormat     string      `json:"printFormat,omitempty" validate:"omitempty,oneof=0 1 2 3 4 5"`
	// NumericCode is cNF, used when no access key is present
	NumericCode string `json:"numericCode,omitempty" validate:"omitempty,len=8,numeric"`
	// Municipality is cMunFG; defaults to the issuer's municipality
	Municipality string `json:"municipality,omitempty" validate:"omitempty,len=7,numeric"`
}

// Party is the issuer or the recipient
type Party struct {
	Document          string  `json:"document" validate:"required,numeric,len=11|len=14"`
	Name              string  `json:"name" validate:"required,max=60"`
	TradeName         string  `json:"tradeName,omitempty" validate:"max=60"`
	IEIndicator       string  `json:"ieIndicator,omitempty" validate:"omitempty,oneof=1 2 9"`
	StateRegistration string  `json:"stateRegistration,omitempty" validate:"omitempty,max=14"`
	TaxRegime         int     `json:"taxRegime,omitempty"`
	Email             string  `json:"email,omitempty" validate:"omitempty,email"`
	Address           Address `json:"address"`
}

// IsCompany reports whether the document is a CNPJ
func (p Party) IsCompany() bool {
	return len(p.Document) == 14
}

// Address is a Brazilian postal address
type Address struct {
	Street           string `json:"street" validate:"required,max=60"`
	Number           string `json:"number" validate:"required,max=60"`
	Complement       string `json:"complement,omitempty" validate:"max=60"`
	District         string `json:"district" validate:"required,max=60"`
	MunicipalityCode string `json:"municipalityCode" validate:"required,len=7,numeric"`
	MunicipalityName string `json:"municipalityName" validate:"required,max=60"`
	State            string `json:"state" validate:"required,len=2,uppercase"`
	PostalCode       string `json:"postalCode" validate:"required,len=8,numeric"`
	Phone            string `json:"phone,omitempty" validate:"omitempty,numeric,min=6,max=14"`
}

// Item is one det group
type Item struct {
	Number         int     `json:"number"`
	Product        Product `json:"product"`
	Taxes          Taxes   `json:"taxes"`
	AdditionalInfo string  `json:"additionalInfo,omitempty" validate:"max=500"`
}

// Product is the prod group of an item
type Product struct {
	Code             string           `json:"code" validate:"required,max=60"`
	GTIN             string           `json:"gtin,omitempty" validate:"omitempty,numeric,min=8,max=14"`
	Description      string           `json:"description" validate:"required,max=120"`
	NCM              string           `json:"ncm" validate:"required,len=8,numeric"`
	CEST             string           `json:"cest,omitempty" validate:"omitempty,len=7,numeric"`
	CFOP             string           `json:"cfop" validate:"required,len=4,numeric"`
	Unit             string           `json:"unit" validate:"required,max=6"`
	Quantity         decimal.Decimal  `json:"quantity"`
	UnitPrice        decimal.Decimal  `json:"unitPrice"`
	Total            decimal.Decimal  `json:"total"`
	TaxableGTIN      string           `json:"taxableGtin,omitempty" validate:"omitempty,numeric,min=8,max=14"`
	TaxableUnit      string           `json:"taxableUnit,omitempty" validate:"max=6"`
	TaxableQuantity  *decimal.Decimal `json:"taxableQuantity,omitempty"`
	TaxableUnitPrice *decimal.Decimal `json:"taxableUnitPrice,omitempty"`
	Freight          *decimal.Decimal `json:"freight,omitempty"`
	Insurance        *decimal.Decimal `json:"insurance,omitempty"`
	Discount         *decimal.Decimal `json:"discount,omitempty"`
	Other            *decimal.Decimal `json:"other,omitempty"`
	OrderNumber      string           `json:"orderNumber,omitempty" validate:"max=15"`
	OrderItem        string           `json:"orderItem,omitempty" validate:"omitempty,numeric,max=6"`
}

// Taxes is the imposto group of an item
type Taxes struct {
	// TotalTaxBurden is vTotTrib, the approximate tax burden shown to consumers
	TotalTaxBurden *decimal.Decimal `json:"totalTaxBurden,omitempty"`
	ICMS           ICMS             `json:"icms"`
	PIS            Contribution     `json:"pis"`
	COFINS         Contribution     `json:"cofins"`
}

// ICMS holds the situation code and values for the item's ICMS group.
// Exactly one of CST (normal regime) or CSOSN (simple national) applies.
type ICMS struct {
	Origin        string           `json:"origin" validate:"required,oneof=0 1 2 3 4 5 6 7 8"`
	CST           string           `json:"cst,omitempty"`
	CSOSN         string           `json:"csosn,omitempty"`
	BaseMode      string           `json:"baseMode,omitempty" validate:"omitempty,oneof=0 1 2 3"`
	Base          *decimal.Decimal `json:"base,omitempty"`
	Rate          *decimal.Decimal `json:"rate,omitempty"`
	Amount        *decimal.Decimal `json:"amount,omitempty"`
	BaseReduction *decimal.Decimal `json:"baseReduction,omitempty"`
	CreditRate    *decimal.Decimal `json:"creditRate,omitempty"`
	CreditAmount  *decimal.Decimal `json:"creditAmount,omitempty"`
}

// Contribution holds PIS or COFINS values
type Contribution struct {
	CST    string           `json:"cst" validate:"required,len=2,numeric"`
	Base   *decimal.Decimal `json:"base,omitempty"`
	Rate   *decimal.Decimal `json:"rate,omitempty"`
	Amount *decimal.Decimal `json:"amount,omitempty"`
}

// Transport is the transp group
type Transport struct {
	// Mode is modFrete; empty means 9 (no freight)
	Mode    string   `json:"mode,omitempty" validate:"omitempty,oneof=0 1 2 3 4 9"`
	Carrier *Carrier `json:"carrier,omitempty"`
	Volumes []Volume `json:"volumes,omitempty" validate:"dive"`
}

// Carrier identifies the transporter
type Carrier struct {
	Document          string `json:"document,omitempty" validate:"omitempty,numeric,len=11|len=14"`
	Name              string `json:"name,omitempty" validate:"max=60"`
	StateRegistration string `json:"stateRegistration,omitempty" validate:"max=14"`
	Address           string `json:"address,omitempty" validate:"max=60"`
	Municipality      string `json:"municipality,omitempty" validate:"max=60"`
	State             string `json:"state,omitempty" validate:"omitempty,len=2,uppercase"`
}

// Volume is a vol group
type Volume struct {
	Quantity    int              `json:"quantity,omitempty" validate:"gte=0"`
	Species     string           `json:"species,omitempty" validate:"max=60"`
	Brand       string           `json:"brand,omitempty" validate:"max=60"`
	NetWeight   *decimal.Decimal `json:"netWeight,omitempty"`
	GrossWeight *decimal.Decimal `json:"grossWeight,omitempty"`
}

// Payment is the pag group
type Payment struct {
	Details []PaymentDetail  `json:"details" validate:"required,min=1,max=100,dive"`
	Change  *decimal.Decimal `json:"change,omitempty"`
}

// PaymentDetail is a detPag group
type PaymentDetail struct {
	Indicator   string          `json:"indicator,omitempty" validate:"omitempty,oneof=0 1"`
	Method      string          `json:"method" validate:"required,len=2,numeric"`
	Description string          `json:"description,omitempty" validate:"max=60"`
	Amount      decimal.Decimal `json:"amount"`
}

// MethodNoPayment is tPag 90
const MethodNoPayment = "90"

// Billing is the optional cobr group
type Billing struct {
	Number       string           `json:"number,omitempty" validate:"max=60"`
	Original     decimal.Decimal  `json:"original"`
	Discount     *decimal.Decimal `json:"discount,omitempty"`
	Net          decimal.Decimal  `json:"net"`
	Installments []Installment    `json:"installments,omitempty" validate:"max=120,dive"`
}

// Installment is a dup group
type Installment struct {
	Number  string          `json:"number" validate:"required,max=60"`
	DueDate time.Time       `json:"dueDate" validate:"required"`
	Amount  decimal.Decimal `json:"amount"`
}

// RelatedAccess references another NF-e (NFref/refNFe)
type RelatedAccess struct {
	AccessKey string `json:"accessKey" validate:"required,len=44,numeric"`
}
