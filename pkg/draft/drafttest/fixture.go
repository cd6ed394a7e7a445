// Package drafttest provides invoice drafts for tests.
package drafttest

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/draft"
)

// AccessKey is a well-formed key matching the Valid draft (SP, 2023-10, series 1, number 1)
const AccessKey = "35231012345678000195550010000000011123456786"

// IssuedAt is the emission timestamp used by Valid
var IssuedAt = time.Date(2023, 10, 27, 10, 0, 0, 0, time.UTC)

// D parses a decimal literal
func D(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// P parses a decimal literal into a pointer
func P(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

// Valid returns a normal-regime draft with one taxed item that passes validation
func Valid() *draft.Draft {
	return &draft.Draft{
		Identification: draft.Identification{
			Model:           "55",
			Series:          1,
			Number:          1,
			IssuedAt:        IssuedAt,
			OperationNature: "VENDA DE MERCADORIA",
			OperationType:   "1",
			Destination:     "1",
			Environment:     draft.EnvHomologation,
			Purpose:         "1",
			FinalConsumer:   "0",
			Presence:        "1",
		},
		Issuer: draft.Party{
			Document:          "12345678000195",
			Name:              "DESDOBRA COMERCIO LTDA",
			TradeName:         "DESDOBRA",
			IEIndicator:       "1",
			StateRegistration: "123456789012",
			TaxRegime:         draft.RegimeNormal,
			Address: draft.Address{
				Street:           "AVENIDA PAULISTA",
				Number:           "1000",
				District:         "BELA VISTA",
				MunicipalityCode: "3550308",
				MunicipalityName: "SAO PAULO",
				State:            "SP",
				PostalCode:       "01310100",
				Phone:            "1130000000",
			},
		},
		Recipient: draft.Party{
			Document:    "98765432000198",
			Name:        "NF-E EMITIDA EM AMBIENTE DE HOMOLOGACAO - SEM VALOR FISCAL",
			IEIndicator: "9",
			Email:       "compras@example.com",
			Address: draft.Address{
				Street:           "RUA DAS FLORES",
				Number:           "25",
				Complement:       "SALA 2",
				District:         "CENTRO",
				MunicipalityCode: "3509502",
				MunicipalityName: "CAMPINAS",
				State:            "SP",
				PostalCode:       "13010000",
			},
		},
		Items: []draft.Item{
			{
				Number: 1,
				Product: draft.Product{
					Code:        "P-001",
					GTIN:        "",
					Description: "CAIXA DE PAPELAO",
					NCM:         "48191000",
					CFOP:        "5102",
					Unit:        "UN",
					Quantity:    D("2"),
					UnitPrice:   D("15.00"),
					Total:       D("30.00"),
				},
				Taxes: draft.Taxes{
					ICMS: draft.ICMS{
						Origin:   "0",
						CST:      "00",
						BaseMode: "3",
						Base:     P("30.00"),
						Rate:     P("18.00"),
						Amount:   P("5.40"),
					},
					PIS: draft.Contribution{
						CST:    "01",
						Base:   P("30.00"),
						Rate:   P("1.65"),
						Amount: P("0.50"),
					},
					COFINS: draft.Contribution{
						CST:    "01",
						Base:   P("30.00"),
						Rate:   P("7.60"),
						Amount: P("2.28"),
					},
				},
			},
		},
		Transport: draft.Transport{Mode: "9"},
		Payment: draft.Payment{
			Details: []draft.PaymentDetail{{Indicator: "0", Method: "01", Amount: D("30.00")}},
		},
		Remarks: "Pedido 4411",
	}
}

// SimpleNational returns Valid converted to a simple national issuer using CSOSN 102
func SimpleNational() *draft.Draft {
	d := Valid()
	d.Issuer.TaxRegime = draft.RegimeSimpleNational
	d.Items[0].Taxes.ICMS = draft.ICMS{Origin: "0", CSOSN: "102"}
	d.Items[0].Taxes.PIS = draft.Contribution{CST: "07"}
	d.Items[0].Taxes.COFINS = draft.Contribution{CST: "07"}
	return d
}

// WithKey returns Valid carrying AccessKey
func WithKey() *draft.Draft {
	d := Valid()
	d.AccessKey = AccessKey
	return d
}
