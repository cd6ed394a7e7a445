package draft

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/money"
)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once
)

func getValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Validate runs the structural, arithmetic and tax-rule passes over the
// draft and returns every issue found. An empty result means the draft
// can be built.
func Validate(d *Draft) []Issue {
	if d == nil {
		return []Issue{{Path: "", Message: "draft is required", Code: CodeData}}
	}
	var issues []Issue
	issues = append(issues, structural(d)...)
	issues = append(issues, arithmetic(d)...)
	issues = append(issues, taxRules(d)...)
	return issues
}

func structural(d *Draft) []Issue {
	err := getValidator().Struct(d)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Issue{{Message: err.Error(), Code: CodeData}}
	}
	issues := make([]Issue, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, Issue{
			Path:    fieldPath(fe.Namespace()),
			Message: describe(fe),
			Code:    CodeData,
		})
	}
	return issues
}

// fieldPath drops the root struct name from a validator namespace
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describe(fe validator.FieldError) string {
	switch tag := fe.Tag(); {
	case tag == "required":
		return "is required"
	case tag == "numeric":
		return "must contain only digits"
	case tag == "len":
		return fmt.Sprintf("must have exactly %s characters", fe.Param())
	case strings.HasPrefix(tag, "len=11|len=14"):
		return "must be a CPF (11 digits) or a CNPJ (14 digits)"
	case tag == "min":
		return fmt.Sprintf("must have at least %s", fe.Param())
	case tag == "max":
		return fmt.Sprintf("must have at most %s", fe.Param())
	case tag == "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case tag == "uppercase":
		return "must be uppercase"
	case tag == "email":
		return "must be a valid e-mail address"
	case tag == "gte", tag == "lte":
		return fmt.Sprintf("is out of range (%s %s)", tag, fe.Param())
	default:
		return fmt.Sprintf("failed %s validation", tag)
	}
}

func arithmetic(d *Draft) []Issue {
	var issues []Issue
	for i, item := range d.Items {
		base := fmt.Sprintf("items[%d]", i)
		if item.Number != i+1 {
			issues = append(issues, Issue{
				Path:    base + ".number",
				Message: fmt.Sprintf("item number %d out of sequence, expected %d", item.Number, i+1),
				Code:    CodeData,
			})
		}

		p := item.Product
		if !p.Quantity.IsPositive() {
			issues = append(issues, Issue{Path: base + ".product.quantity", Message: "must be greater than zero", Code: CodeData})
		}
		if p.UnitPrice.IsNegative() {
			issues = append(issues, Issue{Path: base + ".product.unitPrice", Message: "must not be negative", Code: CodeData})
		}
		expected := p.Quantity.Mul(p.UnitPrice)
		if !money.WithinTolerance(expected, p.Total) {
			issues = append(issues, Issue{
				Path: base + ".product.total",
				Message: fmt.Sprintf("line total %s differs from quantity × unit price %s by more than %s",
					money.Amount(p.Total), money.Amount(expected), money.Amount(money.Tolerance)),
				Code: CodeData,
			})
		}
		for _, f := range []struct {
			name  string
			value *decimal.Decimal
		}{
			{"freight", p.Freight},
			{"insurance", p.Insurance},
			{"discount", p.Discount},
			{"other", p.Other},
		} {
			if f.value != nil && f.value.IsNegative() {
				issues = append(issues, Issue{Path: base + ".product." + f.name, Message: "must not be negative", Code: CodeData})
			}
		}

		issues = append(issues, checkAmount(base+".taxes.icms", item.Taxes.ICMS.Base, item.Taxes.ICMS.Rate, item.Taxes.ICMS.Amount)...)
		issues = append(issues, checkAmount(base+".taxes.pis", item.Taxes.PIS.Base, item.Taxes.PIS.Rate, item.Taxes.PIS.Amount)...)
		issues = append(issues, checkAmount(base+".taxes.cofins", item.Taxes.COFINS.Base, item.Taxes.COFINS.Rate, item.Taxes.COFINS.Amount)...)
	}

	for i, det := range d.Payment.Details {
		if det.Amount.IsNegative() {
			issues = append(issues, Issue{
				Path: fmt.Sprintf("payment.details[%d].amount", i), Message: "must not be negative", Code: CodeData,
			})
		}
	}

	if b := d.Billing; b != nil {
		net := b.Original.Sub(money.OrZero(b.Discount))
		if !money.WithinTolerance(net, b.Net) {
			issues = append(issues, Issue{
				Path:    "billing.net",
				Message: fmt.Sprintf("net %s differs from original minus discount %s", money.Amount(b.Net), money.Amount(net)),
				Code:    CodeData,
			})
		}
	}
	return issues
}

func checkAmount(path string, base, rate, amount *decimal.Decimal) []Issue {
	if base == nil || rate == nil || amount == nil {
		return nil
	}
	expected := money.Percent(*base, *rate)
	if money.WithinTolerance(expected, *amount) {
		return nil
	}
	return []Issue{{
		Path:    path + ".amount",
		Message: fmt.Sprintf("amount %s differs from base × rate %s", money.Amount(*amount), money.Amount(expected)),
		Code:    CodeData,
	}}
}

func taxRules(d *Draft) []Issue {
	var issues []Issue
	regime := d.Issuer.TaxRegime
	switch regime {
	case RegimeSimpleNational, RegimeSimpleNationalExcess, RegimeNormal:
	default:
		issues = append(issues, Issue{Path: "issuer.taxRegime", Message: "must be one of [1 2 3]", Code: CodeData})
	}
	if d.Issuer.StateRegistration == "" {
		issues = append(issues, Issue{Path: "issuer.stateRegistration", Message: "is required for the issuer", Code: CodeData})
	}
	if d.Recipient.IEIndicator == "1" && d.Recipient.StateRegistration == "" {
		issues = append(issues, Issue{
			Path: "recipient.stateRegistration", Message: "is required when the recipient is an ICMS taxpayer", Code: CodeData,
		})
	}

	for i, item := range d.Items {
		base := fmt.Sprintf("items[%d].taxes", i)
		issues = append(issues, icmsRules(base+".icms", regime, item.Taxes.ICMS)...)
		issues = append(issues, contributionRules(base+".pis", "PIS", item.Taxes.PIS)...)
		issues = append(issues, contributionRules(base+".cofins", "COFINS", item.Taxes.COFINS)...)
	}
	return issues
}

func icmsRules(path string, regime int, icms ICMS) []Issue {
	var issues []Issue
	simple := regime == RegimeSimpleNational || regime == RegimeSimpleNationalExcess
	switch {
	case simple && icms.CSOSN == "":
		return append(issues, Issue{Path: path + ".csosn", Message: "is required for simple national issuers", Code: CodeData})
	case simple && icms.CST != "":
		issues = append(issues, Issue{Path: path + ".cst", Message: "must not be set for simple national issuers", Code: CodeData})
	case regime == RegimeNormal && icms.CST == "":
		return append(issues, Issue{Path: path + ".cst", Message: "is required for normal regime issuers", Code: CodeData})
	case regime == RegimeNormal && icms.CSOSN != "":
		issues = append(issues, Issue{Path: path + ".csosn", Message: "must not be set for normal regime issuers", Code: CodeData})
	}

	v, ok := icms.Variant()
	if !ok {
		field := "cst"
		if icms.CSOSN != "" {
			field = "csosn"
		}
		return append(issues, Issue{
			Path: path + "." + field, Message: fmt.Sprintf("unsupported ICMS situation code %q", icms.Code()), Code: CodeData,
		})
	}
	if v.Basis == Required {
		if icms.Base == nil {
			issues = append(issues, Issue{Path: path + ".base", Message: fmt.Sprintf("is required for %s", v.Tag), Code: CodeData})
		}
		if icms.Rate == nil {
			issues = append(issues, Issue{Path: path + ".rate", Message: fmt.Sprintf("is required for %s", v.Tag), Code: CodeData})
		}
	}
	if v.Reduction == Required && icms.BaseReduction == nil {
		issues = append(issues, Issue{Path: path + ".baseReduction", Message: fmt.Sprintf("is required for %s", v.Tag), Code: CodeData})
	}
	if v.Credit == Required {
		if icms.CreditRate == nil {
			issues = append(issues, Issue{Path: path + ".creditRate", Message: fmt.Sprintf("is required for %s", v.Tag), Code: CodeData})
		}
		if icms.CreditAmount == nil {
			issues = append(issues, Issue{Path: path + ".creditAmount", Message: fmt.Sprintf("is required for %s", v.Tag), Code: CodeData})
		}
	}
	return issues
}

func contributionRules(path, tax string, c Contribution) []Issue {
	if c.CST == "" {
		// reported by the structural pass
		return nil
	}
	v, ok := c.Variant()
	if !ok {
		return []Issue{{Path: path + ".cst", Message: fmt.Sprintf("unsupported %s situation code %q", tax, c.CST), Code: CodeData}}
	}
	if !v.Supported {
		return []Issue{{
			Path:    path + ".cst",
			Message: fmt.Sprintf("%s situation code %s (quantity-based) is not supported", tax, c.CST),
			Code:    CodeData,
		}}
	}
	var issues []Issue
	switch v.Basis {
	case Required:
		if c.Base == nil {
			issues = append(issues, Issue{Path: path + ".base", Message: fmt.Sprintf("is required for %s CST %s", tax, c.CST), Code: CodeData})
		}
		if c.Rate == nil {
			issues = append(issues, Issue{Path: path + ".rate", Message: fmt.Sprintf("is required for %s CST %s", tax, c.CST), Code: CodeData})
		}
	case Forbidden:
		if c.Base != nil {
			issues = append(issues, Issue{Path: path + ".base", Message: fmt.Sprintf("must not be set for non-taxed %s CST %s", tax, c.CST), Code: CodeData})
		}
		if c.Rate != nil {
			issues = append(issues, Issue{Path: path + ".rate", Message: fmt.Sprintf("must not be set for non-taxed %s CST %s", tax, c.CST), Code: CodeData})
		}
	}
	return issues
}
