// Package accesskey composes and inspects the 44-digit NF-e chave de acesso.
package accesskey

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Length of a complete access key
const Length = 44

// Placeholder is the all-zero key used for documents built before a key exists
const Placeholder = "00000000000000000000000000000000000000000000"

var (
	ErrInvalidLength = errors.New("access key must have 44 digits")
	ErrNotNumeric    = errors.New("access key must contain only digits")
)

// Parts are the fields encoded in a key, in order
type Parts struct {
	StateCode    string // cUF, 2 digits
	IssuedAt     time.Time
	Document     string // CNPJ (or CPF left-padded to 14)
	Model        string // 55 or 65
	Series       int
	Number       int
	EmissionType string // tpEmis
	NumericCode  string // cNF, 8 digits
}

// Compose builds the 43 leading digits from parts and appends the modulo-11 check digit
func Compose(p Parts) (string, error) {
	if len(p.StateCode) != 2 || !digits(p.StateCode) {
		return "", fmt.Errorf("invalid state code %q", p.StateCode)
	}
	if len(p.Document) > 14 || !digits(p.Document) {
		return "", fmt.Errorf("invalid issuer document %q", p.Document)
	}
	if len(p.NumericCode) != 8 || !digits(p.NumericCode) {
		return "", fmt.Errorf("invalid numeric code %q", p.NumericCode)
	}
	if p.Series < 0 || p.Series > 999 || p.Number < 1 || p.Number > 999999999 {
		return "", fmt.Errorf("series %d or number %d out of range", p.Series, p.Number)
	}
	model := p.Model
	if model == "" {
		model = "55"
	}
	tpEmis := p.EmissionType
	if tpEmis == "" {
		tpEmis = "1"
	}
	document := strings.Repeat("0", 14-len(p.Document)) + p.Document
	body := fmt.Sprintf("%s%s%s%s%03d%09d%s%s",
		p.StateCode, p.IssuedAt.Format("0601"), document, model, p.Series, p.Number, tpEmis, p.NumericCode)
	if len(body) != Length-1 {
		return "", fmt.Errorf("composed key has %d digits, expected 43", len(body))
	}
	return body + strconv.Itoa(CheckDigit(body)), nil
}

// CheckDigit computes the modulo-11 digit over the given digits with weights 2..9
// applied right to left. Remainders 0 and 1 yield 0.
func CheckDigit(body string) int {
	sum, weight := 0, 2
	for i := len(body) - 1; i >= 0; i-- {
		sum += int(body[i]-'0') * weight
		weight++
		if weight > 9 {
			weight = 2
		}
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

// Check verifies length and digits. The check digit is not enforced.
func Check(key string) error {
	if len(key) != Length {
		return ErrInvalidLength
	}
	if !digits(key) {
		return ErrNotNumeric
	}
	return nil
}

// Valid reports whether the key is well formed and its check digit matches
func Valid(key string) bool {
	if Check(key) != nil {
		return false
	}
	return int(key[43]-'0') == CheckDigit(key[:43])
}

// StateCode returns cUF
func StateCode(key string) string { return key[0:2] }

// Document returns the issuer document. A CPF is padded to 14 digits in the
// key and cannot be told apart from a CNPJ, so the field is returned as is.
func Document(key string) string { return key[6:20] }

// NumericCode returns cNF
func NumericCode(key string) string { return key[35:43] }

// CheckDigitOf returns cDV
func CheckDigitOf(key string) string { return key[43:44] }

// IsPlaceholder reports whether key is the all-zero placeholder
func IsPlaceholder(key string) bool { return key == Placeholder }

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
