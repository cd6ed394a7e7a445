package nfexml

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"github.com/tagocm/ERP-DESDOBRA-sub001/pkg/money"
)

// DefaultTimezoneOffset is Brasília time
const DefaultTimezoneOffset = "-03:00"

var offsetPattern = regexp.MustCompile(`^[+-](0\d|1[0-4]):[0-5]\d$`)

// ValidOffset reports whether s looks like ±HH:MM
func ValidOffset(s string) bool {
	return offsetPattern.MatchString(s)
}

// FormatTimestamp renders the wall clock of t followed by offset, e.g.
// 2023-10-27T10:00:00-03:00. The location of t is not converted.
func FormatTimestamp(t time.Time, offset string) string {
	return t.Format("2006-01-02T15:04:05") + offset
}

// FormatDate renders a date as YYYY-MM-DD
func FormatDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// Clean normalizes free text to NFC, drops control characters and collapses whitespace
func Clean(s string) string {
	s = norm.NFC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func add(parent *etree.Element, tag, text string) *etree.Element {
	el := parent.CreateElement(tag)
	el.SetText(text)
	return el
}

func addText(parent *etree.Element, tag, text string) *etree.Element {
	return add(parent, tag, Clean(text))
}

func addOptional(parent *etree.Element, tag, text string) {
	if text = Clean(text); text != "" {
		add(parent, tag, text)
	}
}

func addAmount(parent *etree.Element, tag string, d decimal.Decimal) {
	add(parent, tag, money.Amount(d))
}

func addOptionalAmount(parent *etree.Element, tag string, d *decimal.Decimal) {
	if d != nil {
		add(parent, tag, money.Amount(*d))
	}
}

func addRate(parent *etree.Element, tag string, d *decimal.Decimal) {
	add(parent, tag, money.Rate(money.OrZero(d)))
}
