package layout

import (
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// TokenClass is the kind of a classified OCR token
type TokenClass int

const (
	Text TokenClass = iota
	Price
	Date
	Time
	Merchant
	Integer
	// HangingFragment is the first half of a decimal split at its comma, e.g. "1," before "32"
	HangingFragment
)

func (c TokenClass) String() string {
	switch c {
	case Price:
		return "price"
	case Date:
		return "date"
	case Time:
		return "time"
	case Merchant:
		return "merchant"
	case Integer:
		return "integer"
	case HangingFragment:
		return "hanging"
	default:
		return "text"
	}
}

// Token is a classified OCR string with its parsed payload. Only the payload
// matching Class is set.
type Token struct {
	Class    TokenClass
	Text     string
	Number   decimal.Decimal // Price and Integer
	Date     time.Time
	Time     string
	Merchant string
}

// DateLayout is how extracted dates are rendered
const DateLayout = "02/01/06"

var (
	numberRe = regexp.MustCompile(`^[+-]?(\d+([.,]\d*)?|[.,]\d+)$`)
	dateRe   = regexp.MustCompile(`[0-3][0-9][./-][0-1][0-9][./-][0-9][0-9]`)
	timeRe   = regexp.MustCompile(`[0-2][0-9]:[0-5][0-9]:[0-5][0-9]`)
)

// parseNumber parses the part of s before the first space as a decimal. A
// single comma is read as the decimal separator.
func parseNumber(s string) (decimal.Decimal, bool) {
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	if !numberRe.MatchString(s) {
		return decimal.Decimal{}, false
	}
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimLeft(s, "+-")
	s = strings.Replace(s, ",", ".", 1)
	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if neg {
		s = "-" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// parsePrice returns the value of s if it is a money amount, i.e. a number
// with a non-zero fractional part.
func parsePrice(s string) (decimal.Decimal, bool) {
	d, ok := parseNumber(s)
	if !ok || d.Equal(d.Truncate(0)) {
		return decimal.Decimal{}, false
	}
	return d, true
}

func parseInteger(s string) (decimal.Decimal, bool) {
	d, ok := parseNumber(s)
	if !ok || !d.Equal(d.Truncate(0)) {
		return decimal.Decimal{}, false
	}
	return d, true
}

// parseDate finds a DD?MM?YY date in s, with "." "/" or "-" as separators
func parseDate(s string) (time.Time, bool) {
	m := dateRe.FindString(s)
	if m == "" {
		return time.Time{}, false
	}
	norm := strings.NewReplacer(".", "/", "-", "/").Replace(m)
	t, err := time.Parse(DateLayout, norm)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func parseClock(s string) (string, bool) {
	m := timeRe.FindString(s)
	if m == "" {
		return "", false
	}
	if _, err := time.Parse("15:04:05", m); err != nil {
		return "", false
	}
	return m, true
}

// classify tags s with the first matching class, in priority order:
// hanging fragment, price, date, time, integer, merchant, text.
func (p *compiledPolicy) classify(s string) Token {
	tok := Token{Class: Text, Text: s}
	if s == "" {
		return tok
	}
	if strings.HasSuffix(s, ",") {
		tok.Class = HangingFragment
		return tok
	}
	if d, ok := parsePrice(s); ok {
		tok.Class = Price
		tok.Number = d
		return tok
	}
	if d, ok := parseDate(s); ok {
		tok.Class = Date
		tok.Date = d
		return tok
	}
	if t, ok := parseClock(s); ok {
		tok.Class = Time
		tok.Time = t
		return tok
	}
	if d, ok := parseInteger(s); ok {
		tok.Class = Integer
		tok.Number = d
		return tok
	}
	if m, ok := p.merchant(s); ok {
		tok.Class = Merchant
		tok.Merchant = m
		return tok
	}
	return tok
}

// letterCount counts alphabetic characters
func letterCount(s string) int {
	n := 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			n++
		}
	}
	return n
}

// startsWord reports whether a fragment starts a new word when appended to an
// item name. OCR drops the spaces between tokens; capitals, digits and
// currency marks usually begin one.
func startsWord(s string) bool {
	for _, r := range s {
		return unicode.IsUpper(r) || unicode.IsDigit(r) || r == 'x' || r == '£'
	}
	return false
}
