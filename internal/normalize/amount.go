package normalize

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Direction is an explicit debit/credit marker found next to an amount.
type Direction int

const (
	DirectionNone Direction = iota
	DirectionDebit
	DirectionCredit
)

// Amount is a parsed statement amount. Value is always non-negative.
type Amount struct {
	Value    decimal.Decimal
	Negative bool
	Hint     Direction
	Currency string // ISO code when a currency symbol was present
}

// Signed returns the value with its reported sign restored, for balances.
func (a Amount) Signed() decimal.Decimal {
	if a.Negative {
		return a.Value.Neg()
	}
	return a.Value
}

var (
	directionSuffixRe = regexp.MustCompile(`(?i)\s*(cr|dr)\.?$`)
	currencyTokens    = []struct {
		token string
		code  string
	}{
		{"INR", "INR"},
		{"Rs.", "INR"},
		{"Rs", "INR"},
		{"₹", "INR"},
		{"USD", "USD"},
		{"$", "USD"},
		{"€", "EUR"},
		{"£", "GBP"},
	}
	numberCleaner = strings.NewReplacer(",", "", " ", "", "'", "", "\u00a0", "")
)

// ParseAmount parses amounts such as "1,23,456.78", "₹ 500", "(500.00)", "500.00-" and
// "1,250.00 Cr". Parentheses and minus signs mark a negative figure; the magnitude is
// returned in Value. ok is false for empty or non-numeric text.
func ParseAmount(text string) (Amount, bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Amount{}, false
	}

	var a Amount
	if m := directionSuffixRe.FindStringSubmatchIndex(s); m != nil {
		if strings.EqualFold(s[m[2]:m[3]], "cr") {
			a.Hint = DirectionCredit
		} else {
			a.Hint = DirectionDebit
		}
		s = strings.TrimSpace(s[:m[0]])
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		a.Negative = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	for _, c := range currencyTokens {
		if strings.Contains(s, c.token) {
			if a.Currency == "" {
				a.Currency = c.code
			}
			s = strings.ReplaceAll(s, c.token, "")
		}
	}
	s = numberCleaner.Replace(s)

	switch {
	case strings.HasPrefix(s, "-"):
		a.Negative = true
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		a.Negative = true
		s = s[:len(s)-1]
	case strings.HasPrefix(s, "+"):
		s = s[1:]
	}
	if s == "" {
		return Amount{}, false
	}

	v, err := decimal.NewFromString(s)
	if err != nil {
		return Amount{}, false
	}
	if v.IsNegative() {
		a.Negative = true
	}
	a.Value = v.Abs()
	return a, true
}
