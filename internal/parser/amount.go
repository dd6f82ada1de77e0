package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned when a value cannot be read as money.
var ErrInvalidAmount = errors.New("invalid amount")

// Money is a parsed amount in minor units of its currency.
type Money struct {
	Currency string
	Minor    int64
	// Explicit is true when the text carried a sign, parentheses or a CR/DR marker.
	Explicit bool
}

// currencyExponents lists currencies whose minor unit is not 1/100.
var currencyExponents = map[string]int32{
	"JPY": 0, "KRW": 0, "ISK": 0, "CLP": 0, "VND": 0, "XOF": 0, "XAF": 0,
	"BHD": 3, "KWD": 3, "JOD": 3, "OMR": 3, "TND": 3, "IQD": 3, "LYD": 3,
}

// knownCurrencies are the ISO codes recognized next to amounts.
var knownCurrencies = map[string]bool{
	"EUR": true, "USD": true, "GBP": true, "JPY": true, "CHF": true, "CAD": true, "AUD": true,
	"NZD": true, "SEK": true, "NOK": true, "DKK": true, "PLN": true, "CZK": true, "HUF": true,
	"KRW": true, "INR": true, "CNY": true, "HKD": true, "SGD": true, "BRL": true, "MXN": true,
	"ZAR": true, "BHD": true, "KWD": true, "JOD": true, "OMR": true, "TND": true, "TRY": true,
	"ILS": true, "AED": true, "SAR": true, "ISK": true, "RON": true, "EGP": true,
}

var currencySymbols = []struct {
	symbol string
	code   string
}{
	{"US$", "USD"}, {"C$", "CAD"}, {"A$", "AUD"}, {"R$", "BRL"}, {"CHF", "CHF"},
	{"€", "EUR"}, {"£", "GBP"}, {"¥", "JPY"}, {"₩", "KRW"}, {"₹", "INR"}, {"₺", "TRY"},
	{"₪", "ILS"}, {"zł", "PLN"}, {"$", "USD"},
}

var isoCode = regexp.MustCompile(`^[A-Za-z]{3}$`)

// CurrencyExponent returns the number of minor-unit digits for an ISO currency code.
func CurrencyExponent(code string) int32 {
	if exp, ok := currencyExponents[strings.ToUpper(code)]; ok {
		return exp
	}
	return 2
}

// FormatMinor renders minor units as a plain decimal string, "-50.00" for -5000 EUR.
func FormatMinor(minor int64, currency string) string {
	exp := CurrencyExponent(currency)
	return decimal.New(minor, -exp).StringFixed(exp)
}

// AmountOptions controls amount parsing.
type AmountOptions struct {
	// Currency is used when the text carries no currency marker.
	Currency string
	// Decimal forces the decimal separator ('.' or ','). Zero means infer it from the value.
	Decimal rune
}

// ParseAmount reads locale-formatted money such as "1,234.56", "1.234,56", "1 234,56 €",
// "(12.00)", "12.00-", "45.10 CR" or "-EUR 3". Credits are positive and debits negative.
func ParseAmount(raw string, opts AmountOptions) (Money, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Money{}, fmt.Errorf("%w: empty value", ErrInvalidAmount)
	}

	var m Money
	negative := false

	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "CR"):
		m.Explicit = true
		s = strings.TrimSpace(s[:len(s)-2])
	case strings.HasSuffix(upper, "DR"):
		m.Explicit, negative = true, true
		s = strings.TrimSpace(s[:len(s)-2])
	}

	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		m.Explicit, negative = true, true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s, m.Currency = stripCurrency(s)

	switch {
	case strings.HasPrefix(s, "-"), strings.HasPrefix(s, "−"):
		m.Explicit, negative = true, !negative
		s = strings.TrimLeft(s, "-−")
	case strings.HasPrefix(s, "+"):
		m.Explicit = true
		s = s[1:]
	case strings.HasSuffix(s, "-"):
		m.Explicit, negative = true, !negative
		s = strings.TrimSuffix(s, "-")
	}

	// currency may sit between the sign and the digits ("-€12")
	if m.Currency == "" {
		s, m.Currency = stripCurrency(strings.TrimSpace(s))
	}
	if m.Currency == "" {
		m.Currency = strings.ToUpper(opts.Currency)
	}

	number, err := normalizeNumber(s, opts.Decimal)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, raw, err)
	}

	d, err := decimal.NewFromString(number)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q: %w", ErrInvalidAmount, raw, err)
	}
	if negative {
		d = d.Neg()
	}
	m.Minor = d.Shift(CurrencyExponent(m.Currency)).Round(0).IntPart()
	return m, nil
}

// stripCurrency removes a leading or trailing currency symbol or ISO code.
func stripCurrency(s string) (string, string) {
	for _, cs := range currencySymbols {
		if strings.HasPrefix(s, cs.symbol) {
			return strings.TrimSpace(s[len(cs.symbol):]), cs.code
		}
		if strings.HasSuffix(s, cs.symbol) {
			return strings.TrimSpace(s[:len(s)-len(cs.symbol)]), cs.code
		}
	}
	fields := strings.Fields(s)
	if len(fields) >= 2 {
		if first := fields[0]; isoCode.MatchString(first) && knownCurrencies[strings.ToUpper(first)] {
			return strings.TrimSpace(strings.TrimPrefix(s, first)), strings.ToUpper(first)
		}
		if last := fields[len(fields)-1]; isoCode.MatchString(last) && knownCurrencies[strings.ToUpper(last)] {
			return strings.TrimSpace(strings.TrimSuffix(s, last)), strings.ToUpper(last)
		}
	}
	return s, ""
}

// normalizeNumber rewrites grouped digits into the plain "1234.56" form decimal understands.
func normalizeNumber(s string, decimalSep rune) (string, error) {
	s = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "", "'", "", "\u2019", "").Replace(s)
	if s == "" {
		return "", errors.New("no digits")
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '.' && r != ',' {
			return "", fmt.Errorf("unexpected character %q", r)
		}
	}

	if decimalSep == 0 {
		decimalSep = inferDecimal(s)
	}
	group := ","
	if decimalSep == ',' {
		group = "."
	}
	s = strings.ReplaceAll(s, group, "")
	if strings.Count(s, string(decimalSep)) > 1 {
		return "", errors.New("multiple decimal separators")
	}
	s = strings.Replace(s, string(decimalSep), ".", 1)
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	if strings.HasSuffix(s, ".") {
		s = strings.TrimSuffix(s, ".")
	}
	return s, nil
}

// inferDecimal picks the decimal separator of a single value. With both separators present the
// last one wins; a lone comma followed by exactly three digits is a thousands separator.
func inferDecimal(s string) rune {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return ','
		}
		return '.'
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 != 3 {
			return ','
		}
		return '.'
	default:
		return '.'
	}
}

// InferDecimalSeparator votes across sample values, the way a whole column is read.
// The second result is false when the samples give no evidence either way.
func InferDecimalSeparator(samples []string) (rune, bool) {
	european, us := 0, 0
	for _, raw := range samples {
		cleaned, _ := stripCurrency(strings.TrimSpace(raw))
		cleaned = strings.Trim(cleaned, "+-−() ")
		hasComma := strings.Contains(cleaned, ",")
		hasDot := strings.Contains(cleaned, ".")
		switch {
		case hasComma && hasDot:
			if strings.LastIndex(cleaned, ",") > strings.LastIndex(cleaned, ".") {
				european++
			} else {
				us++
			}
		case hasComma:
			if hasDecimalSuffix(cleaned, ',') {
				european++
			}
		case hasDot:
			if hasDecimalSuffix(cleaned, '.') {
				us++
			}
		}
	}
	if european == us {
		return '.', false
	}
	if european > us {
		return ',', true
	}
	return '.', true
}

func hasDecimalSuffix(s string, sep rune) bool {
	idx := strings.LastIndexByte(s, byte(sep))
	if idx < 0 {
		return false
	}
	digits := len(s) - idx - 1
	return strings.Count(s, string(sep)) == 1 && (digits == 1 || digits == 2)
}
