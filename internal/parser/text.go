package parser

import (
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/spice-import/internal/detect"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/textutil"
)

const (
	isoAlt      = `EUR|USD|GBP|CHF|JPY|CAD|AUD|SEK|NOK|DKK|PLN|INR|KRW`
	currencyAlt = `US\$|C\$|A\$|R\$|[€$£¥₹₩₺₪]|` + isoAlt
)

var (
	dateTokenRegex = buildDateTokenRegex()
	amountRegex    = regexp.MustCompile(`(?i)(?:[+\-−]\s?)?(?:(?:` + currencyAlt + `)\s?)?[+\-−]?\d+(?:[.,'\x{00a0}]\d{3})*[.,]\d{2}\b(?:\s?(?:` + currencyAlt + `))?(?:\s?(?:CR|DR)\b|-)?`)
	// whole amounts only count when a currency symbol marks them
	symbolAmountRegex = regexp.MustCompile(`(?:[+\-−]\s?)?(?:US\$|[€$£¥₹₩])\s?\d+(?:[.,]\d{3})*\b`)
	isoInLine         = regexp.MustCompile(`\b(?:` + isoAlt + `)\b`)
)

var creditKeywords = []string{
	"credit", "deposit", "refund", "received", "salary", "payroll", "paid in", "interest", "cashback",
	"gutschrift", "eingang", "avoir", "virement recu", "accredito", "abono", "ingreso",
}

var debitKeywords = []string{
	"debit", "purchase", "payment", "withdrawal", "paid out", "card", "fee", "charge", "atm",
	"lastschrift", "kartenzahlung", "prelevement", "paiement", "addebito", "cargo", "compra",
}

func buildDateTokenRegex() *regexp.Regexp {
	names := make([]string, 0, len(monthNames))
	for name := range monthNames {
		names = append(names, regexp.QuoteMeta(name))
	}
	// longest first so "january" wins over "jan"
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	month := `(?:` + strings.Join(names, "|") + `)\.?`
	return regexp.MustCompile(`(?i)\b(?:` +
		`\d{4}[-/.]\d{1,2}[-/.]\d{1,2}` +
		`|\d{1,2}[/.\-]\d{1,2}(?:[/.\-]|')\d{2,4}` +
		`|\d{1,2}\.?[ \-]` + month + `[ \-]\d{2,4}` +
		`|` + month + ` \d{1,2},? \d{4}` +
		`)\b`)
}

// TextExtractor recovers transactions from text already extracted from a scanned statement or receipt.
type TextExtractor struct {
	// Currency is assumed for amounts without a currency marker.
	Currency string
}

// Extract scans text line by line. A line yields a transaction only when it carries both a date
// and an amount; anything else is skipped silently.
func (e TextExtractor) Extract(text string) []model.PartialTransaction {
	var out []model.PartialTransaction
	for _, line := range strings.Split(text, "\n") {
		if p, ok := e.extractLine(strings.TrimSpace(line)); ok {
			out = append(out, p)
		}
	}
	return out
}

func (e TextExtractor) extractLine(line string) (model.PartialTransaction, bool) {
	if line == "" {
		return model.PartialTransaction{}, false
	}

	dateLoc := dateTokenRegex.FindStringIndex(line)
	if dateLoc == nil {
		return model.PartialTransaction{}, false
	}
	rawDate := line[dateLoc[0]:dateLoc[1]]
	if _, err := ParseDate(rawDate, detect.DateOrderUnknown); err != nil {
		return model.PartialTransaction{}, false
	}
	rest := line[:dateLoc[0]] + " " + line[dateLoc[1]:]

	amountRe := amountRegex
	loc := amountRe.FindStringIndex(rest)
	if loc == nil {
		amountRe = symbolAmountRegex
		if loc = amountRe.FindStringIndex(rest); loc == nil {
			return model.PartialTransaction{}, false
		}
	}
	token := strings.TrimSpace(rest[loc[0]:loc[1]])
	money, err := ParseAmount(token, AmountOptions{Currency: e.Currency})
	if err != nil {
		return model.PartialTransaction{}, false
	}

	description := amountRegex.ReplaceAllString(rest, " ")
	description = symbolAmountRegex.ReplaceAllString(description, " ")
	description = strings.Trim(textutil.CollapseSpaces(description), " -:|*")

	p := model.PartialTransaction{
		RawDate:        rawDate,
		RawDescription: description,
		AmountMinor:    abs(money.Minor),
		Currency:       money.Currency,
	}
	if p.Currency == "" {
		if m := isoInLine.FindString(line); m != "" {
			p.Currency = strings.ToUpper(m)
		}
	}

	switch {
	case money.Explicit && money.Minor < 0:
		p.IsDebit = true
	case money.Explicit:
		p.IsCredit = true
	default:
		p.IsCredit, p.IsDebit = directionFromKeywords(line)
	}
	return p, true
}

// directionFromKeywords looks for credit or debit vocabulary; a line with both or neither stays unknown.
func directionFromKeywords(line string) (bool, bool) {
	folded := textutil.Fold(line)
	credit, debit := false, false
	for _, kw := range creditKeywords {
		if textutil.ContainsWord(folded, kw) {
			credit = true
			break
		}
	}
	for _, kw := range debitKeywords {
		if textutil.ContainsWord(folded, kw) {
			debit = true
			break
		}
	}
	if credit && debit {
		return false, false
	}
	return credit, debit
}
