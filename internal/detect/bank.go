package detect

import (
	"regexp"
	"strings"
)

// DateOrder is the field order of numeric dates.
type DateOrder int

// Date orders.
const (
	DateOrderUnknown DateOrder = iota
	DateOrderDMY
	DateOrderMDY
	DateOrderYMD
)

func (o DateOrder) String() string {
	switch o {
	case DateOrderDMY:
		return "DMY"
	case DateOrderMDY:
		return "MDY"
	case DateOrderYMD:
		return "YMD"
	default:
		return "unknown"
	}
}

// BankSignature tags a document with the locale conventions of the institution that produced it.
type BankSignature struct {
	matcher          *regexp.Regexp
	Name             string
	Country          string
	Currency         string
	DateOrder        DateOrder
	DecimalSeparator rune
}

// EuropeanDecimals reports whether amounts use a decimal comma.
func (b *BankSignature) EuropeanDecimals() bool {
	return b != nil && b.DecimalSeparator == ','
}

func signature(name, country, currency string, order DateOrder, decimal rune, keywords ...string) BankSignature {
	quoted := make([]string, len(keywords))
	for i, k := range keywords {
		quoted[i] = regexp.QuoteMeta(strings.ToLower(k))
	}
	return BankSignature{
		matcher:          regexp.MustCompile(`\b(?:` + strings.Join(quoted, "|") + `)\b`),
		Name:             name,
		Country:          country,
		Currency:         currency,
		DateOrder:        order,
		DecimalSeparator: decimal,
	}
}

// knownBanks is checked in order; more specific names come before generic ones.
var knownBanks = []BankSignature{
	signature("Deutsche Bank", "DE", "EUR", DateOrderDMY, ',', "deutsche bank"),
	signature("Sparkasse", "DE", "EUR", DateOrderDMY, ',', "sparkasse", "buchungstag", "verwendungszweck"),
	signature("Commerzbank", "DE", "EUR", DateOrderDMY, ',', "commerzbank"),
	signature("N26", "DE", "EUR", DateOrderYMD, '.', "n26"),
	signature("ING", "NL", "EUR", DateOrderYMD, ',', "ing bank", "ing-diba", "ing diba", "mededelingen"),
	signature("Rabobank", "NL", "EUR", DateOrderYMD, ',', "rabobank"),
	signature("ABN AMRO", "NL", "EUR", DateOrderDMY, ',', "abn amro"),
	signature("BNP Paribas", "FR", "EUR", DateOrderDMY, ',', "bnp paribas"),
	signature("Crédit Agricole", "FR", "EUR", DateOrderDMY, ',', "crédit agricole", "credit agricole"),
	signature("Société Générale", "FR", "EUR", DateOrderDMY, ',', "société générale", "societe generale"),
	signature("Intesa Sanpaolo", "IT", "EUR", DateOrderDMY, ',', "intesa sanpaolo"),
	signature("UniCredit", "IT", "EUR", DateOrderDMY, ',', "unicredit"),
	signature("Santander", "ES", "EUR", DateOrderDMY, ',', "banco santander"),
	signature("BBVA", "ES", "EUR", DateOrderDMY, ',', "bbva"),
	signature("CaixaBank", "ES", "EUR", DateOrderDMY, ',', "caixabank", "la caixa"),
	signature("Barclays", "GB", "GBP", DateOrderDMY, '.', "barclays"),
	signature("HSBC", "GB", "GBP", DateOrderDMY, '.', "hsbc"),
	signature("Monzo", "GB", "GBP", DateOrderDMY, '.', "monzo"),
	signature("Lloyds", "GB", "GBP", DateOrderDMY, '.', "lloyds bank"),
	signature("Revolut", "LT", "EUR", DateOrderYMD, '.', "revolut"),
	signature("Chase", "US", "USD", DateOrderMDY, '.', "jpmorgan chase", "chase bank", "chase.com"),
	signature("Bank of America", "US", "USD", DateOrderMDY, '.', "bank of america", "bankofamerica"),
	signature("Wells Fargo", "US", "USD", DateOrderMDY, '.', "wells fargo"),
	signature("Capital One", "US", "USD", DateOrderMDY, '.', "capital one"),
	signature("RBC", "CA", "CAD", DateOrderMDY, '.', "royal bank of canada", "rbc royal bank"),
}

// DetectBankSignature matches institution names and keywords in document text.
// It returns nil when nothing matches.
func DetectBankSignature(text string) *BankSignature {
	if text == "" {
		return nil
	}
	lower := strings.ToLower(text)
	if len(lower) > 8192 {
		lower = lower[:8192]
	}
	for i := range knownBanks {
		if knownBanks[i].matcher.MatchString(lower) {
			sig := knownBanks[i]
			return &sig
		}
	}
	return nil
}
