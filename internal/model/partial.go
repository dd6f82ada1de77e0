package model

// PartialTransaction is what the text extractor recovers from a scanned document before enhancement.
// Enhancement replaces the value with a copy that has more optional fields filled in; the extracted
// date, amount, currency and direction are never rewritten.
type PartialTransaction struct {
	Merchant         *string
	CategoryHint     *string
	CounterpartyName *string
	RawDate          string
	Currency         string
	RawDescription   string
	AmountMinor      int64 // absolute value; direction lives in IsCredit/IsDebit
	IsCredit         bool
	IsDebit          bool
}

// WithMerchant returns a copy with the merchant set.
func (p PartialTransaction) WithMerchant(merchant string) PartialTransaction {
	p.Merchant = &merchant
	return p
}

// WithCategoryHint returns a copy with the category hint set.
func (p PartialTransaction) WithCategoryHint(hint string) PartialTransaction {
	p.CategoryHint = &hint
	return p
}

// WithCounterparty returns a copy with the counterparty name set.
func (p PartialTransaction) WithCounterparty(name string) PartialTransaction {
	p.CounterpartyName = &name
	return p
}

// SignedAmount applies the extracted direction. Lines with no direction marker count as debits,
// and the second return value is false to signal the guess.
func (p PartialTransaction) SignedAmount() (int64, bool) {
	switch {
	case p.IsCredit:
		return p.AmountMinor, true
	case p.IsDebit:
		return -p.AmountMinor, true
	default:
		return -p.AmountMinor, false
	}
}
