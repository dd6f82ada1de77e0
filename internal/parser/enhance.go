package parser

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Veraticus/spice-import/internal/detect"
	"github.com/Veraticus/spice-import/internal/merchant"
	"github.com/Veraticus/spice-import/internal/model"
)

// Confidence given to rows recovered from extracted text.
const (
	extractedConfidence   = 0.6
	assumedSignConfidence = 0.5
)

var counterpartyRegex = regexp.MustCompile(
	`\b(?i:transfer (?:to|from)|payment (?:to|from)|sent to|received from|from|to|` +
		`überweisung (?:an|von)|virement (?:a|à|de)|bonifico (?:a|da)|transferencia (?:a|de))\s+` +
		`(\p{Lu}[\p{L}'\-]+(?:\s+\p{Lu}[\p{L}'\-]+){0,3})`)

// Hinter suggests a category for a merchant name without leaving the machine.
type Hinter interface {
	Hint(description string) (string, bool)
}

// Enhancer fills the optional fields of extracted transactions.
type Enhancer struct {
	hinter Hinter
}

// NewEnhancer creates an Enhancer; hinter may be nil.
func NewEnhancer(hinter Hinter) *Enhancer {
	return &Enhancer{hinter: hinter}
}

// Enhance returns a copy with merchant, counterparty and category hint filled where they can be
// derived. Date, amount, currency and direction are carried over untouched.
func (e *Enhancer) Enhance(p model.PartialTransaction) model.PartialTransaction {
	if p.Merchant == nil {
		if name := merchant.DisplayName(p.RawDescription); name != "" {
			p = p.WithMerchant(name)
		}
	}
	if p.CounterpartyName == nil {
		if m := counterpartyRegex.FindStringSubmatch(p.RawDescription); m != nil {
			p = p.WithCounterparty(strings.TrimSpace(m[1]))
		}
	}
	if p.CategoryHint == nil && e.hinter != nil {
		name := p.RawDescription
		if p.Merchant != nil {
			name = *p.Merchant
		}
		if hint, ok := e.hinter.Hint(name); ok {
			p = p.WithCategoryHint(hint)
		}
	}
	return p
}

// ToImported converts an extracted transaction. Confidence is lower than for structured formats
// and drops further when the debit/credit direction had to be assumed.
func ToImported(p model.PartialTransaction, source model.DocumentType, order detect.DateOrder) (model.ImportedTransaction, error) {
	date, err := ParseDate(p.RawDate, order)
	if err != nil {
		return model.ImportedTransaction{}, fmt.Errorf("failed to convert extracted transaction: %w", err)
	}
	amount, known := p.SignedAmount()
	confidence := extractedConfidence
	if !known {
		confidence = assumedSignConfidence
	}
	desc := p.RawDescription
	if p.Merchant != nil && *p.Merchant != "" {
		desc = *p.Merchant
	}
	return model.ImportedTransaction{
		Date:        date,
		AmountMinor: amount,
		Currency:    p.Currency,
		Description: desc,
		Source:      source,
		Confidence:  confidence,
	}, nil
}
