package classification

import (
	"context"
	"fmt"

	"github.com/Veraticus/spice-import/internal/model"
)

// Rules combines the merchant keyword database with the regex patterns. It is the offline tier:
// it needs no network, no model and no user history.
type Rules struct {
	merchants *MerchantDatabase
	patterns  *PatternDetector
}

// NewRules builds Rules from explicit merchants and patterns.
func NewRules(merchants []MerchantKeyword, patterns []Pattern) (*Rules, error) {
	detector, err := NewPatternDetector(patterns)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule patterns: %w", err)
	}
	return &Rules{
		merchants: NewMerchantDatabase(merchants),
		patterns:  detector,
	}, nil
}

// NewDefaultRules builds Rules from the built-in merchants and patterns.
func NewDefaultRules() *Rules {
	rules, err := NewRules(DefaultMerchants(), DefaultPatterns())
	if err != nil {
		panic(err) // built-in patterns are compiled in tests
	}
	return rules
}

// Classify checks the merchant database first, then the regex patterns. Categories outside
// allowed are ignored; a nil allowed set accepts everything.
func (r *Rules) Classify(ctx context.Context, txn model.Transaction, allowed map[string]bool) (*Match, error) {
	if m, ok := r.merchants.Lookup(txn.Description); ok && permitted(allowed, m.CategoryID) {
		return m, nil
	}
	m, err := r.patterns.Classify(ctx, txn)
	if err != nil {
		return nil, err
	}
	if m != nil && permitted(allowed, m.CategoryID) {
		return m, nil
	}
	return nil, nil //nolint:nilnil // No match is a valid result
}

// Hint suggests a category for a description using the merchant database and
// direction-agnostic patterns.
func (r *Rules) Hint(description string) (string, bool) {
	if m, ok := r.merchants.Lookup(description); ok {
		return m.CategoryID, true
	}
	m, err := r.patterns.Classify(context.Background(), model.Transaction{Description: description})
	if err != nil || m == nil {
		return "", false
	}
	return m.CategoryID, true
}

// PatternCount returns the number of regex patterns.
func (r *Rules) PatternCount() int {
	return r.patterns.GetPatternCount()
}

func permitted(allowed map[string]bool, categoryID string) bool {
	return allowed == nil || allowed[categoryID]
}
