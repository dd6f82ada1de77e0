// Package classification holds the static, offline categorization rules: regex patterns over
// transaction descriptions and a keyword database of well-known merchants.
package classification

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/textutil"
)

// PatternType restricts a pattern to a money direction.
type PatternType string

const (
	// PatternTypeIncome matches credits only.
	PatternTypeIncome PatternType = "income"
	// PatternTypeExpense matches debits only.
	PatternTypeExpense PatternType = "expense"
	// PatternTypeTransfer matches either direction.
	PatternTypeTransfer PatternType = "transfer"
)

func (t PatternType) allows(amountMinor int64) bool {
	switch t {
	case PatternTypeIncome:
		return amountMinor > 0
	case PatternTypeExpense:
		return amountMinor < 0
	default:
		return true
	}
}

// Pattern maps a description regex to a category.
type Pattern struct {
	Name       string
	Type       PatternType
	CategoryID string
	Regex      string
	Priority   int     // Higher priority patterns are checked first
	Confidence float64 // Base confidence when pattern matches (0.0-1.0)
}

// CompiledPattern holds a compiled regex pattern with metadata.
type CompiledPattern struct {
	compiledRegex *regexp.Regexp
	Pattern
}

// PatternDetector implements pattern-based transaction classification.
type PatternDetector struct {
	patterns []CompiledPattern
	mu       sync.RWMutex
}

// NewPatternDetector creates a new pattern detector with the given patterns.
func NewPatternDetector(patterns []Pattern) (*PatternDetector, error) {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return nil, err
	}
	return &PatternDetector{patterns: compiled}, nil
}

func compilePatterns(patterns []Pattern) ([]CompiledPattern, error) {
	compiled := make([]CompiledPattern, 0, len(patterns))

	for _, p := range patterns {
		if p.CategoryID == "" {
			return nil, fmt.Errorf("pattern %s has no category", p.Name)
		}
		regexStr := p.Regex
		if !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr // Make case-insensitive by default
		}

		regex, err := regexp.Compile(regexStr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile pattern %s: %w", p.Name, err)
		}

		compiled = append(compiled, CompiledPattern{
			Pattern:       p,
			compiledRegex: regex,
		})
	}

	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	return compiled, nil
}

// Match represents a pattern match result.
type Match struct {
	PatternName string
	CategoryID  string
	Type        PatternType
	Source      model.CategorizationSource
	Confidence  float64
}

// Classify returns the highest-priority pattern matching the transaction, or nil.
func (pd *PatternDetector) Classify(_ context.Context, txn model.Transaction) (*Match, error) {
	pd.mu.RLock()
	defer pd.mu.RUnlock()

	searchText := textutil.Fold(txn.Description)

	for _, pattern := range pd.patterns {
		if !pattern.Type.allows(txn.AmountMinor) {
			continue
		}
		if !pattern.compiledRegex.MatchString(searchText) {
			continue
		}

		confidence := pattern.Confidence

		// Boost confidence for exact matches
		if strings.Contains(searchText, strings.ToLower(pattern.Name)) {
			confidence = min(confidence+0.1, 1.0)
		}

		// Boost confidence for longer patterns (more specific)
		if len(pattern.Regex) > 20 {
			confidence = min(confidence+0.05, 1.0)
		}

		return &Match{
			PatternName: pattern.Name,
			CategoryID:  pattern.CategoryID,
			Type:        pattern.Type,
			Source:      model.SourceRuleBased,
			Confidence:  confidence,
		}, nil
	}

	return nil, nil //nolint:nilnil // No match is a valid result
}

// ClassifyBatch classifies transactions keyed by ID, skipping those without a match.
func (pd *PatternDetector) ClassifyBatch(ctx context.Context, transactions []model.Transaction) (map[string]*Match, error) {
	results := make(map[string]*Match, len(transactions))

	for _, txn := range transactions {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			match, err := pd.Classify(ctx, txn)
			if err != nil {
				return nil, fmt.Errorf("failed to classify transaction %s: %w", txn.ID, err)
			}
			if match != nil {
				results[txn.ID] = match
			}
		}
	}

	return results, nil
}

// UpdatePatterns replaces the detector's patterns.
func (pd *PatternDetector) UpdatePatterns(patterns []Pattern) error {
	compiled, err := compilePatterns(patterns)
	if err != nil {
		return err
	}

	pd.mu.Lock()
	pd.patterns = compiled
	pd.mu.Unlock()

	return nil
}

// GetPatternCount returns the number of loaded patterns.
func (pd *PatternDetector) GetPatternCount() int {
	pd.mu.RLock()
	defer pd.mu.RUnlock()
	return len(pd.patterns)
}
