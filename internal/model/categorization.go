package model

import (
	"fmt"
	"strings"
)

// CategorizationSource records which tier produced a category. Sources are ordered by locality:
// everything before SourceLLMTier2 runs without leaving the machine.
type CategorizationSource int

// Categorization sources, most local first.
const (
	SourceUserLearned CategorizationSource = iota
	SourceRuleBased
	SourceMerchantDatabase
	SourceUserHistory
	SourceOnDeviceML
	SourceLLMTier2
	SourceLLMTier3
	SourceUser
)

var sourceNames = [...]string{
	"USER_LEARNED",
	"RULE_BASED",
	"MERCHANT_DATABASE",
	"USER_HISTORY",
	"ON_DEVICE_ML",
	"LLM_TIER2",
	"LLM_TIER3",
	"USER",
}

// AllSources lists every source in locality order.
func AllSources() []CategorizationSource {
	return []CategorizationSource{
		SourceUserLearned, SourceRuleBased, SourceMerchantDatabase, SourceUserHistory,
		SourceOnDeviceML, SourceLLMTier2, SourceLLMTier3, SourceUser,
	}
}

func (s CategorizationSource) String() string {
	if s < 0 || int(s) >= len(sourceNames) {
		return fmt.Sprintf("SOURCE(%d)", int(s))
	}
	return sourceNames[s]
}

// ParseSource converts a stored source name back into a CategorizationSource.
func ParseSource(name string) (CategorizationSource, error) {
	for i, n := range sourceNames {
		if strings.EqualFold(n, name) {
			return CategorizationSource(i), nil
		}
	}
	return 0, fmt.Errorf("unknown categorization source %q", name)
}

// IsLocal reports whether the source never involves a cloud call.
func (s CategorizationSource) IsLocal() bool {
	return s >= SourceUserLearned && s <= SourceOnDeviceML
}

// Confidence bands.
const (
	HighConfidenceThreshold   = 0.85
	MediumConfidenceThreshold = 0.70
)

// CategorizationResult is the category assigned to one transaction.
type CategorizationResult struct {
	TransactionID string
	CategoryID    string
	Source        CategorizationSource
	Confidence    float64
	// Fallback is set when no tier produced a category and the "other" category was used.
	Fallback bool
}

// IsHighConfidence reports confidence >= 0.85.
func (r CategorizationResult) IsHighConfidence() bool {
	return r.Confidence >= HighConfidenceThreshold
}

// IsMediumConfidence reports confidence in [0.70, 0.85).
func (r CategorizationResult) IsMediumConfidence() bool {
	return r.Confidence >= MediumConfidenceThreshold && r.Confidence < HighConfidenceThreshold
}

// IsLowConfidence reports confidence < 0.70.
func (r CategorizationResult) IsLowConfidence() bool {
	return r.Confidence < MediumConfidenceThreshold
}

// RequiresUserConfirmation is true for anything below high confidence.
func (r CategorizationResult) RequiresUserConfirmation() bool {
	return !r.IsHighConfidence()
}

// IsLocalSource reports whether the result was produced without a cloud call.
func (r CategorizationResult) IsLocalSource() bool {
	return r.Source.IsLocal()
}
