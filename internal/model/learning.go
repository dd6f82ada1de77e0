package model

import "time"

// LearnedSource indicates who taught a learned merchant mapping.
type LearnedSource string

const (
	// LearnedByUser marks mappings created from user corrections.
	LearnedByUser LearnedSource = "USER"
	// LearnedByML marks mappings proposed by a model.
	LearnedByML LearnedSource = "ML"
)

// LearnedMerchant maps a normalized merchant pattern to a category.
type LearnedMerchant struct {
	LastUsedAt      time.Time
	CreatedAt       time.Time
	ID              string
	MerchantPattern string
	CategoryID      string
	Source          LearnedSource
	SampleCount     int
	Confidence      float64
}

// CategoryCorrection is an append-only audit record of a user changing a category.
type CategoryCorrection struct {
	CreatedAt           time.Time
	OriginalCategoryID  *string
	ID                  string
	TransactionID       string
	CorrectedCategoryID string
	MerchantName        string
	MerchantNormalized  string
}
