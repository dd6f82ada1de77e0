// Package model defines the core domain models used throughout the application.
package model

import (
	"crypto/sha256"
	"fmt"
	"time"
)

// ImportedTransaction is a row recovered from an import document. Confidence reflects how sure the
// parser is about the row, not how sure anyone is about its category.
type ImportedTransaction struct {
	Date        time.Time
	Description string
	Currency    string
	Source      DocumentType
	AmountMinor int64 // signed, negative = debit
	Confidence  float64
}

// IsDebit reports whether money left the account.
func (t ImportedTransaction) IsDebit() bool {
	return t.AmountMinor < 0
}

// Transaction represents a persisted transaction.
type Transaction struct {
	Date           time.Time
	CreatedAt      time.Time
	ID             string
	AccountID      string
	Description    string
	Currency       string
	CategoryID     string
	CategorySource CategorizationSource
	Hash           string
	AmountMinor    int64
	Confidence     float64
}

// GenerateHash creates a stable fingerprint used to index likely duplicates.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%d:%s:%s",
		t.Date.Format("2006-01-02"),
		t.AmountMinor,
		t.Description,
		t.AccountID)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
