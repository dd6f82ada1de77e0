// Package storage provides the SQLite persistence layer.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-import/internal/model"
)

// Validation errors.
var (
	ErrNilContext         = errors.New("context cannot be nil")
	ErrEmptyString        = errors.New("string parameter cannot be empty")
	ErrNilParameter       = errors.New("parameter cannot be nil")
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrInvalidMerchant    = errors.New("invalid learned merchant")
	ErrInvalidCorrection  = errors.New("invalid category correction")
	ErrInvalidModel       = errors.New("invalid installed model")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateTransaction validates a single transaction.
func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("%w: transaction", ErrNilParameter)
	}
	if txn.Date.IsZero() {
		return fmt.Errorf("%w: missing date", ErrInvalidTransaction)
	}
	if txn.AccountID == "" {
		return fmt.Errorf("%w: missing account ID", ErrInvalidTransaction)
	}
	if txn.Confidence < 0 || txn.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidTransaction)
	}
	return nil
}

func validateLearnedMerchant(m *model.LearnedMerchant) error {
	if m == nil {
		return fmt.Errorf("%w: learned merchant", ErrNilParameter)
	}
	if strings.TrimSpace(m.MerchantPattern) == "" {
		return fmt.Errorf("%w: missing pattern", ErrInvalidMerchant)
	}
	if strings.TrimSpace(m.CategoryID) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidMerchant)
	}
	if m.Confidence < 0 || m.Confidence > 1 {
		return fmt.Errorf("%w: confidence must be between 0 and 1", ErrInvalidMerchant)
	}
	return nil
}

func validateCorrection(c *model.CategoryCorrection) error {
	if c == nil {
		return fmt.Errorf("%w: correction", ErrNilParameter)
	}
	if c.TransactionID == "" {
		return fmt.Errorf("%w: missing transaction ID", ErrInvalidCorrection)
	}
	if c.CorrectedCategoryID == "" {
		return fmt.Errorf("%w: missing corrected category", ErrInvalidCorrection)
	}
	return nil
}

func validateInstalledModel(m *model.InstalledModel) error {
	if m == nil {
		return fmt.Errorf("%w: model", ErrNilParameter)
	}
	if m.ID == "" || m.Path == "" {
		return fmt.Errorf("%w: id and path are required", ErrInvalidModel)
	}
	switch m.Status {
	case model.ModelStatusDownloading, model.ModelStatusReady, model.ModelStatusCorrupted:
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidModel, m.Status)
	}
	return nil
}
