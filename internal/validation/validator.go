// Package validation flags suspicious imported rows for the reviewer. It never rejects a batch.
package validation

import (
	"fmt"
	"strings"

	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/model"
)

// DefaultLargeAmountThreshold is 100,000.00 in a two-decimal currency.
const DefaultLargeAmountThreshold int64 = 10_000_000

// WarningType identifies which rule produced a warning.
type WarningType string

// Warning types.
const (
	WarningFutureDate         WarningType = "FUTURE_DATE"
	WarningLargeAmount        WarningType = "LARGE_AMOUNT"
	WarningMissingDescription WarningType = "MISSING_DESCRIPTION"
)

// Warning is an advisory finding about one row.
type Warning struct {
	Type    WarningType
	Message string
	Index   int
}

// Result is the outcome of validating a batch.
type Result struct {
	Warnings     []Warning
	WarningCount int
	// IsValid reports structural soundness only: the batch is non-empty and every row has a date.
	IsValid bool
}

// Validator checks imported rows against independent advisory rules.
type Validator struct {
	clock                common.Clock
	largeAmountThreshold int64
}

// NewValidator creates a Validator. A non-positive threshold selects DefaultLargeAmountThreshold.
func NewValidator(clock common.Clock, largeAmountThreshold int64) *Validator {
	if clock == nil {
		clock = common.SystemClock{}
	}
	if largeAmountThreshold <= 0 {
		largeAmountThreshold = DefaultLargeAmountThreshold
	}
	return &Validator{clock: clock, largeAmountThreshold: largeAmountThreshold}
}

// Validate applies every rule to every row; rules are additive, so one row can carry several warnings.
func (v *Validator) Validate(txns []model.ImportedTransaction) Result {
	res := Result{IsValid: len(txns) > 0}
	today := common.CalendarDay(v.clock.Now())

	for i, txn := range txns {
		if txn.Date.IsZero() {
			res.IsValid = false
		} else if common.CalendarDay(txn.Date).After(today) {
			res.Warnings = append(res.Warnings, Warning{
				Index:   i,
				Type:    WarningFutureDate,
				Message: fmt.Sprintf("date %s is in the future", txn.Date.Format("2006-01-02")),
			})
		}

		if amount := txn.AmountMinor; amount > v.largeAmountThreshold || -amount > v.largeAmountThreshold {
			res.Warnings = append(res.Warnings, Warning{
				Index:   i,
				Type:    WarningLargeAmount,
				Message: fmt.Sprintf("amount %d exceeds %d", amount, v.largeAmountThreshold),
			})
		}

		if strings.TrimSpace(txn.Description) == "" {
			res.Warnings = append(res.Warnings, Warning{
				Index:   i,
				Type:    WarningMissingDescription,
				Message: "description is empty",
			})
		}
	}

	res.WarningCount = len(res.Warnings)
	return res
}
