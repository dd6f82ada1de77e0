package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-import/internal/cli"
	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/learning"
	"github.com/Veraticus/spice-import/internal/model"
)

func learnCmd() *cobra.Command {
	var transactionID, from, to, merchant string

	cmd := &cobra.Command{
		Use:   "learn",
		Short: "Teach spice a category correction",
		Long: `Record that a transaction belongs in a different category. Repeated corrections
for the same merchant create a learned mapping that categorizes future imports
before any model is asked.`,
		Example: `  spice learn --transaction 3f2a... --to groceries
  spice learn --transaction 3f2a... --merchant "ALDI SUED" --from shopping --to groceries`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			req := learning.Request{
				TransactionID:       transactionID,
				CorrectedCategoryID: to,
				MerchantName:        merchant,
			}
			if from != "" {
				req.OriginalCategoryID = &from
			}
			txn, err := a.store.GetTransactionByID(ctx, transactionID)
			switch {
			case errors.Is(err, common.ErrNotFound):
				if merchant == "" {
					return fmt.Errorf("transaction %s not found: pass --merchant", transactionID)
				}
				txn = nil
			case err != nil:
				return err
			default:
				if req.MerchantName == "" {
					req.MerchantName = txn.Description
				}
				if req.OriginalCategoryID == nil && txn.CategoryID != "" {
					original := txn.CategoryID
					req.OriginalCategoryID = &original
				}
			}

			categoryID, err := a.store.EnsureExists(ctx, to)
			if err != nil {
				return err
			}
			if categoryID != to {
				return fmt.Errorf("unknown category %q: see 'spice categories list'", to)
			}

			result, err := a.learner.Execute(ctx, req)
			if err != nil {
				return err
			}
			if txn != nil && txn.CategoryID != categoryID {
				if err := a.store.UpdateTransactionCategory(ctx, txn.ID, categoryID, model.SourceUser, 1.0); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), describeLearning(result))
			return nil
		},
	}

	cmd.Flags().StringVarP(&transactionID, "transaction", "t", "", "id of the corrected transaction (required)")
	cmd.Flags().StringVar(&to, "to", "", "correct category id (required)")
	cmd.Flags().StringVar(&from, "from", "", "category the transaction had (default: its stored category)")
	cmd.Flags().StringVarP(&merchant, "merchant", "m", "", "merchant name (default: the transaction description)")
	_ = cmd.MarkFlagRequired("transaction")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func describeLearning(result learning.Result) string {
	switch r := result.(type) {
	case *learning.CorrectionSaved:
		return cli.FormatSuccess(fmt.Sprintf("Correction saved for %s. More corrections will create a mapping.", r.Correction.MerchantNormalized))
	case *learning.MappingCreated:
		return cli.FormatSuccess(fmt.Sprintf("Learned: %s → %s (confidence %.0f%%)",
			r.Merchant.MerchantPattern, r.Merchant.CategoryID, r.Merchant.Confidence*100))
	case *learning.MappingUpdated:
		if r.PreviousCategory != r.Merchant.CategoryID {
			return cli.FormatSuccess(fmt.Sprintf("Updated: %s → %s (was %s)",
				r.Merchant.MerchantPattern, r.Merchant.CategoryID, r.PreviousCategory))
		}
		return cli.FormatSuccess(fmt.Sprintf("Reinforced: %s → %s (%d samples, confidence %.0f%%)",
			r.Merchant.MerchantPattern, r.Merchant.CategoryID, r.Merchant.SampleCount, r.Merchant.Confidence*100))
	default:
		return cli.FormatInfo(fmt.Sprintf("%v", result))
	}
}
