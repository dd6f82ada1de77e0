package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-import/internal/cli"
	"github.com/Veraticus/spice-import/internal/common"
	"github.com/Veraticus/spice-import/internal/importer"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/parser"
	"github.com/Veraticus/spice-import/internal/tui"
)

type importOptions struct {
	accountID   string
	textFile    string
	currency    string
	yes         bool
	interactive bool
	dryRun      bool
}

func importCmd() *cobra.Command {
	var opts importOptions

	cmd := &cobra.Command{
		Use:   "import FILE",
		Short: "Import a bank statement",
		Long: `Parse a bank statement, flag duplicates against the account's history and
categorize every row. Nothing is saved until you confirm the preview.

Supported formats: CSV, OFX/QFX, QIF, and PDF or image statements whose text was
extracted beforehand (pass it with --text).`,
		Example: `  spice import statement.csv --account checking
  spice import march.ofx --account savings --interactive
  spice import scan.pdf --account checking --text scan.txt --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.accountID, "account", "a", "", "account the transactions belong to (required)")
	cmd.Flags().StringVar(&opts.textFile, "text", "", "extracted text of a PDF or image statement")
	cmd.Flags().StringVar(&opts.currency, "currency", "", "currency for amounts without a currency marker (default from config)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "save the preselected rows without asking")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "review and edit the preview before saving")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show the preview without saving anything")
	_ = cmd.MarkFlagRequired("account")
	cmd.MarkFlagsMutuallyExclusive("yes", "interactive")

	return cmd
}

func runImport(cmd *cobra.Command, path string, opts importOptions) error {
	out := cmd.OutOrStdout()

	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	var extracted string
	if opts.textFile != "" {
		text, err := os.ReadFile(opts.textFile)
		if err != nil {
			return fmt.Errorf("failed to read extracted text: %w", err)
		}
		extracted = string(text)
	}
	currency := opts.currency
	if currency == "" {
		currency = appConfig.Import.Currency
	}

	a, err := newApp(cmd.Context(), appConfig)
	if err != nil {
		return err
	}
	defer a.Close()

	handler := cli.NewInterruptHandler(out)
	ctx, stop := handler.HandleInterrupts(cmd.Context(), a.orchestrator.CancelImport)
	defer stop()

	result := a.parser.Parse(ctx, parser.Request{
		Filename:      filepath.Base(path),
		Content:       content,
		ExtractedText: extracted,
		Currency:      currency,
	})
	if parseErr, ok := result.(*model.ImportError); ok {
		return common.NewUserError("could not import "+filepath.Base(path), parseErr)
	}

	renderer := cli.RenderImportProgress(cmd.ErrOrStderr(), a.orchestrator.Progress())
	preview, err := a.orchestrator.StartImport(ctx, result, opts.accountID)
	renderer.Stop()
	if err != nil {
		if handler.WasInterrupted() {
			return nil
		}
		return err
	}

	fmt.Fprintln(out, cli.RenderPreview(*preview))
	fmt.Fprintln(out, cli.RenderSourceBreakdown(*preview))

	if opts.dryRun {
		a.orchestrator.Reset()
		fmt.Fprintln(out, cli.FormatInfo("Dry run: nothing was saved."))
		return nil
	}

	confirmed, err := review(ctx, cmd, a, preview, opts)
	if err != nil {
		if handler.WasInterrupted() {
			return nil
		}
		return err
	}
	if !confirmed {
		a.orchestrator.CancelImport()
		fmt.Fprintln(out, cli.FormatWarning("Import cancelled. Nothing was saved."))
		return nil
	}

	completed, err := a.orchestrator.ConfirmImport(ctx, nil, nil, "")
	if err != nil {
		if handler.WasInterrupted() {
			return nil
		}
		return err
	}
	common.LogInfo("Import saved", common.Fields{
		"account": opts.accountID,
		"file":    filepath.Base(path),
		"saved":   completed.SavedCount,
	})
	fmt.Fprintln(out, cli.RenderCompleted(*completed))
	return nil
}

// review decides whether to save the preview: through the review screen, the --yes flag or a prompt.
func review(ctx context.Context, cmd *cobra.Command, a *app, preview *importer.Preview, opts importOptions) (bool, error) {
	if !opts.interactive && preview.SelectedCount() == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No new transactions to save."))
		return false, nil
	}

	switch {
	case opts.interactive:
		categories, err := a.store.GetCategories(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to load categories: %w", err)
		}
		outcome, err := tui.RunReview(ctx, a.orchestrator, categories)
		if err != nil {
			return false, err
		}
		return outcome == tui.OutcomeConfirmed, nil
	case opts.yes:
		return true, nil
	default:
		reader := cli.NewNonBlockingReader(cmd.InOrStdin())
		return reader.Confirm(ctx, cmd.OutOrStdout(), fmt.Sprintf("Save %d transactions?", preview.SelectedCount()))
	}
}
