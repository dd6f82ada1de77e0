package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-import/internal/cli"
	"github.com/Veraticus/spice-import/internal/detect"
	"github.com/Veraticus/spice-import/internal/model"
)

func detectCmd() *cobra.Command {
	var textFile string

	cmd := &cobra.Command{
		Use:   "detect FILE...",
		Short: "Show how statements would be read",
		Long: `Report the document type, CSV delimiter, text encoding and issuing bank of each
file without importing anything.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				if err := describeDocument(cmd.OutOrStdout(), path, textFile); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&textFile, "text", "", "extracted text used to recognize the bank of a scanned statement")
	return cmd
}

func describeDocument(w io.Writer, path, textFile string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	d := detect.Detect(filepath.Base(path), content)

	fmt.Fprintln(w, cli.FormatTitle(filepath.Base(path)))
	fmt.Fprintf(w, "  Type:      %s\n", d.Type)
	fmt.Fprintf(w, "  Encoding:  %s\n", d.Encoding)
	if d.Type == model.DocumentCSV {
		fmt.Fprintf(w, "  Delimiter: %q\n", d.Delimiter)
	}

	var text string
	switch {
	case textFile != "":
		raw, err := os.ReadFile(textFile)
		if err != nil {
			return fmt.Errorf("failed to read extracted text: %w", err)
		}
		text = string(raw)
	case !d.Type.IsScanned():
		text, err = detect.Decode(content)
		if err != nil {
			return fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}

	if bank := detect.DetectBankSignature(text); bank != nil {
		fmt.Fprintf(w, "  Bank:      %s (%s, %s, %s dates, decimal %q)\n",
			bank.Name, bank.Country, bank.Currency, bank.DateOrder, bank.DecimalSeparator)
	} else {
		fmt.Fprintln(w, "  Bank:      "+cli.SubtleStyle.Render("not recognized"))
	}
	if d.Type == model.DocumentUnknown {
		fmt.Fprintln(w, cli.FormatWarning("Unsupported format: import will fail"))
	}
	return nil
}
