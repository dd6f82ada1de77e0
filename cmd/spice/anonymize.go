package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-import/internal/cli"
	"github.com/Veraticus/spice-import/internal/privacy"
)

func anonymizeCmd() *cobra.Command {
	var showMapping bool

	cmd := &cobra.Command{
		Use:   "anonymize [TEXT]",
		Short: "Show what a cloud provider would see",
		Long: `Replace personal data (emails, IBANs, card and account numbers, phone numbers and
names of people) with placeholders, exactly as done before text is sent to a cloud
provider. Reads standard input when no text is given.`,
		Example: `  spice anonymize "TRANSFER TO John Smith IBAN DE89 3704 0044 0532 0130 00"
  cat statement.csv | spice anonymize --mapping`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var text string
			if len(args) == 1 {
				text = args[0]
			} else {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read input: %w", err)
				}
				text = string(raw)
			}

			result := privacy.NewAnonymizer().Anonymize(text)
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, strings.TrimRight(result.AnonymizedText, "\n"))

			if !result.WasModified {
				fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatInfo("No personal data found."))
				return nil
			}
			if showMapping {
				fmt.Fprintln(out)
				for _, p := range result.Mapping.Placeholders() {
					original, _ := result.Mapping.Original(p)
					fmt.Fprintf(out, "%s  %s\n", cli.BoldStyle.Render(p), original)
				}
			} else {
				fmt.Fprintln(cmd.ErrOrStderr(), cli.SubtleStyle.Render(
					fmt.Sprintf("%d placeholders; the mapping stays on this machine", result.Mapping.Len())))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showMapping, "mapping", false, "also print each placeholder with the text it replaced")
	return cmd
}
