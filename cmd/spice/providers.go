package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-import/internal/cli"
	"github.com/Veraticus/spice-import/internal/llm"
)

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show the configured categorization providers",
		Long: `List every configured model provider with its availability, then the order in
which providers are tried for each kind of request.

Cloud providers are enabled by setting an API key (OPENAI_API_KEY, ANTHROPIC_API_KEY,
GEMINI_API_KEY) or the matching llm.<provider>.api_key config entry.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appConfig)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			providers := a.providers.Providers()
			if len(providers) == 0 {
				fmt.Fprintln(out, cli.FormatWarning("No providers configured: every transaction falls back to rules and history."))
				return nil
			}

			fmt.Fprintln(out, cli.FormatTitle("Providers"))
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				cli.BoldStyle.Render("Name"),
				cli.BoldStyle.Render("Where"),
				cli.BoldStyle.Render("Class"),
				cli.BoldStyle.Render("Cost"),
				cli.BoldStyle.Render("Status"))
			for _, p := range providers {
				where := cli.CloudIcon + " cloud"
				if p.IsLocal() {
					where = cli.LocalIcon + " local"
				}
				status := cli.SuccessStyle.Render("available")
				if !p.IsAvailable(ctx) {
					status = cli.WarningStyle.Render("unavailable")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", p.Name(), where, p.Profile().Class, p.Profile().CostTier, status)
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, cli.FormatTitle("Fallback order"))
			for _, pref := range llm.Preferences() {
				chain, err := a.providers.GetProvidersWithFallback(ctx, pref)
				if err != nil {
					fmt.Fprintf(out, "  %-18s %s\n", pref, cli.SubtleStyle.Render("none"))
					continue
				}
				names := make([]string, len(chain))
				for i, p := range chain {
					names[i] = p.Name()
				}
				fmt.Fprintf(out, "  %-18s %s\n", pref, strings.Join(names, " → "))
			}
			return nil
		},
	}
}
