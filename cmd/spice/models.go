package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-import/internal/cli"
	"github.com/Veraticus/spice-import/internal/model"
	"github.com/Veraticus/spice-import/internal/modelstore"
)

func modelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "Manage on-device categorization models",
		Long: `Download, select and remove the models used to categorize transactions on this
machine. The selected model runs before any cloud provider is asked.`,
	}

	cmd.AddCommand(listModelsCmd())
	cmd.AddCommand(downloadModelCmd())
	cmd.AddCommand(selectModelCmd())
	cmd.AddCommand(deleteModelCmd())
	cmd.AddCommand(cancelModelCmd())

	return cmd
}

// withModels opens the store and runs fn with a model manager over it.
func withModels(ctx context.Context, fn func(m *modelstore.Manager) error) error {
	store, err := openStore(ctx, appConfig)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(modelstore.NewManager(store, appConfig.Models.Dir))
}

func listModelsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List installed and downloadable models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withModels(cmd.Context(), func(m *modelstore.Manager) error {
				installed, err := m.InstalledModels(cmd.Context())
				if err != nil {
					return err
				}
				byID := make(map[string]model.InstalledModel, len(installed))
				for _, im := range installed {
					byID[im.ID] = im
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				defer w.Flush()
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					cli.BoldStyle.Render(""),
					cli.BoldStyle.Render("ID"),
					cli.BoldStyle.Render("Name"),
					cli.BoldStyle.Render("Status"))

				for _, entry := range appConfig.Models.Catalog {
					im, ok := byID[entry.ID]
					delete(byID, entry.ID)
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", selectedMark(im), entry.ID, entry.Name, modelStatus(im, ok, entry.SizeBytes))
				}
				// Models installed from an older catalog.
				for _, im := range installed {
					if _, ok := byID[im.ID]; ok {
						fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", selectedMark(im), im.ID, im.Name, modelStatus(im, true, im.SizeBytes))
					}
				}
				return nil
			})
		},
	}
}

func selectedMark(im model.InstalledModel) string {
	if im.Selected {
		return cli.SuccessStyle.Render("*")
	}
	return " "
}

func modelStatus(im model.InstalledModel, installed bool, size int64) string {
	if !installed {
		if size > 0 {
			return cli.SubtleStyle.Render(fmt.Sprintf("available (%s)", formatBytes(size)))
		}
		return cli.SubtleStyle.Render("available")
	}
	switch im.Status {
	case model.ModelStatusReady:
		return cli.SuccessStyle.Render(fmt.Sprintf("ready (%s)", formatBytes(im.SizeBytes)))
	case model.ModelStatusCorrupted:
		return cli.ErrorStyle.Render("corrupted: delete and download again")
	default:
		return cli.WarningStyle.Render(string(im.Status))
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func downloadModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "download ID",
		Short: "Download a model from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, ok := appConfig.FindModel(args[0])
			if !ok {
				return fmt.Errorf("model %q is not in the catalog: see 'spice models list'", args[0])
			}

			return withModels(cmd.Context(), func(m *modelstore.Manager) error {
				handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
				ctx, stop := handler.HandleInterrupts(cmd.Context(), func() { m.CancelDownload(entry.ID) })
				defer stop()

				renderer := cli.RenderDownloadProgress(cmd.ErrOrStderr(), m.Progress(), entry.ID)
				installed, err := m.DownloadModel(ctx, modelstore.CatalogEntry{
					ID:        entry.ID,
					Name:      entry.Name,
					URL:       entry.URL,
					SHA256:    entry.SHA256,
					SizeBytes: entry.SizeBytes,
				})
				renderer.Stop()
				if err != nil {
					if handler.WasInterrupted() || errors.Is(err, context.Canceled) {
						fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("Download cancelled."))
						return nil
					}
					return err
				}

				msg := fmt.Sprintf("Downloaded %s (%s)", installed.ID, formatBytes(installed.SizeBytes))
				if installed.Selected {
					msg += ", selected"
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(msg))
				return nil
			})
		},
	}
}

func selectModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "select ID",
		Short: "Use an installed model for on-device categorization",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModels(cmd.Context(), func(m *modelstore.Manager) error {
				if err := m.SelectModel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Selected "+args[0]))
				return nil
			})
		},
	}
}

func deleteModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Remove an installed model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModels(cmd.Context(), func(m *modelstore.Manager) error {
				if err := m.DeleteModel(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deleted "+args[0]))
				return nil
			})
		},
	}
}

func cancelModelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel ID",
		Short: "Discard an interrupted download",
		Long: `Remove the record and partial file of a download that did not finish, for
example because the process was killed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withModels(cmd.Context(), func(m *modelstore.Manager) error {
				if err := m.DiscardIncomplete(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Discarded download of "+args[0]))
				return nil
			})
		},
	}
}
