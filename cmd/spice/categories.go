package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-import/internal/cli"
	"github.com/Veraticus/spice-import/internal/model"
)

func categoriesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Manage categories",
		Long:  `List, add and remove the categories transactions are sorted into.`,
	}

	cmd.AddCommand(listCategoriesCmd())
	cmd.AddCommand(addCategoryCmd())
	cmd.AddCommand(deleteCategoryCmd())

	return cmd
}

func listCategoriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active categories",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, appConfig)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			categories, err := store.GetCategories(ctx)
			if err != nil {
				return fmt.Errorf("failed to get categories: %w", err)
			}
			if len(categories) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No categories yet. They are created as imports need them."))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			defer w.Flush()
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				cli.BoldStyle.Render("ID"),
				cli.BoldStyle.Render("Name"),
				cli.BoldStyle.Render("Type"),
				cli.BoldStyle.Render("Description"))
			for _, c := range categories {
				desc := c.Description
				if desc == "" {
					desc = cli.SubtleStyle.Render("(no description)")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Type, desc)
			}
			return nil
		},
	}
}

func addCategoryCmd() *cobra.Command {
	var name, description, kind string

	cmd := &cobra.Command{
		Use:   "add ID",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, appConfig)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			categoryType := model.CategoryType(kind)
			switch categoryType {
			case model.CategoryTypeExpense, model.CategoryTypeIncome, model.CategoryTypeSystem:
			default:
				return fmt.Errorf("invalid category type %q: use expense, income or system", kind)
			}

			created, err := store.CreateCategory(ctx, model.Category{
				ID:          args[0],
				Name:        name,
				Description: description,
				Type:        categoryType,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Category %s (%s) is active", created.ID, created.Name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name (default: the id)")
	cmd.Flags().StringVar(&description, "description", "", "description shown to the categorization models")
	cmd.Flags().StringVar(&kind, "type", string(model.CategoryTypeExpense), "category type (expense, income, system)")
	return cmd
}

func deleteCategoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Deactivate a category",
		Long: `Hide a category from listings and from categorization. Transactions keep their
category; adding the category again reactivates it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx, appConfig)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.DeactivateCategory(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Deactivated "+args[0]))
			return nil
		},
	}
}
