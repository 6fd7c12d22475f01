package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"financeflow/internal/core"
	"financeflow/internal/export"
)

func newSummaryCommand(a *app) *cobra.Command {
	var rng rangeFlags

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show income, expenses and balance for a period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rng.resolve(lastThirtyDays(a.ledger.Today()))
			if err != nil {
				return err
			}
			sum, err := a.ledger.GetSummary(cmd.Context(), a.userID, r)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Period:       %s to %s\n", r.Start, r.End)
			fmt.Fprintf(out, "Income:       %s\n", sum.TotalIncome.StringFixed(2))
			fmt.Fprintf(out, "Expenses:     %s\n", sum.TotalExpense.StringFixed(2))
			fmt.Fprintf(out, "Balance:      %s\n", sum.Balance.StringFixed(2))
			fmt.Fprintf(out, "Transactions: %d\n", sum.TransactionCount)
			return nil
		},
	}

	rng.register(cmd)
	return cmd
}

func newCategoriesCommand(a *app) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "categories",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			names, err := a.ledger.GetAllCategories(cmd.Context(), a.userID, typ)
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "only Income or Expense categories")

	cmd.AddCommand(newCategoryAddCommand(a))
	return cmd
}

func newCategoryAddCommand(a *app) *cobra.Command {
	var typ string

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			created, err := a.ledger.EnsureCategory(cmd.Context(), a.userID, args[0], typ)
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Added category %s\n", strings.TrimSpace(args[0]))
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Category %s already exists\n", strings.TrimSpace(args[0]))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typ, "type", "", "Income or Expense (required)")
	_ = cmd.MarkFlagRequired("type")
	return cmd
}

func newBreakdownCommand(a *app) *cobra.Command {
	var rng rangeFlags
	var limit int

	cmd := &cobra.Command{
		Use:   "breakdown",
		Short: "Show expenses per category, largest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rng.resolve(monthToDate(a.ledger.Today()))
			if err != nil {
				return err
			}
			items, err := a.ledger.GetExpenseByCategory(cmd.Context(), a.userID, r, limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No expenses in this period.")
				return nil
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "CATEGORY\tAMOUNT\t")
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t\n", it.Category, it.Amount.StringFixed(2))
			}
			return tw.Flush()
		},
	}

	rng.register(cmd)
	cmd.Flags().IntVar(&limit, "limit", 0, "top N categories (0 for all)")
	return cmd
}

func newTrendCommand(a *app) *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show monthly income, expenses and balance",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			trend, err := a.ledger.GetMonthlyTrend(cmd.Context(), a.userID, months)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', tabwriter.AlignRight)
			fmt.Fprintln(tw, "MONTH\tINCOME\tEXPENSE\tBALANCE\t")
			for _, m := range trend {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n",
					m.Month, m.Income.StringFixed(2), m.Expense.StringFixed(2), m.Balance.StringFixed(2))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&months, "months", 12, "number of past months besides the current one")
	return cmd
}

func newExportCommand(a *app) *cobra.Command {
	var rng rangeFlags
	var category, format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export transactions as CSV or XLSX",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(strings.ToLower(format))
			if err != nil {
				return err
			}
			r, err := rng.resolve(lastThirtyDays(a.ledger.Today()))
			if err != nil {
				return err
			}
			txs, err := a.ledger.GetTransactions(cmd.Context(), core.TransactionFilter{
				UserID:   a.userID,
				Range:    r,
				Category: category,
			})
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				file, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer file.Close()
				w = file
			}
			if err := export.Write(w, f, txs); err != nil {
				return err
			}
			if output != "" && output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d transactions to %s\n", len(txs), output)
			}
			return nil
		},
	}

	rng.register(cmd)
	cmd.Flags().StringVar(&category, "category", "", "only this category")
	cmd.Flags().StringVar(&format, "format", string(export.FormatCSV), "csv or xlsx")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}
