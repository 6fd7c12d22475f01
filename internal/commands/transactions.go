package commands

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"financeflow/internal/core"
	"financeflow/internal/services"
)

func newInitCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the ledger database with the default categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.repo.SeedUser(ctx, a.userID, username(a.userID)); err != nil {
				return fmt.Errorf("seeding user %d: %w", a.userID, err)
			}
			cats, err := a.ledger.GetAllCategories(ctx, a.userID, "")
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Ledger ready at %s (%d categories)\n", a.dbPath, len(cats))
			return nil
		},
	}
}

// username names users created from the command line; the default user keeps
// the name the schema seeds it with.
func username(userID int64) string {
	if userID == core.DefaultUserID {
		return core.DefaultUsername
	}
	return fmt.Sprintf("user_%d", userID)
}

func newAddCommand(a *app) *cobra.Command {
	var typ, amount, category, date, description string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an income or expense",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			amt, err := core.ParseAmount(amount)
			if err != nil {
				return err
			}
			day := a.ledger.Today()
			if date != "" {
				if day, err = core.ParseDate(date); err != nil {
					return err
				}
			}

			t, err := a.ledger.AddTransaction(cmd.Context(), services.AddTransactionParams{
				UserID:      a.userID,
				Type:        typ,
				Amount:      amt,
				Category:    category,
				Date:        day,
				Description: description,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added #%d: %s %s %s on %s\n",
				t.ID, t.Type, t.Amount.StringFixed(2), t.Category, t.Date)
			return nil
		},
	}

	cmd.Flags().StringVar(&typ, "type", "", "Income or Expense (required)")
	cmd.Flags().StringVar(&amount, "amount", "", "positive amount, e.g. 12.50 (required)")
	cmd.Flags().StringVar(&category, "category", "", "category name (required)")
	cmd.Flags().StringVar(&date, "date", "", "transaction date (YYYY-MM-DD, default today)")
	cmd.Flags().StringVar(&description, "description", "", "free-text note")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("category")

	return cmd
}

func newListCommand(a *app) *cobra.Command {
	var rng rangeFlags
	var category string
	var limit, offset int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List transactions, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := rng.resolve(lastThirtyDays(a.ledger.Today()))
			if err != nil {
				return err
			}
			txs, err := a.ledger.GetTransactions(cmd.Context(), core.TransactionFilter{
				UserID:   a.userID,
				Range:    r,
				Category: category,
				Limit:    limit,
				Offset:   offset,
			})
			if err != nil {
				return err
			}
			if len(txs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No transactions found.")
				return nil
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tTYPE\tCATEGORY\tAMOUNT\tDESCRIPTION")
			for _, t := range txs {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Date, t.Type, t.Category, t.Amount.StringFixed(2), t.Description)
			}
			return tw.Flush()
		},
	}

	rng.register(cmd)
	cmd.Flags().StringVar(&category, "category", "", "only this category (\"All\" for every category)")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum rows (0 for all)")
	cmd.Flags().IntVar(&offset, "offset", 0, "rows to skip")

	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transaction",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return &core.ValidationError{Field: "transaction id", Err: core.ErrInvalidTransactionID}
			}
			deleted, err := a.ledger.DeleteTransaction(cmd.Context(), a.userID, id)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("transaction %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted #%d\n", id)
			return nil
		},
	}
}
