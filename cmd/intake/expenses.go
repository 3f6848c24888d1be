package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-intake/internal/cli"
	"github.com/Veraticus/spice-intake/internal/export"
	"github.com/Veraticus/spice-intake/internal/service"
)

func expensesCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "expenses",
		Aliases: []string{"list"},
		Short:   "List confirmed expenses",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, err := filterFromFlags(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			expenses, err := a.store.ListExpenses(cmd.Context(), filter)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := cli.RenderExpenses(out, expenses); err != nil {
				return err
			}
			if len(expenses) == 0 {
				return nil
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, cli.FormatTitle("Totals"))
			for _, row := range export.Summarize(expenses) {
				fmt.Fprintf(out, "  %-18s %12s %s  (%d)\n", row.Category, row.Total.StringFixed(2), row.Currency, row.Count)
			}
			return nil
		},
	}

	addFilterFlags(cmd)
	cmd.Flags().Int("limit", 50, "maximum number of expenses to show (0 for all)")

	return cmd
}

func addFilterFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("user", "u", "", "only expenses of this user")
	cmd.Flags().String("from", "", "start date (YYYY-MM-DD)")
	cmd.Flags().String("to", "", "end date (YYYY-MM-DD)")
	cmd.Flags().String("category", "", "only this category")
}

func filterFromFlags(cmd *cobra.Command) (service.ExpenseFilter, error) {
	var filter service.ExpenseFilter
	flags := cmd.Flags()

	filter.UserID, _ = flags.GetString("user")
	filter.Category, _ = flags.GetString("category")
	if flags.Lookup("limit") != nil {
		filter.Limit, _ = flags.GetInt("limit")
	}

	var err error
	from, _ := flags.GetString("from")
	if filter.StartDate, err = parseDate("from", from); err != nil {
		return filter, err
	}
	to, _ := flags.GetString("to")
	if filter.EndDate, err = parseDate("to", to); err != nil {
		return filter, err
	}
	return filter, nil
}

func parseDate(flag, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("invalid --%s date %q (expected YYYY-MM-DD): %w", flag, value, err)
	}
	return &t, nil
}
