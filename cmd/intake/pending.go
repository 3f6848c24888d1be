package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-intake/internal/cli"
	"github.com/Veraticus/spice-intake/internal/pipeline"
)

func pendingCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Review expenses awaiting confirmation",
		Long: `Expenses the pipeline was not confident about wait here until a user
confirms or rejects them.`,
	}

	cmd.PersistentFlags().StringP("user", "u", "", "owner of the pending expenses")
	_ = cmd.MarkPersistentFlagRequired("user")

	cmd.AddCommand(pendingListCmd(opts))
	cmd.AddCommand(pendingConfirmCmd(opts))
	cmd.AddCommand(pendingRejectCmd(opts))
	cmd.AddCommand(pendingReviewCmd(opts))

	return cmd
}

func pendingListCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List pending expenses",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")

			a, err := newApp(cmd.Context(), opts.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.pipeline.Pending(cmd.Context(), user)
			if err != nil {
				return err
			}
			return cli.RenderPendingList(cmd.OutOrStdout(), pending)
		},
	}
}

func pendingConfirmCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm <id>",
		Short: "Confirm a pending expense, optionally correcting fields",
		Example: `  intake pending confirm --user ana 01J9Z3...
  intake pending confirm --user ana --category groceries --amount 312.40 01J9Z3...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			overrides, err := overridesFromFlags(cmd)
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), opts.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			final, err := a.pipeline.Confirm(cmd.Context(), user, args[0], overrides)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Saved expense #%d: %.2f %s, %s",
				final.ID, final.Amount, final.Currency, final.Category)))
			return err
		},
	}

	cmd.Flags().String("category", "", "replace the category")
	cmd.Flags().String("subcategory", "", "replace the subcategory (empty clears it)")
	cmd.Flags().String("expense-type", "", "replace the expense type")
	cmd.Flags().String("description", "", "replace the description")
	cmd.Flags().Float64("amount", 0, "replace the amount")

	return cmd
}

// overridesFromFlags only sets fields whose flag was given, so an explicit
// empty --subcategory clears the value while an absent one keeps it.
func overridesFromFlags(cmd *cobra.Command) (pipeline.Overrides, error) {
	var o pipeline.Overrides
	flags := cmd.Flags()

	for name, dst := range map[string]**string{
		"category":     &o.Category,
		"subcategory":  &o.Subcategory,
		"expense-type": &o.ExpenseType,
		"description":  &o.Description,
	} {
		if !flags.Changed(name) {
			continue
		}
		value, _ := flags.GetString(name)
		value = strings.TrimSpace(value)
		*dst = &value
	}

	if flags.Changed("amount") {
		amount, _ := flags.GetFloat64("amount")
		if amount <= 0 {
			return o, fmt.Errorf("--amount must be positive, got %v", amount)
		}
		o.Amount = &amount
	}
	return o, nil
}

func pendingRejectCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending expense",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")

			a, err := newApp(cmd.Context(), opts.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.pipeline.Reject(cmd.Context(), user, args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning("Rejected "+args[0]))
			return err
		},
	}
}

func pendingReviewCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Walk through pending expenses interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			out := cmd.OutOrStdout()

			a, err := newApp(cmd.Context(), opts.cfg, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			pending, err := a.pipeline.Pending(cmd.Context(), user)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				return cli.RenderPendingList(out, pending)
			}

			handler := cli.NewInterruptHandler(out, "Expenses settled so far have been saved.")
			ctx, cancel := handler.HandleInterrupts(cmd.Context())
			defer cancel()

			reviewer := cli.NewReviewer(cmd.InOrStdin(), out, a.pipeline, a.logger)
			stats, err := reviewer.Review(ctx, user, pending)
			if err != nil && !handler.WasInterrupted() {
				return err
			}

			summary := fmt.Sprintf("Confirmed: %d\nRejected: %d\nSkipped: %d",
				stats.Confirmed, stats.Rejected, stats.Skipped)
			_, err = fmt.Fprintln(out, cli.RenderBox("Review Summary", summary))
			return err
		},
	}
}
