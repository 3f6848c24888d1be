package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-intake/internal/cli"
	"github.com/Veraticus/spice-intake/internal/export"
)

func exportCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export confirmed expenses to CSV or Excel",
		Long: `Write confirmed expenses to a file. The format follows the file
extension (.csv or .xlsx) unless --format is given. Excel workbooks carry an
extra sheet with totals per category.`,
		Example: `  intake export --output march.xlsx --from 2025-03-01 --to 2025-03-31
  intake export --user ana --output ana.csv`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, opts)
		},
	}

	addFilterFlags(cmd)
	cmd.Flags().StringP("output", "o", "", "destination file")
	cmd.Flags().String("format", "", "csv or xlsx (default: from the file extension)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runExport(cmd *cobra.Command, opts *rootOptions) (err error) {
	output, _ := cmd.Flags().GetString("output")
	formatName, _ := cmd.Flags().GetString("format")

	var format export.Format
	if formatName != "" {
		format, err = export.ParseFormat(formatName)
	} else {
		format, err = export.FormatForPath(output)
	}
	if err != nil {
		return err
	}

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

	f, err := os.Create(output) // #nosec G304 -- path supplied by the operator
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", output, err)
	}
	defer func() {
		err = errors.Join(err, f.Close())
	}()

	if err := export.Write(f, format, expenses); err != nil {
		return err
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(
		fmt.Sprintf("Exported %d expenses to %s", len(expenses), output)))
	return err
}
