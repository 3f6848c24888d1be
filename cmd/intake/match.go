package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Veraticus/spice-intake/internal/cli"
	"github.com/Veraticus/spice-intake/internal/model"
)

func matchCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match [description...]",
		Short: "Check how descriptions match the provider and keyword tables",
		Long: `Run descriptions through the matching engine without calling the LLM or
touching the database. Useful after editing the lookup tables.`,
		Example: `  intake match "uber eats tacos" "gasolina pemex"
  intake match --file descriptions.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			descriptions := args
			if path != "" {
				lines, err := readLines(path)
				if err != nil {
					return err
				}
				descriptions = append(descriptions, lines...)
			}
			if len(descriptions) == 0 {
				return fmt.Errorf("nothing to match: pass descriptions or --file")
			}

			engine := newMatcher(opts.cfg.Tables, slog.Default())
			out := cmd.OutOrStdout()
			for _, d := range descriptions {
				m, err := engine.Match(cmd.Context(), d)
				if err != nil {
					return err
				}
				if err := writeMatch(out, d, m); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringP("file", "f", "", "read one description per line from this file")

	return cmd
}

func writeMatch(w io.Writer, description string, m model.MatchMetadata) error {
	var b strings.Builder
	b.WriteString(cli.FormatTitle(fmt.Sprintf("%q", description)))
	b.WriteString("\n")
	if !m.Matched() {
		b.WriteString("  " + cli.FormatWarning("No match found.") + "\n")
	} else {
		fmt.Fprintf(&b, "  Type:         %s\n", m.MatchType)
		fmt.Fprintf(&b, "  Name:         %s\n", m.MatchedName)
		fmt.Fprintf(&b, "  Category:     %s\n", m.Category)
		fmt.Fprintf(&b, "  Subcategory:  %s\n", valueOrDash(m.Subcategory))
		fmt.Fprintf(&b, "  Expense Type: %s\n", valueOrDash(m.ExpenseType))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func valueOrDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
