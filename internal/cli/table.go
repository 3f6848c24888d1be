package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Veraticus/spice-intake/internal/model"
)

// RenderExpenses writes confirmed expenses as an aligned table.
func RenderExpenses(w io.Writer, expenses []model.FinalExpense) error {
	if len(expenses) == 0 {
		_, err := fmt.Fprintln(w, FormatInfo("No expenses found."))
		return err
	}

	header := fmt.Sprintf("%-6s  %-10s  %-24s  %12s  %-4s  %-18s  %s",
		"ID", "Date", "Provider", "Amount", "Cur", "Category", "Method")
	if _, err := fmt.Fprintln(w, TableHeaderStyle.Render(header)); err != nil {
		return err
	}

	for _, e := range expenses {
		if _, err := fmt.Fprintf(w, "%-6d  %-10s  %-24s  %12.2f  %-4s  %-18s  %s\n",
			e.ID,
			e.ExpenseDate.Format(time.DateOnly),
			clip(e.ProviderName, 24),
			e.Amount,
			e.Currency,
			clip(e.Category, 18),
			e.InitialProcessingMethod,
		); err != nil {
			return err
		}
	}
	return nil
}

// RenderPendingList writes one line per pending expense.
func RenderPendingList(w io.Writer, pending []model.PendingExpense) error {
	if len(pending) == 0 {
		_, err := fmt.Fprintln(w, FormatSuccess("Nothing awaiting review."))
		return err
	}
	for _, p := range pending {
		ext := p.Provisional.Extracted
		amount := "?"
		if ext.HasAmount() {
			amount = fmt.Sprintf("%.2f %s", *ext.Amount, ext.Currency)
		}
		if _, err := fmt.Fprintf(w, "%s  %s  %-14s  %.2f  %s\n",
			p.ID,
			p.Provisional.CreatedAt.Format(time.DateOnly),
			amount,
			p.Provisional.ConfidenceScore,
			clip(ext.DescriptionOr(ext.RawText), 48),
		); err != nil {
			return err
		}
	}
	return nil
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-1]) + "…"
}
