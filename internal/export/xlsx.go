package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/Veraticus/spice-intake/internal/model"
)

// Sheet names in the workbook.
const (
	SheetExpenses = "Expenses"
	SheetSummary  = "Summary"
)

var summaryColumns = []string{"category", "currency", "count", "total"}

// WriteXLSX writes a workbook with an Expenses sheet and a per-category
// Summary sheet.
func WriteXLSX(w io.Writer, expenses []model.FinalExpense) (err error) {
	f := excelize.NewFile()
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if err := f.SetSheetName("Sheet1", SheetExpenses); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return fmt.Errorf("failed to add summary sheet: %w", err)
	}

	header, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeRow(f, SheetExpenses, 1, toAny(Columns)); err != nil {
		return err
	}
	for i, e := range expenses {
		if err := writeRow(f, SheetExpenses, i+2, expenseRow(e)); err != nil {
			return err
		}
	}

	if err := writeRow(f, SheetSummary, 1, toAny(summaryColumns)); err != nil {
		return err
	}
	for i, s := range Summarize(expenses) {
		total, _ := s.Total.Round(2).Float64()
		if err := writeRow(f, SheetSummary, i+2, []any{s.Category, s.Currency, s.Count, total}); err != nil {
			return err
		}
	}

	for _, sheet := range []struct {
		name string
		last string
	}{
		{SheetExpenses, "M1"},
		{SheetSummary, "D1"},
	} {
		if err := f.SetCellStyle(sheet.name, "A1", sheet.last, header); err != nil {
			return fmt.Errorf("failed to style %s header: %w", sheet.name, err)
		}
	}
	if err := f.SetColWidth(SheetExpenses, "B", "M", 16); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func expenseRow(e model.FinalExpense) []any {
	return []any{
		e.ID,
		e.ExpenseDate.Format(time.DateOnly),
		e.UserID,
		e.ProviderName,
		e.Amount,
		e.Currency,
		e.Category,
		deref(e.Subcategory),
		e.ExpenseType,
		string(e.InitialProcessingMethod),
		e.ConfirmedBy,
		e.ConfirmedAt.UTC().Format(time.RFC3339),
		deref(e.Description),
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
