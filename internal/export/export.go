// Package export writes confirmed expenses to spreadsheet formats.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/spice-intake/internal/model"
)

// ErrUnknownFormat is returned for export formats other than csv and xlsx.
var ErrUnknownFormat = errors.New("unknown export format")

// Format is an output file format.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts "csv" or "xlsx" in any case, with or without a dot.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")); f {
	case FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
	}
}

// FormatForPath picks the format from a file extension.
func FormatForPath(path string) (Format, error) {
	return ParseFormat(filepath.Ext(path))
}

// Columns is the header row shared by every format.
var Columns = []string{
	"id", "date", "user_id", "provider", "amount", "currency", "category",
	"subcategory", "expense_type", "method", "confirmed_by", "confirmed_at",
	"description",
}

// SummaryRow totals one category in one currency.
type SummaryRow struct {
	Category string
	Currency string
	Total    decimal.Decimal
	Count    int
}

// Summarize totals expenses per category and currency, largest first.
// Amounts are summed as decimals so cents do not drift.
func Summarize(expenses []model.FinalExpense) []SummaryRow {
	type key struct{ category, currency string }
	index := make(map[key]int)
	var rows []SummaryRow

	for _, e := range expenses {
		k := key{e.Category, strings.ToUpper(e.Currency)}
		i, ok := index[k]
		if !ok {
			i = len(rows)
			index[k] = i
			rows = append(rows, SummaryRow{Category: k.category, Currency: k.currency})
		}
		rows[i].Count++
		rows[i].Total = rows[i].Total.Add(decimal.NewFromFloat(e.Amount))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if c := rows[i].Total.Cmp(rows[j].Total); c != 0 {
			return c > 0
		}
		if rows[i].Category != rows[j].Category {
			return rows[i].Category < rows[j].Category
		}
		return rows[i].Currency < rows[j].Currency
	})
	return rows
}

// Write encodes expenses in the given format.
func Write(w io.Writer, format Format, expenses []model.FinalExpense) error {
	switch format {
	case FormatCSV:
		return WriteCSV(w, expenses)
	case FormatXLSX:
		return WriteXLSX(w, expenses)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteCSV writes a header row and one row per expense.
func WriteCSV(w io.Writer, expenses []model.FinalExpense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range expenses {
		if err := cw.Write(record(e)); err != nil {
			return fmt.Errorf("failed to write expense %d: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func record(e model.FinalExpense) []string {
	return []string{
		strconv.FormatInt(e.ID, 10),
		e.ExpenseDate.Format(time.DateOnly),
		e.UserID,
		e.ProviderName,
		decimal.NewFromFloat(e.Amount).StringFixed(2),
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

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
