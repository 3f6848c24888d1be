// Package storage provides the data persistence layer for confirmed and pending expenses.
package storage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Veraticus/spice-intake/internal/model"
)

// Validation errors.
var (
	ErrNilContext       = errors.New("context cannot be nil")
	ErrEmptyString      = errors.New("string parameter cannot be empty")
	ErrNilParameter     = errors.New("parameter cannot be nil")
	ErrInvalidStatus    = errors.New("invalid expense status")
	ErrInvalidExpense   = errors.New("invalid expense")
	ErrInvalidPending   = errors.New("invalid pending expense")
	ErrInvalidDateRange = errors.New("start date must be before end date")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateExpense checks the columns the expenses table declares NOT NULL.
func validateExpense(expense *model.FinalExpense) error {
	if expense == nil {
		return fmt.Errorf("%w: expense", ErrNilParameter)
	}
	if strings.TrimSpace(expense.UserID) == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidExpense)
	}
	if strings.TrimSpace(expense.ProviderName) == "" {
		return fmt.Errorf("%w: missing provider name", ErrInvalidExpense)
	}
	if math.IsNaN(expense.Amount) || math.IsInf(expense.Amount, 0) {
		return fmt.Errorf("%w: amount must be finite, got %v", ErrInvalidExpense, expense.Amount)
	}
	if expense.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %.2f", ErrInvalidExpense, expense.Amount)
	}
	if strings.TrimSpace(expense.Currency) == "" {
		return fmt.Errorf("%w: missing currency", ErrInvalidExpense)
	}
	if expense.ExpenseDate.IsZero() {
		return fmt.Errorf("%w: missing expense date", ErrInvalidExpense)
	}
	if strings.TrimSpace(expense.Category) == "" {
		return fmt.Errorf("%w: missing category", ErrInvalidExpense)
	}
	if strings.TrimSpace(expense.ExpenseType) == "" {
		return fmt.Errorf("%w: missing expense type", ErrInvalidExpense)
	}
	if strings.TrimSpace(expense.ConfirmedBy) == "" {
		return fmt.Errorf("%w: missing confirmer", ErrInvalidExpense)
	}
	return nil
}

// validatePending validates a deferred expense before it is stored.
func validatePending(pending *model.PendingExpense) error {
	if pending == nil {
		return fmt.Errorf("%w: pending expense", ErrNilParameter)
	}
	if strings.TrimSpace(pending.ID) == "" {
		return fmt.Errorf("%w: missing ID", ErrInvalidPending)
	}
	if strings.TrimSpace(pending.Provisional.UserID) == "" {
		return fmt.Errorf("%w: missing user ID", ErrInvalidPending)
	}
	if pending.Provisional.Extracted.RawText == "" {
		return fmt.Errorf("%w: missing raw text", ErrInvalidPending)
	}
	return validateStatus(pending.Status)
}

func validateStatus(status model.ExpenseStatus) error {
	switch status {
	case model.StatusAwaitingConfirmation, model.StatusConfirmed, model.StatusRejected:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
}
