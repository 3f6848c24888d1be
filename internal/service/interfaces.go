// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"time"

	"github.com/Veraticus/spice-intake/internal/model"
)

// ExpenseFilter defines filtering options for expense queries.
type ExpenseFilter struct {
	StartDate *time.Time
	EndDate   *time.Time
	UserID    string
	Category  string
	Limit     int
	Offset    int
}

// ExpenseStore defines the contract for our persistence layer.
type ExpenseStore interface {
	// Confirmed expenses
	SaveExpense(ctx context.Context, expense *model.FinalExpense) (int64, error)
	GetExpense(ctx context.Context, id int64) (*model.FinalExpense, error)
	ListExpenses(ctx context.Context, filter ExpenseFilter) ([]model.FinalExpense, error)

	// Deferred expenses awaiting manual confirmation
	SavePending(ctx context.Context, pending *model.PendingExpense) error
	GetPending(ctx context.Context, id string) (*model.PendingExpense, error)
	ListPending(ctx context.Context, userID string) ([]model.PendingExpense, error)
	// UpdatePendingStatus moves a record from one status to another and fails
	// when the record is not currently in the from status.
	UpdatePendingStatus(ctx context.Context, id string, from, to model.ExpenseStatus, expenseID *int64) error

	// Database management
	Migrate(ctx context.Context) error
	Close() error
}
