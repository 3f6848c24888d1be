package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/service"
)

const expenseColumns = `id, user_id, provider_name, amount, currency, expense_date, description,
	category, subcategory, expense_type, initial_processing_method,
	confirmed_by, confirmed_at, audit_log, status`

// SaveExpense inserts a confirmed expense and returns its new ID.
func (s *sqlStore) SaveExpense(ctx context.Context, expense *model.FinalExpense) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := validateExpense(expense); err != nil {
		return 0, err
	}

	if expense.ConfirmedAt.IsZero() {
		expense.ConfirmedAt = time.Now()
	}
	if expense.Status == "" {
		expense.Status = model.StatusConfirmed
	}

	auditLog := expense.AuditLog
	if auditLog == nil {
		auditLog = []string{}
	}
	auditJSON, err := json.Marshal(auditLog)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal audit log: %w", err)
	}

	var id int64
	err = s.db.QueryRowContext(ctx, s.rebind(`
		INSERT INTO expenses (
			user_id, provider_name, amount, currency, expense_date, description,
			category, subcategory, expense_type, initial_processing_method,
			confirmed_by, confirmed_at, audit_log, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`),
		expense.UserID,
		expense.ProviderName,
		expense.Amount,
		strings.ToUpper(expense.Currency),
		dateOnly(expense.ExpenseDate),
		nullString(expense.Description),
		expense.Category,
		nullString(expense.Subcategory),
		expense.ExpenseType,
		string(expense.InitialProcessingMethod),
		expense.ConfirmedBy,
		expense.ConfirmedAt.UTC(),
		string(auditJSON),
		string(expense.Status),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save expense: %w", err)
	}

	expense.ID = id
	return id, nil
}

// GetExpense retrieves a confirmed expense by ID.
func (s *sqlStore) GetExpense(ctx context.Context, id int64) (*model.FinalExpense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+expenseColumns+` FROM expenses WHERE id = ?`), id)
	expense, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %d: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return &expense, nil
}

// ListExpenses returns confirmed expenses, newest first.
func (s *sqlStore) ListExpenses(ctx context.Context, filter service.ExpenseFilter) ([]model.FinalExpense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, fmt.Errorf("%w: end date %v is before start date %v", ErrInvalidDateRange, *filter.EndDate, *filter.StartDate)
	}

	var (
		where []string
		args  []any
	)
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.StartDate != nil {
		where = append(where, "expense_date >= ?")
		args = append(args, dateOnly(*filter.StartDate))
	}
	if filter.EndDate != nil {
		where = append(where, "expense_date <= ?")
		args = append(args, dateOnly(*filter.EndDate))
	}

	query := `SELECT ` + expenseColumns + ` FROM expenses`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY expense_date DESC, id DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var expenses []model.FinalExpense
	for rows.Next() {
		expense, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, expense)
	}

	return expenses, rows.Err()
}

func scanExpense(row rowScanner) (model.FinalExpense, error) {
	var (
		expense     model.FinalExpense
		description sql.NullString
		subcategory sql.NullString
		method      sql.NullString
		auditLog    string
		status      string
	)

	err := row.Scan(
		&expense.ID,
		&expense.UserID,
		&expense.ProviderName,
		&expense.Amount,
		&expense.Currency,
		&expense.ExpenseDate,
		&description,
		&expense.Category,
		&subcategory,
		&expense.ExpenseType,
		&method,
		&expense.ConfirmedBy,
		&expense.ConfirmedAt,
		&auditLog,
		&status,
	)
	if err != nil {
		return model.FinalExpense{}, err
	}

	expense.Description = stringPtr(description)
	expense.Subcategory = stringPtr(subcategory)
	expense.InitialProcessingMethod = model.ProcessingMethod(method.String)
	expense.Status = model.ExpenseStatus(status)

	if auditLog != "" {
		if err := json.Unmarshal([]byte(auditLog), &expense.AuditLog); err != nil {
			return model.FinalExpense{}, fmt.Errorf("failed to decode audit log: %w", err)
		}
	}

	return expense, nil
}
