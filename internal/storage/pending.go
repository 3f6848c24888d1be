package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
)

const pendingColumns = `id, provisional, match_metadata, status, expense_id, updated_at`

// SavePending stores a deferred expense for later confirmation.
func (s *sqlStore) SavePending(ctx context.Context, pending *model.PendingExpense) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validatePending(pending); err != nil {
		return err
	}

	now := time.Now().UTC()
	if pending.Provisional.CreatedAt.IsZero() {
		pending.Provisional.CreatedAt = now
	}
	if pending.UpdatedAt.IsZero() {
		pending.UpdatedAt = now
	}

	provisional, err := json.Marshal(pending.Provisional)
	if err != nil {
		return fmt.Errorf("failed to marshal provisional expense: %w", err)
	}
	match, err := json.Marshal(pending.Match)
	if err != nil {
		return fmt.Errorf("failed to marshal match metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO pending_expenses (
			id, user_id, provisional, match_metadata, status, expense_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`),
		pending.ID,
		pending.Provisional.UserID,
		string(provisional),
		string(match),
		string(pending.Status),
		nullInt64(pending.ExpenseID),
		pending.Provisional.CreatedAt.UTC(),
		pending.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save pending expense: %w", err)
	}
	return nil
}

// GetPending retrieves a deferred expense by ID.
func (s *sqlStore) GetPending(ctx context.Context, id string) (*model.PendingExpense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+pendingColumns+` FROM pending_expenses WHERE id = ?`), id)
	pending, err := scanPending(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending expense %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending expense: %w", err)
	}
	return &pending, nil
}

// ListPending returns a user's records still awaiting confirmation, oldest first.
func (s *sqlStore) ListPending(ctx context.Context, userID string) ([]model.PendingExpense, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(userID, "userID"); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT `+pendingColumns+`
		FROM pending_expenses
		WHERE user_id = ? AND status = ?
		ORDER BY created_at, id
	`), userID, string(model.StatusAwaitingConfirmation))
	if err != nil {
		return nil, fmt.Errorf("failed to query pending expenses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.PendingExpense
	for rows.Next() {
		pending, err := scanPending(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pending expense: %w", err)
		}
		out = append(out, pending)
	}
	return out, rows.Err()
}

// UpdatePendingStatus performs a compare-and-set on the record's status.
func (s *sqlStore) UpdatePendingStatus(ctx context.Context, id string, from, to model.ExpenseStatus, expenseID *int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(id, "id"); err != nil {
		return err
	}
	if err := validateStatus(from); err != nil {
		return err
	}
	if err := validateStatus(to); err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE pending_expenses
		SET status = ?, expense_id = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`), string(to), nullInt64(expenseID), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("failed to update pending expense: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s is not %s", ErrStatusConflict, id, from)
	}
	return nil
}

func scanPending(row rowScanner) (model.PendingExpense, error) {
	var (
		pending     model.PendingExpense
		provisional string
		match       string
		status      string
		expenseID   sql.NullInt64
	)

	if err := row.Scan(&pending.ID, &provisional, &match, &status, &expenseID, &pending.UpdatedAt); err != nil {
		return model.PendingExpense{}, err
	}

	if err := json.Unmarshal([]byte(provisional), &pending.Provisional); err != nil {
		return model.PendingExpense{}, fmt.Errorf("failed to decode provisional expense: %w", err)
	}
	if err := json.Unmarshal([]byte(match), &pending.Match); err != nil {
		return model.PendingExpense{}, fmt.Errorf("failed to decode match metadata: %w", err)
	}

	pending.Status = model.ExpenseStatus(status)
	if expenseID.Valid {
		id := expenseID.Int64
		pending.ExpenseID = &id
	}
	return pending, nil
}
