package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
	"github.com/Veraticus/spice-intake/internal/notify"
	"github.com/Veraticus/spice-intake/internal/storage"
)

// Overrides are the corrections a user can make while confirming a deferred
// expense. Nil fields keep the merged value.
type Overrides struct {
	Category    *string  `json:"category,omitempty"`
	Subcategory *string  `json:"subcategory,omitempty"`
	ExpenseType *string  `json:"expense_type,omitempty"`
	Description *string  `json:"description,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
}

// Pending lists the user's expenses awaiting confirmation, oldest first.
func (p *Pipeline) Pending(ctx context.Context, userID string) ([]model.PendingExpense, error) {
	if err := p.authorize(userID); err != nil {
		return nil, err
	}
	pending, err := p.store.ListPending(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending expenses: %w", err)
	}
	return pending, nil
}

// Confirm turns a deferred expense into a confirmed one. The record is
// claimed before the expense is saved so two concurrent confirmations cannot
// both succeed.
func (p *Pipeline) Confirm(ctx context.Context, userID, pendingID string, overrides Overrides) (*model.FinalExpense, error) {
	pending, err := p.openPending(ctx, userID, pendingID)
	if err != nil {
		return nil, err
	}

	prov := pending.Provisional
	if overrides.Amount != nil {
		prov.Extracted.Amount = overrides.Amount
	}
	if overrides.Description != nil {
		prov.Extracted.Description = overrides.Description
	}
	if !prov.Extracted.HasAmount() || *prov.Extracted.Amount < 0 {
		return nil, fmt.Errorf("%w: %s", ErrIncompleteExpense, pendingID)
	}

	now := p.now()
	final := Merge(&prov, pending.Match, now)
	applyOverrides(final, overrides)
	final.ConfirmedBy = userID
	final.AuditLog = append(final.AuditLog, "confirm: confirmed by "+userID)

	if err := p.store.UpdatePendingStatus(ctx, pendingID,
		model.StatusAwaitingConfirmation, model.StatusConfirmed, nil); err != nil {
		return nil, p.statusError(pendingID, err)
	}

	id, err := p.store.SaveExpense(ctx, final)
	if err != nil {
		if revertErr := p.store.UpdatePendingStatus(ctx, pendingID,
			model.StatusConfirmed, model.StatusAwaitingConfirmation, nil); revertErr != nil {
			common.LogError(p.logger, revertErr, "Failed to reopen pending expense", common.Fields{
				"pending_id": pendingID,
			})
		}
		return nil, fmt.Errorf("failed to save expense: %w", err)
	}
	final.ID = id

	if err := p.store.UpdatePendingStatus(ctx, pendingID,
		model.StatusConfirmed, model.StatusConfirmed, &id); err != nil {
		p.logger.Warn("Failed to link pending expense",
			"pending_id", pendingID,
			"expense_id", id,
			"error", err)
	}

	p.logger.Info("Confirmed pending expense",
		"user_id", userID,
		"pending_id", pendingID,
		"expense_id", id)

	p.publish(ctx, notify.Event{
		Type:       notify.EventConfirmed,
		UserID:     userID,
		PendingID:  pendingID,
		ExpenseID:  &final.ID,
		Amount:     final.Amount,
		Currency:   final.Currency,
		Category:   final.Category,
		Confidence: prov.ConfidenceScore,
		OccurredAt: now.UTC(),
	})
	return final, nil
}

// Reject closes a deferred expense without saving it.
func (p *Pipeline) Reject(ctx context.Context, userID, pendingID string) error {
	pending, err := p.openPending(ctx, userID, pendingID)
	if err != nil {
		return err
	}

	if err := p.store.UpdatePendingStatus(ctx, pendingID,
		model.StatusAwaitingConfirmation, model.StatusRejected, nil); err != nil {
		return p.statusError(pendingID, err)
	}

	p.logger.Info("Rejected pending expense", "user_id", userID, "pending_id", pendingID)

	p.publish(ctx, notify.Event{
		Type:       notify.EventRejected,
		UserID:     userID,
		PendingID:  pendingID,
		Confidence: pending.Provisional.ConfidenceScore,
		OccurredAt: p.now().UTC(),
	})
	return nil
}

// openPending loads a record the user owns that is still awaiting
// confirmation. Records owned by someone else are reported as not found.
func (p *Pipeline) openPending(ctx context.Context, userID, pendingID string) (*model.PendingExpense, error) {
	if err := p.authorize(userID); err != nil {
		return nil, err
	}

	pending, err := p.store.GetPending(ctx, pendingID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrPendingNotFound, pendingID)
		}
		return nil, fmt.Errorf("failed to load pending expense: %w", err)
	}
	if pending.Provisional.UserID != userID {
		return nil, fmt.Errorf("%w: %s", ErrPendingNotFound, pendingID)
	}
	if !pending.IsOpen() {
		return nil, fmt.Errorf("%w: %s is %s", ErrPendingClosed, pendingID, pending.Status)
	}
	return pending, nil
}

func (p *Pipeline) statusError(pendingID string, err error) error {
	if errors.Is(err, storage.ErrStatusConflict) {
		return fmt.Errorf("%w: %s", ErrPendingClosed, pendingID)
	}
	return fmt.Errorf("failed to update pending expense: %w", err)
}

func (p *Pipeline) publish(ctx context.Context, event notify.Event) {
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("Failed to publish event", "type", event.Type, "error", err)
	}
}

func applyOverrides(final *model.FinalExpense, o Overrides) {
	var changed []string
	if v := trimmed(o.Category); v != "" {
		final.Category = v
		changed = append(changed, "category")
	}
	if o.Subcategory != nil {
		if v := trimmed(o.Subcategory); v != "" {
			final.Subcategory = &v
		} else {
			final.Subcategory = nil
		}
		changed = append(changed, "subcategory")
	}
	if v := trimmed(o.ExpenseType); v != "" {
		final.ExpenseType = v
		changed = append(changed, "expense_type")
	}
	if o.Amount != nil {
		changed = append(changed, "amount")
	}
	if o.Description != nil {
		changed = append(changed, "description")
	}
	if len(changed) > 0 {
		final.AuditLog = append(final.AuditLog, "confirm: user changed "+strings.Join(changed, ", "))
	}
}

func trimmed(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
