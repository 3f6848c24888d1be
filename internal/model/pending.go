package model

import "time"

// PendingExpense is a deferred provisional expense kept for manual review.
// ID correlates the record with the pipeline run that produced it.
type PendingExpense struct {
	UpdatedAt   time.Time          `json:"updated_at"`
	ExpenseID   *int64             `json:"expense_id,omitempty"`
	ID          string             `json:"id"`
	Status      ExpenseStatus      `json:"status"`
	Match       MatchMetadata      `json:"match"`
	Provisional ProvisionalExpense `json:"provisional"`
}

// IsOpen reports whether the record can still be confirmed or rejected.
func (p PendingExpense) IsOpen() bool {
	return p.Status == StatusAwaitingConfirmation
}
