// Package notify publishes pipeline events to interested subscribers.
package notify

import (
	"context"
	"time"
)

// Event types.
const (
	EventFinalized = "expense.finalized"
	EventDeferred  = "expense.deferred"
	EventConfirmed = "expense.confirmed"
	EventRejected  = "expense.rejected"
)

// Event describes something that happened to an expense.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	ExpenseID  *int64    `json:"expense_id,omitempty"`
	Type       string    `json:"type"`
	RunID      string    `json:"run_id,omitempty"`
	UserID     string    `json:"user_id"`
	PendingID  string    `json:"pending_id,omitempty"`
	Category   string    `json:"category,omitempty"`
	Currency   string    `json:"currency,omitempty"`
	Amount     float64   `json:"amount,omitempty"`
	Confidence float64   `json:"confidence"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

// Publish does nothing.
func (Nop) Publish(context.Context, Event) error { return nil }
