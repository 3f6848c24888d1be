// Package pipeline sequences ingestion, extraction, audit and matching, and
// decides whether an expense is finalized or deferred for manual review.
package pipeline

import (
	"errors"

	"github.com/Veraticus/spice-intake/internal/extraction"
	"github.com/Veraticus/spice-intake/internal/model"
)

// Pipeline errors.
var (
	ErrUserNotAllowed    = errors.New("user is not allowed to submit expenses")
	ErrMissingUser       = errors.New("user ID is required")
	ErrPendingNotFound   = errors.New("pending expense not found")
	ErrPendingClosed     = errors.New("pending expense is no longer awaiting confirmation")
	ErrIncompleteExpense = errors.New("expense has no usable amount")
)

// Outcome is the terminal state of a pipeline run.
type Outcome string

// Run outcomes.
const (
	OutcomeFinalized Outcome = "FINALIZED"
	OutcomeDeferred  Outcome = "DEFERRED"
	OutcomeAborted   Outcome = "ABORTED"
)

// Reason explains a non-finalized outcome.
type Reason string

// Reasons.
const (
	ReasonNone                 Reason = ""
	ReasonEmptyIngestion       Reason = "empty_ingestion"
	ReasonIncompleteExtraction Reason = "incomplete_extraction"
	ReasonLowConfidence        Reason = "low_confidence"
	ReasonNonPositiveAmount    Reason = "non_positive_amount"
)

// Result describes one run. Expense is set only when the outcome is
// FINALIZED, Pending only when it is DEFERRED.
type Result struct {
	Expense    *model.FinalExpense
	Pending    *model.PendingExpense
	RunID      string
	Outcome    Outcome
	Reason     Reason
	Extraction extraction.Kind
	Match      model.MatchMetadata
	Confidence float64
}

// Finalized reports whether the run produced a saved expense.
func (r *Result) Finalized() bool {
	return r != nil && r.Outcome == OutcomeFinalized && r.Expense != nil
}
