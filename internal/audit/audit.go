// Package audit scores how complete an extracted expense is.
package audit

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/Veraticus/spice-intake/internal/common"
	"github.com/Veraticus/spice-intake/internal/model"
)

// Penalties subtracted from a perfect score for each missing field.
const (
	MissingAmountPenalty      = 0.5
	MissingDescriptionPenalty = 0.3
)

// Score returns the confidence for an extraction: 1.0 minus a penalty per
// missing required field, never below zero. A zero amount counts as missing.
func Score(e model.ExtractedExpense) float64 {
	score := 1.0
	if !e.HasAmount() {
		score -= MissingAmountPenalty
	}
	if !e.HasDescription() {
		score -= MissingDescriptionPenalty
	}
	if score < 0 {
		score = 0
	}
	return score
}

// Auditor assigns confidence scores to provisional expenses.
type Auditor struct {
	logger *slog.Logger
}

// New creates an Auditor.
func New(logger *slog.Logger) *Auditor {
	return &Auditor{logger: common.OrDefault(logger)}
}

// Audit scores p in place and returns it. It never fails; calling it again
// on unchanged data yields the same score.
func (a *Auditor) Audit(p *model.ProvisionalExpense) *model.ProvisionalExpense {
	if p == nil {
		return nil
	}

	p.ConfidenceScore = Score(p.Extracted)
	p.ProcessingMethod = model.MethodAIInference
	p.ValidationNotes = append(p.ValidationNotes, note(p.Extracted, p.ConfidenceScore))

	if p.Extracted.Amount != nil && *p.Extracted.Amount < 0 {
		p.ValidationNotes = append(p.ValidationNotes, "audit: amount is not positive")
	}

	a.logger.Debug("Audited provisional expense",
		"user_id", p.UserID,
		"confidence", p.ConfidenceScore)

	return p
}

func note(e model.ExtractedExpense, score float64) string {
	var missing []string
	if !e.HasAmount() {
		missing = append(missing, "amount")
	}
	if !e.HasDescription() {
		missing = append(missing, "description")
	}

	if len(missing) == 0 {
		return fmt.Sprintf("audit: confidence %.2f, all required fields present", score)
	}
	return fmt.Sprintf("audit: confidence %.2f, missing %s", score, strings.Join(missing, " and "))
}
