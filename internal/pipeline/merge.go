package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-intake/internal/model"
)

// Merge builds the final record for an audited provisional expense. Each
// field is resolved on its own: a deterministic match wins when it carries a
// non-empty value, then the AI-derived value, then a declared default.
func Merge(prov *model.ProvisionalExpense, match model.MatchMetadata, now time.Time) *model.FinalExpense {
	ext := prov.Extracted

	category, source := resolveCategory(prov, match)

	final := &model.FinalExpense{
		UserID:                  prov.UserID,
		ProviderName:            resolveProvider(ext, match),
		Amount:                  valueOr(ext.Amount, 0),
		Currency:                firstNonEmpty(ext.Currency, model.DefaultCurrency),
		ExpenseDate:             resolveDate(ext, now),
		Description:             cloneString(ext.Description),
		Category:                category,
		Subcategory:             resolveOptional(matchValue(match, match.Subcategory), prov.Subcategory),
		ExpenseType:             resolveExpenseType(prov, match),
		InitialProcessingMethod: resolveMethod(prov, match),
		ConfirmedBy:             model.AutoConfirmActor,
		ConfirmedAt:             now,
		Status:                  model.StatusConfirmed,
	}

	final.AuditLog = make([]string, 0, len(prov.ValidationNotes)+1)
	final.AuditLog = append(final.AuditLog, prov.ValidationNotes...)
	final.AuditLog = append(final.AuditLog, fmt.Sprintf("merge: category %q from %s", category, source))

	return final
}

func resolveCategory(prov *model.ProvisionalExpense, match model.MatchMetadata) (string, string) {
	if v := matchValue(match, match.Category); v != "" {
		return v, string(match.MatchType) + " match"
	}
	if ext := prov.Extracted.Category; ext != nil && strings.TrimSpace(*ext) != "" {
		return strings.TrimSpace(*ext), "ai suggestion"
	}
	return firstNonEmpty(prov.Category, model.DefaultCategory), "default"
}

func resolveExpenseType(prov *model.ProvisionalExpense, match model.MatchMetadata) string {
	if v := matchValue(match, match.ExpenseType); v != "" {
		return v
	}
	if prov.ExpenseType != nil {
		return firstNonEmpty(*prov.ExpenseType, model.DefaultExpenseType)
	}
	return model.DefaultExpenseType
}

// resolveProvider prefers the provider table's display name, then the name
// the oracle found, then the description itself.
func resolveProvider(ext model.ExtractedExpense, match model.MatchMetadata) string {
	if match.MatchType == model.MatchProvider && strings.TrimSpace(match.MatchedName) != "" {
		return strings.TrimSpace(match.MatchedName)
	}
	if ext.ProviderName != nil && strings.TrimSpace(*ext.ProviderName) != "" {
		return strings.TrimSpace(*ext.ProviderName)
	}
	return firstNonEmpty(ext.DescriptionOr(""), ext.RawText)
}

func resolveMethod(prov *model.ProvisionalExpense, match model.MatchMetadata) model.ProcessingMethod {
	if m := match.ProcessingMethod(); m != "" {
		return m
	}
	if prov.ProcessingMethod != "" {
		return prov.ProcessingMethod
	}
	return model.MethodAIInference
}

func resolveDate(ext model.ExtractedExpense, now time.Time) time.Time {
	if ext.ExpenseDate != nil && !ext.ExpenseDate.IsZero() {
		return *ext.ExpenseDate
	}
	return now
}

func resolveOptional(preferred string, fallback *string) *string {
	if preferred != "" {
		return &preferred
	}
	if fallback != nil && strings.TrimSpace(*fallback) != "" {
		v := strings.TrimSpace(*fallback)
		return &v
	}
	return nil
}

// matchValue returns v only when the match came from a deterministic table.
func matchValue(match model.MatchMetadata, v string) string {
	if !match.Matched() {
		return ""
	}
	return strings.TrimSpace(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func valueOr(v *float64, fallback float64) float64 {
	if v == nil {
		return fallback
	}
	return *v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
