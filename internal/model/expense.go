package model

import (
	"math"
	"strings"
	"time"
)

// Defaults applied when extraction or matching leave a field empty.
const (
	DefaultCurrency    = "MXN"
	DefaultCategory    = "unclassified"
	DefaultExpenseType = "personal"
	AutoConfirmActor   = "auto-confirm"
)

// ProcessingMethod indicates how an expense was classified.
type ProcessingMethod string

// Processing method constants.
const (
	MethodProviderMatch ProcessingMethod = "provider_match"
	MethodKeywordMatch  ProcessingMethod = "keyword_match"
	MethodAIInference   ProcessingMethod = "ai_inference"
)

// ExpenseStatus tracks where a record sits in the confirmation lifecycle.
type ExpenseStatus string

// Expense status constants.
const (
	StatusAwaitingConfirmation ExpenseStatus = "AWAITING_CONFIRMATION"
	StatusConfirmed            ExpenseStatus = "CONFIRMED"
	StatusRejected             ExpenseStatus = "REJECTED"
)

// ExtractedExpense holds the candidate fields returned by the extraction oracle.
// Every field except RawText may be missing.
type ExtractedExpense struct {
	ProviderName *string    `json:"provider_name,omitempty"`
	Amount       *float64   `json:"amount,omitempty"`
	ExpenseDate  *time.Time `json:"expense_date,omitempty"`
	Description  *string    `json:"description,omitempty"`
	Category     *string    `json:"category,omitempty"` // AI-suggested
	Currency     string     `json:"currency"`
	RawText      string     `json:"raw_text"`
}

// RawTextOnly builds the degraded extraction used for manual review.
func RawTextOnly(text string) ExtractedExpense {
	return ExtractedExpense{RawText: text, Currency: DefaultCurrency}
}

// HasAmount reports whether a usable amount was extracted: finite and
// non-zero.
func (e ExtractedExpense) HasAmount() bool {
	if e.Amount == nil {
		return false
	}
	n := *e.Amount
	return n != 0 && !math.IsNaN(n) && !math.IsInf(n, 0)
}

// HasDescription reports whether a non-blank description was extracted.
func (e ExtractedExpense) HasDescription() bool {
	return e.Description != nil && strings.TrimSpace(*e.Description) != ""
}

// DescriptionOr returns the description or fallback when absent.
func (e ExtractedExpense) DescriptionOr(fallback string) string {
	if e.HasDescription() {
		return *e.Description
	}
	return fallback
}

// ProvisionalExpense is a classified expense that has not been confirmed yet.
type ProvisionalExpense struct {
	CreatedAt        time.Time        `json:"created_at"`
	Subcategory      *string          `json:"subcategory,omitempty"`
	ExpenseType      *string          `json:"expense_type,omitempty"`
	UserID           string           `json:"user_id"`
	Category         string           `json:"category"`
	ProcessingMethod ProcessingMethod `json:"processing_method"`
	Status           ExpenseStatus    `json:"status"`
	ValidationNotes  []string         `json:"validation_notes"`
	Extracted        ExtractedExpense `json:"extracted_data"`
	ConfidenceScore  float64          `json:"confidence_score"`
}

// NewProvisionalExpense seeds a provisional record from an extraction.
// The AI-suggested category, when present, replaces the default.
func NewProvisionalExpense(userID string, extracted ExtractedExpense, now time.Time) *ProvisionalExpense {
	category := DefaultCategory
	if extracted.Category != nil && strings.TrimSpace(*extracted.Category) != "" {
		category = *extracted.Category
	}
	return &ProvisionalExpense{
		UserID:          userID,
		Extracted:       extracted,
		Category:        category,
		Status:          StatusAwaitingConfirmation,
		ValidationNotes: []string{},
		CreatedAt:       now,
	}
}

// FinalExpense is a confirmed expense owned by the persistence layer.
type FinalExpense struct {
	ExpenseDate             time.Time        `json:"expense_date"`
	ConfirmedAt             time.Time        `json:"confirmed_at"`
	Description             *string          `json:"description,omitempty"`
	Subcategory             *string          `json:"subcategory,omitempty"`
	UserID                  string           `json:"user_id"`
	ProviderName            string           `json:"provider_name"`
	Currency                string           `json:"currency"`
	Category                string           `json:"category"`
	ExpenseType             string           `json:"expense_type"`
	InitialProcessingMethod ProcessingMethod `json:"initial_processing_method"`
	ConfirmedBy             string           `json:"confirmed_by"`
	Status                  ExpenseStatus    `json:"status"`
	AuditLog                []string         `json:"audit_log"`
	ID                      int64            `json:"id,omitempty"`
	Amount                  float64          `json:"amount"`
}
