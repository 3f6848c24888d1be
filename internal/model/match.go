package model

// MatchType records which deterministic table produced a match.
type MatchType string

// Match types, in priority order.
const (
	MatchProvider MatchType = "provider"
	MatchKeyword  MatchType = "keyword"
	MatchNone     MatchType = "none"
)

// MatchMetadata is the category information found by the matching engine.
// It is produced fresh for every pipeline run and never stored on its own.
type MatchMetadata struct {
	Category    string    `json:"category,omitempty"`
	Subcategory string    `json:"subcategory,omitempty"`
	ExpenseType string    `json:"expense_type,omitempty"`
	MatchType   MatchType `json:"match_type"`
	MatchedName string    `json:"matched_name,omitempty"`
}

// NoMatch returns the empty metadata used when neither table fires.
func NoMatch() MatchMetadata {
	return MatchMetadata{MatchType: MatchNone}
}

// Matched reports whether a deterministic table produced this metadata.
func (m MatchMetadata) Matched() bool {
	return m.MatchType == MatchProvider || m.MatchType == MatchKeyword
}

// ProcessingMethod returns the provenance tag for a match, or "" for none.
func (m MatchMetadata) ProcessingMethod() ProcessingMethod {
	switch m.MatchType {
	case MatchProvider:
		return MethodProviderMatch
	case MatchKeyword:
		return MethodKeywordMatch
	default:
		return ""
	}
}
