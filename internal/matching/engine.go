package matching

import (
	"context"
	"strings"

	"github.com/Veraticus/spice-intake/internal/model"
)

// Engine matches descriptions against the provider table first and the
// keyword table second.
//
// Matching is plain substring containment with no word boundaries, so a short
// alias such as "bar" also fires inside "barber". Curate aliases accordingly.
type Engine struct {
	source *Source
}

// NewEngine creates an engine reading tables from source.
func NewEngine(source *Source) *Engine {
	return &Engine{source: source}
}

// Match returns the metadata of the first provider, then the first keyword,
// found in description. Table order decides ties.
func (e *Engine) Match(ctx context.Context, description string) (model.MatchMetadata, error) {
	if err := ctx.Err(); err != nil {
		return model.NoMatch(), err
	}

	tables, err := e.source.Tables()
	if err != nil {
		return model.NoMatch(), err
	}

	text := strings.ToLower(description)
	if strings.TrimSpace(text) == "" {
		return model.NoMatch(), nil
	}

	for _, p := range tables.Providers {
		if hit, ok := providerHit(p, text); ok {
			return model.MatchMetadata{
				Category:    p.Category,
				Subcategory: p.Subcategory,
				ExpenseType: p.ExpenseType,
				MatchType:   model.MatchProvider,
				MatchedName: hit,
			}, nil
		}
	}

	for _, k := range tables.Keywords {
		if token := normalize(k.Token); token != "" && strings.Contains(text, token) {
			return model.MatchMetadata{
				Category:    k.Category,
				Subcategory: k.Subcategory,
				ExpenseType: k.ExpenseType,
				MatchType:   model.MatchKeyword,
				MatchedName: k.Token,
			}, nil
		}
	}

	return model.NoMatch(), nil
}

// providerHit reports whether the provider's name or an alias occurs in text.
// The returned string is the provider's canonical name.
func providerHit(p Provider, text string) (string, bool) {
	if name := normalize(p.Name); name != "" && strings.Contains(text, name) {
		return p.Name, true
	}
	for _, alias := range p.Aliases {
		if alias = normalize(alias); alias != "" && strings.Contains(text, alias) {
			return p.Name, true
		}
	}
	return "", false
}
