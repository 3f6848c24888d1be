// Package extraction turns free text into candidate expense fields using a
// language model.
package extraction

import "github.com/Veraticus/spice-intake/internal/model"

// Kind tells callers how an extraction ended without inspecting errors.
type Kind string

// Extraction outcomes.
const (
	Success          Kind = "success"
	ParseFailure     Kind = "parse_failure"
	TransportFailure Kind = "transport_failure"
)

// Result is the outcome of one extraction. On ParseFailure and
// TransportFailure, Expense carries only the raw text and the default
// currency so the input can still be reviewed by hand.
type Result struct {
	Err     error
	Kind    Kind
	Issues  []string
	Expense model.ExtractedExpense
}

// OK reports whether the oracle produced a decodable reply.
func (r Result) OK() bool {
	return r.Kind == Success
}
