package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Veraticus/spice-intake/internal/llm"
	"github.com/Veraticus/spice-intake/internal/model"
)

const dateLayout = "2006-01-02"

var (
	// ErrNotObject is returned when the reply is valid JSON but not an object.
	ErrNotObject = errors.New("reply is not a JSON object")

	currencyPattern = regexp.MustCompile(`^[A-Za-z]{3}$`)
)

// reply mirrors the fields the prompt asks for. RawMessage keeps each field
// undecoded so that one bad value does not spoil the rest.
type reply struct {
	Amount       json.RawMessage `json:"amount"`
	Currency     json.RawMessage `json:"currency"`
	Description  json.RawMessage `json:"description"`
	Date         json.RawMessage `json:"date"`
	Category     json.RawMessage `json:"category"`
	ProviderName json.RawMessage `json:"provider_name"`
}

// decode validates a model reply field by field. It fails only when the reply
// is not a JSON object; invalid fields are dropped and reported as issues.
func decode(raw, text, defaultCurrency string) (model.ExtractedExpense, []string, error) {
	body := []byte(llm.CleanJSON(raw))
	if !bytes.HasPrefix(bytes.TrimSpace(body), []byte("{")) {
		return model.ExtractedExpense{}, nil, ErrNotObject
	}

	var r reply
	if err := json.Unmarshal(body, &r); err != nil {
		return model.ExtractedExpense{}, nil, fmt.Errorf("invalid JSON reply: %w", err)
	}

	out := model.ExtractedExpense{RawText: text, Currency: defaultCurrency}
	var issues []string
	note := func(field string, err error) {
		issues = append(issues, fmt.Sprintf("%s: %v", field, err))
	}

	if amount, err := decodeAmount(r.Amount); err != nil {
		note("amount", err)
	} else {
		out.Amount = amount
	}

	if currency, err := decodeString(r.Currency); err != nil {
		note("currency", err)
	} else if currency != nil {
		if currencyPattern.MatchString(*currency) {
			out.Currency = strings.ToUpper(*currency)
		} else {
			note("currency", fmt.Errorf("%q is not a 3-letter code", *currency))
		}
	}

	if description, err := decodeString(r.Description); err != nil {
		note("description", err)
	} else {
		out.Description = description
	}

	if date, err := decodeDate(r.Date); err != nil {
		note("date", err)
	} else {
		out.ExpenseDate = date
	}

	if category, err := decodeString(r.Category); err != nil {
		note("category", err)
	} else {
		out.Category = category
	}

	if provider, err := decodeString(r.ProviderName); err != nil {
		note("provider_name", err)
	} else {
		out.ProviderName = provider
	}

	return out, issues, nil
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decodeString returns nil for missing, null or blank values.
func decodeString(raw json.RawMessage) (*string, error) {
	if isAbsent(raw) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("expected a string, got %s", raw)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	return &s, nil
}

// decodeAmount accepts a JSON number or a numeric string such as "1,250.00"
// or "$25.50". NaN and infinities are rejected.
func decodeAmount(raw json.RawMessage) (*float64, error) {
	if isAbsent(raw) {
		return nil, nil
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return finite(n, string(raw))
	}

	s, err := decodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("expected a number, got %s", raw)
	}
	if s == nil {
		return nil, nil
	}

	cleaned := strings.TrimLeft(*s, "$€£¥ ")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	n, err = strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", *s)
	}
	return finite(n, *s)
}

func finite(n float64, text string) (*float64, error) {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return nil, fmt.Errorf("%q is not a finite number", text)
	}
	return &n, nil
}

func decodeDate(raw json.RawMessage) (*time.Time, error) {
	s, err := decodeString(raw)
	if err != nil || s == nil {
		return nil, err
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, fmt.Errorf("%q is not YYYY-MM-DD", *s)
	}
	return &t, nil
}
