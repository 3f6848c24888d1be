package extraction

import (
	"fmt"
	"time"
)

const promptTemplate = `You are a highly specialized assistant for expense tracking. Extract structured information from the user's expense entry.

Extract exactly these fields:
- "amount": the numeric value of the expense.
- "currency": the ISO 4217 currency code (e.g. MXN, USD, EUR). If not specified, assume '%[1]s'.
- "description": a brief description of what the expense was for.
- "date": the date of the expense in YYYY-MM-DD format. Today is %[2]s; use it if no date is given and resolve relative dates against it.
- "category": the category of the expense (e.g. Food, Transport, Shopping, Rent, Utilities). If you cannot determine it, use 'Other'.

Respond ONLY with a valid JSON object containing these fields. Do not add any explanation or conversational text.

Example text: "lunch with colleagues today, 25.50 eur"
Example JSON:
{
  "amount": 25.50,
  "currency": "EUR",
  "description": "Lunch with colleagues",
  "date": "%[2]s",
  "category": "Food"
}`

// SystemPrompt renders the extraction instructions for the given default
// currency and processing day.
func SystemPrompt(defaultCurrency string, today time.Time) string {
	return fmt.Sprintf(promptTemplate, defaultCurrency, today.Format(dateLayout))
}
