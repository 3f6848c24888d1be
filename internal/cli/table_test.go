package cli

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/spice-intake/internal/model"
)

func TestRenderExpenses(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderExpenses(&buf, nil))
	assert.Contains(t, buf.String(), "No expenses found.")

	buf.Reset()
	require.NoError(t, RenderExpenses(&buf, []model.FinalExpense{{
		ID:                      7,
		ExpenseDate:             time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		ProviderName:            "A provider with a very long display name",
		Amount:                  1250.5,
		Currency:                "MXN",
		Category:                "Food",
		InitialProcessingMethod: model.MethodProviderMatch,
	}}))

	out := buf.String()
	assert.Contains(t, out, "2025-03-14")
	assert.Contains(t, out, "1250.50")
	assert.Contains(t, out, "provider_match")
	assert.Contains(t, out, "A provider with a very …")
}

func TestRenderPendingList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderPendingList(&buf, nil))
	assert.Contains(t, buf.String(), "Nothing awaiting review.")

	buf.Reset()
	require.NoError(t, RenderPendingList(&buf, []model.PendingExpense{
		pendingExpense("01HX", "tacos", amountPtr(120)),
		pendingExpense("01HY", "gift", nil),
	}))
	out := buf.String()
	assert.Contains(t, out, "01HX")
	assert.Contains(t, out, "120.00 MXN")
	assert.Contains(t, out, "01HY  2025-03-14  ?")
}
