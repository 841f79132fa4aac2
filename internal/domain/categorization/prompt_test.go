package categorization

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

func sampleTransaction() *ledger.Transaction {
	return &ledger.Transaction{
		ID:          7,
		Date:        time.Date(2026, time.February, 3, 0, 0, 0, 0, time.UTC),
		Amount:      decimal.RequireFromString("-1234.50"),
		Description: "העברה לבעל מקצוע",
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt(sampleTransaction(), []ledger.Category{
		{ID: 4, Name: "Housing"},
		{ID: 9, Name: "Other Expenses"},
	})

	assert.Contains(t, prompt, "- Housing (4)\n- Other Expenses (9)\n")
	assert.Contains(t, prompt, "- Description: העברה לבעל מקצוע")
	assert.Contains(t, prompt, "- Merchant: N/A")
	assert.Contains(t, prompt, "1,234.50")
	assert.Contains(t, prompt, "(expense)")
	assert.Contains(t, prompt, "- Date: 2026-02-03")
	assert.Contains(t, prompt, `"category_id"`)
}

func TestParseClassification(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Classification
	}{
		{"plain", `{"category_id": 4, "confidence": 0.85, "reasoning": "rent"}`, Classification{CategoryID: 4, Confidence: 0.85, Reasoning: "rent"}},
		{"json fence", "```json\n{\"category_id\": 9, \"confidence\": 0.4, \"reasoning\": \"\"}\n```", Classification{CategoryID: 9, Confidence: 0.4}},
		{"bare fence with prose", "Here you go:\n```\n{\"category_id\": 2, \"confidence\": 1}\n```\nthanks", Classification{CategoryID: 2, Confidence: 1}},
		{"missing confidence", `{"category_id": 3}`, Classification{CategoryID: 3, Confidence: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseClassification(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "not json", `{"confidence": 0.9}`} {
		_, err := parseClassification(bad)
		assert.ErrorIs(t, err, ErrFallbackUnavailable, bad)
	}
}
