package categorization

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/money"
)

// buildPrompt describes tx and the offered categories and asks for a JSON
// answer.
func buildPrompt(tx *ledger.Transaction, categories []ledger.Category) string {
	var list strings.Builder
	for _, c := range categories {
		fmt.Fprintf(&list, "- %s (%d)\n", c.Name, c.ID)
	}

	kind := "expense"
	if tx.Amount.IsPositive() {
		kind = "income"
	}

	merchant := "N/A"
	if tx.Merchant != nil {
		merchant = *tx.Merchant
	}

	return fmt.Sprintf(`Analyze this financial transaction and categorize it.

Transaction Details:
- Description: %s
- Merchant: %s
- Amount: %s (%s)
- Date: %s

Available Categories (Name (ID)):
%s
Instructions:
1. Choose the MOST appropriate category from the list above
2. Consider that this is an Israeli transaction (may contain Hebrew text)
3. Common Israeli merchants: שופרסל (groceries), פז (gas), ארומה (coffee), etc.
4. Respond ONLY with valid JSON in this exact format:
{"category_id": <number>, "confidence": <0.0-1.0>, "reasoning": "<brief explanation>"}

Your response:`,
		tx.Description,
		merchant,
		money.FormatAmount(tx.Amount.Abs(), "ILS"),
		kind,
		tx.Date.Format("2006-01-02"),
		list.String(),
	)
}

type classificationJSON struct {
	CategoryID *int64   `json:"category_id"`
	Confidence *float64 `json:"confidence"`
	Reasoning  string   `json:"reasoning"`
}

// parseClassification decodes a model answer, tolerating markdown code fences.
func parseClassification(text string) (Classification, error) {
	body := stripCodeFence(text)

	var raw classificationJSON
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return Classification{}, fmt.Errorf("%w: malformed answer: %v", ErrFallbackUnavailable, err)
	}
	if raw.CategoryID == nil {
		return Classification{}, fmt.Errorf("%w: answer has no category_id", ErrFallbackUnavailable)
	}

	c := Classification{CategoryID: *raw.CategoryID, Confidence: 0.5, Reasoning: raw.Reasoning}
	if raw.Confidence != nil {
		c.Confidence = *raw.Confidence
	}
	return c, nil
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if i := strings.Index(s, "```json"); i >= 0 {
		s = s[i+len("```json"):]
	} else if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
	} else {
		return s
	}
	if end := strings.Index(s, "```"); end >= 0 {
		s = s[:end]
	}
	return strings.TrimSpace(s)
}
