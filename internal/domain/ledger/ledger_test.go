package ledger

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Categorization
// ============================================================================

func TestCategorizationConstructors(t *testing.T) {
	none := Uncategorized()
	assert.False(t, none.IsCategorized())
	assert.Equal(t, MethodNone, none.Method)
	assert.Nil(t, none.Confidence)

	rule := ByRule(7)
	assert.True(t, rule.IsCategorized())
	assert.Equal(t, MethodRule, rule.Method)
	assert.Nil(t, rule.Confidence)

	manual := Manual(3)
	assert.Equal(t, int64(3), *manual.CategoryID)
	assert.Nil(t, manual.Confidence)

	llm := ByLLM(9, 0.82)
	assert.Equal(t, MethodLLM, llm.Method)
	require.NotNil(t, llm.Confidence)
	assert.InDelta(t, 0.82, *llm.Confidence, 1e-9)
}

func TestRangeOf(t *testing.T) {
	_, ok := RangeOf(nil)
	assert.False(t, ok)

	txs := []*Transaction{
		{Date: time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)},
		{Date: time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)},
		{Date: time.Date(2026, 2, 3, 0, 0, 0, 0, time.UTC)},
	}
	r, ok := RangeOf(txs)
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), r.From)
	assert.Equal(t, time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC), r.To)
	assert.True(t, r.Contains(time.Date(2026, 2, 10, 23, 59, 0, 0, time.UTC)))
	assert.False(t, r.Contains(time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)))
}

// ============================================================================
// Rules
// ============================================================================

func TestNewRulePattern(t *testing.T) {
	p, err := NewRulePattern(KindKeyword, "  פז ")
	require.NoError(t, err)
	assert.Equal(t, KeywordPattern{Text: "פז"}, p)

	p, err = NewRulePattern(KindMerchant, "Wolt")
	require.NoError(t, err)
	assert.Equal(t, KindMerchant, p.Kind())

	p, err = NewRulePattern(KindRegex, `^netflix\.com`)
	require.NoError(t, err)
	re := p.(RegexPattern)
	assert.True(t, re.Compiled.MatchString("NETFLIX.COM 123"), "regex rules are case-insensitive")
}

func TestNewRulePattern_Errors(t *testing.T) {
	tests := []struct {
		name    string
		kind    RuleKind
		pattern string
	}{
		{"empty keyword", KindKeyword, ""},
		{"blank merchant", KindMerchant, "   "},
		{"empty regex", KindRegex, ""},
		{"bad regex", KindRegex, "([a-z"},
		{"unknown kind", RuleKind("glob"), "x*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRulePattern(tt.kind, tt.pattern)
			var compileErr *RuleCompileError
			require.True(t, errors.As(err, &compileErr))
			assert.Equal(t, tt.kind, compileErr.Kind)
		})
	}
}

func TestSortRules(t *testing.T) {
	rules := []Rule{
		{ID: 4, Priority: 10},
		{ID: 2, Priority: 90},
		{ID: 1, Priority: 10},
		{ID: 3, Priority: 90},
	}
	SortRules(rules)

	var ids []int64
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []int64{2, 3, 1, 4}, ids)
}

// ============================================================================
// Category invariants
// ============================================================================

func TestValidateNew(t *testing.T) {
	parentID := int64(1)
	top := &Category{ID: 1, Name: "Transportation", Type: CategoryExpense}
	child := &Category{ID: 2, Name: "Fuel", Type: CategoryExpense, ParentID: &parentID}

	assert.NoError(t, ValidateNew(&Category{Name: "Bills", Type: CategoryExpense}, nil))
	assert.NoError(t, ValidateNew(&Category{Name: "Parking", Type: CategoryExpense, ParentID: &parentID}, top))

	childID := int64(2)
	err := ValidateNew(&Category{Name: "Diesel", Type: CategoryExpense, ParentID: &childID}, child)
	assert.ErrorIs(t, err, ErrCategoryNesting)

	err = ValidateNew(&Category{Name: "Gifts", Type: "transfer"}, nil)
	assert.ErrorIs(t, err, ErrInvalidCategoryType)

	err = ValidateNew(&Category{Name: " ", Type: CategoryIncome}, nil)
	assert.ErrorIs(t, err, ErrInvalidCategory)

	missing := int64(99)
	err = ValidateNew(&Category{Name: "Orphan", Type: CategoryIncome, ParentID: &missing}, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCheckDeletable(t *testing.T) {
	assert.ErrorIs(t, CheckDeletable(&Category{IsSystem: true}, 0), ErrSystemCategory)
	assert.ErrorIs(t, CheckDeletable(&Category{}, 2), ErrCategoryHasChildren)
	assert.NoError(t, CheckDeletable(&Category{}, 0))
}
