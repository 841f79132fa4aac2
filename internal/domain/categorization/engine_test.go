package categorization

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

func mustRule(t testing.TB, id, categoryID int64, kind ledger.RuleKind, pattern string, priority int) ledger.Rule {
	t.Helper()
	p, err := ledger.NewRulePattern(kind, pattern)
	require.NoError(t, err)
	return ledger.Rule{ID: id, CategoryID: categoryID, Pattern: p, Priority: priority, Active: true}
}

func strPtr(s string) *string { return &s }

func TestEngine_Match(t *testing.T) {
	const (
		groceries = int64(10)
		gas       = int64(11)
		transit   = int64(12)
		streaming = int64(13)
	)
	engine := NewEngine([]ledger.Rule{
		mustRule(t, 1, transit, ledger.KindKeyword, "לוי", 10),
		mustRule(t, 2, groceries, ledger.KindKeyword, "רמי לוי", 90),
		mustRule(t, 3, gas, ledger.KindKeyword, "פז", 100),
		mustRule(t, 4, streaming, ledger.KindRegex, `^netflix\.com`, 50),
		mustRule(t, 5, groceries, ledger.KindMerchant, "Shufersal Deal", 20),
	})

	t.Run("higher priority keyword wins", func(t *testing.T) {
		rule, ok := engine.Match("רמי לוי שיווק השקמה", nil)
		require.True(t, ok)
		assert.Equal(t, groceries, rule.CategoryID)
		assert.Equal(t, int64(2), rule.ID)
	})

	t.Run("keyword", func(t *testing.T) {
		rule, ok := engine.Match("פז - תחנת דלק", nil)
		require.True(t, ok)
		assert.Equal(t, gas, rule.CategoryID)
	})

	t.Run("keyword matches merchant", func(t *testing.T) {
		rule, ok := engine.Match("כרטיס אשראי", strPtr("פז יללו"))
		require.True(t, ok)
		assert.Equal(t, gas, rule.CategoryID)
	})

	t.Run("regex is case insensitive", func(t *testing.T) {
		rule, ok := engine.Match("NETFLIX.COM 866-579", nil)
		require.True(t, ok)
		assert.Equal(t, streaming, rule.CategoryID)
	})

	t.Run("merchant rule compares the merchant only", func(t *testing.T) {
		rule, ok := engine.Match("x", strPtr("shufersal deal"))
		require.True(t, ok)
		assert.Equal(t, int64(5), rule.ID)

		_, ok = engine.Match("Shufersal Deal", nil)
		assert.False(t, ok)
	})

	t.Run("no match", func(t *testing.T) {
		_, ok := engine.Match("העברה בנקאית", nil)
		assert.False(t, ok)
	})

	t.Run("regex before a lower keyword", func(t *testing.T) {
		rule, ok := engine.Match("netflix.com לוי", nil)
		require.True(t, ok)
		assert.Equal(t, int64(4), rule.ID)
	})
}

func TestEngine_TieBreakAndInactive(t *testing.T) {
	inactive := mustRule(t, 1, 99, ledger.KindKeyword, "קפה", 100)
	inactive.Active = false

	engine := NewEngine([]ledger.Rule{
		inactive,
		mustRule(t, 7, 2, ledger.KindKeyword, "קפה", 50),
		mustRule(t, 3, 1, ledger.KindKeyword, "קפה", 50),
	})

	rule, ok := engine.Match("קפה ארומה", nil)
	require.True(t, ok)
	assert.Equal(t, int64(3), rule.ID, "equal priority goes to the lower id")
	assert.Equal(t, 2, engine.Len())
}

func TestEngine_Empty(t *testing.T) {
	engine := NewEngine(nil)
	_, ok := engine.Match("anything", strPtr("x"))
	assert.False(t, ok)
	assert.Equal(t, 0, engine.Len())
}

// linearMatch is the reference: the first rule in order that matches.
func linearMatch(rules []ledger.Rule, description string, merchant *string) (ledger.Rule, bool) {
	ordered := make([]ledger.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active {
			ordered = append(ordered, r)
		}
	}
	ledger.SortRules(ordered)
	for _, r := range ordered {
		if Matches(r, description, merchant) {
			return r, true
		}
	}
	return ledger.Rule{}, false
}

func TestEngine_AgreesWithLinearScan(t *testing.T) {
	words := []string{"שופרסל", "רמי", "לוי", "פז", "דלק", "קפה", "ארומה", "Netflix", "WOLT", "amzn", "סופר", "פארם", "בזק"}
	rng := rand.New(rand.NewSource(42))

	pick := func(n int) string {
		s := ""
		for i := 0; i < n; i++ {
			if i > 0 {
				s += " "
			}
			s += words[rng.Intn(len(words))]
		}
		return s
	}

	for round := 0; round < 50; round++ {
		var rules []ledger.Rule
		for id := int64(1); id <= 25; id++ {
			priority := rng.Intn(5) * 10
			switch rng.Intn(4) {
			case 0:
				rules = append(rules, mustRule(t, id, id, ledger.KindRegex, fmt.Sprintf("%s\\s+%s", words[rng.Intn(len(words))], words[rng.Intn(len(words))]), priority))
			case 1:
				rules = append(rules, mustRule(t, id, id, ledger.KindMerchant, pick(1), priority))
			default:
				rules = append(rules, mustRule(t, id, id, ledger.KindKeyword, pick(1+rng.Intn(2)), priority))
			}
			rules[len(rules)-1].Active = rng.Intn(6) != 0
		}
		engine := NewEngine(rules)

		for i := 0; i < 40; i++ {
			description := pick(1 + rng.Intn(4))
			var merchant *string
			if rng.Intn(2) == 0 {
				merchant = strPtr(pick(1))
			}

			want, wantOK := linearMatch(rules, description, merchant)
			got, gotOK := engine.Match(description, merchant)
			require.Equal(t, wantOK, gotOK, "round %d: %q / %v", round, description, merchant)
			require.Equal(t, want.ID, got.ID, "round %d: %q", round, description)
		}
	}
}

func BenchmarkEngine_Match(b *testing.B) {
	var rules []ledger.Rule
	for i := 0; i < 500; i++ {
		rules = append(rules, mustRule(b, int64(i+1), 1, ledger.KindKeyword, fmt.Sprintf("merchant%03d", i), i%100))
	}
	engine := NewEngine(rules)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		engine.Match("CARD PURCHASE MERCHANT250 TEL AVIV", nil)
	}
}
