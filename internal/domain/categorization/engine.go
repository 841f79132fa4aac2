package categorization

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

// Engine matches transactions against an ordered rule set. It is immutable
// once built and safe for concurrent use.
//
// Keyword rules are indexed in an Aho-Corasick automaton so the earliest
// matching keyword rule is found in one pass over the text. Regex and
// merchant rules ordered before that keyword rule are still checked in
// order, so the result is the same as a linear scan of the rules.
type Engine struct {
	rules []ledger.Rule

	matcher *ahocorasick.Matcher
	// positions[i] lists the rule positions that share keyword i, ascending.
	positions [][]int
	// others holds the positions of regex and merchant rules, ascending.
	others []int
}

// NewEngine builds an engine from rules. Inactive rules are dropped and the
// rest are sorted by priority desc, id asc.
func NewEngine(rules []ledger.Rule) *Engine {
	active := make([]ledger.Rule, 0, len(rules))
	for _, r := range rules {
		if r.Active && r.Pattern != nil {
			active = append(active, r)
		}
	}
	ledger.SortRules(active)

	e := &Engine{rules: active}

	keywordIndex := make(map[string]int)
	var keywords []string
	for pos, r := range active {
		kw, ok := r.Pattern.(ledger.KeywordPattern)
		if !ok {
			e.others = append(e.others, pos)
			continue
		}
		text := strings.ToLower(kw.Text)
		idx, seen := keywordIndex[text]
		if !seen {
			idx = len(keywords)
			keywordIndex[text] = idx
			keywords = append(keywords, text)
			e.positions = append(e.positions, nil)
		}
		e.positions[idx] = append(e.positions[idx], pos)
	}

	if len(keywords) > 0 {
		e.matcher = ahocorasick.NewStringMatcher(keywords)
	}
	return e
}

// Match returns the first rule in order that matches the description or
// merchant.
func (e *Engine) Match(description string, merchant *string) (ledger.Rule, bool) {
	limit := e.firstKeyword(description, merchant)

	for _, pos := range e.others {
		if limit >= 0 && pos > limit {
			break
		}
		if Matches(e.rules[pos], description, merchant) {
			return e.rules[pos], true
		}
	}

	if limit >= 0 {
		return e.rules[limit], true
	}
	return ledger.Rule{}, false
}

// Len is the number of active rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Rules returns the ordered active rules.
func (e *Engine) Rules() []ledger.Rule {
	out := make([]ledger.Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// firstKeyword returns the position of the earliest keyword rule matching
// description or merchant, or -1.
func (e *Engine) firstKeyword(description string, merchant *string) int {
	if e.matcher == nil {
		return -1
	}

	best := -1
	scan := func(text string) {
		if text == "" {
			return
		}
		for _, idx := range e.matcher.MatchThreadSafe([]byte(strings.ToLower(text))) {
			if pos := e.positions[idx][0]; best < 0 || pos < best {
				best = pos
			}
		}
	}

	scan(description)
	if merchant != nil {
		scan(*merchant)
	}
	return best
}

// Matches reports whether a single rule matches. Keyword and regex rules test
// the description and the merchant; merchant rules compare the normalized
// merchant only, and never match a missing merchant.
func Matches(r ledger.Rule, description string, merchant *string) bool {
	switch p := r.Pattern.(type) {
	case ledger.KeywordPattern:
		needle := strings.ToLower(p.Text)
		if strings.Contains(strings.ToLower(description), needle) {
			return true
		}
		return merchant != nil && strings.Contains(strings.ToLower(*merchant), needle)
	case ledger.RegexPattern:
		if p.Compiled == nil {
			return false
		}
		if p.Compiled.MatchString(description) {
			return true
		}
		return merchant != nil && p.Compiled.MatchString(*merchant)
	case ledger.MerchantPattern:
		return merchant != nil && strings.EqualFold(strings.TrimSpace(*merchant), p.Name)
	default:
		return false
	}
}
