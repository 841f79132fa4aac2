package ledger

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// RuleKind names the pattern variant of a rule.
type RuleKind string

const (
	KindKeyword  RuleKind = "keyword"
	KindRegex    RuleKind = "regex"
	KindMerchant RuleKind = "merchant"
)

// RulePattern is the sealed set of rule patterns. Only KeywordPattern,
// RegexPattern and MerchantPattern implement it, and NewRulePattern is the
// only way to build one from untrusted input.
type RulePattern interface {
	Kind() RuleKind
	Source() string
	isRulePattern()
}

// KeywordPattern matches a case-insensitive substring of description or merchant.
type KeywordPattern struct {
	Text string
}

func (KeywordPattern) Kind() RuleKind { return KindKeyword }
func (p KeywordPattern) Source() string { return p.Text }
func (KeywordPattern) isRulePattern() {}

// RegexPattern matches description or merchant with a case-insensitive regexp.
type RegexPattern struct {
	Expr     string
	Compiled *regexp.Regexp
}

func (RegexPattern) Kind() RuleKind { return KindRegex }
func (p RegexPattern) Source() string { return p.Expr }
func (RegexPattern) isRulePattern() {}

// MerchantPattern matches the normalized merchant exactly, ignoring case.
type MerchantPattern struct {
	Name string
}

func (MerchantPattern) Kind() RuleKind { return KindMerchant }
func (p MerchantPattern) Source() string { return p.Name }
func (MerchantPattern) isRulePattern() {}

// RuleCompileError rejects a rule whose pattern is empty or does not compile.
type RuleCompileError struct {
	Kind    RuleKind
	Pattern string
	Err     error
}

func (e *RuleCompileError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid %s rule %q: %v", e.Kind, e.Pattern, e.Err)
	}
	return fmt.Sprintf("invalid %s rule %q", e.Kind, e.Pattern)
}

func (e *RuleCompileError) Unwrap() error { return e.Err }

var errEmptyPattern = errors.New("pattern is empty")

// NewRulePattern validates and builds a pattern of the given kind. Regexes are
// compiled case-insensitively here so matching never fails later.
func NewRulePattern(kind RuleKind, pattern string) (RulePattern, error) {
	text := strings.TrimSpace(pattern)
	if text == "" {
		return nil, &RuleCompileError{Kind: kind, Pattern: pattern, Err: errEmptyPattern}
	}

	switch kind {
	case KindKeyword:
		return KeywordPattern{Text: text}, nil
	case KindMerchant:
		return MerchantPattern{Name: text}, nil
	case KindRegex:
		re, err := regexp.Compile("(?i)" + text)
		if err != nil {
			return nil, &RuleCompileError{Kind: kind, Pattern: pattern, Err: err}
		}
		return RegexPattern{Expr: text, Compiled: re}, nil
	default:
		return nil, &RuleCompileError{Kind: kind, Pattern: pattern, Err: fmt.Errorf("unknown rule kind %q", kind)}
	}
}

// Rule maps a pattern to a category.
type Rule struct {
	ID         int64
	CategoryID int64
	Pattern    RulePattern
	Priority   int
	Active     bool
}

// Kind returns the pattern kind, or "" for a rule without a pattern.
func (r Rule) Kind() RuleKind {
	if r.Pattern == nil {
		return ""
	}
	return r.Pattern.Kind()
}

// PatternText returns the stored pattern text.
func (r Rule) PatternText() string {
	if r.Pattern == nil {
		return ""
	}
	return r.Pattern.Source()
}

// RuleBefore is the total evaluation order: priority descending, then id ascending.
func RuleBefore(a, b Rule) bool {
	if a.Priority != b.Priority {
		return a.Priority > b.Priority
	}
	return a.ID < b.ID
}

// SortRules orders rules for evaluation in place.
func SortRules(rules []Rule) {
	sort.SliceStable(rules, func(i, j int) bool { return RuleBefore(rules[i], rules[j]) })
}
