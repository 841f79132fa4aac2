package parser

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// Registry holds parsers keyed by lower-cased format name, in registration
// order. Detection breaks ties by that order.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[string]Parser)}
}

// DefaultRegistry returns a registry with every supported bank format.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range []Parser{
		NewLeumiParser(),
		NewHapoalimParser(),
		NewDiscountParser(),
		NewMaxParser(),
		NewCalParser(),
	} {
		r.mustRegister(p)
	}
	return r
}

// mustRegister is Register for built-in parsers. It panics on a duplicate name.
func (r *Registry) mustRegister(p Parser) {
	if err := r.Register(p); err != nil {
		panic(err)
	}
}

// Register adds a parser. Names are unique regardless of case.
func (r *Registry) Register(p Parser) error {
	key := strings.ToLower(p.Format().Name)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.parsers[key]; exists {
		return fmt.Errorf("format %q already registered", key)
	}
	r.parsers[key] = p
	r.order = append(r.order, key)
	return nil
}

// Get returns the parser for name, or an *UnknownFormatError carrying the
// closest registered names.
func (r *Registry) Get(name string) (Parser, error) {
	key := strings.ToLower(strings.TrimSpace(name))

	r.mu.RLock()
	defer r.mu.RUnlock()

	if p, ok := r.parsers[key]; ok {
		return p, nil
	}
	return nil, &UnknownFormatError{Name: name, Suggestions: r.suggest(key)}
}

// Parsers returns the registered parsers in registration order.
func (r *Registry) Parsers() []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Parser, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.parsers[key])
	}
	return out
}

// Formats returns the registered formats in registration order.
func (r *Registry) Formats() []*Format {
	parsers := r.Parsers()
	out := make([]*Format, 0, len(parsers))
	for _, p := range parsers {
		out = append(out, p.Format())
	}
	return out
}

// suggest ranks registered names by fuzzy distance to key. Caller holds the lock.
func (r *Registry) suggest(key string) []string {
	if key == "" {
		return nil
	}

	ranks := fuzzy.RankFindNormalizedFold(key, r.order)
	// A typo is rarely a subsequence of the intended name; match the other way too.
	for _, name := range r.order {
		if fuzzy.MatchNormalizedFold(name, key) && !containsTarget(ranks, name) {
			ranks = append(ranks, fuzzy.Rank{Source: key, Target: name, Distance: fuzzy.LevenshteinDistance(key, name)})
		}
	}
	if len(ranks) == 0 {
		for _, name := range r.order {
			if d := fuzzy.LevenshteinDistance(key, name); d <= 2 {
				ranks = append(ranks, fuzzy.Rank{Source: key, Target: name, Distance: d})
			}
		}
	}

	sortRanks(ranks)
	out := make([]string, 0, len(ranks))
	for _, rank := range ranks {
		out = append(out, rank.Target)
	}
	return out
}

func containsTarget(ranks fuzzy.Ranks, target string) bool {
	for _, r := range ranks {
		if r.Target == target {
			return true
		}
	}
	return false
}

// sortRanks orders by distance, then by name.
func sortRanks(ranks fuzzy.Ranks) {
	sort.SliceStable(ranks, func(i, j int) bool {
		if ranks[i].Distance != ranks[j].Distance {
			return ranks[i].Distance < ranks[j].Distance
		}
		return ranks[i].Target < ranks[j].Target
	})
}
