// Package normalizer cleans merchant names from card and bank exports so that
// merchant rules can compare them exactly.
package normalizer

import (
	"regexp"
	"strings"
)

// Trailing noise card issuers append to merchant names. Each pattern is
// anchored at the end and applied until the name stops changing.
var suffixPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\s*\*+\s*\d{4}$`),       // "WOLT *1234"
	regexp.MustCompile(`\s*[Xx]{4,}\s*\d{4}$`),  // "AMAZON XXXX1234"
	regexp.MustCompile(`\s*כרטיס\s*\d{4}$`),     // "שופרסל כרטיס 1234"
	regexp.MustCompile(`\s+\d{4,}$`),            // terminal/reference numbers
	regexp.MustCompile(`\s+\d{1,2}/\d{1,2}/?$`), // "UBER TRIP 12/01"
}

var spacePattern = regexp.MustCompile(`\s+`)

// Clean trims a merchant name, collapses whitespace and strips trailing
// card-suffix noise.
func Clean(raw string) string {
	result := spacePattern.ReplaceAllString(strings.TrimSpace(raw), " ")

	for {
		before := result
		for _, p := range suffixPatterns {
			result = strings.TrimSpace(p.ReplaceAllString(result, ""))
		}
		if result == before {
			break
		}
	}

	return result
}

// Normalize returns the cleaned merchant, or nil when nothing is left.
func Normalize(raw string) *string {
	cleaned := Clean(raw)
	if cleaned == "" {
		return nil
	}
	return &cleaned
}
