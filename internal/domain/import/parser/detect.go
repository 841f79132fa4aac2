package parser

import "strings"

// MatchThreshold is the minimum score for a format to claim a header.
const MatchThreshold = 0.8

// Match is the outcome of detection.
type Match struct {
	Parser Parser
	Header Header
	Score  float64
}

// Detect returns the best-scoring format for headers. The first registered
// format wins ties. A header no format claims is ErrFormatUnknown.
func (r *Registry) Detect(headers []string) (*Match, error) {
	var best *Match
	for _, p := range r.Parsers() {
		score := p.Format().Score(headers)
		if score < MatchThreshold {
			continue
		}
		if best == nil || score > best.Score {
			best = &Match{Parser: p, Score: score}
		}
	}
	if best == nil {
		return nil, &UnknownFormatError{Name: strings.Join(headers, ",")}
	}
	best.Header = best.Parser.Format().Resolve(headers)
	return best, nil
}

// Resolve uses the override when given, otherwise detection. A forced format
// that does not satisfy the header fails with ErrFormatMismatch.
func (r *Registry) Resolve(headers []string, override string) (*Match, error) {
	if strings.TrimSpace(override) == "" {
		return r.Detect(headers)
	}

	p, err := r.Get(override)
	if err != nil {
		return nil, err
	}
	score := p.Format().Score(headers)
	if score < MatchThreshold {
		return nil, &MismatchError{Format: p.Format().Name, Score: score}
	}
	return &Match{Parser: p, Header: p.Format().Resolve(headers), Score: score}, nil
}
