package api

import (
	"context"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/categorization"
	importservice "github.com/FACorreiaa/fin-analyzer/internal/domain/import/service"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

// categorizationAdapter adapts categorization.Service to import's Categorizer interface
type categorizationAdapter struct {
	svc *categorization.Service
}

// newCategorizationAdapter creates a new adapter
func newCategorizationAdapter(svc *categorization.Service) importservice.Categorizer {
	return &categorizationAdapter{svc: svc}
}

// MatchRule implements importservice.Categorizer
func (a *categorizationAdapter) MatchRule(tx *ledger.Transaction) (ledger.Categorization, bool) {
	out, ok := a.svc.MatchRule(tx)
	return out.Categorization, ok
}

// Classify implements importservice.Categorizer. A failed fallback surfaces
// as an error so the import can count it.
func (a *categorizationAdapter) Classify(ctx context.Context, tx *ledger.Transaction, categories []ledger.Category) (ledger.Categorization, error) {
	out := a.svc.Classify(ctx, tx, categories)
	if out.FallbackErr != nil {
		return ledger.Uncategorized(), out.FallbackErr
	}
	return out.Categorization, nil
}

func (a *categorizationAdapter) HasClassifier() bool { return a.svc.HasClassifier() }

func (a *categorizationAdapter) Workers() int { return a.svc.Workers() }
