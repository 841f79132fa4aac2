package e2etest

import (
	"github.com/FACorreiaa/fin-analyzer/internal/domain/categorization"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

// categorizationRule files every bank transfer under categoryID.
func categorizationRule(categoryID int64) categorization.RuleInput {
	return categorization.RuleInput{
		CategoryID: categoryID,
		Kind:       ledger.KindRegex,
		Pattern:    `^העברה\s`,
		Priority:   10,
	}
}
