package parser

import (
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

var calFormat = &Format{
	Name:    "cal",
	Bank:    "Cal",
	Version: 1,
	Columns: []Column{
		{Role: RoleDate, Synonyms: []string{"תאריך עסקה", "תאריך", "Date"}, Required: true},
		{Role: RoleAmount, Synonyms: []string{"סכום", "Amount"}, Required: true},
		{Role: RoleMerchant, Synonyms: []string{"שם בית עסק", "Merchant", "בית עסק"}},
		{Role: RoleDescription, Synonyms: []string{"פירוט", "Description"}},
	},
	MinColumns:  2,
	DateLayouts: []string{layoutSlash, layoutSlashShort, layoutDot},
	AmountRule:  AmountCharges,
}

// CalParser reads Cal credit card exports.
type CalParser struct{}

func NewCalParser() *CalParser { return &CalParser{} }

func (p *CalParser) Format() *Format { return calFormat }

func (p *CalParser) ParseRow(h Header, row sniffer.Row) (*ledger.Transaction, error) {
	date, err := parseDate(h.Value(row, RoleDate), calFormat.DateLayouts, row.Workbook)
	if err != nil {
		return nil, rowError(row, RoleDate, err.Error())
	}

	amount, err := parseCharge(h.Value(row, RoleAmount))
	if err != nil {
		return nil, rowError(row, RoleAmount, err.Error())
	}

	merchantCell := h.Value(row, RoleMerchant)
	description := coalesce(h.Value(row, RoleDescription), merchantCell)
	if description == "" {
		return nil, rowError(row, RoleDescription, "empty required field")
	}

	tx := newCandidate(row, date, amount, description)
	tx.Merchant = normalizer.Normalize(merchantCell)
	return tx, nil
}
