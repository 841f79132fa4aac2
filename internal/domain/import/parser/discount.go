package parser

import (
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

var discountFormat = &Format{
	Name:    "discount",
	Bank:    "Discount Bank",
	Version: 1,
	Columns: []Column{
		{Role: RoleDate, Synonyms: []string{"תאריך ערך", "תאריך", "Date"}, Required: true},
		{Role: RoleDescription, Synonyms: []string{"הערות", "תיאור", "Description"}, Required: true},
		{Role: RoleDebit, Synonyms: []string{"חובה", "Debit"}, Required: true},
		{Role: RoleCredit, Synonyms: []string{"זכות", "Credit"}, Required: true},
		{Role: RoleBalance, Synonyms: []string{"יתרה", "Balance"}},
	},
	MinColumns:  4,
	DateLayouts: []string{layoutSlash, layoutDash, layoutISO},
	AmountRule:  AmountDebitCredit,
}

// DiscountParser reads Discount Bank current account exports.
type DiscountParser struct{}

func NewDiscountParser() *DiscountParser { return &DiscountParser{} }

func (p *DiscountParser) Format() *Format { return discountFormat }

func (p *DiscountParser) ParseRow(h Header, row sniffer.Row) (*ledger.Transaction, error) {
	return parseDebitCreditRow(discountFormat, h, row)
}
