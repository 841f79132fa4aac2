package parser

import (
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

var leumiFormat = &Format{
	Name:    "leumi",
	Bank:    "Bank Leumi",
	Version: 1,
	Columns: []Column{
		{Role: RoleDate, Synonyms: []string{"תאריך", "Date", "תאריך עסקה"}, Required: true},
		{Role: RoleDescription, Synonyms: []string{"תיאור", "Description", "פירוט"}, Required: true},
		{Role: RoleDebit, Synonyms: []string{"חובה", "Debit", "חיוב"}, Required: true},
		{Role: RoleCredit, Synonyms: []string{"זכות", "Credit", "זיכוי"}, Required: true},
		{Role: RoleReference, Synonyms: []string{"אסמכתא", "Reference", "מספר אסמכתא"}},
		{Role: RoleBalance, Synonyms: []string{"יתרה", "Balance"}},
	},
	MinColumns:  4,
	DateLayouts: []string{layoutSlash, layoutDash, layoutDot, layoutSlashShort},
	AmountRule:  AmountDebitCredit,
}

// LeumiParser reads Bank Leumi current account exports.
type LeumiParser struct{}

func NewLeumiParser() *LeumiParser { return &LeumiParser{} }

func (p *LeumiParser) Format() *Format { return leumiFormat }

func (p *LeumiParser) ParseRow(h Header, row sniffer.Row) (*ledger.Transaction, error) {
	tx, err := parseDebitCreditRow(leumiFormat, h, row)
	if err != nil {
		return nil, err
	}
	tx.Reference = optionalText(h.Value(row, RoleReference))
	return tx, nil
}
