package parser

import (
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

var hapoalimFormat = &Format{
	Name:    "hapoalim",
	Bank:    "Bank Hapoalim",
	Version: 1,
	Columns: []Column{
		{Role: RoleDate, Synonyms: []string{"תאריך ביצוע", "תאריך", "Date"}, Required: true},
		{Role: RoleDescription, Synonyms: []string{"פירוט התנועה", "תיאור", "Description"}, Required: true},
		{Role: RoleDebit, Synonyms: []string{"סכום חיוב", "חובה", "Debit"}, Required: true},
		{Role: RoleCredit, Synonyms: []string{"סכום זיכוי", "זכות", "Credit"}, Required: true},
		{Role: RoleMerchant, Synonyms: []string{"שם בית עסק", "Merchant"}},
		{Role: RoleBalance, Synonyms: []string{"יתרה", "Balance"}},
	},
	MinColumns:  4,
	DateLayouts: []string{layoutSlash, layoutDot, layoutSlashShort},
	AmountRule:  AmountDebitCredit,
}

// HapoalimParser reads Bank Hapoalim current account exports.
type HapoalimParser struct{}

func NewHapoalimParser() *HapoalimParser { return &HapoalimParser{} }

func (p *HapoalimParser) Format() *Format { return hapoalimFormat }

func (p *HapoalimParser) ParseRow(h Header, row sniffer.Row) (*ledger.Transaction, error) {
	tx, err := parseDebitCreditRow(hapoalimFormat, h, row)
	if err != nil {
		return nil, err
	}
	if h.Has(RoleMerchant) {
		tx.Merchant = normalizer.Normalize(h.Value(row, RoleMerchant))
	}
	return tx, nil
}
