package parser

import (
	"strings"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/normalizer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

var maxFormat = &Format{
	Name:    "max",
	Bank:    "Max",
	Version: 1,
	Columns: []Column{
		{Role: RoleDate, Synonyms: []string{"תאריך רכישה", "Purchase Date", "תאריך"}, Required: true},
		{Role: RoleMerchant, Synonyms: []string{"שם בית עסק", "Merchant", "בית עסק"}, Required: true},
		{Role: RoleAmount, Synonyms: []string{"סכום עסקה", "סכום", "Amount"}, Required: true},
		{Role: RolePaymentDate, Synonyms: []string{"תאריך חיוב", "Payment Date"}},
		{Role: RoleCurrency, Synonyms: []string{"מטבע", "Currency"}},
		{Role: RoleOriginalAmount, Synonyms: []string{"סכום מקורי", "Original Amount"}},
	},
	MinColumns:  3,
	DateLayouts: []string{layoutSlash, layoutDash, layoutSlashShort},
	AmountRule:  AmountCharges,
}

// Currency cells that mean the charge was made in shekels.
var localCurrency = map[string]bool{
	"":     true,
	"ILS":  true,
	"₪":    true,
	"ש\"ח": true,
	"שקל":  true,
	"NIS":  true,
}

// MaxParser reads Max credit card exports.
type MaxParser struct{}

func NewMaxParser() *MaxParser { return &MaxParser{} }

func (p *MaxParser) Format() *Format { return maxFormat }

func (p *MaxParser) ParseRow(h Header, row sniffer.Row) (*ledger.Transaction, error) {
	date, err := parseDate(h.Value(row, RoleDate), maxFormat.DateLayouts, row.Workbook)
	if err != nil {
		return nil, rowError(row, RoleDate, err.Error())
	}

	merchantCell := h.Value(row, RoleMerchant)
	if merchantCell == "" {
		return nil, rowError(row, RoleMerchant, "empty required field")
	}

	amount, err := parseCharge(h.Value(row, RoleAmount))
	if err != nil {
		return nil, rowError(row, RoleAmount, err.Error())
	}

	tx := newCandidate(row, date, amount, merchantCell)
	tx.Merchant = normalizer.Normalize(merchantCell)

	currency := strings.ToUpper(strings.TrimSpace(h.Value(row, RoleCurrency)))
	if !localCurrency[currency] {
		tx.OriginalCurrency = &currency
		original := amount
		if raw := h.Value(row, RoleOriginalAmount); raw != "" {
			if original, err = parseCharge(raw); err != nil {
				return nil, rowError(row, RoleOriginalAmount, err.Error())
			}
		}
		tx.OriginalAmount = &original
	}

	return tx, nil
}
