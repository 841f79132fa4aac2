// Package parser turns sniffed bank export tables into candidate transactions.
// Each supported bank or card issuer is one Format (its column signature) plus
// one Parser, registered in a Registry keyed by format name.
package parser

import (
	"strings"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

// Role is what a column means, independent of its localized header.
type Role string

const (
	RoleDate           Role = "date"
	RoleDescription    Role = "description"
	RoleDebit          Role = "debit"
	RoleCredit         Role = "credit"
	RoleAmount         Role = "amount"
	RoleMerchant       Role = "merchant"
	RoleReference      Role = "reference"
	RoleBalance        Role = "balance"
	RoleCurrency       Role = "currency"
	RoleOriginalAmount Role = "original_amount"
	RolePaymentDate    Role = "payment_date"
)

// AmountRule says how a format encodes the signed amount.
type AmountRule string

const (
	// AmountDebitCredit uses two columns: debit is an outflow, credit an inflow.
	AmountDebitCredit AmountRule = "debit/credit pair"
	// AmountCharges uses one column of card charges, all outflows.
	AmountCharges AmountRule = "single column, charges are outflows"
)

// Column declares one role of a format and the headers it may appear under,
// in preference order.
type Column struct {
	Role     Role
	Synonyms []string
	Required bool
}

// Format is the signature of one bank export layout.
type Format struct {
	Name        string
	Bank        string
	Version     int
	Columns     []Column
	MinColumns  int
	DateLayouts []string
	AmountRule  AmountRule
}

// Score is the fraction of required roles the headers provide, or 0 when the
// header is narrower than MinColumns.
func (f *Format) Score(headers []string) float64 {
	if countNonEmpty(headers) < f.MinColumns {
		return 0
	}
	required, present := 0, 0
	for _, col := range f.Columns {
		if !col.Required {
			continue
		}
		required++
		if findColumn(headers, col.Synonyms) >= 0 {
			present++
		}
	}
	if required == 0 {
		return 0
	}
	return float64(present) / float64(required)
}

// Resolve maps every role of the format to its column index in headers.
func (f *Format) Resolve(headers []string) Header {
	h := Header{Names: headers, index: make(map[Role]int, len(f.Columns))}
	for _, col := range f.Columns {
		if idx := findColumn(headers, col.Synonyms); idx >= 0 {
			h.index[col.Role] = idx
		}
	}
	return h
}

// Header is a table header resolved against one format.
type Header struct {
	Names []string
	index map[Role]int
}

// Index returns the column of role.
func (h Header) Index(role Role) (int, bool) {
	idx, ok := h.index[role]
	return idx, ok
}

// Has reports whether the header carries role.
func (h Header) Has(role Role) bool {
	_, ok := h.index[role]
	return ok
}

// Value returns the trimmed cell of role in row, or "".
func (h Header) Value(row sniffer.Row, role Role) string {
	idx, ok := h.index[role]
	if !ok {
		return ""
	}
	return row.Cell(idx)
}

// Parser turns rows of one format into candidate transactions. The returned
// transaction carries date, amount, description, the optional fields and the
// source row; account and file are filled in by the caller. Errors are
// *RowParseError.
type Parser interface {
	Format() *Format
	ParseRow(h Header, row sniffer.Row) (*ledger.Transaction, error)
}

func normalizeHeader(h string) string {
	return strings.ToLower(sniffer.NormalizeHeader(h))
}

// findColumn returns the index of the first synonym present in headers.
func findColumn(headers []string, synonyms []string) int {
	for _, syn := range synonyms {
		want := normalizeHeader(syn)
		for i, h := range headers {
			if normalizeHeader(h) == want {
				return i
			}
		}
	}
	return -1
}

func countNonEmpty(headers []string) int {
	n := 0
	for _, h := range headers {
		if strings.TrimSpace(h) != "" {
			n++
		}
	}
	return n
}
