package parser

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/money"
)

// Day-first layouts shared by the registered formats. Single-digit day and
// month are accepted by every layout.
const (
	layoutSlash      = "2/1/2006"
	layoutDash       = "2-1-2006"
	layoutDot        = "2.1.2006"
	layoutSlashShort = "2/1/06"
	layoutISO        = "2006-1-2"
)

// parseDate parses a date cell with the format's own layouts only. A trailing
// time component is ignored. Serial dates are accepted only from workbook
// cells; in text exports a bare number is a row error.
func parseDate(raw string, layouts []string, workbook bool) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	if i := strings.IndexAny(s, " T"); i > 0 {
		s = s[:i]
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return ledger.Day(t), nil
		}
	}

	if !workbook {
		return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return ledger.Day(t), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date %q", raw)
}

// parseDebitCredit yields -abs(debit) or +abs(credit). Exactly one side must
// carry a non-zero value.
func parseDebitCredit(debitRaw, creditRaw string) (decimal.Decimal, string, error) {
	debit, debitSet, err := optionalAmount(debitRaw)
	if err != nil {
		return decimal.Zero, string(RoleDebit), err
	}
	credit, creditSet, err := optionalAmount(creditRaw)
	if err != nil {
		return decimal.Zero, string(RoleCredit), err
	}

	switch {
	case debitSet && creditSet:
		return decimal.Zero, string(RoleDebit), errors.New("both debit and credit are set")
	case debitSet:
		return debit.Abs().Neg(), "", nil
	case creditSet:
		return credit.Abs(), "", nil
	default:
		return decimal.Zero, string(RoleDebit), errors.New("neither debit nor credit is set")
	}
}

// optionalAmount parses a cell where empty and zero both mean "not set".
func optionalAmount(raw string) (decimal.Decimal, bool, error) {
	d, err := money.ParseAmount(raw)
	if errors.Is(err, money.ErrEmptyAmount) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	if d.IsZero() {
		return decimal.Zero, false, nil
	}
	return d, true, nil
}

// parseCharge parses a card charge: every charge is an outflow.
func parseCharge(raw string) (decimal.Decimal, error) {
	d, err := money.ParseAmount(raw)
	if err != nil {
		return decimal.Zero, err
	}
	return d.Abs().Neg(), nil
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func optionalText(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// rowError builds a RowParseError for row.
func rowError(row sniffer.Row, column Role, message string) *RowParseError {
	return &RowParseError{
		Row:     row.Index,
		Column:  string(column),
		Message: message,
		Raw:     row.Raw(),
	}
}

// newCandidate fills the fields every format shares.
func newCandidate(row sniffer.Row, date time.Time, amount decimal.Decimal, description string) *ledger.Transaction {
	return &ledger.Transaction{
		Date:           date,
		Amount:         amount,
		Description:    ledger.NormalizeDescription(description),
		SourceRow:      row.Index,
		Categorization: ledger.Uncategorized(),
	}
}

// parseDebitCreditRow handles the common bank layout: date, description and a
// debit/credit pair.
func parseDebitCreditRow(f *Format, h Header, row sniffer.Row) (*ledger.Transaction, error) {
	date, err := parseDate(h.Value(row, RoleDate), f.DateLayouts, row.Workbook)
	if err != nil {
		return nil, rowError(row, RoleDate, err.Error())
	}

	description := h.Value(row, RoleDescription)
	if description == "" {
		return nil, rowError(row, RoleDescription, "empty required field")
	}

	amount, column, err := parseDebitCredit(h.Value(row, RoleDebit), h.Value(row, RoleCredit))
	if err != nil {
		return nil, rowError(row, Role(column), err.Error())
	}

	return newCandidate(row, date, amount, description), nil
}
