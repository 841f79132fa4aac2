// Package ledger holds the transaction, category and rule model shared by the
// import pipeline and the categorization engine, plus the repository capability
// they persist through.
package ledger

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Method records how a transaction got its category.
type Method string

const (
	MethodNone   Method = "none"
	MethodManual Method = "manual"
	MethodRule   Method = "rule"
	MethodLLM    Method = "llm"
)

// Valid reports whether m is one of the known methods.
func (m Method) Valid() bool {
	switch m {
	case MethodNone, MethodManual, MethodRule, MethodLLM:
		return true
	}
	return false
}

// Categorization is the category assignment of a transaction. Build it with
// ByRule, ByLLM, Manual or Uncategorized so that confidence only ever travels
// with the llm method.
type Categorization struct {
	CategoryID *int64
	Method     Method
	Confidence *float64
}

// Uncategorized returns the empty assignment.
func Uncategorized() Categorization {
	return Categorization{Method: MethodNone}
}

// ByRule assigns a category matched by a rule.
func ByRule(categoryID int64) Categorization {
	return Categorization{CategoryID: &categoryID, Method: MethodRule}
}

// ByLLM assigns a category returned by the classification fallback.
func ByLLM(categoryID int64, confidence float64) Categorization {
	return Categorization{CategoryID: &categoryID, Method: MethodLLM, Confidence: &confidence}
}

// Manual assigns a category chosen by a user.
func Manual(categoryID int64) Categorization {
	return Categorization{CategoryID: &categoryID, Method: MethodManual}
}

// IsCategorized reports whether a category is assigned.
func (c Categorization) IsCategorized() bool {
	return c.CategoryID != nil
}

// Transaction is a candidate (ID == 0) or persisted bank transaction.
type Transaction struct {
	ID               int64
	AccountID        int64
	Date             time.Time
	Amount           decimal.Decimal
	Description      string
	Merchant         *string
	OriginalCurrency *string
	OriginalAmount   *decimal.Decimal
	Reference        *string
	Categorization   Categorization
	SourceFile       string
	SourceRow        int
	CreatedAt        time.Time
}

// IsCategorized reports whether the transaction has a category.
func (t *Transaction) IsCategorized() bool {
	return t.Categorization.IsCategorized()
}

// MerchantName returns the merchant or an empty string.
func (t *Transaction) MerchantName() string {
	if t.Merchant == nil {
		return ""
	}
	return *t.Merchant
}

// Day truncates a time to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NormalizeDescription is the form descriptions are compared in for duplicate detection.
func NormalizeDescription(s string) string {
	return strings.TrimSpace(s)
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time
	To   time.Time
}

// Contains reports whether the calendar date of t falls inside the range.
func (r DateRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(Day(r.From)) && !d.After(Day(r.To))
}

// RangeOf returns the smallest range covering all transaction dates.
func RangeOf(txs []*Transaction) (DateRange, bool) {
	if len(txs) == 0 {
		return DateRange{}, false
	}
	r := DateRange{From: Day(txs[0].Date), To: Day(txs[0].Date)}
	for _, tx := range txs[1:] {
		d := Day(tx.Date)
		if d.Before(r.From) {
			r.From = d
		}
		if d.After(r.To) {
			r.To = d
		}
	}
	return r, true
}
