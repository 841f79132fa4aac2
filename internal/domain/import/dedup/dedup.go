// Package dedup decides which parsed candidates are already stored.
//
// Two transactions are duplicates when they share account, calendar day,
// amount (exact decimal equality) and trimmed description. Only transactions
// stored before the batch count: identical rows inside one file are all kept.
package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

// Finder loads the stored transactions of an account within a date range.
type Finder interface {
	FindExisting(ctx context.Context, accountID int64, r ledger.DateRange) ([]ledger.Transaction, error)
}

// Key identifies a transaction for duplicate detection. Merchant is not part
// of it.
type Key struct {
	AccountID   int64
	Day         string
	Amount      string
	Description string
}

// KeyOf builds the duplicate key of tx within accountID.
func KeyOf(accountID int64, tx *ledger.Transaction) Key {
	return Key{
		AccountID: accountID,
		Day:       ledger.Day(tx.Date).Format("2006-01-02"),
		// String drops trailing zeros, so 150.00 and 150.0 share a key.
		Amount:      tx.Amount.String(),
		Description: strings.TrimSpace(tx.Description),
	}
}

// Index is a set of keys of stored transactions.
type Index struct {
	keys map[Key]struct{}
}

// NewIndex indexes existing transactions.
func NewIndex(existing []ledger.Transaction) *Index {
	idx := &Index{keys: make(map[Key]struct{}, len(existing))}
	for i := range existing {
		idx.keys[KeyOf(existing[i].AccountID, &existing[i])] = struct{}{}
	}
	return idx
}

// Contains reports whether tx duplicates a stored transaction of accountID.
func (i *Index) Contains(accountID int64, tx *ledger.Transaction) bool {
	_, ok := i.keys[KeyOf(accountID, tx)]
	return ok
}

// Len returns the number of distinct stored keys.
func (i *Index) Len() int {
	return len(i.keys)
}

// Result splits the candidates of one batch, each in input order.
type Result struct {
	Fresh      []*ledger.Transaction
	Duplicates []*ledger.Transaction
}

// Deduplicator filters candidates against the store.
type Deduplicator struct {
	finder Finder
}

// New creates a Deduplicator reading stored transactions from finder.
func New(finder Finder) *Deduplicator {
	return &Deduplicator{finder: finder}
}

// Filter fetches the account's stored transactions once, over the date span of
// the candidates, and splits the candidates. With enabled false every
// candidate is fresh and the store is not read.
func (d *Deduplicator) Filter(ctx context.Context, accountID int64, candidates []*ledger.Transaction, enabled bool) (Result, error) {
	if !enabled {
		return Result{Fresh: candidates}, nil
	}

	span, ok := ledger.RangeOf(candidates)
	if !ok {
		return Result{}, nil
	}

	existing, err := d.finder.FindExisting(ctx, accountID, span)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load existing transactions: %w", err)
	}

	idx := NewIndex(existing)
	res := Result{Fresh: make([]*ledger.Transaction, 0, len(candidates))}
	for _, tx := range candidates {
		if idx.Contains(accountID, tx) {
			res.Duplicates = append(res.Duplicates, tx)
			continue
		}
		res.Fresh = append(res.Fresh, tx)
	}
	return res, nil
}
