package ledger

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store used by the CLI dry-run mode and tests.
type MemoryStore struct {
	mu           sync.RWMutex
	nextID       int64
	transactions map[int64]Transaction
	rules        map[int64]Rule
	categories   map[int64]Category
	now          func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions: make(map[int64]Transaction),
		rules:        make(map[int64]Rule),
		categories:   make(map[int64]Category),
		now:          time.Now,
	}
}

func (s *MemoryStore) id() int64 {
	s.nextID++
	return s.nextID
}

// ============================================================================
// Transactions
// ============================================================================

func (s *MemoryStore) FindExisting(ctx context.Context, accountID int64, r DateRange) ([]Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for _, tx := range s.transactions {
		if tx.AccountID == accountID && r.Contains(tx.Date) {
			out = append(out, tx)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *MemoryStore) Insert(ctx context.Context, tx *Transaction) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *tx
	stored.ID = s.id()
	stored.Date = Day(tx.Date)
	stored.CreatedAt = s.now().UTC()
	s.transactions[stored.ID] = stored
	return stored.ID, nil
}

func (s *MemoryStore) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &tx, nil
}

func (s *MemoryStore) ListUncategorized(ctx context.Context) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for _, tx := range s.transactions {
		if !tx.IsCategorized() {
			out = append(out, tx)
		}
	}
	sortTransactions(out)
	return out, nil
}

func (s *MemoryStore) SetCategorization(ctx context.Context, id int64, c Categorization) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, ok := s.transactions[id]
	if !ok {
		return ErrNotFound
	}
	tx.Categorization = c
	s.transactions[id] = tx
	return nil
}

// Transactions returns every stored transaction ordered by id.
func (s *MemoryStore) Transactions() []Transaction {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Transaction, 0, len(s.transactions))
	for _, tx := range s.transactions {
		out = append(out, tx)
	}
	sortTransactions(out)
	return out
}

func sortTransactions(txs []Transaction) {
	sort.Slice(txs, func(i, j int) bool { return txs[i].ID < txs[j].ID })
}

// ============================================================================
// Rules
// ============================================================================

func (s *MemoryStore) ListActiveRules(ctx context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Rule
	for _, r := range s.rules {
		if r.Active {
			out = append(out, r)
		}
	}
	SortRules(out)
	return out, nil
}

func (s *MemoryStore) ListRules(ctx context.Context) ([]Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Rule, 0, len(s.rules))
	for _, r := range s.rules {
		out = append(out, r)
	}
	SortRules(out)
	return out, nil
}

func (s *MemoryStore) GetRule(ctx context.Context, id int64) (*Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &r, nil
}

func (s *MemoryStore) CreateRule(ctx context.Context, r *Rule) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[r.CategoryID]; !ok {
		return 0, ErrNotFound
	}
	stored := *r
	stored.ID = s.id()
	s.rules[stored.ID] = stored
	return stored.ID, nil
}

func (s *MemoryStore) UpdateRule(ctx context.Context, r *Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[r.ID]; !ok {
		return ErrNotFound
	}
	if _, ok := s.categories[r.CategoryID]; !ok {
		return ErrNotFound
	}
	s.rules[r.ID] = *r
	return nil
}

func (s *MemoryStore) DeleteRule(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return ErrNotFound
	}
	delete(s.rules, id)
	return nil
}

// ============================================================================
// Categories
// ============================================================================

func (s *MemoryStore) ListCategories(ctx context.Context) ([]Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) GetCategory(ctx context.Context, id int64) (*Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *MemoryStore) CreateCategory(ctx context.Context, c *Category) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return 0, ErrDuplicateCategory
		}
	}
	stored := *c
	stored.ID = s.id()
	s.categories[stored.ID] = stored
	return stored.ID, nil
}

func (s *MemoryStore) CountChildren(ctx context.Context, id int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, c := range s.categories {
		if c.ParentID != nil && *c.ParentID == id {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[id]; !ok {
		return ErrNotFound
	}
	delete(s.categories, id)
	for rid, r := range s.rules {
		if r.CategoryID == id {
			delete(s.rules, rid)
		}
	}
	for tid, tx := range s.transactions {
		if tx.Categorization.CategoryID != nil && *tx.Categorization.CategoryID == id {
			tx.Categorization = Uncategorized()
			s.transactions[tid] = tx
		}
	}
	return nil
}
