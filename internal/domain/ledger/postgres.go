package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

// DBTX is the subset of pgx used by PostgresStore.
// Satisfied by *pgxpool.Pool, pgx.Tx and pgxmock pools.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore persists the ledger in Postgres.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a store backed by db.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const uniqueViolation = "23505"

const transactionColumns = `
	id, account_id, date, amount::text, description, merchant,
	original_currency, original_amount::text, reference,
	category_id, categorization_method, categorization_confidence,
	source_file, source_row, created_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var (
		tx          Transaction
		amount      string
		originalAmt *string
		method      string
	)
	if err := row.Scan(
		&tx.ID, &tx.AccountID, &tx.Date, &amount, &tx.Description, &tx.Merchant,
		&tx.OriginalCurrency, &originalAmt, &tx.Reference,
		&tx.Categorization.CategoryID, &method, &tx.Categorization.Confidence,
		&tx.SourceFile, &tx.SourceRow, &tx.CreatedAt,
	); err != nil {
		return Transaction{}, err
	}

	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Transaction{}, fmt.Errorf("failed to parse amount of transaction %d: %w", tx.ID, err)
	}
	tx.Amount = d
	if originalAmt != nil {
		od, err := decimal.NewFromString(*originalAmt)
		if err != nil {
			return Transaction{}, fmt.Errorf("failed to parse original amount of transaction %d: %w", tx.ID, err)
		}
		tx.OriginalAmount = &od
	}
	tx.Categorization.Method = Method(method)
	tx.Date = Day(tx.Date)
	return tx, nil
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

// FindExisting returns the account's transactions dated inside r.
func (s *PostgresStore) FindExisting(ctx context.Context, accountID int64, r DateRange) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE account_id = $1 AND date BETWEEN $2 AND $3
		ORDER BY id`

	rows, err := s.db.Query(ctx, query, accountID, Day(r.From), Day(r.To))
	if err != nil {
		return nil, fmt.Errorf("failed to query existing transactions: %w", err)
	}
	return collectTransactions(rows)
}

// Insert stores a candidate transaction and returns its id.
func (s *PostgresStore) Insert(ctx context.Context, tx *Transaction) (int64, error) {
	query := `
		INSERT INTO transactions (
			account_id, date, amount, description, merchant,
			original_currency, original_amount, reference,
			category_id, categorization_method, categorization_confidence,
			source_file, source_row
		) VALUES ($1, $2, $3::numeric, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13)
		RETURNING id`

	var originalAmt *string
	if tx.OriginalAmount != nil {
		v := tx.OriginalAmount.String()
		originalAmt = &v
	}
	method := tx.Categorization.Method
	if method == "" {
		method = MethodNone
	}

	var id int64
	err := s.db.QueryRow(ctx, query,
		tx.AccountID, Day(tx.Date), tx.Amount.String(), tx.Description, tx.Merchant,
		tx.OriginalCurrency, originalAmt, tx.Reference,
		tx.Categorization.CategoryID, string(method), tx.Categorization.Confidence,
		tx.SourceFile, tx.SourceRow,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}
	return id, nil
}

// GetTransaction loads one transaction.
func (s *PostgresStore) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	tx, err := scanTransaction(s.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// ListUncategorized returns transactions without a category, oldest first.
func (s *PostgresStore) ListUncategorized(ctx context.Context) ([]Transaction, error) {
	query := `SELECT ` + transactionColumns + `
		FROM transactions
		WHERE category_id IS NULL
		ORDER BY id`

	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized transactions: %w", err)
	}
	return collectTransactions(rows)
}

// SetCategorization replaces the category assignment of a transaction.
func (s *PostgresStore) SetCategorization(ctx context.Context, id int64, c Categorization) error {
	query := `
		UPDATE transactions
		SET category_id = $2, categorization_method = $3, categorization_confidence = $4
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, id, c.CategoryID, string(c.Method), c.Confidence)
	if err != nil {
		return fmt.Errorf("failed to set categorization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// Rules
// ============================================================================

const ruleColumns = `id, category_id, kind, pattern, priority, active`

func scanRule(row pgx.Row) (Rule, error) {
	var (
		r       Rule
		kind    string
		pattern string
	)
	if err := row.Scan(&r.ID, &r.CategoryID, &kind, &pattern, &r.Priority, &r.Active); err != nil {
		return Rule{}, err
	}
	p, err := NewRulePattern(RuleKind(kind), pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("stored rule %d: %w", r.ID, err)
	}
	r.Pattern = p
	return r, nil
}

func (s *PostgresStore) queryRules(ctx context.Context, query string) ([]Rule, error) {
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var rules []Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// ListActiveRules returns active rules in evaluation order.
func (s *PostgresStore) ListActiveRules(ctx context.Context) ([]Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+`
		FROM categorization_rules
		WHERE active
		ORDER BY priority DESC, id ASC`)
}

// ListRules returns every rule in evaluation order.
func (s *PostgresStore) ListRules(ctx context.Context) ([]Rule, error) {
	return s.queryRules(ctx, `SELECT `+ruleColumns+`
		FROM categorization_rules
		ORDER BY priority DESC, id ASC`)
}

// GetRule loads one rule.
func (s *PostgresStore) GetRule(ctx context.Context, id int64) (*Rule, error) {
	r, err := scanRule(s.db.QueryRow(ctx, `SELECT `+ruleColumns+` FROM categorization_rules WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return &r, nil
}

// CreateRule stores a rule and returns its id.
func (s *PostgresStore) CreateRule(ctx context.Context, r *Rule) (int64, error) {
	query := `
		INSERT INTO categorization_rules (category_id, kind, pattern, priority, active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	var id int64
	err := s.db.QueryRow(ctx, query, r.CategoryID, string(r.Kind()), r.PatternText(), r.Priority, r.Active).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create rule: %w", err)
	}
	return id, nil
}

// UpdateRule overwrites a rule.
func (s *PostgresStore) UpdateRule(ctx context.Context, r *Rule) error {
	query := `
		UPDATE categorization_rules
		SET category_id = $2, kind = $3, pattern = $4, priority = $5, active = $6
		WHERE id = $1`

	tag, err := s.db.Exec(ctx, query, r.ID, r.CategoryID, string(r.Kind()), r.PatternText(), r.Priority, r.Active)
	if err != nil {
		return fmt.Errorf("failed to update rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteRule removes a rule.
func (s *PostgresStore) DeleteRule(ctx context.Context, id int64) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM categorization_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ============================================================================
// Categories
// ============================================================================

const categoryColumns = `id, name, parent_id, type, is_system, COALESCE(icon, ''), COALESCE(color, '')`

func scanCategory(row pgx.Row) (Category, error) {
	var (
		c   Category
		typ string
	)
	if err := row.Scan(&c.ID, &c.Name, &c.ParentID, &typ, &c.IsSystem, &c.Icon, &c.Color); err != nil {
		return Category{}, err
	}
	c.Type = CategoryType(typ)
	return c, nil
}

// ListCategories returns all categories ordered by id.
func (s *PostgresStore) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := s.db.Query(ctx, `SELECT `+categoryColumns+` FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		categories = append(categories, c)
	}
	return categories, rows.Err()
}

// GetCategory loads one category.
func (s *PostgresStore) GetCategory(ctx context.Context, id int64) (*Category, error) {
	c, err := scanCategory(s.db.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// CreateCategory stores a category and returns its id.
func (s *PostgresStore) CreateCategory(ctx context.Context, c *Category) (int64, error) {
	query := `
		INSERT INTO categories (name, parent_id, type, is_system, icon, color)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		RETURNING id`

	var id int64
	err := s.db.QueryRow(ctx, query, c.Name, c.ParentID, string(c.Type), c.IsSystem, c.Icon, c.Color).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateCategory
		}
		return 0, fmt.Errorf("failed to create category: %w", err)
	}
	return id, nil
}

// CountChildren returns how many categories have id as parent.
func (s *PostgresStore) CountChildren(ctx context.Context, id int64) (int, error) {
	var n int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM categories WHERE parent_id = $1`, id).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count subcategories: %w", err)
	}
	return n, nil
}

// DeleteCategory removes a category in one transaction. Its rules cascade and
// its transactions become uncategorized.
func (s *PostgresStore) DeleteCategory(ctx context.Context, id int64) error {
	uncategorize := `
		UPDATE transactions
		SET category_id = NULL, categorization_method = 'none', categorization_confidence = NULL
		WHERE category_id = $1`

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, uncategorize, id); err != nil {
			return fmt.Errorf("failed to uncategorize transactions: %w", err)
		}

		tag, err := tx.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete category: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}
