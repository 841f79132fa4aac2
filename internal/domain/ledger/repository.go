package ledger

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrSystemCategory      = errors.New("system categories cannot be deleted")
	ErrCategoryHasChildren = errors.New("category has subcategories")
	ErrCategoryNesting     = errors.New("subcategories cannot have subcategories")
	ErrInvalidCategoryType = errors.New("category type must be income or expense")
	ErrInvalidCategory     = errors.New("invalid category")
	ErrDuplicateCategory   = errors.New("category name already exists")
)

// Repository is the storage capability the import pipeline needs.
type Repository interface {
	FindExisting(ctx context.Context, accountID int64, r DateRange) ([]Transaction, error)
	Insert(ctx context.Context, tx *Transaction) (int64, error)
	ListActiveRules(ctx context.Context) ([]Rule, error)
	ListCategories(ctx context.Context) ([]Category, error)
}

// TransactionStore adds the transaction operations categorization runs need.
type TransactionStore interface {
	GetTransaction(ctx context.Context, id int64) (*Transaction, error)
	ListUncategorized(ctx context.Context) ([]Transaction, error)
	SetCategorization(ctx context.Context, id int64, c Categorization) error
}

// RuleStore manages categorization rules.
type RuleStore interface {
	ListActiveRules(ctx context.Context) ([]Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id int64) (*Rule, error)
	CreateRule(ctx context.Context, r *Rule) (int64, error)
	UpdateRule(ctx context.Context, r *Rule) error
	DeleteRule(ctx context.Context, id int64) error
}

// CategoryStore manages categories. Invariants are checked by the caller
// through ValidateNew and CheckDeletable.
type CategoryStore interface {
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id int64) (*Category, error)
	CreateCategory(ctx context.Context, c *Category) (int64, error)
	CountChildren(ctx context.Context, id int64) (int, error)
	DeleteCategory(ctx context.Context, id int64) error
}

// Store is everything a backing store offers.
type Store interface {
	Repository
	TransactionStore
	RuleStore
	CategoryStore
}
