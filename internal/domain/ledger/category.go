package ledger

import (
	"fmt"
	"strings"
)

// CategoryType separates income from expense categories.
type CategoryType string

const (
	CategoryIncome  CategoryType = "income"
	CategoryExpense CategoryType = "expense"
)

// Valid reports whether t is income or expense.
func (t CategoryType) Valid() bool {
	return t == CategoryIncome || t == CategoryExpense
}

// Category is a label transactions are filed under.
type Category struct {
	ID       int64
	Name     string
	ParentID *int64
	Type     CategoryType
	IsSystem bool
	Icon     string
	Color    string
}

// ValidateNew checks a category before it is created. parent is the resolved
// parent category, or nil when the category is top-level.
func ValidateNew(c *Category, parent *Category) error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidCategory)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategoryType, c.Type)
	}
	if c.ParentID == nil {
		return nil
	}
	if parent == nil {
		return fmt.Errorf("parent category %d: %w", *c.ParentID, ErrNotFound)
	}
	if parent.ParentID != nil {
		return ErrCategoryNesting
	}
	return nil
}

// CheckDeletable enforces the deletion invariants: system categories are
// permanent and parents cannot go while they still have children.
func CheckDeletable(c *Category, children int) error {
	if c.IsSystem {
		return ErrSystemCategory
	}
	if children > 0 {
		return fmt.Errorf("%w: %d remaining", ErrCategoryHasChildren, children)
	}
	return nil
}

// CategoryIndex resolves categories by id.
type CategoryIndex map[int64]Category

// IndexCategories builds an index over categories.
func IndexCategories(categories []Category) CategoryIndex {
	idx := make(CategoryIndex, len(categories))
	for _, c := range categories {
		idx[c.ID] = c
	}
	return idx
}

// Has reports whether id is a known category.
func (idx CategoryIndex) Has(id int64) bool {
	_, ok := idx[id]
	return ok
}
