package categorization

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

type seedCategory struct {
	Name   string
	Parent string
	Type   ledger.CategoryType
	Icon   string
	Color  string
}

// Parents come before their subcategories.
var defaultCategories = []seedCategory{
	{Name: "Salary", Type: ledger.CategoryIncome, Icon: "💼"},
	{Name: "Freelance", Type: ledger.CategoryIncome, Icon: "💻"},
	{Name: "Investment Returns", Type: ledger.CategoryIncome, Icon: "📈"},
	{Name: "Other Income", Type: ledger.CategoryIncome, Icon: "💰"},

	{Name: "Groceries", Type: ledger.CategoryExpense, Icon: "🛒", Color: "#10B981"},
	{Name: "Dining Out", Type: ledger.CategoryExpense, Icon: "🍽️", Color: "#F59E0B"},
	{Name: "Transportation", Type: ledger.CategoryExpense, Icon: "🚗", Color: "#3B82F6"},
	{Name: "Utilities", Type: ledger.CategoryExpense, Icon: "💡", Color: "#8B5CF6"},
	{Name: "Housing", Type: ledger.CategoryExpense, Icon: "🏠", Color: "#EF4444"},
	{Name: "Healthcare", Type: ledger.CategoryExpense, Icon: "⚕️", Color: "#EC4899"},
	{Name: "Entertainment", Type: ledger.CategoryExpense, Icon: "🎬", Color: "#06B6D4"},
	{Name: "Shopping", Type: ledger.CategoryExpense, Icon: "🛍️", Color: "#F97316"},
	{Name: "Education", Type: ledger.CategoryExpense, Icon: "📚", Color: "#14B8A6"},
	{Name: "Insurance", Type: ledger.CategoryExpense, Icon: "🛡️", Color: "#6366F1"},
	{Name: "Subscriptions", Type: ledger.CategoryExpense, Icon: "📱", Color: "#A855F7"},
	{Name: "Personal Care", Type: ledger.CategoryExpense, Icon: "💅", Color: "#EC4899"},
	{Name: "Gifts & Donations", Type: ledger.CategoryExpense, Icon: "🎁", Color: "#F43F5E"},
	{Name: "Travel", Type: ledger.CategoryExpense, Icon: "✈️", Color: "#0EA5E9"},
	{Name: "Fitness", Type: ledger.CategoryExpense, Icon: "💪", Color: "#22C55E"},
	{Name: "Other Expenses", Type: ledger.CategoryExpense, Icon: "📦", Color: "#64748B"},

	{Name: "Gas", Parent: "Transportation", Type: ledger.CategoryExpense, Icon: "⛽"},
	{Name: "Public Transit", Parent: "Transportation", Type: ledger.CategoryExpense, Icon: "🚌"},
	{Name: "Parking", Parent: "Transportation", Type: ledger.CategoryExpense, Icon: "🅿️"},
	{Name: "Car Maintenance", Parent: "Transportation", Type: ledger.CategoryExpense, Icon: "🔧"},
	{Name: "Electricity", Parent: "Utilities", Type: ledger.CategoryExpense, Icon: "⚡"},
	{Name: "Water", Parent: "Utilities", Type: ledger.CategoryExpense, Icon: "💧"},
	{Name: "Internet", Parent: "Utilities", Type: ledger.CategoryExpense, Icon: "🌐"},
	{Name: "Phone", Parent: "Utilities", Type: ledger.CategoryExpense, Icon: "📞"},
}

type seedRule struct {
	Pattern  string
	Category string
	Priority int
}

// Default keyword rules for common Israeli merchants.
var defaultRules = []seedRule{
	{"שופרסל", "Groceries", 100},
	{"רמי לוי", "Groceries", 100},
	{"יינות ביתן", "Groceries", 100},
	{"ויקטורי", "Groceries", 100},
	{"סופר", "Groceries", 80},
	{"מכולת", "Groceries", 80},

	{"פז", "Gas", 100},
	{"סונול", "Gas", 100},
	{"דלק", "Gas", 100},
	{"דור אלון", "Gas", 100},
	{"תדלוק", "Gas", 90},

	{"מסעדה", "Dining Out", 90},
	{"קפה", "Dining Out", 80},
	{"ארומה", "Dining Out", 100},
	{"קפה גרג", "Dining Out", 100},
	{"מקדונלד", "Dining Out", 100},
	{"בורגר", "Dining Out", 80},

	{"סופר פארם", "Healthcare", 100},
	{"ניו פארם", "Healthcare", 100},
	{"בית מרקחת", "Healthcare", 90},

	{"רב קו", "Public Transit", 100},
	{"אגד", "Public Transit", 100},
	{"דן", "Public Transit", 90},

	{"נטפליקס", "Subscriptions", 100},
	{"netflix", "Subscriptions", 100},
	{"spotify", "Subscriptions", 100},
	{"amazon", "Shopping", 90},
	{"amzn", "Shopping", 90},

	{"חברת חשמל", "Electricity", 100},
	{"חח\"י", "Electricity", 100},
	{"מקורות", "Water", 100},
	{"בזק", "Internet", 100},
	{"סלקום", "Phone", 100},
	{"פרטנר", "Phone", 100},

	{"חניה", "Parking", 100},
	{"פאנגו", "Parking", 100},

	{"משכורת", "Salary", 100},
	{"העברה - משכורת", "Salary", 100},
}

// SeedResult reports what SeedDefaults installed.
type SeedResult struct {
	Categories int `json:"categories"`
	Rules      int `json:"rules"`
}

// SeedDefaults installs the default system categories and keyword rules when
// no category exists yet, then rebuilds the cache. It is a no-op otherwise.
func (s *Service) SeedDefaults(ctx context.Context) (SeedResult, error) {
	existing, err := s.store.ListCategories(ctx)
	if err != nil {
		return SeedResult{}, fmt.Errorf("failed to list categories: %w", err)
	}
	if len(existing) > 0 {
		s.logger.Info("categories already exist, skipping seed", slog.Int("count", len(existing)))
		return SeedResult{}, nil
	}

	var res SeedResult
	ids := make(map[string]int64, len(defaultCategories))
	for _, sc := range defaultCategories {
		c := &ledger.Category{
			Name:     sc.Name,
			Type:     sc.Type,
			IsSystem: sc.Parent == "",
			Icon:     sc.Icon,
			Color:    sc.Color,
		}
		if sc.Parent != "" {
			parentID := ids[sc.Parent]
			c.ParentID = &parentID
		}
		id, err := s.store.CreateCategory(ctx, c)
		if err != nil {
			return res, fmt.Errorf("failed to seed category %q: %w", sc.Name, err)
		}
		ids[sc.Name] = id
		res.Categories++
	}

	for _, sr := range defaultRules {
		categoryID, ok := ids[sr.Category]
		if !ok {
			s.logger.Warn("seed rule category not found", slog.String("category", sr.Category))
			continue
		}
		pattern, err := ledger.NewRulePattern(ledger.KindKeyword, sr.Pattern)
		if err != nil {
			return res, err
		}
		if _, err := s.store.CreateRule(ctx, &ledger.Rule{
			CategoryID: categoryID,
			Pattern:    pattern,
			Priority:   sr.Priority,
			Active:     true,
		}); err != nil {
			return res, fmt.Errorf("failed to seed rule %q: %w", sr.Pattern, err)
		}
		res.Rules++
	}

	s.logger.Info("seeded defaults",
		slog.Int("categories", res.Categories),
		slog.Int("rules", res.Rules),
	)
	return res, s.cache.Rebuild(ctx)
}
