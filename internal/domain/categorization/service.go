// Package categorization assigns categories to transactions: first by the
// ordered rule set, then, when asked and configured, by an external
// classifier.
package categorization

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/metrics"
)

const (
	DefaultWorkers = 4
	MinWorkers     = 4
	MaxWorkers     = 8
)

// Outcome is the result of categorizing one transaction. FallbackErr is set
// when the classifier was consulted and failed; it is never fatal.
type Outcome struct {
	ledger.Categorization
	RuleID      *int64
	Reasoning   string
	FallbackErr error
}

// RunStats summarizes a categorize-all run.
type RunStats struct {
	Total       int `json:"total"`
	Categorized int `json:"categorized"`
	Failed      int `json:"failed"`
	ByRule      int `json:"by_rule"`
	ByLLM       int `json:"by_llm"`
}

// Service handles transaction categorization logic
type Service struct {
	store      ledger.Store
	cache      *RuleCache
	classifier Classifier
	workers    int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewService creates a categorization service. The cache is rebuilt by every
// rule mutation; call Rebuild once at startup.
func NewService(store ledger.Store, cache *RuleCache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:   store,
		cache:   cache,
		workers: DefaultWorkers,
		logger:  logger,
		tracer:  otel.Tracer("fin-analyzer/categorization"),
	}
}

// WithClassifier enables the fallback. workers is clamped to [MinWorkers, MaxWorkers].
func (s *Service) WithClassifier(c Classifier, workers int) *Service {
	s.classifier = c
	s.workers = ClampWorkers(workers)
	return s
}

// WithMetrics records categorization outcomes.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// ClampWorkers bounds the fallback pool size.
func ClampWorkers(n int) int {
	switch {
	case n < MinWorkers:
		return MinWorkers
	case n > MaxWorkers:
		return MaxWorkers
	default:
		return n
	}
}

// Rebuild reloads the rule cache.
func (s *Service) Rebuild(ctx context.Context) error {
	return s.cache.Rebuild(ctx)
}

// HasClassifier reports whether a fallback is configured.
func (s *Service) HasClassifier() bool {
	return s.classifier != nil
}

// Workers is the fallback pool size.
func (s *Service) Workers() int {
	return s.workers
}

// ============================================================================
// Categorizing
// ============================================================================

// MatchRule runs the rule engine only.
func (s *Service) MatchRule(tx *ledger.Transaction) (Outcome, bool) {
	rule, ok := s.cache.Match(tx.Description, tx.Merchant)
	if !ok {
		return Outcome{Categorization: ledger.Uncategorized()}, false
	}
	ruleID := rule.ID
	return Outcome{Categorization: ledger.ByRule(rule.CategoryID), RuleID: &ruleID}, true
}

// Classify runs the fallback for tx against categories. Without a classifier
// it returns an uncategorized outcome.
func (s *Service) Classify(ctx context.Context, tx *ledger.Transaction, categories []ledger.Category) Outcome {
	if s.classifier == nil {
		return Outcome{Categorization: ledger.Uncategorized()}
	}

	c, err := s.classifier.Classify(ctx, tx, categories)
	if err != nil {
		s.logger.Warn("fallback classification failed",
			slog.Int64("transaction_id", tx.ID),
			slog.Int("source_row", tx.SourceRow),
			"error", err,
		)
		return Outcome{Categorization: ledger.Uncategorized(), FallbackErr: err}
	}
	return Outcome{Categorization: ledger.ByLLM(c.CategoryID, c.Confidence), Reasoning: c.Reasoning}
}

// Categorize decides the category of tx without persisting it. Rules run
// first; the fallback runs only when useLLM is set and a classifier is
// configured.
func (s *Service) Categorize(ctx context.Context, tx *ledger.Transaction, useLLM bool) (Outcome, error) {
	if out, ok := s.MatchRule(tx); ok {
		return out, nil
	}
	if !useLLM || s.classifier == nil {
		return Outcome{Categorization: ledger.Uncategorized()}, nil
	}

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to list categories: %w", err)
	}
	return s.Classify(ctx, tx, categories), nil
}

// CategorizeTransaction categorizes a stored transaction and persists the
// result when a category was found. Manually categorized transactions are
// left alone.
func (s *Service) CategorizeTransaction(ctx context.Context, id int64, useLLM bool) (Outcome, error) {
	tx, err := s.store.GetTransaction(ctx, id)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to get transaction: %w", err)
	}
	if tx.Categorization.Method == ledger.MethodManual {
		return Outcome{Categorization: tx.Categorization}, nil
	}

	out, err := s.Categorize(ctx, tx, useLLM)
	if err != nil {
		return Outcome{}, err
	}
	if !out.IsCategorized() {
		return out, nil
	}

	if err := s.store.SetCategorization(ctx, id, out.Categorization); err != nil {
		return Outcome{}, fmt.Errorf("failed to save categorization: %w", err)
	}
	s.metrics.CategorizedBy(string(out.Method))
	return out, nil
}

// CategorizeAll categorizes every uncategorized transaction. Rules run over
// all of them first; the rest go through the fallback pool when useLLM is set.
// Cancellation stops new fallback calls and keeps what was saved.
func (s *Service) CategorizeAll(ctx context.Context, useLLM bool) (*RunStats, error) {
	ctx, span := s.tracer.Start(ctx, "categorization.CategorizeAll",
		trace.WithAttributes(attribute.Bool("use_llm", useLLM)))
	defer span.End()

	pending, err := s.store.ListUncategorized(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list uncategorized transactions: %w", err)
	}

	stats := &RunStats{Total: len(pending)}
	var unmatched []*ledger.Transaction

	for i := range pending {
		tx := &pending[i]
		out, ok := s.MatchRule(tx)
		if !ok {
			unmatched = append(unmatched, tx)
			continue
		}
		if err := s.store.SetCategorization(ctx, tx.ID, out.Categorization); err != nil {
			return stats, fmt.Errorf("failed to save categorization: %w", err)
		}
		stats.ByRule++
		s.metrics.CategorizedBy(string(ledger.MethodRule))
	}

	if useLLM && s.classifier != nil && len(unmatched) > 0 {
		if err := s.classifyAll(ctx, unmatched, stats); err != nil {
			stats.Categorized = stats.ByRule + stats.ByLLM
			stats.Failed = stats.Total - stats.Categorized
			return stats, err
		}
	}

	stats.Categorized = stats.ByRule + stats.ByLLM
	stats.Failed = stats.Total - stats.Categorized
	span.SetAttributes(
		attribute.Int("total", stats.Total),
		attribute.Int("by_rule", stats.ByRule),
		attribute.Int("by_llm", stats.ByLLM),
	)
	s.logger.Info("categorize all finished",
		slog.Int("total", stats.Total),
		slog.Int("by_rule", stats.ByRule),
		slog.Int("by_llm", stats.ByLLM),
		slog.Int("failed", stats.Failed),
	)
	return stats, nil
}

func (s *Service) classifyAll(ctx context.Context, txs []*ledger.Transaction, stats *RunStats) error {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return fmt.Errorf("failed to list categories: %w", err)
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)

	for _, tx := range txs {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			out := s.Classify(gctx, tx, categories)
			if !out.IsCategorized() {
				return nil
			}
			if err := s.store.SetCategorization(gctx, tx.ID, out.Categorization); err != nil {
				return fmt.Errorf("failed to save categorization: %w", err)
			}
			s.metrics.CategorizedBy(string(ledger.MethodLLM))
			mu.Lock()
			stats.ByLLM++
			mu.Unlock()
			return nil
		})
	}

	return g.Wait()
}

// ============================================================================
// Rule management
// ============================================================================

// RuleInput describes a new rule.
type RuleInput struct {
	CategoryID int64
	Kind       ledger.RuleKind
	Pattern    string
	Priority   int
	Active     *bool
}

// RuleUpdate changes the set fields of a rule.
type RuleUpdate struct {
	CategoryID *int64
	Kind       *ledger.RuleKind
	Pattern    *string
	Priority   *int
	Active     *bool
}

// ListRules returns every rule in evaluation order.
func (s *Service) ListRules(ctx context.Context) ([]ledger.Rule, error) {
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	ledger.SortRules(rules)
	return rules, nil
}

// CreateRule validates and stores a rule, then rebuilds the cache. An invalid
// pattern is a *ledger.RuleCompileError.
func (s *Service) CreateRule(ctx context.Context, in RuleInput) (*ledger.Rule, error) {
	pattern, err := ledger.NewRulePattern(in.Kind, in.Pattern)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetCategory(ctx, in.CategoryID); err != nil {
		return nil, fmt.Errorf("failed to resolve category %d: %w", in.CategoryID, err)
	}

	rule := &ledger.Rule{
		CategoryID: in.CategoryID,
		Pattern:    pattern,
		Priority:   in.Priority,
		Active:     in.Active == nil || *in.Active,
	}
	id, err := s.store.CreateRule(ctx, rule)
	if err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}
	rule.ID = id

	if err := s.cache.Rebuild(ctx); err != nil {
		return rule, err
	}
	return rule, nil
}

// UpdateRule applies the set fields of upd, recompiling the pattern when the
// kind or text changed, then rebuilds the cache.
func (s *Service) UpdateRule(ctx context.Context, id int64, upd RuleUpdate) (*ledger.Rule, error) {
	rule, err := s.store.GetRule(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	if upd.Kind != nil || upd.Pattern != nil {
		kind, text := rule.Kind(), rule.PatternText()
		if upd.Kind != nil {
			kind = *upd.Kind
		}
		if upd.Pattern != nil {
			text = *upd.Pattern
		}
		pattern, err := ledger.NewRulePattern(kind, text)
		if err != nil {
			return nil, err
		}
		rule.Pattern = pattern
	}
	if upd.CategoryID != nil {
		if _, err := s.store.GetCategory(ctx, *upd.CategoryID); err != nil {
			return nil, fmt.Errorf("failed to resolve category %d: %w", *upd.CategoryID, err)
		}
		rule.CategoryID = *upd.CategoryID
	}
	if upd.Priority != nil {
		rule.Priority = *upd.Priority
	}
	if upd.Active != nil {
		rule.Active = *upd.Active
	}

	if err := s.store.UpdateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to update rule: %w", err)
	}
	if err := s.cache.Rebuild(ctx); err != nil {
		return rule, err
	}
	return rule, nil
}

// DeleteRule removes a rule and rebuilds the cache.
func (s *Service) DeleteRule(ctx context.Context, id int64) error {
	if err := s.store.DeleteRule(ctx, id); err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	return s.cache.Rebuild(ctx)
}

// ============================================================================
// Category management
// ============================================================================

// CategoryInput describes a new category.
type CategoryInput struct {
	Name     string
	ParentID *int64
	Type     ledger.CategoryType
	Icon     string
	Color    string
}

// ListCategories returns all categories.
func (s *Service) ListCategories(ctx context.Context) ([]ledger.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// CreateCategory enforces the category invariants and stores a user category.
func (s *Service) CreateCategory(ctx context.Context, in CategoryInput) (*ledger.Category, error) {
	c := &ledger.Category{
		Name:     in.Name,
		ParentID: in.ParentID,
		Type:     in.Type,
		Icon:     in.Icon,
		Color:    in.Color,
	}

	var parent *ledger.Category
	if in.ParentID != nil {
		p, err := s.store.GetCategory(ctx, *in.ParentID)
		if err != nil && !errors.Is(err, ledger.ErrNotFound) {
			return nil, fmt.Errorf("failed to get parent category: %w", err)
		}
		parent = p
	}
	if err := ledger.ValidateNew(c, parent); err != nil {
		return nil, err
	}

	id, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("failed to create category: %w", err)
	}
	c.ID = id
	return c, nil
}

// DeleteCategory deletes a non-system category without children. Its rules
// go with it, so the cache is rebuilt.
func (s *Service) DeleteCategory(ctx context.Context, id int64) error {
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to get category: %w", err)
	}
	children, err := s.store.CountChildren(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to count subcategories: %w", err)
	}
	if err := ledger.CheckDeletable(c, children); err != nil {
		return err
	}

	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	return s.cache.Rebuild(ctx)
}
