package categorization

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/metrics"
)

// RuleLoader supplies the active rules a snapshot is built from.
type RuleLoader interface {
	ListActiveRules(ctx context.Context) ([]ledger.Rule, error)
}

// Snapshot is one immutable build of the rule engine.
type Snapshot struct {
	Engine  *Engine
	Version uint64
	BuiltAt time.Time
}

// RuleCache holds the current Snapshot behind an atomic pointer. Readers never
// block; rebuilds are serialized and swap in a complete snapshot.
type RuleCache struct {
	loader  RuleLoader
	metrics *metrics.Metrics
	logger  *slog.Logger

	current atomic.Pointer[Snapshot]
	mu      sync.Mutex
}

// NewRuleCache creates a cache holding an empty snapshot until the first
// Rebuild.
func NewRuleCache(loader RuleLoader, m *metrics.Metrics, logger *slog.Logger) *RuleCache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &RuleCache{loader: loader, metrics: m, logger: logger}
	c.current.Store(&Snapshot{Engine: NewEngine(nil)})
	return c
}

// Snapshot returns the current snapshot.
func (c *RuleCache) Snapshot() *Snapshot {
	return c.current.Load()
}

// Match runs the current engine.
func (c *RuleCache) Match(description string, merchant *string) (ledger.Rule, bool) {
	return c.Snapshot().Engine.Match(description, merchant)
}

// Rebuild loads the active rules and swaps in a new snapshot. On error the
// previous snapshot stays in place.
func (c *RuleCache) Rebuild(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	rules, err := c.loader.ListActiveRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to load active rules: %w", err)
	}

	next := &Snapshot{
		Engine:  NewEngine(rules),
		Version: c.current.Load().Version + 1,
		BuiltAt: time.Now(),
	}
	c.current.Store(next)

	c.metrics.RuleCacheRebuilt(next.Engine.Len())
	c.logger.Debug("rule cache rebuilt",
		slog.Uint64("version", next.Version),
		slog.Int("rules", next.Engine.Len()),
	)
	return nil
}
