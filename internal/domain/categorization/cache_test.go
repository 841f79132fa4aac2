package categorization

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/metrics"
)

// swappingLoader alternates between two rule sets on every load.
type swappingLoader struct {
	sets  [2][]ledger.Rule
	calls atomic.Int64
	err   error
}

func (l *swappingLoader) ListActiveRules(context.Context) ([]ledger.Rule, error) {
	if l.err != nil {
		return nil, l.err
	}
	n := l.calls.Add(1)
	return l.sets[n%2], nil
}

func TestRuleCache_Rebuild(t *testing.T) {
	loader := &swappingLoader{}
	loader.sets[0] = []ledger.Rule{mustRule(t, 1, 10, ledger.KindKeyword, "פז", 100)}
	loader.sets[1] = []ledger.Rule{mustRule(t, 2, 20, ledger.KindKeyword, "פז", 100)}

	m := metrics.New(prometheus.NewRegistry())
	cache := NewRuleCache(loader, m, nil)

	_, ok := cache.Match("פז", nil)
	assert.False(t, ok, "empty before the first rebuild")
	assert.Equal(t, uint64(0), cache.Snapshot().Version)

	require.NoError(t, cache.Rebuild(context.Background()))
	rule, ok := cache.Match("פז", nil)
	require.True(t, ok)
	assert.Equal(t, int64(20), rule.CategoryID)
	assert.Equal(t, uint64(1), cache.Snapshot().Version)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RuleCacheRebuilds))

	loader.err = errors.New("db down")
	assert.Error(t, cache.Rebuild(context.Background()))
	assert.Equal(t, uint64(1), cache.Snapshot().Version, "failed rebuild keeps the old snapshot")
}

// Readers running during rebuilds must only ever see one of the two complete
// rule sets. Run with -race.
func TestRuleCache_ConcurrentReadersSeeCompleteSnapshots(t *testing.T) {
	loader := &swappingLoader{}
	loader.sets[0] = []ledger.Rule{
		mustRule(t, 1, 10, ledger.KindKeyword, "שופרסל", 100),
		mustRule(t, 2, 10, ledger.KindKeyword, "רמי לוי", 90),
	}
	loader.sets[1] = []ledger.Rule{
		mustRule(t, 3, 20, ledger.KindKeyword, "שופרסל", 100),
		mustRule(t, 4, 20, ledger.KindKeyword, "רמי לוי", 90),
	}

	cache := NewRuleCache(loader, nil, nil)
	require.NoError(t, cache.Rebuild(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			assert.NoError(t, cache.Rebuild(ctx))
		}
		cancel()
	}()

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ctx.Err() == nil {
				snap := cache.Snapshot()
				a, okA := snap.Engine.Match("שופרסל דיל", nil)
				b, okB := snap.Engine.Match("רמי לוי", nil)
				if !assert.True(t, okA && okB) {
					return
				}
				assert.Equal(t, a.CategoryID, b.CategoryID, "rules from two snapshots mixed")
			}
		}()
	}

	wg.Wait()
}
