package categorization

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/metrics"
)

var (
	// ErrFallbackCategoryInvalid means the classifier answered with a category
	// that was not offered. The transaction stays uncategorized.
	ErrFallbackCategoryInvalid = errors.New("fallback returned an unknown category")
	// ErrFallbackUnavailable covers network failures, timeouts, non-200
	// responses and malformed answers.
	ErrFallbackUnavailable = errors.New("fallback classifier unavailable")
)

// Classification is the answer of a fallback classifier. Reasoning is advisory.
type Classification struct {
	CategoryID int64
	Confidence float64
	Reasoning  string
}

// Classifier asks an external model to pick one of categories for tx.
type Classifier interface {
	Name() string
	Classify(ctx context.Context, tx *ledger.Transaction, categories []ledger.Category) (Classification, error)
}

// validate rejects categories that were not offered and clamps confidence
// into [0, 1].
func validate(c Classification, offered ledger.CategoryIndex) (Classification, error) {
	if !offered.Has(c.CategoryID) {
		return Classification{}, fmt.Errorf("%w: %d", ErrFallbackCategoryInvalid, c.CategoryID)
	}
	switch {
	case c.Confidence < 0:
		c.Confidence = 0
	case c.Confidence > 1:
		c.Confidence = 1
	}
	return c, nil
}

// LimitedClassifier wraps a Classifier with a request rate limit and records
// each call in metrics.
type LimitedClassifier struct {
	inner   Classifier
	limiter *rate.Limiter
	metrics *metrics.Metrics
}

// NewLimitedClassifier allows requestsPerMinute calls with a burst of one.
// A non-positive rate disables limiting.
func NewLimitedClassifier(inner Classifier, requestsPerMinute int, m *metrics.Metrics) *LimitedClassifier {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(requestsPerMinute))
	}
	return &LimitedClassifier{
		inner:   inner,
		limiter: rate.NewLimiter(limit, 1),
		metrics: m,
	}
}

func (l *LimitedClassifier) Name() string { return l.inner.Name() }

func (l *LimitedClassifier) Classify(ctx context.Context, tx *ledger.Transaction, categories []ledger.Category) (Classification, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return Classification{}, fmt.Errorf("%w: %v", ErrFallbackUnavailable, err)
	}

	start := time.Now()
	c, err := l.inner.Classify(ctx, tx, categories)

	result := "ok"
	switch {
	case errors.Is(err, ErrFallbackCategoryInvalid):
		result = "invalid_category"
	case err != nil:
		result = "unavailable"
	}
	l.metrics.FallbackCalled(l.inner.Name(), result, time.Since(start))

	return c, err
}
