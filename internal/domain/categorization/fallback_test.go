package categorization

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/metrics"
)

// fakeClassifier answers with a fixed classification or error.
type fakeClassifier struct {
	answer Classification
	err    error
	calls  atomic.Int32
}

func (f *fakeClassifier) Name() string { return "fake" }

func (f *fakeClassifier) Classify(_ context.Context, _ *ledger.Transaction, categories []ledger.Category) (Classification, error) {
	f.calls.Add(1)
	if f.err != nil {
		return Classification{}, f.err
	}
	return validate(f.answer, ledger.IndexCategories(categories))
}

func TestValidate(t *testing.T) {
	offered := ledger.IndexCategories([]ledger.Category{{ID: 1, Name: "Groceries"}, {ID: 2, Name: "Gas"}})

	tests := []struct {
		name    string
		in      Classification
		want    float64
		wantErr error
	}{
		{"in range", Classification{CategoryID: 1, Confidence: 0.7}, 0.7, nil},
		{"clamped high", Classification{CategoryID: 2, Confidence: 1.4}, 1, nil},
		{"clamped low", Classification{CategoryID: 2, Confidence: -0.2}, 0, nil},
		{"unknown category", Classification{CategoryID: 99, Confidence: 0.9}, 0, ErrFallbackCategoryInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := validate(tt.in, offered)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Confidence)
			assert.Equal(t, tt.in.CategoryID, got.CategoryID)
		})
	}
}

func TestLimitedClassifier(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	categories := []ledger.Category{{ID: 1, Name: "Groceries"}}

	ok := NewLimitedClassifier(&fakeClassifier{answer: Classification{CategoryID: 1, Confidence: 0.8}}, 0, m)
	c, err := ok.Classify(context.Background(), &ledger.Transaction{}, categories)
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.CategoryID)
	assert.Equal(t, "fake", ok.Name())

	invalid := NewLimitedClassifier(&fakeClassifier{answer: Classification{CategoryID: 5}}, 0, m)
	_, err = invalid.Classify(context.Background(), &ledger.Transaction{}, categories)
	assert.ErrorIs(t, err, ErrFallbackCategoryInvalid)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackRequests.WithLabelValues("fake", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackRequests.WithLabelValues("fake", "invalid_category")))
}

func TestLimitedClassifier_WaitHonoursContext(t *testing.T) {
	inner := &fakeClassifier{answer: Classification{CategoryID: 1}}
	limited := NewLimitedClassifier(inner, 1, nil)
	categories := []ledger.Category{{ID: 1}}

	// The first call uses the burst; the second would wait a minute.
	_, err := limited.Classify(context.Background(), &ledger.Transaction{}, categories)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = limited.Classify(ctx, &ledger.Transaction{}, categories)
	assert.ErrorIs(t, err, ErrFallbackUnavailable)
	assert.Equal(t, int32(1), inner.calls.Load())
}

func TestClampWorkers(t *testing.T) {
	assert.Equal(t, 4, ClampWorkers(0))
	assert.Equal(t, 6, ClampWorkers(6))
	assert.Equal(t, 8, ClampWorkers(32))
}

var errBoom = errors.New("boom")
