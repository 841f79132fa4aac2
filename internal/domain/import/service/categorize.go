package service

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

// categorizeByRule runs the rule engine over the inserted transactions and
// persists every match. It returns the transactions no rule matched. Matches
// are saved even after cancellation, since the rows are already stored.
func (s *Service) categorizeByRule(ctx context.Context, inserted []*ledger.Transaction, report *BatchReport, logger *slog.Logger) []*ledger.Transaction {
	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "import.categorize_rules")
	defer span.End()

	var unmatched []*ledger.Transaction
	for _, tx := range inserted {
		c, ok := s.categorizer.MatchRule(tx)
		if !ok {
			unmatched = append(unmatched, tx)
			continue
		}
		if err := s.store.SetCategorization(ctx, tx.ID, c); err != nil {
			logger.Warn("failed to save rule categorization",
				slog.Int64("transaction_id", tx.ID),
				slog.Int("row", tx.SourceRow),
				"error", err,
			)
			unmatched = append(unmatched, tx)
			continue
		}
		tx.Categorization = c
		report.CategorizedByRule++
	}

	span.SetAttributes(
		attribute.Int("matched", report.CategorizedByRule),
		attribute.Int("unmatched", len(unmatched)),
	)
	return unmatched
}

// categorizeByLLM sends the unmatched transactions through the fallback with
// a bounded pool. Failures leave the transaction uncategorized.
func (s *Service) categorizeByLLM(ctx context.Context, unmatched []*ledger.Transaction, report *BatchReport, logger *slog.Logger) {
	if ctx.Err() != nil {
		return
	}
	ctx, span := s.tracer.Start(ctx, "import.categorize_llm", trace.WithAttributes(
		attribute.Int("transactions", len(unmatched)),
		attribute.Int("workers", s.categorizer.Workers()),
	))
	defer span.End()

	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		span.RecordError(err)
		logger.Warn("skipping fallback categorization, failed to list categories", "error", err)
		return
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.categorizer.Workers())

	for _, tx := range unmatched {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			c, err := s.categorizer.Classify(gctx, tx, categories)
			if err != nil || !c.IsCategorized() {
				mu.Lock()
				report.FallbackFailures++
				mu.Unlock()
				return nil
			}
			if err := s.store.SetCategorization(gctx, tx.ID, c); err != nil {
				logger.Warn("failed to save fallback categorization",
					slog.Int64("transaction_id", tx.ID),
					"error", err,
				)
				return nil
			}
			tx.Categorization = c

			mu.Lock()
			report.CategorizedByLLM++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	span.SetAttributes(attribute.Int("categorized", report.CategorizedByLLM))
}
