package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/parser"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
)

type parseResult struct {
	tx   *ledger.Transaction
	err  error
	done bool
}

// parseRows fans the rows out over GOMAXPROCS workers. Each worker writes
// into the slot of its row, so candidates and errors come back in source
// order. Rows not reached before cancellation are dropped.
func (s *Service) parseRows(ctx context.Context, d *detected, req ImportRequest) ([]*ledger.Transaction, []RowError) {
	rows := d.table.Rows
	ctx, span := s.tracer.Start(ctx, "import.parse", trace.WithAttributes(attribute.Int("rows", len(rows))))
	defer span.End()

	p, header := d.match.Parser, d.match.Header
	results := make([]parseResult, len(rows))

	workerCount := runtime.GOMAXPROCS(0)
	if workerCount > len(rows) {
		workerCount = len(rows)
	}
	if workerCount < 1 {
		workerCount = 1
	}

	jobs := make(chan int, workerCount*4)
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if ctx.Err() != nil {
					continue
				}
				if rows[idx].Err != nil {
					results[idx] = parseResult{err: rows[idx].Err, done: true}
					continue
				}
				tx, err := p.ParseRow(header, rows[idx])
				results[idx] = parseResult{tx: tx, err: err, done: true}
			}
		}()
	}

feed:
	for idx := range rows {
		select {
		case jobs <- idx:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	candidates := make([]*ledger.Transaction, 0, len(rows))
	var rowErrors []RowError
	for idx, res := range results {
		switch {
		case !res.done:
			continue
		case res.err != nil:
			rowErrors = append(rowErrors, rowErrorFrom(rows[idx], res.err))
		default:
			res.tx.AccountID = req.AccountID
			res.tx.SourceFile = req.FileName
			candidates = append(candidates, res.tx)
		}
	}

	span.SetAttributes(
		attribute.Int("candidates", len(candidates)),
		attribute.Int("errors", len(rowErrors)),
	)
	return candidates, rowErrors
}

func rowErrorFrom(row sniffer.Row, err error) RowError {
	var rowErr *parser.RowParseError
	if errors.As(err, &rowErr) {
		return RowError{Row: rowErr.Row, Column: rowErr.Column, Message: rowErr.Message, Raw: rowErr.Raw}
	}
	return RowError{Row: row.Index, Message: fmt.Sprintf("line %d: %v", row.Line, err), Raw: row.Raw()}
}
