// Package service orchestrates one file import: decoding, table sniffing,
// format detection, row parsing, duplicate filtering, persistence and
// categorization.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/decoder"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/dedup"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/parser"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/import/sniffer"
	"github.com/FACorreiaa/fin-analyzer/internal/domain/ledger"
	"github.com/FACorreiaa/fin-analyzer/pkg/metrics"
)

// EncodingXLSX is reported for workbook uploads, which skip text decoding.
const EncodingXLSX = "xlsx"

// Store is the repository capability an import persists through.
type Store interface {
	ledger.Repository
	SetCategorization(ctx context.Context, id int64, c ledger.Categorization) error
}

// Categorizer defines the categorization capability used after persisting
type Categorizer interface {
	MatchRule(tx *ledger.Transaction) (ledger.Categorization, bool)
	Classify(ctx context.Context, tx *ledger.Transaction, categories []ledger.Category) (ledger.Categorization, error)
	HasClassifier() bool
	Workers() int
}

// ImportOptions toggles the optional stages of an import.
type ImportOptions struct {
	SkipDuplicates bool
	UseLLM         bool
}

// DefaultImportOptions skips duplicates and leaves the fallback off.
func DefaultImportOptions() ImportOptions {
	return ImportOptions{SkipDuplicates: true}
}

// ImportRequest is one uploaded file. Format forces a registered format
// instead of detection.
type ImportRequest struct {
	Data      []byte
	FileName  string
	AccountID int64
	Format    string
	Options   ImportOptions
}

// Detection describes what DetectFormat found in a file.
type Detection struct {
	Format      string   `json:"format"`
	Bank        string   `json:"bank"`
	Version     int      `json:"version"`
	Score       float64  `json:"score"`
	Encoding    string   `json:"encoding"`
	Headers     []string `json:"headers"`
	Rows        int      `json:"rows"`
	Fingerprint string   `json:"fingerprint"`
}

// Bank is one entry of SupportedBanks.
type Bank struct {
	Name       string `json:"name"`
	Bank       string `json:"bank"`
	Version    int    `json:"version"`
	AmountRule string `json:"amount_rule"`
}

// Service orchestrates imports
type Service struct {
	store       Store
	registry    *parser.Registry
	dedup       *dedup.Deduplicator
	categorizer Categorizer
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	tracer      trace.Tracer
}

// NewService creates an import service. categorizer may be nil, in which case
// imported transactions stay uncategorized.
func NewService(store Store, registry *parser.Registry, categorizer Categorizer, logger *slog.Logger) *Service {
	if registry == nil {
		registry = parser.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       store,
		registry:    registry,
		dedup:       dedup.New(store),
		categorizer: categorizer,
		logger:      logger,
		tracer:      otel.Tracer("fin-analyzer/import"),
	}
}

// WithMetrics records batch outcomes.
func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

// WithTimeout bounds every import. Zero means no bound beyond the caller's context.
func (s *Service) WithTimeout(d time.Duration) *Service {
	s.timeout = d
	return s
}

// SupportedBanks lists the registered formats in detection order.
func (s *Service) SupportedBanks() []Bank {
	formats := s.registry.Formats()
	banks := make([]Bank, 0, len(formats))
	for _, f := range formats {
		banks = append(banks, Bank{
			Name:       f.Name,
			Bank:       f.Bank,
			Version:    f.Version,
			AmountRule: string(f.AmountRule),
		})
	}
	return banks
}

// DetectFormat reads the table of data and reports the matching format
// without importing anything.
func (s *Service) DetectFormat(ctx context.Context, data []byte) (*Detection, error) {
	ctx, span := s.tracer.Start(ctx, "import.DetectFormat")
	defer span.End()

	d, err := s.detect(ctx, data, "")
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return d.describe(), nil
}

type detected struct {
	table    *sniffer.Table
	encoding string
	match    *parser.Match
}

func (d *detected) describe() *Detection {
	f := d.match.Parser.Format()
	return &Detection{
		Format:      f.Name,
		Bank:        f.Bank,
		Version:     f.Version,
		Score:       d.match.Score,
		Encoding:    d.encoding,
		Headers:     d.table.Headers,
		Rows:        len(d.table.Rows),
		Fingerprint: d.table.Fingerprint,
	}
}

func (s *Service) detect(ctx context.Context, data []byte, override string) (*detected, error) {
	_, span := s.tracer.Start(ctx, "import.detect")
	defer span.End()

	table, encoding, err := readTable(data)
	if err != nil {
		return nil, err
	}
	match, err := s.registry.Resolve(table.Headers, override)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("format", match.Parser.Format().Name),
		attribute.String("encoding", encoding),
	)
	return &detected{table: table, encoding: encoding, match: match}, nil
}

// readTable locates the table in a workbook or in decoded text. A file
// without a recognizable header is ErrFormatUnknown.
func readTable(data []byte) (*sniffer.Table, string, error) {
	if sniffer.IsXLSX(data) {
		table, err := sniffer.SniffXLSX(data)
		if err != nil {
			return nil, EncodingXLSX, fmt.Errorf("%w: %w", parser.ErrFormatUnknown, err)
		}
		return table, EncodingXLSX, nil
	}

	decoded, err := decoder.Decode(data)
	if err != nil {
		return nil, "", err
	}
	table, err := sniffer.Sniff(decoded.Text)
	if err != nil {
		return nil, string(decoded.Encoding), fmt.Errorf("%w: %w", parser.ErrFormatUnknown, err)
	}
	return table, string(decoded.Encoding), nil
}

// IsStructural reports whether err aborted an import before any row was
// persisted.
func IsStructural(err error) bool {
	return errors.Is(err, decoder.ErrEncodingUndetected) ||
		errors.Is(err, parser.ErrFormatUnknown) ||
		errors.Is(err, parser.ErrFormatMismatch)
}

// ============================================================================
// Import
// ============================================================================

// ImportFile runs the whole pipeline for one file. Structural failures
// return an error and persist nothing. Otherwise the report carries the
// counts; row failures are listed in source order. A cancelled context stops
// new inserts and fallback calls and returns the report with Cancelled set.
func (s *Service) ImportFile(ctx context.Context, req ImportRequest) (*BatchReport, error) {
	start := time.Now()
	report := &BatchReport{BatchID: uuid.New(), FileName: req.FileName, Status: StatusCompleted}
	logger := s.logger.With(
		slog.String("batch_id", report.BatchID.String()),
		slog.String("file", req.FileName),
		slog.Int64("account_id", req.AccountID),
	)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ctx, span := s.tracer.Start(ctx, "import.ImportFile", trace.WithAttributes(
		attribute.String("batch_id", report.BatchID.String()),
		attribute.Int64("account_id", req.AccountID),
	))
	defer span.End()

	// Detecting
	d, err := s.detect(ctx, req.Data, req.Format)
	if err != nil {
		span.RecordError(err)
		s.metrics.BatchFinished("", string(StatusFailed), time.Since(start))
		logger.Warn("import rejected", "error", err)
		return nil, fmt.Errorf("failed to detect format: %w", err)
	}
	format := d.match.Parser.Format().Name
	report.DetectedFormat = format
	report.Encoding = d.encoding
	report.TotalParsed = len(d.table.Rows)

	// Parsing
	candidates, rowErrors := s.parseRows(ctx, d, req)
	report.addRowErrors(rowErrors...)
	if ctx.Err() != nil {
		return s.finish(ctx, report, start, logger), nil
	}

	// Deduplicating
	filtered, err := s.filterDuplicates(ctx, req, candidates)
	if err != nil {
		if ctx.Err() != nil {
			return s.finish(ctx, report, start, logger), nil
		}
		span.RecordError(err)
		s.metrics.BatchFinished(format, string(StatusFailed), time.Since(start))
		return nil, err
	}
	report.SkippedDuplicates = len(filtered.Duplicates)

	// Persisting
	inserted := s.persist(ctx, filtered.Fresh, report, logger)
	report.Imported = len(inserted)

	// Categorizing
	if s.categorizer != nil && len(inserted) > 0 {
		unmatched := s.categorizeByRule(ctx, inserted, report, logger)
		if req.Options.UseLLM && s.categorizer.HasClassifier() && len(unmatched) > 0 {
			s.categorizeByLLM(ctx, unmatched, report, logger)
		}
	}
	report.Uncategorized = report.Imported - report.CategorizedByRule - report.CategorizedByLLM

	return s.finish(ctx, report, start, logger), nil
}

func (s *Service) finish(ctx context.Context, report *BatchReport, start time.Time, logger *slog.Logger) *BatchReport {
	if ctx.Err() != nil {
		report.Cancelled = true
		report.Status = StatusCancelled
	}
	report.sortRowErrors()
	report.Errors = len(report.RowErrors)
	report.Duration = time.Since(start)

	s.metrics.BatchFinished(report.DetectedFormat, string(report.Status), report.Duration)
	s.metrics.RowsCounted("imported", report.Imported)
	s.metrics.RowsCounted("duplicate", report.SkippedDuplicates)
	s.metrics.RowsCounted("errored", report.Errors)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("format", report.DetectedFormat),
		attribute.Int("imported", report.Imported),
		attribute.Int("skipped_duplicates", report.SkippedDuplicates),
		attribute.Int("errors", report.Errors),
		attribute.Bool("cancelled", report.Cancelled),
	)

	logger.Info("import finished",
		slog.String("format", report.DetectedFormat),
		slog.String("encoding", report.Encoding),
		slog.Int("total_parsed", report.TotalParsed),
		slog.Int("imported", report.Imported),
		slog.Int("skipped_duplicates", report.SkippedDuplicates),
		slog.Int("errors", report.Errors),
		slog.Int("by_rule", report.CategorizedByRule),
		slog.Int("by_llm", report.CategorizedByLLM),
		slog.Bool("cancelled", report.Cancelled),
		slog.Duration("duration", report.Duration),
	)
	return report
}

func (s *Service) filterDuplicates(ctx context.Context, req ImportRequest, candidates []*ledger.Transaction) (dedup.Result, error) {
	ctx, span := s.tracer.Start(ctx, "import.deduplicate",
		trace.WithAttributes(attribute.Bool("enabled", req.Options.SkipDuplicates)))
	defer span.End()

	res, err := s.dedup.Filter(ctx, req.AccountID, candidates, req.Options.SkipDuplicates)
	if err != nil {
		span.RecordError(err)
		return dedup.Result{}, err
	}
	span.SetAttributes(attribute.Int("duplicates", len(res.Duplicates)))
	return res, nil
}

// persist inserts in source order. A failed insert is a row error; a
// cancelled context stops further inserts.
func (s *Service) persist(ctx context.Context, fresh []*ledger.Transaction, report *BatchReport, logger *slog.Logger) []*ledger.Transaction {
	ctx, span := s.tracer.Start(ctx, "import.persist", trace.WithAttributes(attribute.Int("candidates", len(fresh))))
	defer span.End()

	inserted := make([]*ledger.Transaction, 0, len(fresh))
	for _, tx := range fresh {
		if ctx.Err() != nil {
			break
		}
		id, err := s.store.Insert(ctx, tx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			logger.Warn("failed to insert transaction", slog.Int("row", tx.SourceRow), "error", err)
			report.addRowErrors(RowError{Row: tx.SourceRow, Message: fmt.Sprintf("failed to insert: %v", err)})
			continue
		}
		tx.ID = id
		inserted = append(inserted, tx)
	}
	span.SetAttributes(attribute.Int("inserted", len(inserted)))
	return inserted
}
