package service

import (
	"io"
	"sort"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/google/uuid"
)

// Status is the final state of a batch.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// RowError is one rejected row of the file.
type RowError struct {
	Row     int    `json:"row" csv:"row"`
	Column  string `json:"column,omitempty" csv:"column"`
	Message string `json:"message" csv:"message"`
	Raw     string `json:"raw,omitempty" csv:"raw"`
}

// BatchReport summarizes one import. TotalParsed counts attempted rows.
type BatchReport struct {
	BatchID           uuid.UUID     `json:"batch_id"`
	FileName          string        `json:"file_name"`
	DetectedFormat    string        `json:"detected_format"`
	Encoding          string        `json:"encoding"`
	TotalParsed       int           `json:"total_parsed"`
	Imported          int           `json:"imported"`
	SkippedDuplicates int           `json:"skipped_duplicates"`
	Errors            int           `json:"errors"`
	RowErrors         []RowError    `json:"row_errors"`
	CategorizedByRule int           `json:"categorized_by_rule"`
	CategorizedByLLM  int           `json:"categorized_by_llm"`
	Uncategorized     int           `json:"uncategorized"`
	FallbackFailures  int           `json:"fallback_failures"`
	Cancelled         bool          `json:"cancelled"`
	Status            Status        `json:"status"`
	Duration          time.Duration `json:"duration_ns"`
}

func (r *BatchReport) addRowErrors(errs ...RowError) {
	r.RowErrors = append(r.RowErrors, errs...)
}

func (r *BatchReport) sortRowErrors() {
	sort.SliceStable(r.RowErrors, func(i, j int) bool {
		return r.RowErrors[i].Row < r.RowErrors[j].Row
	})
}

// WriteRowErrorsCSV writes the row errors as CSV with a header line.
func (r *BatchReport) WriteRowErrorsCSV(w io.Writer) error {
	rows := r.RowErrors
	if rows == nil {
		rows = []RowError{}
	}
	return gocsv.Marshal(&rows, w)
}
