package parser

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrFormatUnknown  = errors.New("unknown bank format")
	ErrFormatMismatch = errors.New("file does not match the requested format")
)

// RowParseError represents a parsing error for a specific row. It is
// recorded in the import report and never aborts the file.
type RowParseError struct {
	Row     int
	Column  string
	Message string
	Raw     string
}

func (e *RowParseError) Error() string {
	if e.Column == "" {
		return fmt.Sprintf("row %d: %s", e.Row, e.Message)
	}
	return fmt.Sprintf("row %d, column %s: %s", e.Row, e.Column, e.Message)
}

// UnknownFormatError names a format override that is not registered.
type UnknownFormatError struct {
	Name        string
	Suggestions []string
}

func (e *UnknownFormatError) Error() string {
	if len(e.Suggestions) == 0 {
		return fmt.Sprintf("%s: %q", ErrFormatUnknown, e.Name)
	}
	return fmt.Sprintf("%s: %q (did you mean %s?)", ErrFormatUnknown, e.Name, strings.Join(e.Suggestions, ", "))
}

// Is makes errors.Is(err, ErrFormatUnknown) hold.
func (e *UnknownFormatError) Is(target error) bool {
	return target == ErrFormatUnknown
}

// MismatchError reports how far a forced format was from the header.
type MismatchError struct {
	Format string
	Score  float64
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s: %s scored %.2f", ErrFormatMismatch, e.Format, e.Score)
}

func (e *MismatchError) Is(target error) bool {
	return target == ErrFormatMismatch
}
