// Package sniffer locates the table inside a bank export: the header row, the
// delimiter and the data rows. It generates a header fingerprint for logging and
// format recognition.
package sniffer

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"errors"
	"io"
	"strings"
	"unicode"
)

// MaxHeaderSearch is how many leading lines may hold metadata before the header.
const MaxHeaderSearch = 20

// Common bank statement header keywords (Hebrew and English)
var headerKeywords = []string{
	// Hebrew
	"תאריך", "תיאור", "פירוט", "חובה", "זכות", "יתרה", "סכום", "אסמכתא",
	"בית עסק", "הערות", "מטבע", "חיוב", "זיכוי",
	// English
	"date", "description", "amount", "debit", "credit", "balance", "merchant",
	"reference", "currency",
}

var delimiters = []rune{',', ';', '\t', '|'}

var (
	ErrEmptyFile        = errors.New("file is empty")
	ErrNoHeadersFound   = errors.New("could not find data headers")
	ErrInvalidDelimiter = errors.New("could not detect valid delimiter")
)

// Row is one data row. Index is the 1-based data row number, Line the 1-based
// line in the source where the row starts. Workbook marks rows read from an
// XLSX sheet, whose date cells may hold serial numbers. Err is set when the
// line could not be split into cells.
type Row struct {
	Index    int
	Line     int
	Cells    []string
	Workbook bool
	Err      error
}

// Cell returns the trimmed cell at i, or "" when the row is short.
func (r Row) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return strings.TrimSpace(r.Cells[i])
}

// Raw joins the row for error reports.
func (r Row) Raw() string {
	return strings.Join(r.Cells, ",")
}

// Table is a located header plus its data rows.
type Table struct {
	Delimiter   rune   // 0 for workbook input
	Sheet       string // workbook sheet name, empty for text input
	SkipLines   int    // lines (or sheet rows) before the header
	Headers     []string
	Rows        []Row
	Fingerprint string // SHA256 of normalized headers
}

// Sample returns up to n leading rows.
func (t *Table) Sample(n int) []Row {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	return t.Rows[:n]
}

// DetectOptions allows callers to override header row or delimiter detection.
type DetectOptions struct {
	// HeaderRowIndex is a 0-based index for the header row. Set to -1 to auto-detect.
	HeaderRowIndex int
	// Delimiter overrides the detected delimiter when non-zero.
	Delimiter rune
}

// Sniff locates the table in decoded text.
func Sniff(text string) (*Table, error) {
	return SniffWithOptions(text, nil)
}

// SniffWithOptions locates the table in decoded text with optional overrides.
func SniffWithOptions(text string, opts *DetectOptions) (*Table, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyFile
	}

	lines := strings.Split(text, "\n")

	var (
		delimiter rune
		skipLines int
		err       error
	)
	if opts != nil && opts.HeaderRowIndex >= 0 {
		if opts.HeaderRowIndex >= len(lines) {
			return nil, ErrNoHeadersFound
		}
		skipLines = opts.HeaderRowIndex
		delimiter = opts.Delimiter
		if delimiter == 0 {
			delimiter, _ = detectDelimiter(cleanLine(lines[skipLines], skipLines == 0))
			if delimiter == 0 {
				return nil, ErrInvalidDelimiter
			}
		}
	} else {
		delimiter, skipLines, err = findHeaderRow(lines)
		if err != nil {
			return nil, err
		}
		if opts != nil && opts.Delimiter != 0 {
			delimiter = opts.Delimiter
		}
	}

	headerLine := strings.TrimRight(strings.TrimPrefix(lines[skipLines], "\uFEFF"), "\r")
	headers, err := splitLine(headerLine, delimiter)
	if err != nil {
		return nil, err
	}
	headers = cleanHeaders(headers)

	body := strings.Join(lines[skipLines+1:], "\n")
	rows, err := readRows(body, delimiter, skipLines+1)
	if err != nil {
		return nil, err
	}

	return &Table{
		Delimiter:   delimiter,
		SkipLines:   skipLines,
		Headers:     headers,
		Rows:        rows,
		Fingerprint: generateFingerprint(headers),
	}, nil
}

// findHeaderRow locates the header row and its delimiter
func findHeaderRow(lines []string) (rune, int, error) {
	// Track the best candidate among lines with no keywords (fallback)
	fallbackIndex := -1
	fallbackDelimiter := rune(0)
	fallbackCount := 0

	// Track the best candidate among lines WITH keywords (preferred)
	keywordIndex := -1
	keywordDelimiter := rune(0)
	keywordScore := 0

	for i, line := range lines {
		if i >= MaxHeaderSearch {
			break
		}

		line = cleanLine(line, i == 0)
		if line == "" {
			continue
		}

		delimiter, count := detectDelimiter(line)
		if count < 1 {
			continue // Not enough columns to be a valid header
		}

		cells, err := splitLine(line, delimiter)
		if err != nil {
			continue
		}

		if matches := keywordMatches(cells); matches > 0 {
			// Real headers have many columns, metadata lines have few
			score := nonEmpty(cells)*10 + matches
			if score > keywordScore {
				keywordScore = score
				keywordDelimiter = delimiter
				keywordIndex = i
			}
		} else if count > fallbackCount {
			fallbackCount = count
			fallbackDelimiter = delimiter
			fallbackIndex = i
		}
	}

	// Keyword lines need at least two filled columns
	if keywordIndex >= 0 && keywordScore >= 20 {
		return keywordDelimiter, keywordIndex, nil
	}

	// Fall back to non-keyword line with most columns
	if fallbackCount >= 2 {
		return fallbackDelimiter, fallbackIndex, nil
	}

	return 0, 0, ErrNoHeadersFound
}

// findHeaderCells is findHeaderRow for pre-split rows such as workbook sheets.
func findHeaderCells(rows [][]string) (int, error) {
	best, bestScore := -1, 0
	for i, cells := range rows {
		if i >= MaxHeaderSearch {
			break
		}
		matches := keywordMatches(cells)
		if matches == 0 {
			continue
		}
		if score := nonEmpty(cells)*10 + matches; score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 || bestScore < 20 {
		return 0, ErrNoHeadersFound
	}
	return best, nil
}

func keywordMatches(cells []string) int {
	matches := 0
	for _, cell := range cells {
		c := strings.ToLower(NormalizeHeader(cell))
		if c == "" {
			continue
		}
		for _, kw := range headerKeywords {
			if strings.Contains(c, kw) {
				matches++
				break
			}
		}
	}
	return matches
}

func nonEmpty(cells []string) int {
	n := 0
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

// NormalizeHeader trims a header cell, drops direction marks and collapses
// inner whitespace.
func NormalizeHeader(h string) string {
	h = strings.Map(func(r rune) rune {
		switch r {
		case '\uFEFF', '\u200E', '\u200F':
			return -1
		}
		return r
	}, h)
	return strings.Join(strings.Fields(h), " ")
}

func cleanHeaders(headers []string) []string {
	out := make([]string, len(headers))
	for i, h := range headers {
		out[i] = NormalizeHeader(h)
	}
	return out
}

func cleanLine(line string, firstLine bool) string {
	line = strings.TrimRight(line, "\r")
	if firstLine {
		line = strings.TrimPrefix(line, "\uFEFF")
	}
	return strings.TrimSpace(line)
}

func detectDelimiter(line string) (rune, int) {
	bestDelimiter := rune(0)
	bestCount := 0
	for _, d := range delimiters {
		count := strings.Count(line, string(d))
		if count > bestCount {
			bestCount = count
			bestDelimiter = d
		}
	}
	return bestDelimiter, bestCount
}

func splitLine(line string, delimiter rune) ([]string, error) {
	reader := csv.NewReader(strings.NewReader(line))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1
	return reader.Read()
}

// readRows reads every data row after the header. firstLine is the 0-based
// line offset of body within the source.
func readRows(body string, delimiter rune, firstLine int) ([]Row, error) {
	reader := csv.NewReader(strings.NewReader(body))
	reader.Comma = delimiter
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // Allow variable fields

	var rows []Row
	index := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				index++
				rows = append(rows, Row{Index: index, Line: firstLine + parseErr.StartLine, Err: parseErr.Err})
				continue
			}
			return nil, err
		}

		index++
		if isBlank(record) {
			continue
		}
		line, _ := reader.FieldPos(0)
		rows = append(rows, Row{Index: index, Line: firstLine + line, Cells: trimCells(record)})
	}
	return rows, nil
}

func trimCells(cells []string) []string {
	for i, c := range cells {
		cells[i] = strings.TrimRight(strings.TrimSpace(c), "\r")
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// generateFingerprint creates a unique hash from header names
func generateFingerprint(headers []string) string {
	// Normalize headers: lowercase, remove non-alphanumeric
	var normalized []string
	for _, h := range headers {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return unicode.ToLower(r)
			}
			return -1
		}, h)
		if clean != "" {
			normalized = append(normalized, clean)
		}
	}

	joined := strings.Join(normalized, "|")
	hash := sha256.Sum256([]byte(joined))
	return hex.EncodeToString(hash[:])
}
