package sniffer

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// ============================================================================
// Text input
// ============================================================================

func TestSniff_LeumiWithMetadata(t *testing.T) {
	text := "בנק לאומי\r\n" +
		"תאריך הפקה: 05/02/2026\r\n" +
		"\r\n" +
		"תאריך,תיאור,חובה,זכות,יתרה\r\n" +
		"01/02/2026,פז - תחנת דלק,150.00,,4000.00\r\n" +
		",,,,\r\n" +
		"02/02/2026,\"משכורת, חברה בע\"\"מ\",,12000.00,16000.00\r\n"

	table, err := Sniff(text)
	require.NoError(t, err)

	assert.Equal(t, ',', table.Delimiter)
	assert.Equal(t, 3, table.SkipLines)
	assert.Equal(t, []string{"תאריך", "תיאור", "חובה", "זכות", "יתרה"}, table.Headers)
	require.Len(t, table.Rows, 2)

	first := table.Rows[0]
	assert.Equal(t, 1, first.Index)
	assert.Equal(t, 5, first.Line)
	assert.Equal(t, "פז - תחנת דלק", first.Cell(1))
	assert.Equal(t, "", first.Cell(3))
	assert.Equal(t, "", first.Cell(42))

	second := table.Rows[1]
	assert.Equal(t, 3, second.Index, "blank rows keep their place in the numbering")
	assert.Equal(t, "משכורת, חברה בע\"מ", second.Cell(1))
}

func TestSniff_Delimiters(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		delimiter rune
	}{
		{"semicolon", "Date;Description;Amount\n01/02/2026;Wolt;45.00\n", ';'},
		{"tab", "Date\tDescription\tAmount\n01/02/2026\tWolt\t45.00\n", '\t'},
		{"pipe", "Date|Description|Amount\n01/02/2026|Wolt|45.00\n", '|'},
		{"comma", "Date,Description,Amount\n01/02/2026,Wolt,45.00\n", ','},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, err := Sniff(tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.delimiter, table.Delimiter)
			assert.Equal(t, []string{"Date", "Description", "Amount"}, table.Headers)
			require.Len(t, table.Rows, 1)
			assert.Equal(t, "Wolt", table.Rows[0].Cell(1))
		})
	}
}

func TestSniff_HeaderNormalization(t *testing.T) {
	table, err := Sniff("\uFEFF\u200Fתאריך  עסקה ,  סכום\n01/02/2026,10\n")
	require.NoError(t, err)
	assert.Equal(t, []string{"תאריך עסקה", "סכום"}, table.Headers)
}

func TestSniff_Errors(t *testing.T) {
	_, err := Sniff("   \n  ")
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Sniff("just a note\nanother note\n")
	assert.ErrorIs(t, err, ErrNoHeadersFound)
}

func TestSniffWithOptions_Override(t *testing.T) {
	text := "a;b;c\nfoo;bar;baz\n1;2;3\n"
	table, err := SniffWithOptions(text, &DetectOptions{HeaderRowIndex: 1, Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"foo", "bar", "baz"}, table.Headers)
	require.Len(t, table.Rows, 1)

	_, err = SniffWithOptions(text, &DetectOptions{HeaderRowIndex: 10})
	assert.ErrorIs(t, err, ErrNoHeadersFound)
}

func TestFingerprint_StableAcrossFormatting(t *testing.T) {
	a, err := Sniff("תאריך,תיאור,חובה\n1,2,3\n")
	require.NoError(t, err)
	b, err := Sniff(" תאריך ; תיאור ; חובה \n1;2;3\n")
	require.NoError(t, err)
	assert.Equal(t, a.Fingerprint, b.Fingerprint)
	assert.Len(t, a.Fingerprint, 64)
}

// ============================================================================
// Workbook input
// ============================================================================

func buildWorkbook(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestSniffXLSX(t *testing.T) {
	data := buildWorkbook(t, [][]any{
		{"פירוט עסקאות לכרטיס 1234"},
		{},
		{"תאריך רכישה", "שם בית עסק", "סכום עסקה"},
		{"01/02/2026", "שופרסל דיל", "89.90"},
		{"03/02/2026", "WOLT", "45"},
	})

	require.True(t, IsXLSX(data))
	assert.False(t, IsXLSX([]byte("Date,Amount")))

	table, err := SniffXLSX(data)
	require.NoError(t, err)
	assert.Equal(t, "Sheet1", table.Sheet)
	assert.Equal(t, 2, table.SkipLines)
	assert.Equal(t, []string{"תאריך רכישה", "שם בית עסק", "סכום עסקה"}, table.Headers)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "שופרסל דיל", table.Rows[0].Cell(1))
	assert.Equal(t, 4, table.Rows[0].Line)
	assert.True(t, table.Rows[0].Workbook)
	assert.Equal(t, 2, table.Rows[1].Index)
}

func TestSniffXLSX_NoHeader(t *testing.T) {
	data := buildWorkbook(t, [][]any{{"hello"}, {"world"}})
	_, err := SniffXLSX(data)
	assert.ErrorIs(t, err, ErrNoHeadersFound)
}
