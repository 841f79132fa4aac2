package sniffer

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var zipMagic = []byte{'P', 'K', 0x03, 0x04}

// IsXLSX reports whether data starts with the ZIP magic XLSX workbooks carry.
func IsXLSX(data []byte) bool {
	return bytes.HasPrefix(data, zipMagic)
}

// SniffXLSX locates the table in the first sheet of a workbook that has a
// header row. Cells are read raw, so dates arrive as Excel serial numbers and
// amounts without display formatting.
func SniffXLSX(data []byte) (*Table, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}

	f, err := excelize.OpenReader(bytes.NewReader(data), excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %s: %w", sheet, err)
		}

		headerIdx, err := findHeaderCells(rows)
		if err != nil {
			continue
		}

		headers := cleanHeaders(rows[headerIdx])
		var dataRows []Row
		for i, cells := range rows[headerIdx+1:] {
			if isBlank(cells) {
				continue
			}
			dataRows = append(dataRows, Row{
				Index:    i + 1,
				Line:     headerIdx + i + 2,
				Cells:    trimCells(cells),
				Workbook: true,
			})
		}

		return &Table{
			Sheet:       sheet,
			SkipLines:   headerIdx,
			Headers:     headers,
			Rows:        dataRows,
			Fingerprint: generateFingerprint(headers),
		}, nil
	}

	return nil, ErrNoHeadersFound
}
