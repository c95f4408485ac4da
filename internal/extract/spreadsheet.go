package extract

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractSpreadsheet renders every sheet as "Sheet: <name>" followed by tab-separated rows.
// Sheets are separated by a blank line.
func extractSpreadsheet(content []byte) (string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := make([]string, 0, len(f.GetSheetList()))
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return "", fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		var buf strings.Builder
		buf.WriteString("Sheet: ")
		buf.WriteString(sheet)
		for _, row := range rows {
			buf.WriteByte('\n')
			buf.WriteString(strings.Join(row, "\t"))
		}
		sheets = append(sheets, buf.String())
	}
	return strings.Join(sheets, "\n\n"), nil
}

// extractCSV renders rows tab-separated. Ragged rows and stray quotes are tolerated.
func extractCSV(content []byte) (string, error) {
	text, _ := extractPlain(content)
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	var lines []string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse CSV: %w", err)
		}
		lines = append(lines, strings.Join(rec, "\t"))
	}
	return strings.Join(lines, "\n"), nil
}
