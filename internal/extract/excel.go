package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/xuri/excelize/v2"
)

// extractExcel returns one page per sheet. The first row of a sheet is treated as the
// header and every following row becomes a "header: value; ..." sentence.
func extractExcel(content []byte) ([]models.Page, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	pages := make([]models.Page, 0, len(sheets))
	for i, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("get rows for sheet %q: %w", sheet, err)
		}
		text := strings.Join(TableToSentences(rows), "\n")
		if text == "" && len(rows) == 1 {
			text = strings.Join(rows[0], " ")
		}
		pages = append(pages, models.Page{Number: i + 1, Text: text})
	}
	return pages, nil
}

// TableToSentences renders table rows as sentences keyed by the header row.
// Missing header cells are named colN; empty values are left out.
func TableToSentences(table [][]string) []string {
	if len(table) < 2 {
		return nil
	}
	header := make([]string, len(table[0]))
	for i, c := range table[0] {
		header[i] = strings.TrimSpace(c)
		if header[i] == "" {
			header[i] = fmt.Sprintf("col%d", i)
		}
	}
	var sentences []string
	for _, row := range table[1:] {
		parts := make([]string, 0, len(row))
		for i, cell := range row {
			val := strings.TrimSpace(cell)
			if val == "" || strings.EqualFold(val, "nan") || strings.EqualFold(val, "none") {
				continue
			}
			col := fmt.Sprintf("col%d", i)
			if i < len(header) {
				col = header[i]
			}
			parts = append(parts, col+": "+val)
		}
		if len(parts) > 0 {
			sentences = append(sentences, strings.Join(parts, "; ")+".")
		}
	}
	return sentences
}
