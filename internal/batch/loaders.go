package batch

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/trialscope/screener-cli/internal/extract"
	"github.com/trialscope/screener-cli/internal/model"
)

// LoadCSV reads abstract-level items from a CSV with Title and
// Abstract columns (header names matched case-insensitively).
func LoadCSV(path string) ([]DocumentItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open csv %s", path)
	}
	defer f.Close() //nolint:errcheck

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read csv %s", path)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("batch: csv %s is empty", path)
	}

	titleCol, textCol, err := findColumns(rows[0])
	if err != nil {
		return nil, eris.Wrapf(err, "batch: csv %s", path)
	}

	return rowsToItems(rows[1:], titleCol, textCol, model.SourceBatchCSV), nil
}

// LoadXLSX reads abstract-level items from the first sheet of an XLSX
// workbook, expecting the same Title/Abstract header as the CSV path.
func LoadXLSX(path string) ([]DocumentItem, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open xlsx %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("batch: xlsx %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	rows := make([][]string, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			cells[i] = cell.String()
		}
		rows = append(rows, cells)
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("batch: xlsx %s is empty", path)
	}

	titleCol, textCol, err := findColumns(rows[0])
	if err != nil {
		return nil, eris.Wrapf(err, "batch: xlsx %s", path)
	}

	return rowsToItems(rows[1:], titleCol, textCol, model.SourceBatchXLSX), nil
}

// LoadPDFDir extracts full-text items from every PDF in dir. The
// bibliography is cut from each document here; classifier input never
// carries a reference list.
func LoadPDFDir(ctx context.Context, ex extract.Extractor, dir string) ([]DocumentItem, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read directory %s", dir)
	}

	var items []DocumentItem
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		text, err := ex.ExtractText(ctx, path)
		if err != nil {
			return nil, err
		}

		text, cut := extract.TruncateAtBibliography(text)
		if cut {
			zap.L().Debug("bibliography removed before screening",
				zap.String("file", entry.Name()),
			)
		}

		items = append(items, DocumentItem{
			Title:  strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())),
			Text:   text,
			Source: model.SourceBatchPDF,
		})
	}

	if len(items) == 0 {
		return nil, eris.Errorf("batch: no PDFs found in %s", dir)
	}
	return items, nil
}

func findColumns(header []string) (titleCol, textCol int, err error) {
	titleCol, textCol = -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "title":
			titleCol = i
		case "abstract", "text":
			textCol = i
		}
	}
	if titleCol < 0 || textCol < 0 {
		return 0, 0, eris.New("header must contain Title and Abstract columns")
	}
	return titleCol, textCol, nil
}

func rowsToItems(rows [][]string, titleCol, textCol int, source string) []DocumentItem {
	items := make([]DocumentItem, 0, len(rows))
	for _, row := range rows {
		if titleCol >= len(row) || textCol >= len(row) {
			continue
		}
		title := strings.TrimSpace(row[titleCol])
		text := strings.TrimSpace(row[textCol])
		if title == "" && text == "" {
			continue
		}
		items = append(items, DocumentItem{Title: title, Text: text, Source: source})
	}
	return items
}
