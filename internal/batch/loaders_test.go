package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/trialscope/screener-cli/internal/model"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadCSV(t *testing.T) {
	path := writeTempFile(t, "studies.csv",
		"Title,Abstract\n"+
			"Trial of X,Background and methods of X\n"+
			"Trial of Y,Background and methods of Y\n"+
			",\n")

	items, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, items, 2, "blank rows are dropped")

	assert.Equal(t, "Trial of X", items[0].Title)
	assert.Equal(t, "Background and methods of X", items[0].Text)
	assert.Equal(t, model.SourceBatchCSV, items[0].Source)
}

func TestLoadCSV_HeaderCaseInsensitive(t *testing.T) {
	path := writeTempFile(t, "studies.csv",
		"Year,TITLE,abstract\n2020,Trial of X,Some abstract\n")

	items, err := LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Trial of X", items[0].Title)
	assert.Equal(t, "Some abstract", items[0].Text)
}

func TestLoadCSV_MissingColumns(t *testing.T) {
	path := writeTempFile(t, "studies.csv", "Name,Body\nX,Y\n")
	_, err := LoadCSV(path)
	assert.ErrorContains(t, err, "Title and Abstract")
}

func TestLoadXLSX(t *testing.T) {
	file := xlsx.NewFile()
	sheet, err := file.AddSheet("studies")
	require.NoError(t, err)

	addRow := func(cells ...string) {
		row := sheet.AddRow()
		for _, v := range cells {
			row.AddCell().Value = v
		}
	}
	addRow("Title", "Abstract")
	addRow("Trial of X", "Abstract of X")
	addRow("Trial of Y", "Abstract of Y")

	path := filepath.Join(t.TempDir(), "studies.xlsx")
	require.NoError(t, file.Save(path))

	items, err := LoadXLSX(path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Trial of Y", items[1].Title)
	assert.Equal(t, model.SourceBatchXLSX, items[0].Source)
}

// fixedExtractor returns canned text per file name.
type fixedExtractor struct {
	texts map[string]string
}

func (f *fixedExtractor) ExtractText(_ context.Context, path string) (string, error) {
	return f.texts[filepath.Base(path)], nil
}

func TestLoadPDFDir(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"trial-x.pdf", "trial-y.PDF", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("%PDF"), 0o644))
	}

	ex := &fixedExtractor{texts: map[string]string{
		"trial-x.pdf": "Methods of X\n\nRESULTS\n\nmore text\n\nREFERENCES\n1. Smith 2020",
		"trial-y.PDF": "Full text of Y",
	}}

	items, err := LoadPDFDir(context.Background(), ex, dir)
	require.NoError(t, err)
	require.Len(t, items, 2, "non-PDF files are ignored")

	assert.Equal(t, "trial-x", items[0].Title)
	assert.Equal(t, model.SourceBatchPDF, items[0].Source)
	assert.NotContains(t, items[0].Text, "Smith 2020", "bibliography is cut before screening")
	assert.Equal(t, "Full text of Y", items[1].Text)
}

func TestLoadPDFDir_Empty(t *testing.T) {
	_, err := LoadPDFDir(context.Background(), &fixedExtractor{}, t.TempDir())
	assert.ErrorContains(t, err, "no PDFs")
}
