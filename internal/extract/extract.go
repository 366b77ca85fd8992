// Package extract turns input documents (PDFs, plain text) into the
// text the screening and mining paths consume.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/trialscope/screener-cli/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.ExtractConfig) Extractor {
	return NewPdfToText(cfg.PdfToTextPath)
}

// FromFile loads the text of one input document. PDFs go through the
// extractor; anything else is read as UTF-8 plain text.
func FromFile(ctx context.Context, ex Extractor, path string) (string, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		text, err := ex.ExtractText(ctx, path)
		if err != nil {
			return "", err
		}
		return text, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "extract: read %s", path)
	}
	return string(data), nil
}
