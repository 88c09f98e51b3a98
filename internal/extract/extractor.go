// Package extract provides text extraction from various document formats.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/hyperjump/kotae/internal/models"
)

// Extraction is the text of a document, whole and per page.
type Extraction struct {
	Text  string
	Pages []models.Page
}

// Extractor extracts plain text from document files.
type Extractor struct{}

// NewExtractor returns a new Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

var supported = []string{".pdf", ".docx", ".xlsx", ".pptx", ".txt", ".md", ".rst"}

// SupportedExtensions lists the lower-case extensions (with leading dot) the extractor handles.
func SupportedExtensions() []string {
	return slices.Clone(supported)
}

// Supports reports whether filename has an extension the extractor handles.
func (e *Extractor) Supports(filename string) bool {
	return slices.Contains(supported, strings.ToLower(filepath.Ext(filename)))
}

// Extract reads the file at path and extracts its text.
func (e *Extractor) Extract(path string) (*Extraction, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return e.ExtractBytes(filepath.Base(path), content)
}

// ExtractBytes extracts text from content, choosing the format by filename extension.
// Unknown extensions fail with models.ErrUnsupportedFormat.
// Each page is cleaned; the full text is the non-empty pages joined by blank lines.
func (e *Extractor) ExtractBytes(filename string, content []byte) (*Extraction, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	var (
		pages []models.Page
		err   error
	)
	switch ext {
	case ".pdf":
		pages, err = extractPDF(content)
	case ".docx":
		pages, err = extractDOCX(content)
	case ".xlsx":
		pages, err = extractExcel(content)
	case ".pptx":
		pages, err = extractPPTX(content)
	case ".txt", ".md", ".rst":
		pages, err = extractPlain(content)
	default:
		if ext == "" {
			ext = "(none)"
		}
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	texts := make([]string, 0, len(pages))
	for i := range pages {
		pages[i].Text = CleanText(pages[i].Text)
		if pages[i].Text != "" {
			texts = append(texts, pages[i].Text)
		}
	}
	return &Extraction{Text: strings.Join(texts, "\n\n"), Pages: pages}, nil
}
