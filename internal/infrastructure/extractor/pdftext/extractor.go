package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/pdf-qa/internal/core/domain"
)

const pageBreak = "\f"

var pdfMagic = []byte("%PDF-")

// Extractor turns stored PDFs into text with one form feed between pages so
// that page boundaries survive extraction. UTF-8 text files are passed
// through unchanged.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, doc domain.Document) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	raw, err := doc.Content()
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "load document", err)
	}

	if !bytes.HasPrefix(bytes.TrimLeft(raw, " \t\r\n"), pdfMagic) {
		if utf8.Valid(raw) {
			return string(raw), nil
		}
		return "", domain.WrapError(domain.ErrExtraction, "extract text", fmt.Errorf("%s is neither a PDF nor UTF-8 text", doc.DisplayName))
	}

	text, err := extractPages(raw)
	if err != nil {
		return "", domain.WrapError(domain.ErrExtraction, "extract text", fmt.Errorf("%s: %w", doc.DisplayName, err))
	}
	return text, nil
}

func extractPages(raw []byte) (text string, err error) {
	// The pdf package panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, strings.ReplaceAll(pageText, pageBreak, " "))
	}
	return strings.Join(pages, pageBreak), nil
}
