package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"ecoopen-extract/internal/models"
)

// Loader turns raw document bytes into per-page text.
type Loader interface {
	Load(ctx context.Context, data []byte) ([]string, error)
}

// PDFLoader reads text PDFs with ledongthuc/pdf.
type PDFLoader struct{}

var _ Loader = PDFLoader{}

func (PDFLoader) Load(ctx context.Context, data []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadPDF(data)
}

// LoadPDF extracts the plain text of every page. Any failure, including a
// panic inside the PDF reader on malformed input, is reported as
// models.ErrInvalidDocument.
func LoadPDF(data []byte) (pages []string, err error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", models.ErrInvalidDocument)
	}
	if !bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("%PDF-")) {
		return nil, fmt.Errorf("%w: missing PDF header", models.ErrInvalidDocument)
	}

	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: pdf reader: %v", models.ErrInvalidDocument, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidDocument, err)
	}

	numPages := reader.NumPage()
	if numPages == 0 {
		return nil, fmt.Errorf("%w: no pages", models.ErrInvalidDocument)
	}

	hasText := false
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", models.ErrInvalidDocument, i, err)
		}
		if strings.TrimSpace(pageText) != "" {
			hasText = true
		}
		pages = append(pages, pageText)
	}

	if !hasText {
		return nil, fmt.Errorf("%w: no extractable text", models.ErrInvalidDocument)
	}

	log.Debug().Int("pages", numPages).Msg("loaded pdf")
	return pages, nil
}

// TextLoader treats the input as UTF-8 text split into pages by form feeds.
// It backs the plain-text input mode of the CLI and the pipeline tests.
type TextLoader struct{}

func (TextLoader) Load(ctx context.Context, data []byte) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", models.ErrInvalidDocument)
	}
	return strings.Split(text, "\f"), nil
}
