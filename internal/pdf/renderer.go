// Package pdf renders PDF invoices to images for OCR submission.
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

var (
	// ErrEmptyInput is returned when no document bytes were supplied.
	ErrEmptyInput = errors.New("empty pdf input")
	// ErrInvalidFormat is returned when the bytes do not carry a PDF signature.
	ErrInvalidFormat = errors.New("input is not a pdf document")
)

// pdfSignature is the magic prefix every well-formed PDF starts with.
var pdfSignature = []byte("%PDF-")

// Renderer converts the first page of a PDF into a PNG image. Invoice PDFs
// put everything relevant on page one, so only that page is rendered.
type Renderer struct {
	logger *zap.Logger
}

func NewRenderer(logger *zap.Logger) *Renderer {
	return &Renderer{logger: logger}
}

// RenderFirstPage renders page one of the given PDF bytes as PNG.
func (r *Renderer) RenderFirstPage(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}
	if !bytes.HasPrefix(data, pdfSignature) {
		return nil, ErrInvalidFormat
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("%w: document has no pages", ErrInvalidFormat)
	}

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("failed to render pdf page: %w", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode page image: %w", err)
	}

	r.logger.Debug("Rendered pdf first page",
		zap.Int("pdf_bytes", len(data)),
		zap.Int("png_bytes", buf.Len()))

	return buf.Bytes(), nil
}

// IsPDF reports whether the bytes look like a PDF document.
func IsPDF(data []byte) bool {
	return bytes.HasPrefix(data, pdfSignature)
}
