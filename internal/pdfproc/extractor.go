// Package pdfproc validates PDF uploads and extracts their plain text.
package pdfproc

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/ledongthuc/pdf"
)

// ErrInvalidPDF is returned when the bytes are not a well-formed PDF.
var ErrInvalidPDF = errors.New("invalid PDF file")

// Result holds the extracted text and document metadata.
type Result struct {
	Text      string
	PageCount int
}

// Extractor converts raw PDF bytes to plain text.
type Extractor interface {
	// Extract returns the document's plain text. Fails with ErrInvalidPDF
	// when the bytes are not a well-formed PDF. An empty Text with a nil
	// error means the document has no extractable text (e.g. scanned images).
	Extract(raw []byte) (Result, error)
}

// Validate performs the cheap magic-byte check for the PDF header.
func Validate(raw []byte) bool {
	return len(raw) >= 4 && bytes.Equal(raw[:4], []byte("%PDF"))
}

// PDFExtractor implements Extractor using ledongthuc/pdf.
type PDFExtractor struct{}

// NewExtractor creates a new PDF text extractor.
func NewExtractor() *PDFExtractor {
	return &PDFExtractor{}
}

// Extract parses the PDF and returns its plain text and page count.
func (e *PDFExtractor) Extract(raw []byte) (Result, error) {
	if !Validate(raw) {
		return Result{}, ErrInvalidPDF
	}

	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}

	plain, err := reader.GetPlainText()
	if err != nil {
		return Result{}, fmt.Errorf("failed to extract PDF text: %w", err)
	}

	text, err := io.ReadAll(plain)
	if err != nil {
		return Result{}, fmt.Errorf("failed to read PDF text: %w", err)
	}

	return Result{
		Text:      string(text),
		PageCount: reader.NumPage(),
	}, nil
}
