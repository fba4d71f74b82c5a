package pdfrenderer

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

// ErrOpen is returned when a backend cannot parse a document, including
// documents that need a password.
var ErrOpen = errors.New("pdfrenderer: cannot open document")

// Renderer opens PDF documents for page rasterization
type Renderer interface {
	// Open parses the PDF at path and returns a handle to it
	Open(path string) (Document, error)

	// Name reports the backend name (fitz or pdfium)
	Name() string

	// Close cleans up any resources used by the renderer
	Close() error
}

// Document is an open PDF. Page indices are zero based.
type Document interface {
	NumPage() int

	// PageSize returns the page width and height in points (1/72 inch)
	PageSize(page int) (width, height float64, err error)

	// RenderPage rasterizes a page at the given resolution
	RenderPage(page int, dpi int) (image.Image, error)

	// Metadata returns the document information strings that are set
	Metadata() map[string]string

	Close() error
}

// New creates the renderer for the named backend. An empty name selects fitz.
func New(backend string) (Renderer, error) {
	switch strings.ToLower(backend) {
	case "", "fitz", "mupdf":
		return NewFitzRenderer()
	case "pdfium":
		return NewPDFiumRenderer()
	default:
		return nil, fmt.Errorf("unknown renderer %q (supported: fitz, pdfium)", backend)
	}
}

// NewRenderer creates the default MuPDF based renderer
func NewRenderer() (Renderer, error) {
	return NewFitzRenderer()
}

// metaValue strips the NUL padding some backends leave on metadata strings
func metaValue(v string) string {
	return strings.TrimSpace(strings.TrimRight(v, "\x00"))
}
