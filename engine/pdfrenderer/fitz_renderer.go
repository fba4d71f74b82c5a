package pdfrenderer

import (
	"errors"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// FitzRenderer implements PDF rendering using go-fitz (requires MuPDF)
type FitzRenderer struct {
}

// NewFitzRenderer creates a new Fitz-based PDF renderer
func NewFitzRenderer() (*FitzRenderer, error) {
	return &FitzRenderer{}, nil
}

// Name implements Renderer
func (r *FitzRenderer) Name() string {
	return "fitz"
}

// Open opens a PDF document with MuPDF
func (r *FitzRenderer) Open(filename string) (Document, error) {
	doc, err := fitz.New(filename)
	if err != nil {
		if errors.Is(err, fitz.ErrNeedsPassword) {
			return nil, fmt.Errorf("%w: document is encrypted: %v", ErrOpen, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return &fitzDocument{doc: doc}, nil
}

// Close is a no-op, every document owns its own MuPDF context
func (r *FitzRenderer) Close() error {
	return nil
}

type fitzDocument struct {
	doc *fitz.Document
}

func (d *fitzDocument) NumPage() int {
	return d.doc.NumPage()
}

func (d *fitzDocument) PageSize(page int) (float64, float64, error) {
	// Bound is reported at 72 DPI, which is one pixel per point
	bound, err := d.doc.Bound(page)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to read bounds of page %d: %w", page+1, err)
	}
	return float64(bound.Dx()), float64(bound.Dy()), nil
}

func (d *fitzDocument) RenderPage(page int, dpi int) (image.Image, error) {
	img, err := d.doc.ImageDPI(page, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", page+1, err)
	}
	return img, nil
}

func (d *fitzDocument) Metadata() map[string]string {
	meta := make(map[string]string)
	for k, v := range d.doc.Metadata() {
		if v = metaValue(v); v != "" {
			meta[k] = v
		}
	}
	return meta
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}
