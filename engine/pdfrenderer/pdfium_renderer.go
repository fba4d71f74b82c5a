package pdfrenderer

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/disintegration/imaging"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// metadataTags maps Info dictionary keys to the names go-fitz reports them under
var metadataTags = [][2]string{
	{"Title", "title"},
	{"Author", "author"},
	{"Subject", "subject"},
	{"Keywords", "keywords"},
	{"Creator", "creator"},
	{"Producer", "producer"},
	{"CreationDate", "creationDate"},
	{"ModDate", "modDate"},
}

// PDFiumRenderer implements PDF rendering using go-pdfium with WebAssembly (pure Go, no CGo)
type PDFiumRenderer struct {
	pool     pdfium.Pool
	instance pdfium.Pdfium
}

// NewPDFiumRenderer creates a new PDFium-based PDF renderer using WebAssembly
func NewPDFiumRenderer() (*PDFiumRenderer, error) {
	// Documents are processed one at a time, a single worker is enough
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}

	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}

	return &PDFiumRenderer{
		pool:     pool,
		instance: instance,
	}, nil
}

// Name implements Renderer
func (r *PDFiumRenderer) Name() string {
	return "pdfium"
}

// Open loads the PDF into the PDFium instance
func (r *PDFiumRenderer) Open(filename string) (Document, error) {
	if r.instance == nil {
		return nil, fmt.Errorf("pdfium renderer is closed")
	}

	pdfBytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("unable to read PDF file: %w", err)
	}

	doc, err := r.instance.OpenDocument(&requests.OpenDocument{
		File: &pdfBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}

	pageCount, err := r.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		r.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{Document: doc.Document})
		return nil, fmt.Errorf("%w: unable to get page count: %v", ErrOpen, err)
	}

	return &pdfiumDocument{
		instance:  r.instance,
		doc:       doc.Document,
		pageCount: pageCount.PageCount,
	}, nil
}

// Close cleans up resources used by the PDFium renderer
func (r *PDFiumRenderer) Close() error {
	if r.instance != nil {
		r.instance.Close()
		r.instance = nil
	}
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	return nil
}

type pdfiumDocument struct {
	instance  pdfium.Pdfium
	doc       references.FPDF_DOCUMENT
	pageCount int
}

func (d *pdfiumDocument) NumPage() int {
	return d.pageCount
}

func (d *pdfiumDocument) PageSize(page int) (float64, float64, error) {
	size, err := d.instance.FPDF_GetPageSizeByIndex(&requests.FPDF_GetPageSizeByIndex{
		Document: d.doc,
		Index:    page,
	})
	if err != nil {
		return 0, 0, fmt.Errorf("unable to read size of page %d: %w", page+1, err)
	}
	return size.Width, size.Height, nil
}

func (d *pdfiumDocument) RenderPage(page int, dpi int) (image.Image, error) {
	pageRender, err := d.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: dpi,
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: d.doc,
				Index:    page,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", page+1, err)
	}
	// The bitmap lives in WebAssembly memory until Cleanup
	defer pageRender.Cleanup()

	return imaging.Clone(pageRender.Result.Image), nil
}

func (d *pdfiumDocument) Metadata() map[string]string {
	meta := make(map[string]string)
	for _, tag := range metadataTags {
		resp, err := d.instance.FPDF_GetMetaText(&requests.FPDF_GetMetaText{
			Document: d.doc,
			Tag:      tag[0],
		})
		if err != nil {
			continue
		}
		if v := metaValue(resp.Value); v != "" {
			meta[tag[1]] = v
		}
	}
	return meta
}

func (d *pdfiumDocument) Close() error {
	_, err := d.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.doc,
	})
	return err
}
