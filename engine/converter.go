package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/drummonds/pdf2img/engine/imgextract"
	"github.com/drummonds/pdf2img/engine/pdfinfo"
	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// inspector reports page facts the renderers do not expose
type inspector interface {
	Rotation(page int) (int, error)
	ImageCount(page int) (int, error)
	Info() map[string]string
	Close() error
}

// blankInspector stands in for documents only the renderer could open
type blankInspector struct{}

func (blankInspector) Rotation(page int) (int, error)   { return 0, nil }
func (blankInspector) ImageCount(page int) (int, error) { return 0, nil }
func (blankInspector) Info() map[string]string          { return nil }
func (blankInspector) Close() error                     { return nil }

// imageLister enumerates embedded images of a PDF file
type imageLister interface {
	Images(path string, pages []int) ([]imgextract.Image, error)
}

// Output is a file written by ConvertPages or ExtractImages
type Output struct {
	Path   string `json:"path"`
	Page   int    `json:"page"`
	Image  int    `json:"image,omitempty"` // 1-based index on the page, 0 for a rendered page
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bytes  int64  `json:"bytes"`
}

// PageInfo describes one page
type PageInfo struct {
	Page       int     `json:"page"`
	Width      float64 `json:"width"`  // points
	Height     float64 `json:"height"` // points
	Rotation   int     `json:"rotation"`
	ImageCount int     `json:"imageCount"`
}

// Converter renders pages of one PDF and extracts its embedded images.
// A Converter is not safe for concurrent use; open one per goroutine.
type Converter struct {
	path      string
	doc       pdfrenderer.Document
	meta      inspector
	images    imageLister
	pageCount int
	closed    bool
}

// Open opens the PDF at path with the given renderer. The caller must Close
// the converter on every path.
func Open(path string, renderer pdfrenderer.Renderer) (*Converter, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, path)
	}

	doc, err := renderer.Open(path)
	if err != nil {
		Logger.Error("Unable to open PDF document", "path", path, "renderer", renderer.Name(), "error", err)
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptOrEncrypted, path, err)
	}

	// MuPDF and PDFium repair files the pure Go parser rejects
	var meta inspector
	parsed, err := pdfinfo.Open(path)
	if err != nil {
		Logger.Warn("Unable to inspect PDF document, rotation and image counts unavailable", "path", path, "error", err)
		meta = blankInspector{}
	} else {
		meta = parsed
		if parsed.NumPage() != doc.NumPage() {
			Logger.Warn("Page count differs between renderer and inspector",
				"path", path, "renderer", doc.NumPage(), "inspector", parsed.NumPage())
		}
	}

	c := newConverter(path, doc, meta, imgextract.New())
	Logger.Info("Opened PDF", "path", path, "pages", c.pageCount, "renderer", renderer.Name())
	return c, nil
}

func newConverter(path string, doc pdfrenderer.Document, meta inspector, images imageLister) *Converter {
	return &Converter{
		path:      path,
		doc:       doc,
		meta:      meta,
		images:    images,
		pageCount: doc.NumPage(),
	}
}

// PageCount returns the number of pages in the document
func (c *Converter) PageCount() int {
	return c.pageCount
}

// Path returns the path the converter was opened with
func (c *Converter) Path() string {
	return c.path
}

// Metadata returns the document information (title, author, producer ...).
// Keys follow go-fitz naming; the /Info dictionary fills in missing entries.
func (c *Converter) Metadata() (map[string]string, error) {
	if c.closed {
		return nil, ErrClosed
	}
	meta := c.doc.Metadata()
	for key, value := range c.meta.Info() {
		if key == "" {
			continue
		}
		key = strings.ToLower(key[:1]) + key[1:]
		if _, ok := meta[key]; !ok {
			meta[key] = value
		}
	}
	return meta, nil
}

// PageInfo returns the size, rotation and embedded image count of a 1-based page
func (c *Converter) PageInfo(page int) (PageInfo, error) {
	if c.closed {
		return PageInfo{}, ErrClosed
	}
	if err := c.checkPage(page); err != nil {
		return PageInfo{}, err
	}

	width, height, err := c.doc.PageSize(page - 1)
	if err != nil {
		return PageInfo{}, fmt.Errorf("%w: %v", ErrCorruptOrEncrypted, err)
	}
	rotation, err := c.meta.Rotation(page)
	if err != nil {
		return PageInfo{}, fmt.Errorf("%w: %v", ErrCorruptOrEncrypted, err)
	}
	count, err := c.meta.ImageCount(page)
	if err != nil {
		return PageInfo{}, fmt.Errorf("%w: %v", ErrCorruptOrEncrypted, err)
	}

	return PageInfo{
		Page:       page,
		Width:      width,
		Height:     height,
		Rotation:   rotation,
		ImageCount: count,
	}, nil
}

// ConvertPages renders the selected 1-based pages (all pages when pages is
// empty) to opts.OutputDir as page_<n>.<ext>.
//
// A page that fails to render is logged and skipped; the returned error then
// joins one ErrRender per failed page while the outputs of the other pages
// are still returned. With opts.FailFast the first failure stops the run.
func (c *Converter) ConvertPages(pages []int, opts Options) ([]Output, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	selection, err := c.selection(pages)
	if err != nil {
		return nil, err
	}
	if err := ensureDir(opts.OutputDir); err != nil {
		return nil, err
	}

	format := opts.format()
	var outputs []Output
	var failures []error
	for _, page := range selection {
		img, err := c.doc.RenderPage(page-1, opts.DPI)
		if err != nil {
			renderErr := fmt.Errorf("%w: page %d: %v", ErrRender, page, err)
			if opts.FailFast {
				Logger.Error("Unable to render page, stopping", "path", c.path, "page", page, "error", err)
				return outputs, renderErr
			}
			Logger.Warn("Unable to render page, skipping", "path", c.path, "page", page, "error", err)
			failures = append(failures, renderErr)
			continue
		}
		img = postProcess(img, opts)

		data, err := encodeImage(img, format, opts.JPEGQuality)
		if err != nil {
			return outputs, fmt.Errorf("%w: page %d: %v", ErrWrite, page, err)
		}
		path, err := writeFile(opts.OutputDir, pageFileName(opts.Prefix, page, format.Ext()), data)
		if err != nil {
			return outputs, err
		}

		bounds := img.Bounds()
		outputs = append(outputs, Output{
			Path:   path,
			Page:   page,
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
			Bytes:  int64(len(data)),
		})
		Logger.Info("Saved page", "page", page, "path", path, "width", bounds.Dx(), "height", bounds.Dy())
	}

	return outputs, errors.Join(failures...)
}

// ExtractImages writes every embedded image whose width and height both reach
// opts.MinWidth and opts.MinHeight to opts.OutputDir as page_<n>_img_<k>.<ext>,
// k counting the written images of page n from 1. Smaller images are skipped.
func (c *Converter) ExtractImages(opts Options) ([]Output, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	images, err := c.images.Images(c.path, nil)
	if err != nil {
		Logger.Error("Unable to list embedded images", "path", c.path, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrCorruptOrEncrypted, err)
	}
	if err := ensureDir(opts.OutputDir); err != nil {
		return nil, err
	}

	var outputs []Output
	written := make(map[int]int)
	for _, img := range images {
		if img.Width < opts.MinWidth || img.Height < opts.MinHeight {
			Logger.Debug("Skipping small image", "page", img.Page, "name", img.Name,
				"width", img.Width, "height", img.Height)
			continue
		}

		data, ext := img.Data, nativeExt(img.FileType)
		if opts.ExtractFormat != "" {
			data, ext = reencode(img, opts)
		}

		index := written[img.Page] + 1
		path, err := writeFile(opts.OutputDir, imageFileName(opts.Prefix, img.Page, index, ext), data)
		if err != nil {
			return outputs, err
		}
		written[img.Page] = index

		outputs = append(outputs, Output{
			Path:   path,
			Page:   img.Page,
			Image:  index,
			Width:  img.Width,
			Height: img.Height,
			Bytes:  int64(len(data)),
		})
		Logger.Info("Extracted image", "page", img.Page, "index", index, "path", path,
			"width", img.Width, "height", img.Height)
	}
	return outputs, nil
}

// reencode converts an embedded image to opts.ExtractFormat. Encodings the
// image package cannot decode (JPEG 2000, CCITT) are kept as embedded.
func reencode(img imgextract.Image, opts Options) ([]byte, string) {
	format, _ := ParseFormat(string(opts.ExtractFormat))
	if nativeExt(img.FileType) == format.Ext() {
		return img.Data, format.Ext()
	}
	decoded, err := imaging.Decode(img.Reader())
	if err != nil {
		Logger.Warn("Unable to decode embedded image, keeping original encoding",
			"page", img.Page, "name", img.Name, "type", img.FileType, "error", err)
		return img.Data, nativeExt(img.FileType)
	}
	data, err := encodeImage(decoded, format, opts.JPEGQuality)
	if err != nil {
		Logger.Warn("Unable to re-encode embedded image, keeping original encoding",
			"page", img.Page, "name", img.Name, "error", err)
		return img.Data, nativeExt(img.FileType)
	}
	return data, format.Ext()
}

// Close releases the document handles. Calling Close again is a no-op.
func (c *Converter) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	Logger.Debug("Closing PDF", "path", c.path)
	return errors.Join(c.doc.Close(), c.meta.Close())
}

func (c *Converter) checkPage(page int) error {
	if page < 1 || page > c.pageCount {
		return fmt.Errorf("%w: page %d, document has %d pages", ErrOutOfRange, page, c.pageCount)
	}
	return nil
}

// selection validates a page selection, dropping repeats. Empty means all pages.
func (c *Converter) selection(pages []int) ([]int, error) {
	if len(pages) == 0 {
		all := make([]int, c.pageCount)
		for i := range all {
			all[i] = i + 1
		}
		return all, nil
	}

	seen := make(map[int]bool, len(pages))
	selected := make([]int, 0, len(pages))
	for _, page := range pages {
		if err := c.checkPage(page); err != nil {
			return nil, err
		}
		if seen[page] {
			continue
		}
		seen[page] = true
		selected = append(selected, page)
	}
	return selected, nil
}
