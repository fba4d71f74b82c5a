// Package pdfinfo reads page level facts that the renderers do not expose:
// the effective /Rotate of a page, how many image XObjects its resources
// reference, and the strings of the document /Info dictionary.
package pdfinfo

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/ledongthuc/pdf"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ErrOpen is returned when the document cannot be parsed or is encrypted
var ErrOpen = errors.New("pdfinfo: cannot open document")

// Document is a PDF opened for inspection
type Document struct {
	file   *os.File
	reader *pdf.Reader
}

// Open parses the cross reference table and trailer of the PDF at path
func Open(path string) (doc *Document, err error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	// The parser panics on some malformed input
	defer func() {
		if r := recover(); r != nil {
			file.Close()
			doc, err = nil, fmt.Errorf("%w: %v", ErrOpen, r)
		}
	}()

	reader, err := pdf.NewReader(file, stat.Size())
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return &Document{file: file, reader: reader}, nil
}

// NumPage returns the number of pages in the page tree
func (d *Document) NumPage() int {
	return d.reader.NumPage()
}

// page returns the page dictionary for a 1-based page number
func (d *Document) page(num int) (pdf.Page, error) {
	if num < 1 || num > d.reader.NumPage() {
		return pdf.Page{}, fmt.Errorf("page %d out of range 1-%d", num, d.reader.NumPage())
	}
	p := d.reader.Page(num)
	if p.V.IsNull() {
		return pdf.Page{}, fmt.Errorf("page %d missing from page tree", num)
	}
	return p, nil
}

// Rotation returns the clockwise display rotation of a page in degrees,
// normalised to 0, 90, 180 or 270. /Rotate is inherited from the page tree.
func (d *Document) Rotation(num int) (rotation int, err error) {
	defer recoverInto(&err, num)

	p, err := d.page(num)
	if err != nil {
		return 0, err
	}
	for v := p.V; !v.IsNull(); v = v.Key("Parent") {
		if r := v.Key("Rotate"); !r.IsNull() {
			rotation = int(r.Int64()) % 360
			if rotation < 0 {
				rotation += 360
			}
			return rotation, nil
		}
	}
	return 0, nil
}

// ImageCount returns the number of image XObjects in the page resources
func (d *Document) ImageCount(num int) (count int, err error) {
	defer recoverInto(&err, num)

	p, err := d.page(num)
	if err != nil {
		return 0, err
	}
	xobjects := p.Resources().Key("XObject")
	if xobjects.Kind() != pdf.Dict {
		return 0, nil
	}
	for _, name := range xobjects.Keys() {
		if xobjects.Key(name).Key("Subtype").Name() == "Image" {
			count++
		}
	}
	return count, nil
}

// Info returns the non-empty string entries of the /Info dictionary
func (d *Document) Info() (info map[string]string) {
	info = make(map[string]string)
	defer func() {
		if r := recover(); r != nil {
			Logger.Warn("Unable to read document info dictionary", "panic", r)
		}
	}()

	dict := d.reader.Trailer().Key("Info")
	if dict.Kind() != pdf.Dict {
		return info
	}
	for _, key := range dict.Keys() {
		v := dict.Key(key)
		if v.Kind() != pdf.String {
			continue
		}
		if text := v.Text(); text != "" {
			info[key] = text
		}
	}
	return info
}

// Close releases the underlying file
func (d *Document) Close() error {
	return d.file.Close()
}

func recoverInto(err *error, page int) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("unable to inspect page %d: %v", page, r)
	}
}
