// Package imgextract lists the raster images embedded in a PDF together with
// their encoded bytes, using pdfcpu.
package imgextract

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	_ "golang.org/x/image/tiff"
)

// Logger is global since we will need it everywhere
var Logger = slog.Default()

// ErrExtract wraps every failure reported by pdfcpu
var ErrExtract = errors.New("imgextract: cannot extract images")

var disableConfigDir sync.Once

// Image is one embedded image resource
type Image struct {
	Page     int    // 1-based page number
	ObjNr    int    // PDF object number of the image stream
	Name     string // resource name, e.g. Im1
	Width    int
	Height   int
	FileType string // native encoding as reported by pdfcpu: png, jpg, jp2, tif
	Data     []byte
}

// Extractor extracts embedded images with a relaxed pdfcpu configuration
type Extractor struct {
	conf *model.Configuration
}

// New creates an Extractor. pdfcpu is kept from touching the user config dir.
func New() *Extractor {
	disableConfigDir.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.Cmd = model.EXTRACTIMAGES
	return &Extractor{conf: conf}
}

// Images returns the embedded images of the selected pages (all pages when
// pages is empty), ordered by page and then by object number.
func (e *Extractor) Images(path string, pages []int) ([]Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var selected []string
	for _, p := range pages {
		selected = append(selected, strconv.Itoa(p))
	}

	ctx, err := api.ReadValidateAndOptimize(f, e.conf)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtract, err)
	}
	pageSet, err := api.PagesForPageSelection(ctx.PageCount, selected, true, false)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtract, err)
	}

	var images []Image
	for pageNr, ok := range pageSet {
		if !ok {
			continue
		}
		found, err := pdfcpu.ExtractPageImages(ctx, pageNr, false)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrExtract, pageNr, err)
		}
		for _, img := range found {
			data, err := io.ReadAll(img.Reader)
			if err != nil {
				return nil, fmt.Errorf("%w: reading image %s on page %d: %v", ErrExtract, img.Name, pageNr, err)
			}
			width, height := pixelSize(ctx, img.ObjNr, data)
			images = append(images, Image{
				Page:     pageNr,
				ObjNr:    img.ObjNr,
				Name:     img.Name,
				Width:    width,
				Height:   height,
				FileType: strings.ToLower(img.FileType),
				Data:     data,
			})
		}
	}

	// page sets and per-page images both come back as maps
	sort.Slice(images, func(i, j int) bool {
		if images[i].Page != images[j].Page {
			return images[i].Page < images[j].Page
		}
		return images[i].ObjNr < images[j].ObjNr
	})
	Logger.Debug("Embedded images listed", "path", path, "count", len(images))
	return images, nil
}

// pixelSize reads /Width and /Height from the image stream dictionary. pdfcpu
// leaves them unset on fully extracted images. Streams without usable entries
// fall back to the header of the encoded bytes.
func pixelSize(ctx *model.Context, objNr int, data []byte) (int, int) {
	sd, _, err := ctx.DereferenceStreamDict(*types.NewIndirectRef(objNr, 0))
	if err == nil && sd != nil {
		w, werr := dictInt(ctx, sd, "Width")
		h, herr := dictInt(ctx, sd, "Height")
		if werr == nil && herr == nil {
			return w, h
		}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		Logger.Debug("Unknown embedded image size", "obj", objNr, "error", err)
		return 0, 0
	}
	return cfg.Width, cfg.Height
}

func dictInt(ctx *model.Context, sd *types.StreamDict, key string) (int, error) {
	obj, ok := sd.Find(key)
	if !ok {
		return 0, fmt.Errorf("missing /%s", key)
	}
	i, err := ctx.DereferenceInteger(obj)
	if err != nil {
		return 0, err
	}
	if i == nil {
		return 0, fmt.Errorf("null /%s", key)
	}
	return i.Value(), nil
}

// Reader returns the encoded image bytes as a reader
func (img Image) Reader() io.Reader {
	return bytes.NewReader(img.Data)
}
