package engine

import (
	"bytes"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/drummonds/pdf2img/engine/pdfrenderer"
	"github.com/drummonds/pdf2img/engine/pdftest"
)

func openTestPDF(t *testing.T, doc pdftest.Doc) *Converter {
	t.Helper()
	path := doc.Write(t, t.TempDir(), "test.pdf")

	renderer, err := pdfrenderer.NewRenderer()
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	t.Cleanup(func() { renderer.Close() })

	conv, err := Open(path, renderer)
	if err != nil {
		t.Fatalf("Failed to open test PDF: %v", err)
	}
	t.Cleanup(func() { conv.Close() })
	return conv
}

func TestEndToEndConvertAllPages(t *testing.T) {
	conv := openTestPDF(t, pdftest.Pages(3))

	opts := DefaultOptions()
	opts.OutputDir = filepath.Join(t.TempDir(), "output")
	opts.DPI = 72 // keeps the test fast, the default is exercised elsewhere

	outputs, err := conv.ConvertPages(nil, opts)
	if err != nil {
		t.Fatalf("Failed to convert pages: %v", err)
	}
	if len(outputs) != 3 {
		t.Fatalf("Expected 3 outputs, got %d", len(outputs))
	}

	for i, out := range outputs {
		if out.Page != i+1 {
			t.Errorf("Expected page %d, got %d", i+1, out.Page)
		}
		data, err := os.ReadFile(out.Path)
		if err != nil {
			t.Fatalf("Output %s missing: %v", out.Path, err)
		}
		if len(data) == 0 {
			t.Errorf("Output %s is empty", out.Path)
		}
		if _, err := png.DecodeConfig(bytes.NewReader(data)); err != nil {
			t.Errorf("Output %s is not a PNG: %v", out.Path, err)
		}
	}
}

func TestRenderedSizeFollowsDPI(t *testing.T) {
	conv := openTestPDF(t, pdftest.Doc{Pages: []pdftest.Page{{Width: 612, Height: 792}, {Width: 200, Height: 100}}})

	for _, dpi := range []int{72, 150, 300} {
		for page := 1; page <= 2; page++ {
			info, err := conv.PageInfo(page)
			if err != nil {
				t.Fatalf("Failed to get page info: %v", err)
			}

			opts := DefaultOptions()
			opts.OutputDir = t.TempDir()
			opts.DPI = dpi
			outputs, err := conv.ConvertPages([]int{page}, opts)
			if err != nil {
				t.Fatalf("Failed to convert page %d at %d DPI: %v", page, dpi, err)
			}

			f, err := os.Open(outputs[0].Path)
			if err != nil {
				t.Fatalf("Failed to open output: %v", err)
			}
			cfg, err := png.DecodeConfig(f)
			f.Close()
			if err != nil {
				t.Fatalf("Failed to decode output: %v", err)
			}

			wantW := float64(dpi) * info.Width / 72
			wantH := float64(dpi) * info.Height / 72
			if diff := float64(cfg.Width) - wantW; diff < -1 || diff > 1 {
				t.Errorf("Page %d at %d DPI: expected width ~%.0f, got %d", page, dpi, wantW, cfg.Width)
			}
			if diff := float64(cfg.Height) - wantH; diff < -1 || diff > 1 {
				t.Errorf("Page %d at %d DPI: expected height ~%.0f, got %d", page, dpi, wantH, cfg.Height)
			}
		}
	}
}

func TestEndToEndExtractImages(t *testing.T) {
	doc := pdftest.Doc{Pages: []pdftest.Page{{
		Images: []pdftest.Image{{Width: 50, Height: 50}, {Width: 600, Height: 600}},
	}}}
	conv := openTestPDF(t, doc)

	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.MinWidth = 100
	opts.MinHeight = 100

	outputs, err := conv.ExtractImages(opts)
	if err != nil {
		t.Fatalf("Failed to extract images: %v", err)
	}
	if len(outputs) != 1 {
		t.Fatalf("Expected exactly 1 extracted image, got %d", len(outputs))
	}
	out := outputs[0]
	if out.Width != 600 || out.Height != 600 {
		t.Errorf("Expected the 600x600 image, got %dx%d", out.Width, out.Height)
	}
	if filepath.Base(out.Path) != "page_1_img_1.png" {
		t.Errorf("Expected page_1_img_1.png, got %s", filepath.Base(out.Path))
	}

	f, err := os.Open(out.Path)
	if err != nil {
		t.Fatalf("Failed to open extracted image: %v", err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("Extracted image is not a PNG: %v", err)
	}
	if cfg.Width != 600 || cfg.Height != 600 {
		t.Errorf("Decoded size %dx%d, expected 600x600", cfg.Width, cfg.Height)
	}
}

func TestPageInfoFromDocument(t *testing.T) {
	doc := pdftest.Doc{
		Rotate: 90,
		Pages: []pdftest.Page{
			{Width: 612, Height: 792, Images: []pdftest.Image{{Width: 10, Height: 10}, {Width: 20, Height: 20}}},
			{Width: 300, Height: 300, Rotate: 180},
		},
	}
	conv := openTestPDF(t, doc)

	if conv.PageCount() != 2 {
		t.Fatalf("Expected 2 pages, got %d", conv.PageCount())
	}

	first, err := conv.PageInfo(1)
	if err != nil {
		t.Fatalf("Failed to get info for page 1: %v", err)
	}
	if first.ImageCount != 2 {
		t.Errorf("Expected 2 images on page 1, got %d", first.ImageCount)
	}
	if first.Rotation != 90 {
		t.Errorf("Expected inherited rotation 90, got %d", first.Rotation)
	}

	second, err := conv.PageInfo(2)
	if err != nil {
		t.Fatalf("Failed to get info for page 2: %v", err)
	}
	if second.Width != 300 || second.Height != 300 {
		t.Errorf("Expected 300x300 points, got %.1fx%.1f", second.Width, second.Height)
	}
	if second.Rotation != 180 || second.ImageCount != 0 {
		t.Errorf("Expected rotation 180 and no images, got %+v", second)
	}

	if _, err := conv.PageInfo(3); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Expected ErrOutOfRange for page 3, got %v", err)
	}
}

func TestOpenErrors(t *testing.T) {
	renderer, err := pdfrenderer.NewRenderer()
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	defer renderer.Close()

	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pdf")
	if err := os.WriteFile(garbage, pdftest.Garbage(), 0644); err != nil {
		t.Fatalf("Failed to write garbage file: %v", err)
	}
	encrypted := pdftest.Doc{Pages: []pdftest.Page{pdftest.Letter}, UserPassword: "secret"}.Write(t, dir, "encrypted.pdf")

	tests := []struct {
		name string
		path string
		want error
	}{
		{"missing", filepath.Join(dir, "missing.pdf"), ErrNotFound},
		{"directory", dir, ErrNotFound},
		{"garbage", garbage, ErrCorruptOrEncrypted},
		{"encrypted", encrypted, ErrCorruptOrEncrypted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := Open(tt.path, renderer)
			if err == nil {
				conv.Close()
				t.Fatal("Expected an error, got nil")
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestOpenDamagedTrailer(t *testing.T) {
	data := pdftest.Doc{Pages: []pdftest.Page{pdftest.Letter, {Width: 200, Height: 100}}}.Bytes()
	data = bytes.TrimSuffix(data, []byte("%%EOF\n"))
	path := filepath.Join(t.TempDir(), "damaged.pdf")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write damaged PDF: %v", err)
	}

	renderer, err := pdfrenderer.NewRenderer()
	if err != nil {
		t.Fatalf("Failed to create renderer: %v", err)
	}
	defer renderer.Close()

	conv, err := Open(path, renderer)
	if err != nil {
		t.Fatalf("Renderer should open a PDF without %%%%EOF: %v", err)
	}
	defer conv.Close()

	if conv.PageCount() != 2 {
		t.Fatalf("Expected 2 pages, got %d", conv.PageCount())
	}
	info, err := conv.PageInfo(2)
	if err != nil {
		t.Fatalf("Failed to get page info: %v", err)
	}
	if info.Width != 200 || info.Height != 100 {
		t.Errorf("Expected 200x100 points, got %.1fx%.1f", info.Width, info.Height)
	}
	if info.Rotation != 0 || info.ImageCount != 0 {
		t.Errorf("Expected zero rotation and image count without the inspector, got %+v", info)
	}

	opts := DefaultOptions()
	opts.OutputDir = t.TempDir()
	opts.DPI = 72
	outputs, err := conv.ConvertPages([]int{1}, opts)
	if err != nil || len(outputs) != 1 {
		t.Fatalf("Expected page 1 to render, got %v outputs, error %v", len(outputs), err)
	}
}

func TestMetadataFromDocument(t *testing.T) {
	conv := openTestPDF(t, pdftest.Doc{Title: "Quarterly", Pages: []pdftest.Page{pdftest.Letter}})

	meta, err := conv.Metadata()
	if err != nil {
		t.Fatalf("Failed to read metadata: %v", err)
	}
	if meta["title"] != "Quarterly" {
		t.Errorf("Expected title Quarterly, got %q", meta["title"])
	}
}
