package engine

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
)

// postProcess applies the optional resize, grayscale and sharpen steps
func postProcess(img image.Image, opts Options) image.Image {
	if opts.MaxWidth > 0 && img.Bounds().Dx() > opts.MaxWidth {
		img = imaging.Resize(img, opts.MaxWidth, 0, imaging.Lanczos)
	}
	if opts.Grayscale {
		img = imaging.Grayscale(img)
	}
	if opts.Sharpen > 0 {
		img = imaging.Sharpen(img, opts.Sharpen)
	}
	return img
}

// encodeImage encodes img as PNG or JPEG
func encodeImage(img image.Image, format Format, quality int) ([]byte, error) {
	var buf bytes.Buffer
	imgFormat := imaging.PNG
	if format == FormatJPEG {
		imgFormat = imaging.JPEG
	}
	if err := imaging.Encode(&buf, img, imgFormat, imaging.JPEGQuality(quality)); err != nil {
		return nil, fmt.Errorf("unable to encode %s image: %w", format, err)
	}
	return buf.Bytes(), nil
}

// ensureDir creates the output directory if it does not exist
func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("%w: output path is not a directory: %s", ErrWrite, dir)
		}
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	Logger.Info("Creating output directory", "path", dir)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: unable to create output directory: %v", ErrWrite, err)
	}
	return nil
}

// writeFile writes data to dir/name and returns the full path
func writeFile(dir, name string, data []byte) (string, error) {
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return path, nil
}

// nativeExt maps a pdfcpu file type to a file extension
func nativeExt(fileType string) string {
	switch ft := strings.ToLower(fileType); ft {
	case "jpeg", "jpg":
		return "jpg"
	case "tiff", "tif":
		return "tif"
	case "":
		return "bin"
	default:
		return ft
	}
}
