package engine

import (
	"fmt"
	"strings"
)

// Format is an output image encoding
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpg"
)

// ParseFormat accepts png, jpg and jpeg in any case
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "png":
		return FormatPNG, nil
	case "jpg", "jpeg":
		return FormatJPEG, nil
	default:
		return "", fmt.Errorf("%w: unsupported image format %q (use png, jpg or jpeg)", ErrInvalidOption, s)
	}
}

// Ext is the file extension used for the format, without the dot
func (f Format) Ext() string {
	return string(f)
}

// Options control page rendering and image extraction
type Options struct {
	OutputDir string
	DPI       int
	Format    Format
	// JPEGQuality is used when Format is jpg (1-100)
	JPEGQuality int

	// Extraction only: images narrower or shorter than this are skipped
	MinWidth  int
	MinHeight int
	// ExtractFormat re-encodes extracted images, empty keeps the embedded encoding
	ExtractFormat Format

	// Prefix is prepended to every output file name as <prefix>_page_<n>
	Prefix string

	// Post-processing of rendered pages
	MaxWidth  int
	Grayscale bool
	Sharpen   float64

	// FailFast stops ConvertPages at the first page that cannot be rendered
	FailFast bool
}

// DefaultOptions returns the defaults of the command line tool
func DefaultOptions() Options {
	return Options{
		OutputDir:   "output",
		DPI:         300,
		Format:      FormatPNG,
		JPEGQuality: 95,
		MinWidth:    100,
		MinHeight:   100,
	}
}

func (o Options) validate() error {
	if o.OutputDir == "" {
		return fmt.Errorf("%w: output directory is empty", ErrInvalidOption)
	}
	if o.DPI <= 0 {
		return fmt.Errorf("%w: DPI must be positive, got %d", ErrInvalidOption, o.DPI)
	}
	if _, err := ParseFormat(string(o.Format)); err != nil {
		return err
	}
	if o.ExtractFormat != "" {
		if _, err := ParseFormat(string(o.ExtractFormat)); err != nil {
			return err
		}
	}
	if o.JPEGQuality < 1 || o.JPEGQuality > 100 {
		return fmt.Errorf("%w: JPEG quality must be between 1 and 100, got %d", ErrInvalidOption, o.JPEGQuality)
	}
	if o.MinWidth < 0 || o.MinHeight < 0 {
		return fmt.Errorf("%w: minimum image size must not be negative (%dx%d)", ErrInvalidOption, o.MinWidth, o.MinHeight)
	}
	if o.MaxWidth < 0 {
		return fmt.Errorf("%w: max width must not be negative, got %d", ErrInvalidOption, o.MaxWidth)
	}
	if o.Sharpen < 0 {
		return fmt.Errorf("%w: sharpen sigma must not be negative, got %g", ErrInvalidOption, o.Sharpen)
	}
	return nil
}

// format returns the normalised output format (jpeg becomes jpg)
func (o Options) format() Format {
	f, _ := ParseFormat(string(o.Format))
	return f
}

func pageFileName(prefix string, page int, ext string) string {
	name := fmt.Sprintf("page_%d.%s", page, ext)
	if prefix != "" {
		name = prefix + "_" + name
	}
	return name
}

func imageFileName(prefix string, page, index int, ext string) string {
	name := fmt.Sprintf("page_%d_img_%d.%s", page, index, ext)
	if prefix != "" {
		name = prefix + "_" + name
	}
	return name
}
