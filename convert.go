package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	config "github.com/drummonds/pdf2img/config"
	database "github.com/drummonds/pdf2img/database"
	engine "github.com/drummonds/pdf2img/engine"
	"github.com/drummonds/pdf2img/engine/pdfrenderer"
)

// infoPages is how many pages -i describes in the human readable output
const infoPages = 5

type convertFlags struct {
	output        string
	pages         []string
	extract       bool
	dpi           int
	format        string
	minWidth      int
	minHeight     int
	info          bool
	quality       int
	prefix        string
	maxWidth      int
	grayscale     bool
	sharpen       float64
	extractFormat string
	failFast      bool
	renderer      string
	history       string
	json          bool
}

func newRootCmd(cfg config.CLIConfig) *cobra.Command {
	var flags convertFlags

	cmd := &cobra.Command{
		Use:   "pdf2img <pdf_file> [PAGES...]",
		Short: "Convert PDF pages to images and extract embedded images",
		Example: `  # Convert all pages to PNG images
  pdf2img document.pdf

  # Convert specific pages
  pdf2img document.pdf -p 1 3 5
  pdf2img document.pdf -p 2-4,7

  # Extract embedded images
  pdf2img document.pdf -e

  # Convert to JPEG with custom DPI
  pdf2img document.pdf -f jpg -d 150

  # Convert pages AND extract images
  pdf2img document.pdf -e -p 1 -o output_folder`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd.OutOrStdout(), args[0], args[1:], flags)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&flags.output, "output", "o", cfg.OutputDir, "output directory")
	f.StringArrayVarP(&flags.pages, "pages", "p", nil, "pages to convert, e.g. 1,3,5-7 (default: all)")
	f.BoolVarP(&flags.extract, "extract", "e", false, "extract embedded images (pages are only rendered when -p is also given)")
	f.IntVarP(&flags.dpi, "dpi", "d", cfg.DPI, "DPI for page conversion")
	f.StringVarP(&flags.format, "format", "f", cfg.Format, "image format: png, jpg or jpeg")
	f.IntVar(&flags.minWidth, "min-width", cfg.MinWidth, "minimum width for extracted images")
	f.IntVar(&flags.minHeight, "min-height", cfg.MinHeight, "minimum height for extracted images")
	f.BoolVarP(&flags.info, "info", "i", false, "show PDF information and exit")
	f.IntVar(&flags.quality, "quality", cfg.JPEGQuality, "JPEG quality (1-100)")
	f.StringVar(&flags.prefix, "prefix", "", "prefix for output file names")
	f.IntVar(&flags.maxWidth, "max-width", 0, "downscale rendered pages wider than this many pixels (0 keeps full size)")
	f.BoolVar(&flags.grayscale, "grayscale", false, "convert rendered pages to grayscale")
	f.Float64Var(&flags.sharpen, "sharpen", 0, "sharpen rendered pages with this sigma (0 disables)")
	f.StringVar(&flags.extractFormat, "extract-format", "", "re-encode extracted images as png or jpg (default: keep embedded encoding)")
	f.BoolVar(&flags.failFast, "fail-fast", false, "stop at the first page that cannot be rendered")
	f.StringVar(&flags.renderer, "renderer", cfg.Renderer, "rendering backend: fitz or pdfium")
	f.BoolVar(&flags.json, "json", false, "print results as JSON")
	cmd.PersistentFlags().StringVar(&flags.history, "history", cfg.HistoryDB, "record runs in this SQLite history database")

	cmd.AddCommand(newHistoryCmd(&flags.history))
	return cmd
}

// options maps the command line flags onto converter options
func (f convertFlags) options() (engine.Options, error) {
	opts := engine.DefaultOptions()

	format, err := engine.ParseFormat(f.format)
	if err != nil {
		return opts, err
	}
	opts.Format = format
	if f.extractFormat != "" {
		extractFormat, err := engine.ParseFormat(f.extractFormat)
		if err != nil {
			return opts, err
		}
		opts.ExtractFormat = extractFormat
	}

	opts.OutputDir = f.output
	opts.DPI = f.dpi
	opts.JPEGQuality = f.quality
	opts.MinWidth = f.minWidth
	opts.MinHeight = f.minHeight
	opts.Prefix = f.prefix
	opts.MaxWidth = f.maxWidth
	opts.Grayscale = f.grayscale
	opts.Sharpen = f.sharpen
	opts.FailFast = f.failFast
	return opts, nil
}

func (f convertFlags) jobType() database.JobType {
	switch {
	case f.info:
		return database.JobTypeInfo
	case f.extract:
		return database.JobTypeExtract
	default:
		return database.JobTypeConvert
	}
}

// result is what --json prints for a conversion
type result struct {
	PDF    string          `json:"pdf"`
	Pages  []engine.Output `json:"pages,omitempty"`
	Images []engine.Output `json:"images,omitempty"`
	Error  string          `json:"error,omitempty"`
}

func runConvert(out io.Writer, pdfPath string, extraPages []string, flags convertFlags) (err error) {
	opts, err := flags.options()
	if err != nil {
		return err
	}
	pageArgs := append(append([]string{}, flags.pages...), extraPages...)
	pages, err := engine.ParsePages(pageArgs)
	if err != nil {
		return err
	}

	recorder := startJob(flags.history, flags.jobType(), pdfPath)
	res := result{PDF: pdfPath}
	defer func() { recorder.finish(res, err) }()

	renderer, err := pdfrenderer.New(flags.renderer)
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrInvalidOption, err)
	}
	defer renderer.Close()

	conv, err := engine.Open(pdfPath, renderer)
	if err != nil {
		return err
	}
	defer conv.Close()

	if flags.info {
		return printInfo(out, conv, flags.json)
	}

	human := !flags.json
	var failures []error

	// -e alone only extracts; -p adds rendering
	if !flags.extract || len(pageArgs) > 0 {
		if human {
			fmt.Fprintf(out, "\nConverting PDF pages to %s images...\n", strings.ToUpper(opts.Format.Ext()))
		}
		rendered, err := conv.ConvertPages(pages, opts)
		res.Pages = rendered
		if human {
			for _, o := range rendered {
				fmt.Fprintf(out, "Saved page %d to %s (%dx%d, %s)\n", o.Page, o.Path, o.Width, o.Height, humanize.Bytes(uint64(o.Bytes)))
			}
			fmt.Fprintf(out, "\nSuccessfully converted %d page(s)\n", len(rendered))
		}
		if err != nil {
			// Only skipped pages let the run carry on to extraction
			if flags.failFast || !onlyRenderFailures(err) {
				return finishResult(out, res, flags.json, err)
			}
			failures = append(failures, err)
		}
	}

	if flags.extract {
		if human {
			fmt.Fprintln(out, "\nExtracting embedded images...")
		}
		extracted, err := conv.ExtractImages(opts)
		res.Images = extracted
		if human {
			for _, o := range extracted {
				fmt.Fprintf(out, "Extracted image %d from page %d: %s (%dx%d, %s)\n",
					o.Image, o.Page, o.Path, o.Width, o.Height, humanize.Bytes(uint64(o.Bytes)))
			}
			fmt.Fprintf(out, "\nSuccessfully extracted %d image(s)\n", len(extracted))
		}
		if err != nil {
			failures = append(failures, err)
		}
	}

	if human && len(failures) == 0 {
		fmt.Fprintf(out, "\nAll files saved to: %s/\n", strings.TrimSuffix(opts.OutputDir, "/"))
	}
	return finishResult(out, res, flags.json, errors.Join(failures...))
}

// onlyRenderFailures reports whether every error joined in err is a skipped page
func onlyRenderFailures(err error) bool {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return errors.Is(err, engine.ErrRender)
	}
	for _, e := range joined.Unwrap() {
		if !errors.Is(e, engine.ErrRender) {
			return false
		}
	}
	return true
}

// finishResult prints the JSON document when requested and passes err through
func finishResult(out io.Writer, res result, asJSON bool, err error) error {
	if !asJSON {
		return err
	}
	if err != nil {
		res.Error = err.Error()
	}
	if encErr := writeJSON(out, res); encErr != nil {
		return errors.Join(err, encErr)
	}
	return err
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// documentInfo is what --info --json prints
type documentInfo struct {
	PDF      string            `json:"pdf"`
	Pages    int               `json:"pages"`
	Metadata map[string]string `json:"metadata,omitempty"`
	PageInfo []engine.PageInfo `json:"pageInfo"`
}

func printInfo(out io.Writer, conv *engine.Converter, asJSON bool) error {
	meta, err := conv.Metadata()
	if err != nil {
		return err
	}

	shown := conv.PageCount()
	if !asJSON && shown > infoPages {
		shown = infoPages
	}
	infos := make([]engine.PageInfo, 0, shown)
	for page := 1; page <= shown; page++ {
		info, err := conv.PageInfo(page)
		if err != nil {
			return err
		}
		infos = append(infos, info)
	}

	if asJSON {
		return writeJSON(out, documentInfo{PDF: conv.Path(), Pages: conv.PageCount(), Metadata: meta, PageInfo: infos})
	}

	fmt.Fprintf(out, "\nPDF Information: %s\n", conv.Path())
	fmt.Fprintf(out, "Total pages: %d\n", conv.PageCount())
	keys := make([]string, 0, len(meta))
	for key := range meta {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "%s: %s\n", key, meta[key])
	}

	for _, info := range infos {
		fmt.Fprintf(out, "\nPage %d:\n", info.Page)
		fmt.Fprintf(out, "  Size: %.1f x %.1f points\n", info.Width, info.Height)
		fmt.Fprintf(out, "  Rotation: %d°\n", info.Rotation)
		fmt.Fprintf(out, "  Images: %d\n", info.ImageCount)
	}
	if conv.PageCount() > infoPages {
		fmt.Fprintf(out, "\n... and %d more pages\n", conv.PageCount()-infoPages)
	}
	return nil
}
