package engine

import "errors"

var (
	// ErrNotFound is returned when the input PDF does not exist
	ErrNotFound = errors.New("file not found")
	// ErrCorruptOrEncrypted is returned when a PDF library cannot parse the input
	ErrCorruptOrEncrypted = errors.New("cannot read PDF (corrupt or encrypted)")
	// ErrOutOfRange is returned for page numbers outside 1..page count
	ErrOutOfRange = errors.New("page number out of range")
	// ErrWrite is returned when the output directory or an output file cannot be written
	ErrWrite = errors.New("cannot write output")
	// ErrInvalidOption is returned for a DPI, format or size limit that cannot be used
	ErrInvalidOption = errors.New("invalid option")
	// ErrRender is returned when a page fails to rasterize
	ErrRender = errors.New("page render failed")
	// ErrClosed is returned when a converter is used after Close
	ErrClosed = errors.New("converter is closed")
)
