package scanning

import "github.com/zombor/receipt-scanner/internal/layout"

// Annotator turns a receipt image into OCR text annotations. The first
// annotation returned is the page-level aggregate covering all text.
type Annotator interface {
	// Annotate runs text detection on an image or PDF
	Annotate(imageData []byte, contentType string) ([]layout.Annotation, error)
	// Close closes the annotator and releases resources
	Close() error
}
