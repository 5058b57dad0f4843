// Package export renders a thread as a printable shopping list in HTML or PDF.
package export

import (
	"errors"
	"time"
)

type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// ParseFormat maps a query value to a Format. Empty means HTML.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Item is one line of the shopping list.
type Item struct {
	Content   string
	Quantity  string
	URL       string
	Pinned    bool
	CheckedBy string
	CheckedAt *time.Time
}

// List is the data handed to the template.
type List struct {
	Title       string
	Purpose     string
	GeneratedAt time.Time
	Open        []Item
	Checked     []Item
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	ErrUnsupportedFormat = errors.New("unsupported export format")
	// ErrPDFDependencyMissing indicates no headless browser is available.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)
