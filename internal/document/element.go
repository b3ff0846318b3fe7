// Package document defines the typed content elements produced by PDF
// partitioning and the validation applied to uploaded files before they
// enter the ingestion pipeline.
package document

import "strings"

// Kind classifies a partitioned element.
type Kind string

const (
	// KindText is narrative or list text.
	KindText Kind = "text"
	// KindTitle is a heading element.
	KindTitle Kind = "title"
	// KindTable is a table, carried as HTML when structure inference succeeded.
	KindTable Kind = "table"
	// KindImage is an extracted image block carried as a base64 payload.
	KindImage Kind = "image"
)

// CategoryTitle is the raw partitioner category that marks a heading.
const CategoryTitle = "Title"

// Element is one typed content element extracted from a document, in
// document order. Elements are immutable once produced.
type Element struct {
	// Kind is the normalised element classification.
	Kind Kind

	// Text is the extracted text content. May be empty for images.
	Text string

	// HTML is the table markup for table elements when available.
	HTML string

	// ImageBase64 is the encoded image payload for image elements.
	ImageBase64 string

	// Category is the raw category reported by the partitioner (e.g. "Title",
	// "NarrativeText", "Table").
	Category string

	// Page is the 1-based page number, or 0 when unknown.
	Page int

	// Index is the position of the element in the partitioned document.
	Index int
}

// IsHeading reports whether the element is a heading, either by its
// normalised kind or by the partitioner's raw category.
func (e Element) IsHeading() bool {
	return e.Kind == KindTitle || e.Category == CategoryTitle
}

// TrimmedText returns the element text with surrounding whitespace removed.
func (e Element) TrimmedText() string {
	return strings.TrimSpace(e.Text)
}

// KindFromCategory maps a raw partitioner category onto a Kind.
// Unknown categories are treated as text.
func KindFromCategory(category string) Kind {
	switch category {
	case CategoryTitle:
		return KindTitle
	case "Table":
		return KindTable
	case "Image", "Figure":
		return KindImage
	default:
		return KindText
	}
}
