package document

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// pdfMagic is the header every PDF file begins with.
var pdfMagic = []byte("%PDF-")

// ErrNotPDF is returned by ValidatePDF when a file does not carry the PDF
// magic header.
var ErrNotPDF = errors.New("document: not a PDF file")

// IsPDFName reports whether name has a .pdf extension, ignoring case.
func IsPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// ValidatePDF reads the first bytes of the file at path and returns
// ErrNotPDF (wrapped) when they are not the PDF magic header. I/O errors
// are returned as-is so callers can tell unreadable files from invalid ones.
func ValidatePDF(path string) error {
	f, err := os.Open(path) //nolint:gosec // path comes from a directory listing of the session folder
	if err != nil {
		return fmt.Errorf("document: open %q: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, len(pdfMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return fmt.Errorf("document: read header of %q: %w", filepath.Base(path), err)
	}
	if !bytes.Equal(header[:n], pdfMagic) {
		return fmt.Errorf("%w: %s", ErrNotPDF, filepath.Base(path))
	}
	return nil
}
