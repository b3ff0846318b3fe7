package partition

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/studyai-go/internal/document"
)

// ErrPDFToolNotFound is returned when pdftotext is not installed.
var ErrPDFToolNotFound = errors.New("partition: pdftotext not found in PATH (install poppler-utils)")

// CommandRunner runs an external command and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// execRunner runs commands with os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output() //nolint:gosec,wrapcheck // fixed tool name, caller wraps
}

// maxLocalHeading is the longest single-line paragraph treated as a
// heading by the local extractor.
const maxLocalHeading = 80

// numberedHeading matches a short line that opens with a section label.
var numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*\.?\s+\S`)

// PDFToText extracts text locally with poppler's pdftotext. It yields text
// and title elements only; tables and images are not recovered.
type PDFToText struct {
	// runner executes pdftotext.
	runner CommandRunner
}

// NewPDFToText returns a PDFToText using os/exec.
func NewPDFToText() *PDFToText {
	return &PDFToText{runner: execRunner{}}
}

// NewPDFToTextWithRunner returns a PDFToText using runner.
func NewPDFToTextWithRunner(runner CommandRunner) *PDFToText {
	return &PDFToText{runner: runner}
}

// Available reports whether pdftotext is on PATH.
func Available() error {
	if _, err := exec.LookPath("pdftotext"); err != nil {
		return ErrPDFToolNotFound
	}
	return nil
}

// Partition runs pdftotext with layout preserved and splits the output into
// paragraphs. The strategy is ignored.
func (p *PDFToText) Partition(ctx context.Context, path string, _ Strategy) ([]document.Element, error) {
	out, err := p.runner.Run(ctx, "pdftotext", "-layout", "-enc", "UTF-8", path, "-")
	if err != nil {
		return nil, fmt.Errorf("partition: pdftotext failed: %w", err)
	}
	return paragraphs(string(out)), nil
}

// paragraphs splits extracted text on blank lines, tracking pages by form
// feed. Short single-line paragraphs that open with a section label become
// title elements.
func paragraphs(text string) []document.Element {
	var out []document.Element
	for pageIdx, page := range strings.Split(text, "\f") {
		for _, block := range splitBlankLines(page) {
			el := document.Element{
				Kind:     document.KindText,
				Text:     block,
				Category: "NarrativeText",
				Page:     pageIdx + 1,
				Index:    len(out),
			}
			if !strings.Contains(block, "\n") &&
				utf8.RuneCountInString(block) <= maxLocalHeading &&
				numberedHeading.MatchString(block) {
				el.Kind = document.KindTitle
				el.Category = document.CategoryTitle
			}
			out = append(out, el)
		}
	}
	return out
}

// splitBlankLines returns the non-empty blocks of s separated by blank
// lines, with each line's surrounding whitespace collapsed.
func splitBlankLines(s string) []string {
	var (
		blocks []string
		cur    []string
	)
	flush := func() {
		if len(cur) > 0 {
			blocks = append(blocks, strings.Join(cur, "\n"))
			cur = nil
		}
	}
	for _, line := range strings.Split(s, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			flush()
			continue
		}
		cur = append(cur, line)
	}
	flush()
	return blocks
}
