// Package topic groups an ordered element sequence into topics using
// heading structure and hierarchical section numbering such as "2.3.1".
//
// Segmentation is a pure function of the input: the concatenation of every
// returned topic's elements equals the input sequence, in order.
package topic

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/studyai-go/internal/document"
)

// IntroductionTitle is the title of the topic that collects elements seen
// before the first topic-starting heading.
const IntroductionTitle = "Introduction"

// maxUnnumberedHeading is the exclusive upper bound, in characters, for an
// unnumbered heading to start a new topic.
const maxUnnumberedHeading = 100

// sectionPattern matches a leading section label such as "2", "2.3" or
// "2.3.1." followed by whitespace.
var sectionPattern = regexp.MustCompile(`^(\d+(\.\d+)*)\.?\s+`)

// Topic is a contiguous run of elements that share a heading.
type Topic struct {
	// Title is the trimmed heading text, or IntroductionTitle for the seed topic.
	Title string

	// SectionNumber is the dotted label parsed from the heading, empty when
	// the heading carries none.
	SectionNumber string

	// Elements are the topic's elements in document order. When the topic
	// was opened by a heading, that heading is the first element.
	Elements []document.Element
}

// Decision is the outcome of classifying a single element.
type Decision int

const (
	// Continuation means the element joins the currently open topic.
	Continuation Decision = iota
	// NewTopic means the element closes the open topic and opens a new one.
	NewTopic
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	if d == NewTopic {
		return "new_topic"
	}
	return "continuation"
}

// SectionNumber extracts the dotted section label at the start of text,
// returning "" when text does not begin with one.
func SectionNumber(text string) string {
	m := sectionPattern.FindStringSubmatch(strings.TrimSpace(text))
	if m == nil {
		return ""
	}
	return m[1]
}

// IsChildOf reports whether child is a strictly nested label of parent,
// e.g. "2.3" is a child of "2" but "23" is not. Empty labels are never
// related.
func IsChildOf(child, parent string) bool {
	if child == "" || parent == "" {
		return false
	}
	return strings.HasPrefix(child, parent+".")
}

// IsTopLevel reports whether label is a single-component section number.
func IsTopLevel(label string) bool {
	return label != "" && !strings.Contains(label, ".")
}

// Classify decides whether el opens a new topic. Only headings can open a
// topic: numbered headings must be top-level, unnumbered headings must be
// shorter than 100 characters. Nested numbered headings such as "2.3" stay
// inside their parent topic.
func Classify(el document.Element) Decision {
	if !el.IsHeading() {
		return Continuation
	}
	text := el.TrimmedText()
	label := SectionNumber(text)
	if IsTopLevel(label) {
		return NewTopic
	}
	if label == "" && utf8.RuneCountInString(text) < maxUnnumberedHeading {
		return NewTopic
	}
	return Continuation
}

// Segment partitions elements into topics. Empty topics are never emitted,
// so a document that opens with a heading yields no Introduction topic.
func Segment(elements []document.Element) []Topic {
	var topics []Topic
	current := Topic{Title: IntroductionTitle}

	for _, el := range elements {
		if Classify(el) == NewTopic {
			if len(current.Elements) > 0 {
				topics = append(topics, current)
			}
			text := el.TrimmedText()
			current = Topic{
				Title:         text,
				SectionNumber: SectionNumber(text),
			}
		}
		current.Elements = append(current.Elements, el)
	}
	if len(current.Elements) > 0 {
		topics = append(topics, current)
	}
	return topics
}
