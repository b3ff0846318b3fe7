// Package chunk assembles a topic's elements into size-bounded chunks and
// separates each chunk's content into text, table markup and image
// payloads.
//
// Sizes are measured in characters (runes). Every emitted chunk's text is
// at most Config.MaxCharacters long.
package chunk

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/54b3r/studyai-go/internal/document"
	"github.com/54b3r/studyai-go/internal/topic"
)

const (
	// DefaultMaxCharacters is the hard chunk size ceiling.
	DefaultMaxCharacters = 3000
	// DefaultNewAfterCharacters is the soft size at which a chunk is closed.
	DefaultNewAfterCharacters = 2400
	// DefaultCombineUnderCharacters is the size below which a chunk is
	// merged into a neighbour when the merge fits.
	DefaultCombineUnderCharacters = 500
	// DefaultMinImageBytes is the payload length an image must exceed to be kept.
	DefaultMinImageBytes = 10000
)

// separator joins the text of consecutive elements within a chunk.
const separator = "\n\n"

// Config holds the chunk sizing thresholds. Zero values select the defaults.
type Config struct {
	// MaxCharacters is the hard upper bound on chunk text length.
	MaxCharacters int

	// NewAfterCharacters closes the open chunk once it reaches this length.
	NewAfterCharacters int

	// CombineUnderCharacters is the small-chunk threshold for neighbour merging
	// and the minimum size a chunk must reach before a sub-heading splits it.
	CombineUnderCharacters int

	// MinImageBytes is the exclusive lower bound on a kept image payload.
	MinImageBytes int
}

// withDefaults returns a copy of c with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.MaxCharacters <= 0 {
		c.MaxCharacters = DefaultMaxCharacters
	}
	if c.NewAfterCharacters <= 0 || c.NewAfterCharacters > c.MaxCharacters {
		c.NewAfterCharacters = min(DefaultNewAfterCharacters, c.MaxCharacters)
	}
	if c.CombineUnderCharacters <= 0 {
		c.CombineUnderCharacters = min(DefaultCombineUnderCharacters, c.NewAfterCharacters)
	}
	if c.MinImageBytes <= 0 {
		c.MinImageBytes = DefaultMinImageBytes
	}
	return c
}

// Chunk is a size-bounded unit of a topic with its content separated by
// modality.
type Chunk struct {
	// Text is the concatenated text of the chunk's elements.
	Text string

	// Tables holds table markup (HTML, or raw text when no markup exists).
	Tables []string

	// Images holds base64 image payloads that passed the size floor.
	Images []string

	// Kinds is the set of content kinds present. It always contains
	// document.KindText and lists kinds in text, table, image order.
	Kinds []document.Kind

	// Topic is the title of the parent topic.
	Topic string

	// Index is the chunk's position within its topic.
	Index int
}

// Has reports whether k is among the chunk's kinds.
func (c Chunk) Has(k document.Kind) bool {
	for _, have := range c.Kinds {
		if have == k {
			return true
		}
	}
	return false
}

// Multimodal reports whether the chunk carries more than one content kind.
func (c Chunk) Multimodal() bool {
	return len(c.Kinds) > 1
}

// Assembler turns topics into chunks.
type Assembler struct {
	// cfg holds the resolved thresholds.
	cfg Config

	// logger receives debug output about dropped images.
	logger *slog.Logger
}

// NewAssembler returns an Assembler using cfg, with zero fields defaulted.
// A nil logger selects slog.Default.
func NewAssembler(cfg Config, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{cfg: cfg.withDefaults(), logger: logger}
}

// Config returns the resolved thresholds.
func (a *Assembler) Config() Config {
	return a.cfg
}

// piece is one element's contribution to a chunk after oversize splitting.
type piece struct {
	text    string
	heading bool
	tables  []string
	images  []string
}

// builder accumulates a chunk under construction.
type builder struct {
	pieces []piece
	size   int
}

// build returns a builder holding ps in order.
func build(ps []piece) *builder {
	b := &builder{}
	for _, p := range ps {
		b.add(p)
	}
	return b
}

func (b *builder) empty() bool {
	return len(b.pieces) == 0
}

// sizeWith returns the text size after appending a piece of n characters.
func (b *builder) sizeWith(n int) int {
	if n == 0 {
		return b.size
	}
	if b.size == 0 {
		return n
	}
	return b.size + utf8.RuneCountInString(separator) + n
}

func (b *builder) add(p piece) {
	if p.text != "" {
		b.size = b.sizeWith(utf8.RuneCountInString(p.text))
	}
	b.pieces = append(b.pieces, p)
}

// Assemble splits t into chunks. A topic with no content yields no chunks.
func (a *Assembler) Assemble(t topic.Topic) []Chunk {
	pieces := a.pieces(t)

	var built []*builder
	cur := &builder{}
	for _, p := range pieces {
		n := utf8.RuneCountInString(p.text)
		if !cur.empty() && a.boundary(cur, p, n) {
			built = append(built, cur)
			cur = &builder{}
		}
		cur.add(p)
	}
	if !cur.empty() {
		built = append(built, cur)
	}

	built = a.rebalance(built)

	chunks := make([]Chunk, 0, len(built))
	for i, b := range built {
		chunks = append(chunks, finish(b, t.Title, i))
	}
	return chunks
}

// boundary reports whether the open chunk must be closed before p is added.
func (a *Assembler) boundary(cur *builder, p piece, n int) bool {
	switch {
	case cur.sizeWith(n) > a.cfg.MaxCharacters:
		return true
	case cur.size >= a.cfg.NewAfterCharacters:
		return true
	case p.heading && cur.size >= a.cfg.CombineUnderCharacters:
		return true
	default:
		return false
	}
}

// rebalance merges chunks under the combine threshold into a neighbour,
// preferring the previous one. When a whole merge would exceed the hard
// maximum, trailing pieces of the previous chunk are moved forward instead.
// A chunk stays short only when no regrouping keeps both sides valid.
func (a *Assembler) rebalance(bs []*builder) []*builder {
	i := 0
	for len(bs) > 1 && i < len(bs) {
		if bs[i].size >= a.cfg.CombineUnderCharacters {
			i++
			continue
		}
		if i > 0 && a.fits(bs[i-1], bs[i]) {
			merge(bs[i-1], bs[i])
			bs = append(bs[:i], bs[i+1:]...)
			i--
			continue
		}
		if i+1 < len(bs) && a.fits(bs[i], bs[i+1]) {
			merge(bs[i], bs[i+1])
			bs = append(bs[:i+1], bs[i+2:]...)
			continue
		}
		if i > 0 {
			a.shiftTail(bs[i-1], bs[i])
		}
		i++
	}
	return bs
}

func (a *Assembler) fits(left, right *builder) bool {
	return left.sizeWith(right.size) <= a.cfg.MaxCharacters
}

// shiftTail moves the fewest trailing pieces of prev into the start of cur
// that bring cur up to the combine threshold, keeping cur within the
// maximum and prev at or above the threshold. It reports whether a shift
// happened; on false both builders are unchanged.
func (a *Assembler) shiftTail(prev, cur *builder) bool {
	for k := 1; k < len(prev.pieces); k++ {
		cut := len(prev.pieces) - k
		head := build(prev.pieces[:cut])
		tail := build(append(append([]piece(nil), prev.pieces[cut:]...), cur.pieces...))
		if tail.size > a.cfg.MaxCharacters || head.size < a.cfg.CombineUnderCharacters {
			return false
		}
		if tail.size >= a.cfg.CombineUnderCharacters {
			*prev, *cur = *head, *tail
			return true
		}
	}
	return false
}

// merge appends right's content onto left.
func merge(left, right *builder) {
	left.size = left.sizeWith(right.size)
	left.pieces = append(left.pieces, right.pieces...)
}

func finish(b *builder, title string, idx int) Chunk {
	var parts, tables, images []string
	for _, p := range b.pieces {
		if p.text != "" {
			parts = append(parts, p.text)
		}
		tables = append(tables, p.tables...)
		images = append(images, p.images...)
	}
	c := Chunk{
		Text:   strings.Join(parts, separator),
		Tables: tables,
		Images: images,
		Kinds:  []document.Kind{document.KindText},
		Topic:  title,
		Index:  idx,
	}
	if len(tables) > 0 {
		c.Kinds = append(c.Kinds, document.KindTable)
	}
	if len(images) > 0 {
		c.Kinds = append(c.Kinds, document.KindImage)
	}
	return c
}

// pieces converts elements into chunkable pieces, splitting any text longer
// than the hard maximum and separating table and image content.
func (a *Assembler) pieces(t topic.Topic) []piece {
	var out []piece
	for _, el := range t.Elements {
		p := piece{
			text:    el.TrimmedText(),
			heading: el.IsHeading(),
		}
		switch el.Kind {
		case document.KindTable:
			if el.HTML != "" {
				p.tables = []string{el.HTML}
			} else if p.text != "" {
				p.tables = []string{p.text}
			}
		case document.KindImage:
			if len(el.ImageBase64) > a.cfg.MinImageBytes {
				p.images = []string{el.ImageBase64}
			} else if el.ImageBase64 != "" {
				a.logger.Debug("chunk: dropping small image",
					slog.String("topic", t.Title),
					slog.Int("bytes", len(el.ImageBase64)),
				)
			}
		}
		if p.text == "" && len(p.tables) == 0 && len(p.images) == 0 {
			continue
		}

		if utf8.RuneCountInString(p.text) <= a.cfg.MaxCharacters {
			out = append(out, p)
			continue
		}
		for i, part := range splitText(p.text, a.cfg.MaxCharacters) {
			sp := piece{text: part}
			if i == 0 {
				sp.heading = p.heading
				sp.tables = p.tables
				sp.images = p.images
			}
			out = append(out, sp)
		}
	}
	return out
}

// splitText breaks s into pieces of at most limit characters, cutting at
// whitespace where possible. Words longer than limit are cut hard.
func splitText(s string, limit int) []string {
	var (
		out  []string
		cur  strings.Builder
		size int
	)
	flush := func() {
		if size > 0 {
			out = append(out, cur.String())
			cur.Reset()
			size = 0
		}
	}
	for _, word := range strings.Fields(s) {
		w := []rune(word)
		for len(w) > limit {
			flush()
			out = append(out, string(w[:limit]))
			w = w[limit:]
		}
		n := len(w)
		if n == 0 {
			continue
		}
		if size > 0 && size+1+n > limit {
			flush()
		}
		if size > 0 {
			cur.WriteByte(' ')
			size++
		}
		cur.WriteString(string(w))
		size += n
	}
	flush()
	return out
}
