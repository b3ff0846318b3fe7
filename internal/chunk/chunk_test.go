package chunk

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/54b3r/studyai-go/internal/document"
	"github.com/54b3r/studyai-go/internal/topic"
)

func text(s string) document.Element {
	return document.Element{Kind: document.KindText, Category: "NarrativeText", Text: s}
}

func words(n int) string {
	// "word " is 5 characters; trimming leaves n*5-1.
	return strings.TrimSpace(strings.Repeat("word ", n))
}

func TestAssemble_RespectsMaximum(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		els  []document.Element
	}{
		{"one huge paragraph", []document.Element{text(words(2000))}},
		{"one huge unbroken token", []document.Element{text(strings.Repeat("x", 7500))}},
		{"many medium paragraphs", func() []document.Element {
			var out []document.Element
			for range 20 {
				out = append(out, text(words(130)))
			}
			return out
		}()},
		{"mixed small and large", []document.Element{
			text("tiny"), text(words(590)), text("tiny"), text(words(590)), text("tiny"),
		}},
		{"multibyte text", []document.Element{text(strings.Repeat("नमस्ते दुनिया ", 600))}},
	}

	a := NewAssembler(Config{}, nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			chunks := a.Assemble(topic.Topic{Title: "T", Elements: tc.els})
			if len(chunks) == 0 {
				t.Fatal("Assemble() returned no chunks")
			}
			for i, c := range chunks {
				if n := utf8.RuneCountInString(c.Text); n > DefaultMaxCharacters {
					t.Errorf("chunk %d has %d characters, max %d", i, n, DefaultMaxCharacters)
				}
				if c.Index != i {
					t.Errorf("chunk %d has Index %d", i, c.Index)
				}
				if c.Topic != "T" {
					t.Errorf("chunk %d has Topic %q", i, c.Topic)
				}
				if !c.Has(document.KindText) {
					t.Errorf("chunk %d kinds %v missing text", i, c.Kinds)
				}
			}
		})
	}
}

func TestAssemble_CombinesSmallElements(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text("first"), text("second"), text("third"),
	}})
	if len(chunks) != 1 {
		t.Fatalf("Assemble() returned %d chunks, want 1", len(chunks))
	}
	if want := "first\n\nsecond\n\nthird"; chunks[0].Text != want {
		t.Errorf("Text = %q, want %q", chunks[0].Text, want)
	}
}

func TestAssemble_SoftLimitClosesChunk(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	// 2499 + 2 + 599 fits under the hard max, but the open chunk already
	// passed the soft limit.
	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text(words(500)), text(words(120)),
	}})
	if len(chunks) != 2 {
		t.Fatalf("Assemble() returned %d chunks, want 2", len(chunks))
	}
}

func TestAssemble_SmallTailMergesIntoPrevious(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text(words(500)), text("short tail"),
	}})
	if len(chunks) != 1 {
		t.Fatalf("Assemble() returned %d chunks, want 1", len(chunks))
	}
	if !strings.HasSuffix(chunks[0].Text, "\n\nshort tail") {
		t.Errorf("tail not merged: %q", chunks[0].Text[len(chunks[0].Text)-20:])
	}
}

func TestAssemble_SmallChunkStaysWhenMergeWouldOverflow(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	// Both neighbours are near the hard max, so the short middle chunk can
	// merge with neither.
	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text(words(599)), text("middle"), text(words(599)),
	}})
	if len(chunks) != 3 {
		t.Fatalf("Assemble() returned %d chunks, want 3", len(chunks))
	}
	if chunks[1].Text != "middle" {
		t.Errorf("middle chunk = %q", chunks[1].Text)
	}
}

func TestAssemble_ShortTailBorrowsFromPrevious(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	big, mid, tail := strings.Repeat("a", 2000), strings.Repeat("b", 950), strings.Repeat("c", 100)
	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text(big), text(mid), text(tail),
	}})
	if len(chunks) != 2 {
		t.Fatalf("Assemble() returned %d chunks, want 2", len(chunks))
	}
	if chunks[0].Text != big {
		t.Errorf("chunk 0 has %d characters, want 2000", utf8.RuneCountInString(chunks[0].Text))
	}
	if want := mid + "\n\n" + tail; chunks[1].Text != want {
		t.Errorf("chunk 1 has %d characters, want %d", utf8.RuneCountInString(chunks[1].Text), len(want))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has Index %d", i, c.Index)
		}
	}
}

func TestAssemble_BorrowKeepsTablesWithTheirText(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	table := document.Element{Kind: document.KindTable, Category: "Table", Text: strings.Repeat("t", 950), HTML: "<table/>"}
	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text(strings.Repeat("a", 2000)), table, text(strings.Repeat("c", 100)),
	}})
	if len(chunks) != 2 {
		t.Fatalf("Assemble() returned %d chunks, want 2", len(chunks))
	}
	if chunks[0].Has(document.KindTable) {
		t.Error("chunk 0 should no longer carry the table")
	}
	if !chunks[1].Has(document.KindTable) || len(chunks[1].Tables) != 1 {
		t.Errorf("chunk 1 tables = %v, kinds = %v", chunks[1].Tables, chunks[1].Kinds)
	}
}

func TestAssemble_HeadingStartsSection(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	sub := document.Element{Kind: document.KindTitle, Category: document.CategoryTitle, Text: "2.1 Sub"}

	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text(words(120)), sub, text(words(120)),
	}})
	if len(chunks) != 2 {
		t.Fatalf("Assemble() returned %d chunks, want 2", len(chunks))
	}
	if !strings.HasPrefix(chunks[1].Text, "2.1 Sub") {
		t.Errorf("second chunk should open with the heading, got %q", chunks[1].Text[:10])
	}

	// Below the combine threshold the heading does not split.
	chunks = a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text("short"), sub, text("also short"),
	}})
	if len(chunks) != 1 {
		t.Fatalf("Assemble() returned %d chunks, want 1", len(chunks))
	}
}

func TestAssemble_TablesAndImages(t *testing.T) {
	t.Parallel()

	big := strings.Repeat("A", DefaultMinImageBytes+1)
	atFloor := strings.Repeat("B", DefaultMinImageBytes)

	a := NewAssembler(Config{}, nil)
	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text("Results"),
		{Kind: document.KindTable, Category: "Table", Text: "a 1", HTML: "<table><tr><td>a</td><td>1</td></tr></table>"},
		{Kind: document.KindTable, Category: "Table", Text: "b 2"},
		{Kind: document.KindImage, Category: "Image", ImageBase64: big},
		{Kind: document.KindImage, Category: "Image", ImageBase64: atFloor},
	}})
	if len(chunks) != 1 {
		t.Fatalf("Assemble() returned %d chunks, want 1", len(chunks))
	}
	c := chunks[0]

	wantTables := []string{"<table><tr><td>a</td><td>1</td></tr></table>", "b 2"}
	if len(c.Tables) != len(wantTables) {
		t.Fatalf("Tables = %v, want %v", c.Tables, wantTables)
	}
	for i := range wantTables {
		if c.Tables[i] != wantTables[i] {
			t.Errorf("Tables[%d] = %q, want %q", i, c.Tables[i], wantTables[i])
		}
	}
	if len(c.Images) != 1 || c.Images[0] != big {
		t.Errorf("expected exactly the payload above the floor to be kept, got %d images", len(c.Images))
	}
	wantKinds := []document.Kind{document.KindText, document.KindTable, document.KindImage}
	if len(c.Kinds) != 3 {
		t.Fatalf("Kinds = %v, want %v", c.Kinds, wantKinds)
	}
	for i := range wantKinds {
		if c.Kinds[i] != wantKinds[i] {
			t.Errorf("Kinds[%d] = %q, want %q", i, c.Kinds[i], wantKinds[i])
		}
	}
	if !c.Multimodal() {
		t.Error("chunk with tables and images should be multimodal")
	}
}

func TestAssemble_TextOnlyIsNotMultimodal(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	chunks := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{
		text("plain"),
		{Kind: document.KindImage, ImageBase64: "tiny"},
	}})
	if len(chunks) != 1 {
		t.Fatalf("Assemble() returned %d chunks, want 1", len(chunks))
	}
	if chunks[0].Multimodal() {
		t.Errorf("Kinds = %v, want text only", chunks[0].Kinds)
	}
}

func TestAssemble_EmptyTopic(t *testing.T) {
	t.Parallel()

	a := NewAssembler(Config{}, nil)
	if got := a.Assemble(topic.Topic{Title: "T"}); len(got) != 0 {
		t.Errorf("Assemble() on empty topic returned %d chunks", len(got))
	}
	if got := a.Assemble(topic.Topic{Title: "T", Elements: []document.Element{text("   ")}}); len(got) != 0 {
		t.Errorf("Assemble() on whitespace topic returned %d chunks", len(got))
	}
}

func TestConfigDefaults(t *testing.T) {
	t.Parallel()

	got := NewAssembler(Config{MaxCharacters: 1000}, nil).Config()
	if got.NewAfterCharacters != 1000 {
		t.Errorf("NewAfterCharacters = %d, want clamp to 1000", got.NewAfterCharacters)
	}
	if got.CombineUnderCharacters != DefaultCombineUnderCharacters {
		t.Errorf("CombineUnderCharacters = %d", got.CombineUnderCharacters)
	}
	if got.MinImageBytes != DefaultMinImageBytes {
		t.Errorf("MinImageBytes = %d", got.MinImageBytes)
	}
}
