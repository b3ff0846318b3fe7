package ingestion

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/54b3r/studyai-go/internal/chunk"
	"github.com/54b3r/studyai-go/internal/document"
	"github.com/54b3r/studyai-go/internal/rag"
)

func TestRecordID(t *testing.T) {
	t.Parallel()

	a := RecordID("s1", "bio.pdf", "1. Overview", 1, 0)
	if a != RecordID("s1", "bio.pdf", "1. Overview", 1, 0) {
		t.Error("RecordID is not deterministic")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("RecordID %q is not a UUID: %v", a, err)
	}

	others := []string{
		RecordID("s2", "bio.pdf", "1. Overview", 1, 0),
		RecordID("s1", "chem.pdf", "1. Overview", 1, 0),
		RecordID("s1", "bio.pdf", "2. Details", 1, 0),
		RecordID("s1", "bio.pdf", "1. Overview", 2, 0),
		RecordID("s1", "bio.pdf", "1. Overview", 1, 1),
	}
	for i, o := range others {
		if o == a {
			t.Errorf("variant %d collides with base id", i)
		}
	}
}

func TestIndexedContent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		summary string
		want    string
	}{
		{"with summary", "A short summary.", "TOPIC: Cells\nSUMMARY: A short summary.\n\nORIGINAL TEXT: raw text"},
		{"text only", "", "TOPIC: Cells\n\nraw text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IndexedContent("Cells", tc.summary, "raw text"); got != tc.want {
				t.Errorf("IndexedContent() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestBuildRecord(t *testing.T) {
	t.Parallel()

	c := chunk.Chunk{
		Text:   "Mitochondria produce ATP.",
		Tables: []string{"<table><tr><td>ATP</td></tr></table>"},
		Kinds:  []document.Kind{document.KindText, document.KindTable},
		Topic:  "2. Cells",
		Index:  3,
	}
	doc, err := BuildRecord("s1", "bio.pdf", 2, c, "Energy production.")
	if err != nil {
		t.Fatalf("BuildRecord() unexpected error: %v", err)
	}

	if doc.ID != RecordID("s1", "bio.pdf", "2. Cells", 2, 3) {
		t.Errorf("ID = %q", doc.ID)
	}
	if doc.Source != "bio.pdf" || doc.Metadata[rag.MetaSession] != "s1" || doc.Metadata[rag.MetaTopic] != "2. Cells" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}

	var orig OriginalContent
	if err := json.Unmarshal([]byte(doc.Metadata[rag.MetaOriginal]), &orig); err != nil {
		t.Fatalf("original_content is not JSON: %v", err)
	}
	if orig.RawText != c.Text || len(orig.TablesHTML) != 1 {
		t.Errorf("original_content = %+v", orig)
	}
	var raw map[string]json.RawMessage
	_ = json.Unmarshal([]byte(doc.Metadata[rag.MetaOriginal]), &raw)
	if string(raw["images_base64"]) != "[]" {
		t.Errorf("images_base64 = %s, want []", raw["images_base64"])
	}
}
