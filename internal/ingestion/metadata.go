package ingestion

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/54b3r/studyai-go/internal/chunk"
	"github.com/54b3r/studyai-go/internal/rag"
)

// recordNamespace scopes record ids so they never collide with other
// UUIDv5 users of the same collection.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/54b3r/studyai-go/records"))

// OriginalContent is the JSON payload stored under rag.MetaOriginal. It
// keeps a chunk's raw modalities so a client can render tables and images
// next to an answer.
type OriginalContent struct {
	// RawText is the chunk text as extracted.
	RawText string `json:"raw_text"`
	// TablesHTML holds each table's markup.
	TablesHTML []string `json:"tables_html"`
	// ImagesBase64 holds each retained image payload.
	ImagesBase64 []string `json:"images_base64"`
}

// RecordID returns the deterministic id of a chunk. Re-ingesting the same
// file yields the same ids, so an upsert overwrites instead of duplicating.
func RecordID(session, source, topicTitle string, topicIndex, chunkIndex int) string {
	name := session + "\x00" + source + "\x00" + strconv.Itoa(topicIndex) + "\x00" + topicTitle + "\x00" + strconv.Itoa(chunkIndex)
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

// IndexedContent returns the text that is embedded for a chunk. A summary,
// when present, is placed ahead of the original text.
func IndexedContent(topicTitle, summary, raw string) string {
	if summary != "" {
		return fmt.Sprintf("TOPIC: %s\nSUMMARY: %s\n\nORIGINAL TEXT: %s", topicTitle, summary, raw)
	}
	return fmt.Sprintf("TOPIC: %s\n\n%s", topicTitle, raw)
}

// BuildRecord converts a chunk and its optional summary into an indexed
// record for session/source.
func BuildRecord(session, source string, topicIndex int, c chunk.Chunk, summary string) (rag.Document, error) {
	original, err := json.Marshal(OriginalContent{
		RawText:      c.Text,
		TablesHTML:   nonNil(c.Tables),
		ImagesBase64: nonNil(c.Images),
	})
	if err != nil {
		return rag.Document{}, fmt.Errorf("ingestion: encode original content: %w", err)
	}
	return rag.Document{
		ID:      RecordID(session, source, c.Topic, topicIndex, c.Index),
		Content: IndexedContent(c.Topic, summary, c.Text),
		Source:  source,
		Metadata: map[string]string{
			rag.MetaSession:  session,
			rag.MetaSource:   source,
			rag.MetaTopic:    c.Topic,
			rag.MetaOriginal: string(original),
		},
	}, nil
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
