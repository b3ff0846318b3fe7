//go:build integration

package embedder

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/54b3r/studyai-go/internal/rag"
)

// TestOllamaEmbedder_Integration calls a locally running Ollama instance and
// checks that related passages embed closer together than unrelated ones.
//
// Prerequisites:
//
//	ollama pull nomic-embed-text
//	ollama serve
//
// Run with:
//
//	go test -tags=integration -run TestOllamaEmbedder_Integration ./internal/embedder/
func TestOllamaEmbedder_Integration(t *testing.T) {
	host := os.Getenv("OLLAMA_HOST")
	if host == "" {
		host = "http://localhost:11434"
	}
	model := os.Getenv("EMBEDDING_MODEL")
	if model == "" {
		model = defaultOllamaModel
	}

	emb := NewOllamaEmbedder(&OllamaConfig{Host: host, Model: model})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	texts := []string{
		"Photosynthesis converts light energy into chemical energy stored in glucose.",
		"Plants use chlorophyll to capture sunlight and produce sugar from carbon dioxide.",
		"The French Revolution began in 1789 with the storming of the Bastille.",
	}

	vecs, err := emb.Embed(ctx, texts)
	if err != nil {
		t.Fatalf("Embed() failed: %v\n\nEnsure Ollama is running and %q is pulled:\n  ollama pull %s", err, model, model)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("expected %d embeddings, got %d", len(texts), len(vecs))
	}

	related := rag.CosineSimilarity(vecs[0], vecs[1])
	unrelated := rag.CosineSimilarity(vecs[0], vecs[2])
	if related <= unrelated {
		t.Errorf("related similarity %.3f should exceed unrelated %.3f", related, unrelated)
	}

	t.Logf("model=%s dim=%d (set EMBEDDING_DIMENSIONS=%d to size the vector store)", model, len(vecs[0]), len(vecs[0]))
}
