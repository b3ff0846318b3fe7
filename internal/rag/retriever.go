package rag

import (
	"context"
	"fmt"
)

// SearchParams are the MMR parameters of one retrieval stage.
type SearchParams struct {
	// K is the number of results to return.
	K int

	// FetchK is the candidate pool size re-ranked for diversity.
	FetchK int

	// Lambda trades relevance against diversity.
	Lambda float32

	// Filter restricts the search; nil searches every session.
	Filter *Filter
}

// Retriever embeds a query and runs an MMR search against a VectorStore.
type Retriever struct {
	// embedder converts query text to a dense vector.
	embedder Embedder

	// store performs the vector search.
	store VectorStore
}

// NewRetriever constructs a Retriever from the given Embedder and VectorStore.
func NewRetriever(embedder Embedder, store VectorStore) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("rag: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("rag: store must not be nil")
	}
	return &Retriever{embedder: embedder, store: store}, nil
}

// EmbedQuery returns the embedding of a single query string.
func (r *Retriever) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	embeddings, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("rag: embedding query failed: %w", err)
	}
	if len(embeddings) == 0 || len(embeddings[0]) == 0 {
		return nil, fmt.Errorf("rag: embedder returned empty result for query")
	}
	return embeddings[0], nil
}

// Search runs one MMR search for an already-embedded query.
func (r *Retriever) Search(ctx context.Context, vector []float32, p SearchParams) ([]Document, error) {
	docs, err := r.store.SearchMMR(ctx, SearchRequest{
		Vector: vector,
		K:      p.K,
		FetchK: p.FetchK,
		Lambda: p.Lambda,
		Filter: p.Filter,
	})
	if err != nil {
		return nil, fmt.Errorf("rag: vector search failed: %w", err)
	}
	return docs, nil
}
