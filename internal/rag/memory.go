package rag

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
)

// memoryRecord is a stored document with its embedding.
type memoryRecord struct {
	doc    Document
	vector []float32
}

// MemoryStore is an in-memory VectorStore using brute-force cosine
// similarity. It backs local runs and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]memoryRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memoryRecord)}
}

// Upsert stores documents, replacing existing ones by ID.
func (s *MemoryStore) Upsert(_ context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("memory: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, doc := range docs {
		doc.Metadata = maps.Clone(doc.Metadata)
		s.docs[doc.ID] = memoryRecord{doc: doc, vector: append([]float32(nil), embeddings[i]...)}
	}
	return nil
}

// Exists reports whether any stored record matches f.
func (s *MemoryStore) Exists(_ context.Context, f Filter) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.docs {
		if f.Match(r.doc.Source, r.doc.Metadata) {
			return true, nil
		}
	}
	return false, nil
}

// SearchMMR ranks matching records by similarity, keeps the FetchK nearest
// and re-ranks them by maximal marginal relevance.
func (s *MemoryStore) SearchMMR(_ context.Context, req SearchRequest) ([]Document, error) {
	s.mu.RLock()
	cands := make([]Candidate, 0, len(s.docs))
	for _, r := range s.docs {
		if req.Filter != nil && !req.Filter.Match(r.doc.Source, r.doc.Metadata) {
			continue
		}
		doc := r.doc
		doc.Metadata = maps.Clone(r.doc.Metadata)
		cands = append(cands, Candidate{Doc: doc, Vector: r.vector})
	}
	s.mu.RUnlock()

	sims := make(map[string]float32, len(cands))
	for _, c := range cands {
		sims[c.Doc.ID] = CosineSimilarity(req.Vector, c.Vector)
	}
	sort.Slice(cands, func(i, j int) bool {
		si, sj := sims[cands[i].Doc.ID], sims[cands[j].Doc.ID]
		if si != sj {
			return si > sj
		}
		return cands[i].Doc.ID < cands[j].Doc.ID
	})

	fetchK := max(req.FetchK, req.K)
	if len(cands) > fetchK {
		cands = cands[:fetchK]
	}
	return SelectMMR(req.Vector, cands, req.K, req.Lambda), nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}
