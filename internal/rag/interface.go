// Package rag defines the interfaces for the retrieval side of the system:
// vector storage with metadata filtering, diversity-aware (MMR) search, and
// embedding. Concrete backends (Qdrant, pgvector, in-memory) satisfy these
// interfaces so the pipelines never depend on a specific store.
package rag

import (
	"context"
)

// Metadata keys attached to every indexed record.
const (
	// MetaSession is the session the record belongs to.
	MetaSession = "session_id"
	// MetaSource is the source document filename.
	MetaSource = "source"
	// MetaTopic is the title of the topic the record was cut from.
	MetaTopic = "parent_topic"
	// MetaOriginal is the JSON-encoded original chunk content.
	MetaOriginal = "original_content"
)

// Document represents a unit of stored or retrieved knowledge.
type Document struct {
	// ID is the unique identifier for this record (a UUID string).
	ID string

	// Content is the text that was embedded.
	Content string

	// Source is the origin filename of the document.
	Source string

	// Metadata holds the record's string attributes (session, topic, etc.).
	Metadata map[string]string

	// Score is the similarity to the query assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// Filter restricts a store operation by metadata. Empty fields are
// unconstrained; the zero Filter matches everything.
type Filter struct {
	// Session restricts to records of one session.
	Session string

	// Source restricts to records of one source filename.
	Source string
}

// IsZero reports whether f constrains nothing.
func (f Filter) IsZero() bool {
	return f.Session == "" && f.Source == ""
}

// Match reports whether a record with the given attributes passes f.
func (f Filter) Match(source string, meta map[string]string) bool {
	if f.Session != "" && meta[MetaSession] != f.Session {
		return false
	}
	if f.Source != "" && source != f.Source && meta[MetaSource] != f.Source {
		return false
	}
	return true
}

// SearchRequest describes a maximal-marginal-relevance search.
type SearchRequest struct {
	// Vector is the query embedding.
	Vector []float32

	// K is the number of results to return.
	K int

	// FetchK is the number of nearest candidates re-ranked for diversity.
	// Values below K are raised to K.
	FetchK int

	// Lambda trades relevance (1.0) against diversity (0.0).
	Lambda float32

	// Filter restricts the candidate set. Nil searches the whole store.
	Filter *Filter
}

// VectorStore is the interface for persisting and searching document
// embeddings. Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Upsert stores or replaces documents by ID with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Exists reports whether at least one record matches f.
	Exists(ctx context.Context, f Filter) (bool, error)

	// SearchMMR returns up to req.K documents chosen from the req.FetchK
	// nearest candidates by maximal marginal relevance. An empty store or
	// an unmatched filter yields an empty result, not an error.
	SearchMMR(ctx context.Context, req SearchRequest) ([]Document, error)

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
