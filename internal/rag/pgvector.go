package rag

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/pgvector/pgvector-go"
)

// PgVectorStore is a VectorStore backed by PostgreSQL with the pgvector
// extension. Metadata is stored as JSONB and filtered server-side; MMR
// re-ranking runs client-side over the FetchK nearest rows.
type PgVectorStore struct {
	// db is the connection pool.
	db *sql.DB

	// table is the documents table name.
	table string

	// dimension is the embedding dimensionality used for the column type.
	dimension int
}

// NewPgVectorStore opens dsn, verifies connectivity, and creates the
// extension, table and index if they are missing.
func NewPgVectorStore(ctx context.Context, dsn string, dimension int) (*PgVectorStore, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("pgvector: dimension must be positive")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("pgvector: open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pgvector: ping database: %w", err)
	}

	s := &PgVectorStore{db: db, table: "study_documents", dimension: dimension}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PgVectorStore) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			source TEXT NOT NULL,
			embedding vector(%d),
			metadata JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ DEFAULT NOW()
		)`, s.table, s.dimension),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_embedding ON %s USING hnsw (embedding vector_cosine_ops)`, s.table, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_session ON %s ((metadata->>'%s'))`, s.table, s.table, MetaSession),
	}
	for _, m := range migrations {
		if _, err := s.db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("pgvector: migrate: %w", err)
		}
	}
	return nil
}

// Upsert stores documents in one transaction, replacing existing rows by ID.
func (s *PgVectorStore) Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error {
	if len(docs) != len(embeddings) {
		return fmt.Errorf("pgvector: %d documents but %d embeddings", len(docs), len(embeddings))
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("pgvector: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := fmt.Sprintf(`
		INSERT INTO %s (id, content, source, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			source = EXCLUDED.source,
			embedding = EXCLUDED.embedding,
			metadata = EXCLUDED.metadata`, s.table)

	for i, doc := range docs {
		meta, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("pgvector: marshal metadata: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, doc.ID, doc.Content, doc.Source, pgvector.NewVector(embeddings[i]), meta); err != nil {
			return fmt.Errorf("pgvector: upsert %s: %w", doc.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("pgvector: commit: %w", err)
	}
	return nil
}

// Exists reports whether any row matches f.
func (s *PgVectorStore) Exists(ctx context.Context, f Filter) (bool, error) {
	where, args := whereClause(&f, 1)
	var exists bool
	err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s %s)`, s.table, where), args...,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgvector: exists: %w", err)
	}
	return exists, nil
}

// SearchMMR fetches the FetchK nearest rows by cosine distance and
// re-ranks them by maximal marginal relevance.
func (s *PgVectorStore) SearchMMR(ctx context.Context, req SearchRequest) ([]Document, error) {
	fetchK := max(req.FetchK, req.K)
	where, args := whereClause(req.Filter, 3)
	args = append([]any{pgvector.NewVector(req.Vector), fetchK}, args...)

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, content, source, embedding, metadata
		FROM %s
		%s
		ORDER BY embedding <=> $1
		LIMIT $2`, s.table, where), args...)
	if err != nil {
		return nil, fmt.Errorf("pgvector: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var cands []Candidate
	for rows.Next() {
		var (
			doc  Document
			vec  pgvector.Vector
			meta []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Content, &doc.Source, &vec, &meta); err != nil {
			return nil, fmt.Errorf("pgvector: scan row: %w", err)
		}
		c, err := candidateFromRow(doc, vec, meta)
		if err != nil {
			return nil, err
		}
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgvector: rows: %w", err)
	}
	return SelectMMR(req.Vector, cands, req.K, req.Lambda), nil
}

// Ping checks database connectivity.
func (s *PgVectorStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx) //nolint:wrapcheck // passthrough
}

// Close closes the connection pool.
func (s *PgVectorStore) Close() error {
	return s.db.Close() //nolint:wrapcheck // passthrough
}

// whereClause builds a WHERE clause for f with placeholders numbered from
// first. It returns "" when f constrains nothing.
func whereClause(f *Filter, first int) (string, []any) {
	if f == nil || f.IsZero() {
		return "", nil
	}
	var (
		conds []string
		args  []any
	)
	n := first
	if f.Session != "" {
		conds = append(conds, fmt.Sprintf("metadata->>'%s' = $%d", MetaSession, n))
		args = append(args, f.Session)
		n++
	}
	if f.Source != "" {
		conds = append(conds, fmt.Sprintf("source = $%d", n))
		args = append(args, f.Source)
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// candidateFromRow decodes the JSONB metadata of a scanned row and pairs
// the document with its stored embedding.
func candidateFromRow(doc Document, vec pgvector.Vector, meta []byte) (Candidate, error) {
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &doc.Metadata); err != nil {
			return Candidate{}, fmt.Errorf("pgvector: decode metadata for %s: %w", doc.ID, err)
		}
	}
	return Candidate{Doc: doc, Vector: vec.Slice()}, nil
}
