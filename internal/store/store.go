// Package store provides the SQLite-backed ingestion ledger: one row per
// (session, source) recording the latest ingestion outcome for that file.
// The vector store remains the checkpoint of record; the ledger answers
// "what happened to my upload" for the CLI and the HTTP API.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// Outcome is the result of ingesting one file.
type Outcome string

const (
	// OutcomeIngested means records were built and written.
	OutcomeIngested Outcome = "ingested"
	// OutcomeSkipped means the file was already indexed.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeInvalid means the file failed PDF validation.
	OutcomeInvalid Outcome = "invalid"
	// OutcomeEmpty means no content could be extracted.
	OutcomeEmpty Outcome = "empty"
	// OutcomeFailed means the run failed before the file's records were written.
	OutcomeFailed Outcome = "failed"
)

// FileRecord is the ledger row for one file.
type FileRecord struct {
	// Session is the session the file was uploaded to.
	Session string
	// Source is the file's base name.
	Source string
	// Outcome is the latest ingestion result.
	Outcome Outcome
	// Reason explains non-ingested outcomes. Empty otherwise.
	Reason string
	// Topics is the number of topics segmented from the file.
	Topics int
	// Records is the number of records written for the file.
	Records int
	// UpdatedAt is when the row was last written.
	UpdatedAt time.Time
}

// Ledger persists per-file ingestion outcomes. Implementations must be safe
// for concurrent use.
type Ledger interface {
	// Record inserts or replaces the row for (rec.Session, rec.Source).
	Record(ctx context.Context, rec FileRecord) error
	// List returns every row for session ordered by source.
	List(ctx context.Context, session string) ([]FileRecord, error)
	// Close releases any resources held by the ledger.
	Close() error
}

// SQLiteStore is a Ledger backed by a local SQLite database.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB

	// now stamps rows; replaced in tests.
	now func() time.Time
}

// DefaultDBPath returns the default ledger path, ~/.studyai/ledger.db,
// creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".studyai")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "ledger.db"), nil
}

// Open opens (or creates) a SQLiteStore at path and runs the schema
// migration. Use ":memory:" for an in-memory database in tests.
func Open(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Single writer connection avoids SQLITE_BUSY and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS ingested_files (
    session     TEXT    NOT NULL,
    source      TEXT    NOT NULL,
    outcome     TEXT    NOT NULL CHECK(outcome IN ('ingested','skipped','invalid','empty','failed')),
    reason      TEXT    NOT NULL DEFAULT '',
    topics      INTEGER NOT NULL DEFAULT 0,
    records     INTEGER NOT NULL DEFAULT 0,
    updated_at  INTEGER NOT NULL,  -- Unix timestamp (seconds)
    PRIMARY KEY (session, source)
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Record inserts or replaces the row for (rec.Session, rec.Source). A
// skipped outcome keeps the topic and record counts of the earlier run.
func (s *SQLiteStore) Record(ctx context.Context, rec FileRecord) error {
	if rec.Session == "" || rec.Source == "" {
		return fmt.Errorf("store: record: session and source are required")
	}
	const q = `
INSERT INTO ingested_files (session, source, outcome, reason, topics, records, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (session, source) DO UPDATE SET
    outcome    = excluded.outcome,
    reason     = excluded.reason,
    topics     = CASE WHEN excluded.outcome = 'skipped' THEN ingested_files.topics  ELSE excluded.topics  END,
    records    = CASE WHEN excluded.outcome = 'skipped' THEN ingested_files.records ELSE excluded.records END,
    updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, q,
		rec.Session, rec.Source, string(rec.Outcome), rec.Reason, rec.Topics, rec.Records, s.now().Unix())
	if err != nil {
		return fmt.Errorf("store: record %s/%s: %w", rec.Session, rec.Source, err)
	}
	return nil
}

// List returns every row for session ordered by source.
func (s *SQLiteStore) List(ctx context.Context, session string) ([]FileRecord, error) {
	const q = `
SELECT session, source, outcome, reason, topics, records, updated_at
FROM   ingested_files
WHERE  session = ?
ORDER  BY source ASC`

	rows, err := s.db.QueryContext(ctx, q, session)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer rows.Close()

	var out []FileRecord
	for rows.Next() {
		var (
			r       FileRecord
			outcome string
			ts      int64
		)
		if err := rows.Scan(&r.Session, &r.Source, &outcome, &r.Reason, &r.Topics, &r.Records, &ts); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		r.Outcome = Outcome(outcome)
		r.UpdatedAt = time.Unix(ts, 0)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return out, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
