package commands

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/studyai-go/internal/config"
	"github.com/54b3r/studyai-go/internal/partition"
	"github.com/54b3r/studyai-go/internal/version"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPartitionAttempts(t *testing.T) {
	t.Parallel()

	attempts, err := partitionAttempts([]string{"hi_res", "fast"}, "http://localhost:8000", "", discardLogger())
	if err != nil {
		t.Fatalf("partitionAttempts() error: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("expected 2 attempts, got %d", len(attempts))
	}
	if attempts[0].Strategy != partition.StrategyHiRes || attempts[1].Strategy != partition.StrategyFast {
		t.Errorf("strategies = %s, %s", attempts[0].Strategy, attempts[1].Strategy)
	}
	if attempts[0].Partitioner != attempts[1].Partitioner {
		t.Error("remote strategies should share one Unstructured client")
	}
}

func TestPartitionAttempts_Errors(t *testing.T) {
	t.Parallel()

	if _, err := partitionAttempts([]string{"ocr"}, "", "", discardLogger()); err == nil {
		t.Error("unknown strategy should fail")
	}
	if _, err := partitionAttempts(nil, "", "", discardLogger()); err == nil {
		t.Error("empty strategy list should fail")
	}
}

func TestOpenVectorStore(t *testing.T) {
	t.Parallel()

	s := &services{log: discardLogger(), settings: config.Settings{VectorBackend: "memory"}}
	if err := s.openVectorStore(t.Context(), 8); err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if s.store == nil || len(s.closers) != 1 {
		t.Errorf("store = %v, closers = %d", s.store, len(s.closers))
	}
	s.Close()

	bad := &services{log: discardLogger(), settings: config.Settings{VectorBackend: "chroma"}}
	if err := bad.openVectorStore(t.Context(), 8); err == nil {
		t.Error("unknown backend should fail")
	}

	noDSN := &services{log: discardLogger(), settings: config.Settings{VectorBackend: "pgvector"}}
	if err := noDSN.openVectorStore(t.Context(), 8); err == nil || !strings.Contains(err.Error(), "PGVECTOR_DSN") {
		t.Errorf("pgvector without DSN: err = %v", err)
	}
}

func TestOpenLedger(t *testing.T) {
	t.Parallel()

	off := &services{log: discardLogger(), settings: config.Settings{LedgerDB: ledgerDisabled}}
	if err := off.openLedger(); err != nil {
		t.Fatalf("disabled ledger: %v", err)
	}
	if off.ledger != nil || len(off.pingers) != 0 {
		t.Error("disabled ledger should not be opened")
	}

	on := &services{log: discardLogger(), settings: config.Settings{LedgerDB: filepath.Join(t.TempDir(), "ledger.db")}}
	if err := on.openLedger(); err != nil {
		t.Fatalf("openLedger() error: %v", err)
	}
	defer on.Close()
	if on.ledger == nil || len(on.pingers) != 1 || on.pingers[0].Name() != "ledger" {
		t.Errorf("ledger = %v, pingers = %v", on.ledger, on.pingers)
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := NewRootCmd()
	for _, name := range []string{"ingest", "ask", "status", "serve", "version"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	t.Parallel()

	cmd := NewVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.Run(cmd, nil)
	if strings.TrimSpace(out.String()) != version.String() {
		t.Errorf("output = %q", out.String())
	}
}

func TestIngestCmd_RequiresOneSource(t *testing.T) {
	t.Parallel()

	for _, args := range [][]string{
		{},
		{"--dir", "uploads/s1", "--session", "s1"},
	} {
		cmd := NewIngestCmd()
		cmd.SetArgs(args)
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		err := cmd.Execute()
		if err == nil || !strings.Contains(err.Error(), "exactly one of --dir or --session") {
			t.Errorf("args %v: err = %v", args, err)
		}
	}
}

func TestIngestionConfig(t *testing.T) {
	t.Parallel()

	cfg := ingestionConfig(config.Settings{
		EmbedBatchSize:         16,
		ChunkMaxChars:          2000,
		ChunkNewAfterChars:     1600,
		ChunkCombineUnderChars: 300,
		MinImageBytes:          4096,
	})
	if cfg.EmbedBatchSize != 16 {
		t.Errorf("EmbedBatchSize = %d, want 16", cfg.EmbedBatchSize)
	}
	c := cfg.Chunk
	if c.MaxCharacters != 2000 || c.NewAfterCharacters != 1600 || c.CombineUnderCharacters != 300 || c.MinImageBytes != 4096 {
		t.Errorf("Chunk = %+v", c)
	}
}
