package commands

import (
	"fmt"
	"log/slog"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyai-go/internal/config"
	"github.com/54b3r/studyai-go/internal/logging"
	"github.com/54b3r/studyai-go/internal/store"
)

// NewIngestCmd constructs the `studyai ingest` command, which runs the
// ingestion pipeline over one session folder of PDFs.
func NewIngestCmd() *cobra.Command {
	var dir string
	var session string

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest a session folder of PDFs into the vector store",
		Long: `Ingest every PDF in a session folder into the vector store.

Each file is validated, partitioned into text, tables and images, segmented
into topics, chunked, summarized (chunks with tables or images only),
embedded and written with its session id. Files already indexed for the
session are skipped, so re-running is safe.

The session id is the folder name. Use --dir for an explicit folder or
--session to resolve it under STUDYAI_UPLOADS_DIR (default: ./uploads).

Environment variables:
  UNSTRUCTURED_URL         Partition service (default: http://localhost:8000)
  UNSTRUCTURED_STRATEGIES  Ordered strategies (default: hi_res,fast,local)
  VECTOR_BACKEND           qdrant | pgvector | memory (default: qdrant)
  EMBEDDING_PROVIDER       ollama | openai | azure | gemini

Examples:
  studyai ingest --dir ./uploads/session-42
  studyai ingest --session session-42`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (dir == "") == (session == "") {
				return fmt.Errorf("ingest: exactly one of --dir or --session is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			if session != "" {
				dir = filepath.Join(config.FromEnv().UploadsDir, session)
			}

			svc, err := newServices(ctx, log)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			defer svc.Close()

			pipeline, err := svc.ingestionPipeline(ctx)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}

			report, err := pipeline.Ingest(ctx, dir, func(msg string) {
				log.Info(msg)
			})
			if err != nil {
				return fmt.Errorf("ingest: pipeline failed: %w", err)
			}

			log.Info("ingestion complete",
				slog.String("session", report.Session),
				slog.Int("ingested", report.Count(store.OutcomeIngested)),
				slog.Int("skipped", report.Count(store.OutcomeSkipped)),
				slog.Int("invalid", report.Count(store.OutcomeInvalid)),
				slog.Int("empty", report.Count(store.OutcomeEmpty)),
				slog.Int("failed", report.Count(store.OutcomeFailed)),
				slog.Int("records", report.Records),
				slog.Duration("duration", report.Duration),
			)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Session folder containing the PDFs")
	cmd.Flags().StringVarP(&session, "session", "s", "", "Session id resolved under STUDYAI_UPLOADS_DIR")

	return cmd
}
