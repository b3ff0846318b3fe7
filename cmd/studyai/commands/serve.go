package commands

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/54b3r/studyai-go/internal/logging"
	"github.com/54b3r/studyai-go/internal/server"
)

// NewServeCmd constructs the `studyai serve` command, which starts the HTTP
// API.
func NewServeCmd() *cobra.Command {
	var host string
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the studyai HTTP API",
		Long: `Start the studyai HTTP API.

Endpoints:
  POST /api/ask                          Answer a question
  POST /api/sessions/{session}/ingest    Start a background ingestion job
  GET  /api/sessions/{session}/ingest    Ingestion job status
  GET  /api/sessions/{session}/files     Ingestion ledger for a session
  GET  /api/health, /api/ready           Liveness and readiness probes
  GET  /metrics                          Prometheus metrics

Examples:
  studyai serve
  studyai serve --port 9090
  VECTOR_BACKEND=memory studyai serve`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			log.Info("serve starting", slog.String("provider", os.Getenv("MODEL_PROVIDER")))

			svc, err := newServices(ctx, log)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			defer svc.Close()

			pipeline, err := svc.ingestionPipeline(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}
			assembler, err := svc.assembler(ctx)
			if err != nil {
				return fmt.Errorf("serve: %w", err)
			}

			// Flags win over STUDYAI_HOST / STUDYAI_PORT.
			if !cmd.Flags().Changed("host") && svc.settings.Host != "" {
				host = svc.settings.Host
			}
			if !cmd.Flags().Changed("port") && svc.settings.Port != 0 {
				port = svc.settings.Port
			}

			srv, err := server.New(server.Handlers{
				Asker:    assembler,
				Ingester: pipeline,
				Ledger:   svc.ledger,
			}, &server.Config{
				Host:            host,
				Port:            port,
				UploadsDir:      svc.settings.UploadsDir,
				Logger:          log,
				Pingers:         svc.pingers,
				RateLimit:       svc.settings.RateLimitRPS,
				MetricsRegistry: svc.registry,
				MetricsGatherer: svc.registry,
			})
			if err != nil {
				return fmt.Errorf("serve: failed to create server: %w", err)
			}

			return srv.Start(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Host address to bind to")
	cmd.Flags().IntVarP(&port, "port", "p", 8080, "TCP port to listen on")

	return cmd
}
