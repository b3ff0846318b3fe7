package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/54b3r/studyai-go/internal/chunk"
	"github.com/54b3r/studyai-go/internal/config"
	"github.com/54b3r/studyai-go/internal/embedder"
	"github.com/54b3r/studyai-go/internal/ingestion"
	"github.com/54b3r/studyai-go/internal/limiter"
	"github.com/54b3r/studyai-go/internal/llm"
	"github.com/54b3r/studyai-go/internal/metrics"
	"github.com/54b3r/studyai-go/internal/partition"
	"github.com/54b3r/studyai-go/internal/provider"
	"github.com/54b3r/studyai-go/internal/rag"
	"github.com/54b3r/studyai-go/internal/retrieval"
	"github.com/54b3r/studyai-go/internal/retry"
	"github.com/54b3r/studyai-go/internal/server"
	"github.com/54b3r/studyai-go/internal/store"
	"github.com/54b3r/studyai-go/internal/summarize"
	"github.com/54b3r/studyai-go/internal/tracing"
)

// ledgerDisabled is the STUDYAI_LEDGER_DB value that turns the ledger off.
const ledgerDisabled = "disabled"

// services holds the process-wide collaborators shared by the commands.
// Construct with newServices and release with Close.
type services struct {
	// log is the command logger.
	log *slog.Logger
	// settings are the resolved runtime settings.
	settings config.Settings
	// registry holds every Prometheus metric of the process.
	registry *prometheus.Registry
	// metrics records pipeline events into registry.
	metrics *metrics.Pipeline
	// embedder converts text to vectors.
	embedder rag.Embedder
	// store is the vector store.
	store rag.VectorStore
	// ledger records per-file outcomes. Nil when disabled.
	ledger store.Ledger
	// gate bounds generation calls across summarization and answering.
	gate *limiter.Gate
	// chat is the lazily constructed generation model.
	chat model.BaseChatModel
	// pingers probe the dependencies for /api/ready.
	pingers []server.Pinger
	// closers run in reverse order on Close.
	closers []func()
}

// newServices resolves settings and opens the embedder, vector store and
// ledger. Generation components are built on demand.
func newServices(ctx context.Context, log *slog.Logger) (*services, error) {
	s := &services{log: log, settings: config.FromEnv()}

	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metrics = metrics.NewPipeline(s.registry)
	s.gate = limiter.New(s.settings.GateSize, s.settings.GateRPM)

	s.closers = append(s.closers, tracing.Install(log))

	embCfg := embedder.ConfigFromEnv()
	if err := embedder.Preflight(log, embCfg, os.Getenv("EMBEDDING_PROVIDER") == ""); err != nil {
		s.Close()
		return nil, err
	}
	emb, err := embedder.New(ctx, embCfg)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	s.embedder = emb
	log.Info("embedder initialised", slog.String("backend", embCfg.Backend), slog.String("model", embCfg.Model))

	dim := embCfg.Dimensions
	if dim <= 0 {
		dim = embedder.DefaultDimensions(embCfg.Backend)
	}
	if err := s.openVectorStore(ctx, dim); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.openLedger(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// openVectorStore connects the configured vector backend.
func (s *services) openVectorStore(ctx context.Context, dim int) error {
	cfg := s.settings
	switch cfg.VectorBackend {
	case "qdrant":
		qs, err := rag.NewQdrantStore(ctx, &rag.QdrantConfig{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			Collection: cfg.QdrantCollection,
			VectorSize: uint64(dim), //nolint:gosec // dimensions are bounded
			APIKey:     cfg.QdrantAPIKey,
			UseTLS:     cfg.QdrantTLS,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to Qdrant at %s:%d: %w", cfg.QdrantHost, cfg.QdrantPort, err)
		}
		s.store = qs
		s.pingers = append(s.pingers, server.NewFuncPinger("qdrant", qs.Ping))
		s.log.Info("qdrant store ready",
			slog.String("host", cfg.QdrantHost),
			slog.Int("port", cfg.QdrantPort),
			slog.String("collection", cfg.QdrantCollection),
		)
	case "pgvector":
		if cfg.PgVectorDSN == "" {
			return errors.New("PGVECTOR_DSN is required when VECTOR_BACKEND=pgvector")
		}
		ps, err := rag.NewPgVectorStore(ctx, cfg.PgVectorDSN, dim)
		if err != nil {
			return fmt.Errorf("failed to connect to pgvector: %w", err)
		}
		s.store = ps
		s.pingers = append(s.pingers, server.NewFuncPinger("pgvector", ps.Ping))
		s.log.Info("pgvector store ready")
	case "memory":
		s.store = rag.NewMemoryStore()
		s.log.Warn("using in-memory vector store; records are lost on exit")
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q (want qdrant, pgvector or memory)", cfg.VectorBackend)
	}
	st := s.store
	s.closers = append(s.closers, func() { _ = st.Close() })
	return nil
}

// openLedger opens the SQLite ingestion ledger unless disabled.
func (s *services) openLedger() error {
	path := s.settings.LedgerDB
	if path == ledgerDisabled {
		s.log.Info("ledger: disabled via STUDYAI_LEDGER_DB=disabled")
		return nil
	}
	if path == "" {
		p, err := store.DefaultDBPath()
		if err != nil {
			s.log.Warn("ledger: could not resolve default DB path, disabling", slog.Any("error", err))
			return nil
		}
		path = p
	}
	ledger, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	s.ledger = ledger
	s.pingers = append(s.pingers, server.NewFuncPinger("ledger", ledger.Ping))
	s.closers = append(s.closers, func() { _ = ledger.Close() })
	s.log.Info("ledger opened", slog.String("path", path))
	return nil
}

// chatModel builds the generation model once.
func (s *services) chatModel(ctx context.Context) (model.BaseChatModel, error) {
	if s.chat != nil {
		return s.chat, nil
	}
	cfg := provider.ConfigFromEnv()
	m, err := provider.New(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	s.chat = m
	if cfg.Backend == provider.BackendOllama {
		s.pingers = append(s.pingers, server.NewHTTPPinger("ollama", strings.TrimRight(cfg.Ollama.Host, "/")+"/api/tags", nil))
	}
	s.log.Info("provider initialised",
		slog.String("backend", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)
	return m, nil
}

// generator returns a gated, retried client for purpose.
func (s *services) generator(ctx context.Context, purpose string, policy retry.Policy) (*llm.Client, error) {
	m, err := s.chatModel(ctx)
	if err != nil {
		return nil, err
	}
	return llm.New(m, s.gate, llm.Options{
		Purpose: purpose,
		Policy:  policy,
		Metrics: s.metrics,
		Logger:  s.log,
	})
}

// partitioner builds the partition chain from the configured strategies.
func (s *services) partitioner() (*partition.Chain, error) {
	cfg := s.settings
	attempts, err := partitionAttempts(cfg.Strategies, cfg.UnstructuredURL, cfg.UnstructuredAPIKey, s.log)
	if err != nil {
		return nil, err
	}
	for _, a := range attempts {
		if a.Strategy != partition.StrategyLocal {
			s.pingers = append(s.pingers, server.NewHTTPPinger("unstructured", strings.TrimRight(cfg.UnstructuredURL, "/")+"/healthcheck", nil))
			break
		}
	}
	return partition.NewChain(s.log, attempts...)
}

// partitionAttempts maps strategy names to partition attempts in order.
// The local strategy is skipped with a warning when pdftotext is missing.
func partitionAttempts(strategies []string, url, apiKey string, log *slog.Logger) ([]partition.Attempt, error) {
	var remote *partition.UnstructuredClient
	var attempts []partition.Attempt
	for _, name := range strategies {
		switch st := partition.Strategy(name); st {
		case partition.StrategyHiRes, partition.StrategyFast:
			if remote == nil {
				remote = partition.NewUnstructuredClient(partition.UnstructuredConfig{URL: url, APIKey: apiKey})
			}
			attempts = append(attempts, partition.Attempt{Partitioner: remote, Strategy: st})
		case partition.StrategyLocal:
			if err := partition.Available(); err != nil {
				log.Warn("partition: local strategy unavailable", slog.Any("error", err))
				continue
			}
			attempts = append(attempts, partition.Attempt{Partitioner: partition.NewPDFToText(), Strategy: st})
		default:
			return nil, fmt.Errorf("unknown partition strategy %q (want hi_res, fast or local)", name)
		}
	}
	if len(attempts) == 0 {
		return nil, errors.New("no usable partition strategy configured (UNSTRUCTURED_STRATEGIES)")
	}
	return attempts, nil
}

// ingestionPipeline wires the full ingestion pipeline.
func (s *services) ingestionPipeline(ctx context.Context) (*ingestion.Pipeline, error) {
	chain, err := s.partitioner()
	if err != nil {
		return nil, err
	}
	gen, err := s.generator(ctx, "summary", retry.Ingestion())
	if err != nil {
		return nil, err
	}
	summarizer, err := summarize.New(gen, summarize.Config{
		BatchSize: s.settings.SummaryBatchSize,
		Workers:   s.settings.SummaryWorkers,
	}, s.metrics, s.log)
	if err != nil {
		return nil, err
	}
	return ingestion.NewPipeline(ingestion.Dependencies{
		Partitioner: chain,
		Summarizer:  summarizer,
		Embedder:    s.embedder,
		Store:       s.store,
		Ledger:      s.ledger,
		Metrics:     s.metrics,
	}, ingestionConfig(s.settings))
}

// ingestionConfig maps settings onto the pipeline configuration. Zero
// chunk sizes fall back to the assembler defaults.
func ingestionConfig(st config.Settings) ingestion.Config {
	return ingestion.Config{
		Chunk: chunk.Config{
			MaxCharacters:          st.ChunkMaxChars,
			NewAfterCharacters:     st.ChunkNewAfterChars,
			CombineUnderCharacters: st.ChunkCombineUnderChars,
			MinImageBytes:          st.MinImageBytes,
		},
		EmbedBatchSize: st.EmbedBatchSize,
	}
}

// assembler wires the retrieval pipeline.
func (s *services) assembler(ctx context.Context) (*retrieval.Assembler, error) {
	retriever, err := rag.NewRetriever(s.embedder, s.store)
	if err != nil {
		return nil, err
	}
	gen, err := s.generator(ctx, "answer", retry.Answer())
	if err != nil {
		return nil, err
	}
	return retrieval.New(retriever, gen, retrieval.Config{
		MaxContextTokens: s.settings.MaxContextTokens,
		UploadsDir:       s.settings.UploadsDir,
	}, s.metrics)
}

// Close releases every opened resource in reverse order.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
