package config

import (
	"os"
	"strconv"
	"strings"
)

// Settings are the resolved runtime settings shared by the CLI commands.
// Provider and embedder settings are read by their own packages.
type Settings struct {
	// UploadsDir is the root holding one directory per session.
	UploadsDir string
	// LedgerDB is the SQLite ledger path; "disabled" turns the ledger off
	// and "" selects the default path.
	LedgerDB string

	// VectorBackend is qdrant, pgvector, or memory.
	VectorBackend string
	// QdrantHost is the Qdrant hostname.
	QdrantHost string
	// QdrantPort is the Qdrant gRPC port.
	QdrantPort int
	// QdrantCollection is the Qdrant collection name.
	QdrantCollection string
	// QdrantAPIKey authenticates against managed clusters.
	QdrantAPIKey string
	// QdrantTLS enables TLS.
	QdrantTLS bool
	// PgVectorDSN is the PostgreSQL connection string.
	PgVectorDSN string

	// UnstructuredURL is the partitioning service base URL.
	UnstructuredURL string
	// UnstructuredAPIKey authenticates against the hosted service.
	UnstructuredAPIKey string
	// Strategies is the ordered partition strategy list.
	Strategies []string

	// GateSize bounds concurrent generation calls.
	GateSize int
	// GateRPM caps generation calls per minute; zero disables the cap.
	GateRPM int
	// SummaryBatchSize is the number of chunks per summary call.
	SummaryBatchSize int
	// SummaryWorkers is the number of summary batches in flight.
	SummaryWorkers int
	// EmbedBatchSize is the number of records per embedding call.
	EmbedBatchSize int
	// ChunkMaxChars is the hard chunk size ceiling; zero selects the default.
	ChunkMaxChars int
	// ChunkNewAfterChars is the soft chunk close size; zero selects the default.
	ChunkNewAfterChars int
	// ChunkCombineUnderChars is the small-chunk threshold; zero selects the default.
	ChunkCombineUnderChars int
	// MinImageBytes is the image payload floor; zero selects the default.
	MinImageBytes int
	// MaxContextTokens bounds the answer prompt size.
	MaxContextTokens int

	// Host is the HTTP bind address; empty keeps the flag default.
	Host string
	// Port is the HTTP port; zero keeps the flag default.
	Port int
	// RateLimitRPS is the per-IP request rate on the expensive endpoints.
	RateLimitRPS float64
}

// FromEnv resolves Settings from environment variables, applying defaults.
// Call it after LoadDotEnv and Load so every layer has been applied.
func FromEnv() Settings {
	return Settings{
		UploadsDir:             getEnvOrDefault("STUDYAI_UPLOADS_DIR", "uploads"),
		LedgerDB:               os.Getenv("STUDYAI_LEDGER_DB"),
		VectorBackend:          strings.ToLower(getEnvOrDefault("VECTOR_BACKEND", "qdrant")),
		QdrantHost:             getEnvOrDefault("QDRANT_HOST", "localhost"),
		QdrantPort:             getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection:       getEnvOrDefault("QDRANT_COLLECTION", "studyai"),
		QdrantAPIKey:           os.Getenv("QDRANT_API_KEY"),
		QdrantTLS:              os.Getenv("QDRANT_TLS") == "true",
		PgVectorDSN:            os.Getenv("PGVECTOR_DSN"),
		UnstructuredURL:        getEnvOrDefault("UNSTRUCTURED_URL", "http://localhost:8000"),
		UnstructuredAPIKey:     os.Getenv("UNSTRUCTURED_API_KEY"),
		Strategies:             splitList(getEnvOrDefault("UNSTRUCTURED_STRATEGIES", "hi_res,fast,local")),
		GateSize:               getEnvInt("STUDYAI_GATE_SIZE", 3),
		GateRPM:                getEnvInt("STUDYAI_GATE_RPM", 0),
		SummaryBatchSize:       getEnvInt("STUDYAI_SUMMARY_BATCH_SIZE", 5),
		SummaryWorkers:         getEnvInt("STUDYAI_SUMMARY_WORKERS", 2),
		EmbedBatchSize:         getEnvInt("STUDYAI_EMBED_BATCH_SIZE", 32),
		ChunkMaxChars:          getEnvInt("STUDYAI_CHUNK_MAX_CHARS", 0),
		ChunkNewAfterChars:     getEnvInt("STUDYAI_CHUNK_NEW_AFTER_CHARS", 0),
		ChunkCombineUnderChars: getEnvInt("STUDYAI_CHUNK_COMBINE_UNDER_CHARS", 0),
		MinImageBytes:          getEnvInt("STUDYAI_MIN_IMAGE_BYTES", 0),
		MaxContextTokens:       getEnvInt("STUDYAI_MAX_CONTEXT_TOKENS", 0),
		Host:                   os.Getenv("STUDYAI_HOST"),
		Port:                   getEnvInt("STUDYAI_PORT", 0),
		RateLimitRPS:           getEnvFloat("STUDYAI_RATE_LIMIT_RPS", 0),
	}
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// getEnvFloat returns the float value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
