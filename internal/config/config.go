// Package config provides layered configuration for studyai.
// Configuration is loaded with a layered precedence:
// defaults → .env file → YAML file → env vars.
// Environment variables always win; neither the .env file nor the YAML
// file overrides a variable that is already set.
//
// YAML file search order:
//  1. --config CLI flag (explicit path)
//  2. STUDYAI_CONFIG environment variable
//  3. ~/.studyai/config.yaml
//  4. ./studyai.yaml
//
// If no file is found the system runs entirely from env vars.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the chat model used for summaries and answers.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore configures where indexed records live.
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Partition configures the document partitioning service.
	Partition PartitionConfig `yaml:"partition"`

	// Ingestion configures uploads, the ledger, and summarization.
	Ingestion IngestionConfig `yaml:"ingestion"`

	// Limits configures the process-wide generation gate.
	Limits LimitsConfig `yaml:"limits"`

	// Server configures the HTTP server.
	Server ServerConfig `yaml:"server"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds chat model settings.
type ModelConfig struct {
	// Provider selects the backend: gemini, ollama, openai, azure, ark.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature controls response randomness (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// Gemini holds Google Gemini settings.
	Gemini GeminiConfig `yaml:"gemini"`
	// Ollama holds Ollama settings.
	Ollama OllamaConfig `yaml:"ollama"`
	// OpenAI holds OpenAI settings.
	OpenAI OpenAIConfig `yaml:"openai"`
	// Azure holds Azure OpenAI settings.
	Azure AzureConfig `yaml:"azure"`
	// Ark holds Volcano Engine Ark settings.
	Ark ArkConfig `yaml:"ark"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the Gemini model name.
	Model string `yaml:"model"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	// Host is the Ollama API endpoint.
	Host string `yaml:"host"`
	// Model is the Ollama model name.
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Model is the OpenAI model name.
	Model string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the Azure OpenAI resource endpoint.
	Endpoint string `yaml:"endpoint"`
	// Deployment is the Azure OpenAI deployment name.
	Deployment string `yaml:"deployment"`
	// APIVersion is the Azure OpenAI API version.
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcano Engine Ark settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey string `yaml:"api_key"`
	// BaseURL overrides the Ark endpoint.
	BaseURL string `yaml:"base_url"`
	// Model is the Ark model or endpoint id.
	Model string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	// Provider selects the embedding backend (gemini, ollama, openai, azure).
	Provider string `yaml:"provider"`
	// Model is the embedding model name.
	Model string `yaml:"model"`
	// Dimensions overrides the embedding vector size.
	Dimensions int `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey string `yaml:"api_key"`
	// Endpoint is the embedding API endpoint.
	Endpoint string `yaml:"endpoint"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	// Backend is qdrant, pgvector, or memory.
	Backend string `yaml:"backend"`
	// Qdrant holds Qdrant settings.
	Qdrant QdrantConfig `yaml:"qdrant"`
	// PgVector holds PostgreSQL/pgvector settings.
	PgVector PgVectorConfig `yaml:"pgvector"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	// Host is the Qdrant server hostname.
	Host string `yaml:"host"`
	// Port is the Qdrant gRPC port.
	Port int `yaml:"port"`
	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	// TLS enables TLS for the Qdrant connection.
	TLS bool `yaml:"tls"`
}

// PgVectorConfig holds PostgreSQL/pgvector settings.
type PgVectorConfig struct {
	// DSN is the connection string. Prefer env var PGVECTOR_DSN.
	DSN string `yaml:"dsn"`
}

// PartitionConfig holds document partitioning settings.
type PartitionConfig struct {
	// URL is the Unstructured API base URL.
	URL string `yaml:"url"`
	// APIKey is the Unstructured API key. Prefer env var UNSTRUCTURED_API_KEY.
	APIKey string `yaml:"api_key"`
	// Strategies is the ordered strategy list, e.g. [hi_res, fast, local].
	Strategies []string `yaml:"strategies"`
}

// IngestionConfig holds ingestion settings.
type IngestionConfig struct {
	// UploadsDir is the root holding one directory per session.
	UploadsDir string `yaml:"uploads_dir"`
	// LedgerDB is the SQLite ledger path. Set to "disabled" to disable.
	LedgerDB string `yaml:"ledger_db"`
	// SummaryBatchSize is the number of chunks per summary call.
	SummaryBatchSize int `yaml:"summary_batch_size"`
	// SummaryWorkers is the number of summary batches in flight per topic.
	SummaryWorkers int `yaml:"summary_workers"`
	// EmbedBatchSize is the number of records per embedding call.
	EmbedBatchSize int `yaml:"embed_batch_size"`
	// ChunkMaxChars is the hard chunk size ceiling in characters.
	ChunkMaxChars int `yaml:"chunk_max_chars"`
	// ChunkNewAfterChars is the soft size at which a chunk is closed.
	ChunkNewAfterChars int `yaml:"chunk_new_after_chars"`
	// ChunkCombineUnderChars is the small-chunk merge threshold.
	ChunkCombineUnderChars int `yaml:"chunk_combine_under_chars"`
	// MinImageBytes is the base64 length an image must exceed to be kept.
	MinImageBytes int `yaml:"min_image_bytes"`
}

// LimitsConfig holds the generation gate settings.
type LimitsConfig struct {
	// GateSize bounds concurrent generation calls process-wide.
	GateSize int `yaml:"gate_size"`
	// GateRPM caps generation calls per minute. Zero disables the cap.
	GateRPM int `yaml:"gate_rpm"`
	// MaxContextTokens bounds the answer prompt size.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the bind address.
	Host string `yaml:"host"`
	// Port is the TCP port.
	Port int `yaml:"port"`
	// RateLimitRPS is the per-client request rate on the ask endpoint.
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is the log output format: json, text.
	Format string `yaml:"format"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	// PublicKey is the Langfuse public key. Prefer env var LANGFUSE_PUBLIC_KEY.
	PublicKey string `yaml:"public_key"`
	// SecretKey is the Langfuse secret key. Prefer env var LANGFUSE_SECRET_KEY.
	SecretKey string `yaml:"secret_key"`
	// Host is the Langfuse API host.
	Host string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"VECTOR_BACKEND", func(c *Config) string { return c.VectorStore.Backend }},
	{"QDRANT_HOST", func(c *Config) string { return c.VectorStore.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.VectorStore.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.VectorStore.Qdrant.Collection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.VectorStore.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.VectorStore.Qdrant.TLS) }},
	{"PGVECTOR_DSN", func(c *Config) string { return c.VectorStore.PgVector.DSN }},
	{"UNSTRUCTURED_URL", func(c *Config) string { return c.Partition.URL }},
	{"UNSTRUCTURED_API_KEY", func(c *Config) string { return c.Partition.APIKey }},
	{"UNSTRUCTURED_STRATEGIES", func(c *Config) string { return strings.Join(c.Partition.Strategies, ",") }},
	{"STUDYAI_UPLOADS_DIR", func(c *Config) string { return c.Ingestion.UploadsDir }},
	{"STUDYAI_LEDGER_DB", func(c *Config) string { return c.Ingestion.LedgerDB }},
	{"STUDYAI_SUMMARY_BATCH_SIZE", func(c *Config) string { return intStr(c.Ingestion.SummaryBatchSize) }},
	{"STUDYAI_SUMMARY_WORKERS", func(c *Config) string { return intStr(c.Ingestion.SummaryWorkers) }},
	{"STUDYAI_EMBED_BATCH_SIZE", func(c *Config) string { return intStr(c.Ingestion.EmbedBatchSize) }},
	{"STUDYAI_CHUNK_MAX_CHARS", func(c *Config) string { return intStr(c.Ingestion.ChunkMaxChars) }},
	{"STUDYAI_CHUNK_NEW_AFTER_CHARS", func(c *Config) string { return intStr(c.Ingestion.ChunkNewAfterChars) }},
	{"STUDYAI_CHUNK_COMBINE_UNDER_CHARS", func(c *Config) string { return intStr(c.Ingestion.ChunkCombineUnderChars) }},
	{"STUDYAI_MIN_IMAGE_BYTES", func(c *Config) string { return intStr(c.Ingestion.MinImageBytes) }},
	{"STUDYAI_GATE_SIZE", func(c *Config) string { return intStr(c.Limits.GateSize) }},
	{"STUDYAI_GATE_RPM", func(c *Config) string { return intStr(c.Limits.GateRPM) }},
	{"STUDYAI_MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Limits.MaxContextTokens) }},
	{"STUDYAI_HOST", func(c *Config) string { return c.Server.Host }},
	{"STUDYAI_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"STUDYAI_RATE_LIMIT_RPS", func(c *Config) string { return float64Str(c.Server.RateLimitRPS) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// LoadDotEnv loads KEY=VALUE pairs from path (default ".env") into the
// process environment without overriding variables that are already set.
// A missing file is not an error. Returns whether a file was loaded.
func LoadDotEnv(path string, log *slog.Logger) (bool, error) {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := godotenv.Load(path); err != nil {
		return false, fmt.Errorf("config: failed to load %s: %w", path, err)
	}
	log.Debug("config: loaded dotenv file", slog.String("path", path))
	return true, nil
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied config path
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		if err := os.Setenv(m.envKey, yamlVal); err != nil {
			return "", fmt.Errorf("config: failed to set %s: %w", m.envKey, err)
		}
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("STUDYAI_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".studyai", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("studyai.yaml"); err == nil {
		return "studyai.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	return float64Str(float64(v))
}

// float64Str converts a float64 to string, returning "" for zero values.
func float64Str(v float64) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}
