// Package tracing wires optional Langfuse tracing into every eino model
// call made by the summarizer and the answer generator.
package tracing

import (
	"log/slog"
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// Config holds the Langfuse connection settings.
type Config struct {
	// Host is the Langfuse API host (LANGFUSE_HOST).
	Host string
	// PublicKey is the project public key (LANGFUSE_PUBLIC_KEY).
	PublicKey string
	// SecretKey is the project secret key (LANGFUSE_SECRET_KEY).
	SecretKey string
}

// ConfigFromEnv reads the Langfuse settings from environment variables.
func ConfigFromEnv() Config {
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = "http://localhost:3000"
	}
	return Config{
		Host:      host,
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup initialises the Langfuse callback handler when cfg is enabled.
// Returns a flush function that must be called before process exit so all
// traces are sent. When disabled, the handler and flush are nil.
func Setup(cfg Config) (callbacks.Handler, func(), bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
		Name:      "studyai",
	})
	return handler, flusher, true
}

// Install registers the Langfuse handler globally when configured and
// returns the flush function to defer. The returned function is never nil.
func Install(log *slog.Logger) func() {
	handler, flush, ok := Setup(ConfigFromEnv())
	if !ok {
		log.Debug("langfuse tracing disabled", slog.String("reason", "LANGFUSE_PUBLIC_KEY or LANGFUSE_SECRET_KEY not set"))
		return func() {}
	}
	callbacks.AppendGlobalHandlers(handler)
	log.Info("langfuse tracing enabled")
	return flush
}
