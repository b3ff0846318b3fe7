package audit

import (
	"bytes"
	"log/slog"
	"os"
	"strings"
	"testing"
)

func TestSanitiseKey(t *testing.T) {
	t.Parallel()
	tests := []struct {
		key, value, want string
	}{
		{"GOOGLE_API_KEY", "AIza-secret", "set"},
		{"GOOGLE_API_KEY", "", "unset"},
		{"PGVECTOR_DSN", "postgres://u:p@h/db", "set"},
		{"MODEL_PROVIDER", "gemini", "gemini"},
		{"MODEL_PROVIDER", "", "unset"},
	}
	for _, tc := range tests {
		if got := SanitiseKey(tc.key, tc.value); got != tc.want {
			t.Errorf("SanitiseKey(%q, %q) = %q, want %q", tc.key, tc.value, got, tc.want)
		}
	}
}

func TestRedactURL(t *testing.T) {
	t.Parallel()
	if got := RedactURL("postgres://study:hunter2@db:5432/study"); strings.Contains(got, "hunter2") {
		t.Errorf("RedactURL leaked password: %q", got)
	}
	if got := RedactURL(""); got != "unset" {
		t.Errorf("RedactURL(\"\") = %q, want unset", got)
	}
	if got := RedactURL("host=db password=x"); got != "set" {
		t.Errorf("RedactURL(keyword DSN) = %q, want set", got)
	}
}

func TestSanitiseConfigPath(t *testing.T) {
	t.Parallel()
	if got := sanitiseConfigPath(""); got != "none" {
		t.Errorf("expected 'none', got %q", got)
	}
	if got := sanitiseConfigPath("/tmp/config.yaml"); got != "/tmp/config.yaml" {
		t.Errorf("expected '/tmp/config.yaml', got %q", got)
	}
	home, err := os.UserHomeDir()
	if err == nil {
		p := home + "/.studyai/config.yaml"
		if got := sanitiseConfigPath(p); got != "~/.studyai/config.yaml" {
			t.Errorf("expected '~/.studyai/config.yaml', got %q", got)
		}
	}
}

func TestLogCommandStart_RedactsSecrets(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "AIza-very-secret")
	t.Setenv("MODEL_PROVIDER", "gemini")

	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	LogCommandStart(log, "ingest", "")

	out := buf.String()
	if strings.Contains(out, "AIza-very-secret") {
		t.Fatalf("secret value leaked into audit log: %s", out)
	}
	for _, want := range []string{`"GOOGLE_API_KEY":"set"`, `"MODEL_PROVIDER":"gemini"`, `"command":"ingest"`} {
		if !strings.Contains(out, want) {
			t.Errorf("audit log missing %s: %s", want, out)
		}
	}
}
