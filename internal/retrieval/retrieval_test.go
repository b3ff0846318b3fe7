package retrieval

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/studyai-go/internal/guidance"
	"github.com/54b3r/studyai-go/internal/metrics"
	"github.com/54b3r/studyai-go/internal/rag"
)

// keywordEmbedder places text on three axes by keyword so similarity is
// predictable in tests.
type keywordEmbedder struct{}

func (keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		v := []float32{0.01, 0.01, 0.01}
		if strings.Contains(t, "photosynthesis") {
			v[0] = 1
		}
		if strings.Contains(t, "cell") {
			v[1] = 1
		}
		if strings.Contains(t, "gravity") {
			v[2] = 1
		}
		out[i] = v
	}
	return out, nil
}

// fakeGenerator records the prompts it receives.
type fakeGenerator struct {
	mu    sync.Mutex
	calls [][]*schema.Message
	resp  string
	err   error
}

func (f *fakeGenerator) Generate(_ context.Context, msgs []*schema.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, msgs)
	return f.resp, f.err
}

func (f *fakeGenerator) userPrompt(t *testing.T) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) != 1 {
		t.Fatalf("generator called %d times, want 1", len(f.calls))
	}
	return f.calls[0][1].Content
}

// failingSearcher embeds fine but every search fails.
type failingSearcher struct{}

func (failingSearcher) EmbedQuery(context.Context, string) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

func (failingSearcher) Search(context.Context, []float32, rag.SearchParams) ([]rag.Document, error) {
	return nil, errors.New("qdrant unavailable")
}

func seededStore(t *testing.T) *rag.MemoryStore {
	t.Helper()
	docs := []rag.Document{
		{ID: "1", Content: "TOPIC: Photosynthesis\n\nPhotosynthesis converts light.", Source: "bio.pdf",
			Metadata: map[string]string{rag.MetaSession: "s1", rag.MetaSource: "bio.pdf"}},
		{ID: "2", Content: "TOPIC: Cells\n\nThe cell is the unit of life.", Source: "bio.pdf",
			Metadata: map[string]string{rag.MetaSession: "s1", rag.MetaSource: "bio.pdf"}},
		{ID: "3", Content: "TOPIC: Gravity\n\nGravity attracts mass.", Source: "phys.pdf",
			Metadata: map[string]string{rag.MetaSession: "s2", rag.MetaSource: "phys.pdf"}},
	}
	texts := make([]string, len(docs))
	for i, d := range docs {
		texts[i] = d.Content
	}
	vecs, _ := keywordEmbedder{}.Embed(t.Context(), texts)
	store := rag.NewMemoryStore()
	if err := store.Upsert(t.Context(), docs, vecs); err != nil {
		t.Fatalf("seed store: %v", err)
	}
	return store
}

func newAssembler(t *testing.T, store rag.VectorStore, gen Generator, cfg Config, m *metrics.Pipeline) *Assembler {
	t.Helper()
	r, err := rag.NewRetriever(keywordEmbedder{}, store)
	if err != nil {
		t.Fatalf("NewRetriever: %v", err)
	}
	a, err := New(r, gen, cfg, m)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return a
}

func TestAnswer_EmptyStoreSkipsGeneration(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	gen := &fakeGenerator{resp: "unused"}
	a := newAssembler(t, rag.NewMemoryStore(), gen, Config{}, metrics.NewPipeline(reg))

	got, err := a.Answer(t.Context(), Request{Query: "What is photosynthesis?", Session: "s1"})
	if err != nil {
		t.Fatalf("Answer() unexpected error: %v", err)
	}
	if got.Response != NoInformationResponse {
		t.Errorf("Response = %q, want NoInformationResponse", got.Response)
	}
	if len(gen.calls) != 0 {
		t.Errorf("generator called %d times, want 0", len(gen.calls))
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() == "studyai_retrieval_answers_total" {
			for _, m := range mf.GetMetric() {
				if m.GetLabel()[0].GetValue() == "no_information" && m.GetCounter().GetValue() == 1 {
					found = true
				}
			}
		}
	}
	if !found {
		t.Error(`studyai_retrieval_answers_total{outcome="no_information"} not recorded`)
	}
}

func TestAnswer_SessionStage(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: "Photosynthesis is..."}
	a := newAssembler(t, seededStore(t), gen, Config{UploadsDir: t.TempDir()}, nil)

	got, err := a.Answer(t.Context(), Request{Query: "explain photosynthesis", Session: "s1", Language: "Hindi"})
	if err != nil {
		t.Fatalf("Answer() unexpected error: %v", err)
	}
	if got.Stage != StageSession || got.Response != "Photosynthesis is..." {
		t.Errorf("Answer() = %+v", got)
	}
	for _, d := range got.Sources {
		if d.Metadata[rag.MetaSession] != "s1" {
			t.Errorf("session stage returned record from %q", d.Metadata[rag.MetaSession])
		}
	}

	prompt := gen.userPrompt(t)
	if !strings.HasPrefix(prompt, "USER QUESTION: explain photosynthesis\n") {
		t.Errorf("prompt prefix wrong: %q", prompt[:40])
	}
	if !strings.Contains(prompt, "--- SOURCE CHUNK 1 ---\nTOPIC: Photosynthesis") {
		t.Error("most relevant record should be source chunk 1")
	}
	if !strings.Contains(prompt, "mix of Hindi and English") {
		t.Error("hindi language rule missing")
	}
	if strings.Contains(prompt, "IMPORTANT TEACHER GUIDANCE") {
		t.Error("guidance block present without a guidance file")
	}
	if gen.calls[0][0].Content != SystemPrompt {
		t.Error("first message should be the system prompt")
	}
}

func TestAnswer_GlobalFallback(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: "ok"}
	a := newAssembler(t, seededStore(t), gen, Config{}, nil)

	got, err := a.Answer(t.Context(), Request{Query: "gravity", Session: "unknown-session"})
	if err != nil {
		t.Fatalf("Answer() unexpected error: %v", err)
	}
	if got.Stage != StageGlobal {
		t.Errorf("Stage = %q, want %q", got.Stage, StageGlobal)
	}
	if len(got.Sources) == 0 || len(got.Sources) > 5 {
		t.Errorf("global stage returned %d sources, want 1..5", len(got.Sources))
	}
}

func TestAnswer_Guidance(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "s1"), 0o750); err != nil {
		t.Fatal(err)
	}
	body := `{"assessment_focus":"MCQ","student_gaps":"light reactions"}`
	if err := os.WriteFile(filepath.Join(root, "s1", guidance.FileName), []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("from file", func(t *testing.T) {
		t.Parallel()
		gen := &fakeGenerator{resp: "ok"}
		a := newAssembler(t, seededStore(t), gen, Config{UploadsDir: root}, nil)
		if _, err := a.Answer(t.Context(), Request{Query: "photosynthesis", Session: "s1"}); err != nil {
			t.Fatalf("Answer() unexpected error: %v", err)
		}
		prompt := gen.userPrompt(t)
		if !strings.Contains(prompt, "- Student Knowledge Gaps to prioritize: light reactions") {
			t.Errorf("guidance block missing from prompt:\n%s", prompt)
		}
	})

	t.Run("override", func(t *testing.T) {
		t.Parallel()
		gen := &fakeGenerator{resp: "ok"}
		a := newAssembler(t, seededStore(t), gen, Config{UploadsDir: root}, nil)
		req := Request{Query: "photosynthesis", Session: "s1", Guidance: &guidance.Guidance{DocumentText: "use diagrams"}}
		if _, err := a.Answer(t.Context(), req); err != nil {
			t.Fatalf("Answer() unexpected error: %v", err)
		}
		prompt := gen.userPrompt(t)
		if !strings.Contains(prompt, "use diagrams") || strings.Contains(prompt, "light reactions") {
			t.Errorf("override not applied:\n%s", prompt)
		}
	})
}

func TestAnswer_Errors(t *testing.T) {
	t.Parallel()

	t.Run("empty query", func(t *testing.T) {
		t.Parallel()
		a := newAssembler(t, rag.NewMemoryStore(), &fakeGenerator{}, Config{}, nil)
		if _, err := a.Answer(t.Context(), Request{Query: "  "}); !errors.Is(err, ErrEmptyQuery) {
			t.Errorf("error = %v, want ErrEmptyQuery", err)
		}
	})

	t.Run("invalid session", func(t *testing.T) {
		t.Parallel()
		a := newAssembler(t, rag.NewMemoryStore(), &fakeGenerator{}, Config{}, nil)
		_, err := a.Answer(t.Context(), Request{Query: "q", Session: "../x"})
		if !errors.Is(err, guidance.ErrInvalidSession) {
			t.Errorf("error = %v, want ErrInvalidSession", err)
		}
	})

	t.Run("store error propagates", func(t *testing.T) {
		t.Parallel()
		gen := &fakeGenerator{}
		a, err := New(failingSearcher{}, gen, Config{}, nil)
		if err != nil {
			t.Fatal(err)
		}
		_, err = a.Answer(t.Context(), Request{Query: "q", Session: "s1"})
		if err == nil || !strings.Contains(err.Error(), "qdrant unavailable") {
			t.Errorf("error = %v, want store error", err)
		}
		if len(gen.calls) != 0 {
			t.Error("generator must not be called after a store error")
		}
	})

	t.Run("generation error propagates", func(t *testing.T) {
		t.Parallel()
		gen := &fakeGenerator{err: errors.New("quota exhausted")}
		a := newAssembler(t, seededStore(t), gen, Config{}, nil)
		if _, err := a.Answer(t.Context(), Request{Query: "cell", Session: "s1"}); err == nil {
			t.Error("Answer() expected generation error")
		}
	})
}

func TestAnswer_TrimsToBudget(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{resp: "ok"}
	a := newAssembler(t, seededStore(t), gen, Config{MaxContextTokens: 1}, nil)

	got, err := a.Answer(t.Context(), Request{Query: "photosynthesis cell", Session: "s1"})
	if err != nil {
		t.Fatalf("Answer() unexpected error: %v", err)
	}
	if len(got.Sources) != 1 {
		t.Errorf("len(Sources) = %d, want 1 after trimming", len(got.Sources))
	}
	if strings.Contains(gen.userPrompt(t), "SOURCE CHUNK 2") {
		t.Error("trimmed block still present in prompt")
	}
}

func TestComposePrompt(t *testing.T) {
	t.Parallel()

	blocks := SourceBlocks([]rag.Document{{Content: "alpha"}, {Content: "beta"}})
	if blocks[1] != "\n--- SOURCE CHUNK 2 ---\nbeta\n" {
		t.Errorf("SourceBlocks()[1] = %q", blocks[1])
	}

	msgs := ComposePrompt("why?", blocks, "klingon", "")
	if len(msgs) != 2 || msgs[0].Role != schema.System || msgs[1].Role != schema.User {
		t.Fatalf("ComposePrompt() roles wrong: %+v", msgs)
	}
	user := msgs[1].Content
	if strings.Contains(user, "LANGUAGE RULE") {
		t.Error("unknown language should default to English without a rule")
	}
	if !strings.HasSuffix(user, "rules provided in your system prompt.") {
		t.Errorf("user prompt should end with the instruction sentence, got %q", user[len(user)-40:])
	}
	if !strings.Contains(ComposePrompt("q", nil, "TELUGU", "")[1].Content, "mix of Telugu and English") {
		t.Error("telugu rule missing")
	}
}

func TestNormalizeLanguage(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"":         LanguageEnglish,
		"English":  LanguageEnglish,
		" hindi ":  LanguageHindi,
		"TELUGU":   LanguageTelugu,
		"japanese": LanguageEnglish,
	}
	for in, want := range cases {
		if got := NormalizeLanguage(in); got != want {
			t.Errorf("NormalizeLanguage(%q) = %q, want %q", in, got, want)
		}
	}
}
