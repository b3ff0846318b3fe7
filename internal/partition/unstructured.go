package partition

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/54b3r/studyai-go/internal/document"
)

// defaultUnstructuredURL is the local Unstructured API address.
const defaultUnstructuredURL = "http://localhost:8000"

// UnstructuredConfig holds the settings for an UnstructuredClient.
type UnstructuredConfig struct {
	// URL is the API base URL (default: http://localhost:8000).
	URL string

	// APIKey is sent as the unstructured-api-key header when set.
	APIKey string

	// Timeout bounds a single partition request (default: 10m; hi_res on a
	// long PDF is slow).
	Timeout time.Duration
}

// UnstructuredClient partitions PDFs through the Unstructured partition
// HTTP API. It is safe for concurrent use.
type UnstructuredClient struct {
	// endpoint is the full partition URL.
	endpoint string

	// apiKey is the optional API key.
	apiKey string

	// client is the shared HTTP client.
	client *http.Client
}

// NewUnstructuredClient constructs an UnstructuredClient.
func NewUnstructuredClient(cfg UnstructuredConfig) *UnstructuredClient {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = defaultUnstructuredURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &UnstructuredClient{
		endpoint: base + "/general/v0/general",
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}
}

// unstructuredElement is one element of the API response.
type unstructuredElement struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	Metadata struct {
		TextAsHTML  string `json:"text_as_html"`
		ImageBase64 string `json:"image_base64"`
		PageNumber  int    `json:"page_number"`
	} `json:"metadata"`
}

// Partition uploads the file and converts the returned elements.
func (c *UnstructuredClient) Partition(ctx context.Context, path string, strategy Strategy) ([]document.Element, error) {
	body, contentType, err := c.form(path, strategy)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("unstructured: create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("unstructured-api-key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unstructured: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unstructured: %s strategy returned HTTP %d: %s",
			strategy, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var raw []unstructuredElement
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("unstructured: decode response: %w", err)
	}
	return convert(raw), nil
}

// form builds the multipart request body for path.
func (c *UnstructuredClient) form(path string, strategy Strategy) (io.Reader, string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the session directory listing
	if err != nil {
		return nil, "", fmt.Errorf("unstructured: open %q: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return nil, "", fmt.Errorf("unstructured: create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("unstructured: copy file: %w", err)
	}

	fields := map[string]string{"strategy": string(strategy)}
	if strategy == StrategyHiRes {
		fields["pdf_infer_table_structure"] = "true"
		fields["extract_image_block_types"] = `["Image"]`
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("unstructured: write field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("unstructured: close form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// convert maps API elements onto document elements, preserving order.
func convert(raw []unstructuredElement) []document.Element {
	out := make([]document.Element, 0, len(raw))
	for i, r := range raw {
		out = append(out, document.Element{
			Kind:        document.KindFromCategory(r.Type),
			Text:        r.Text,
			HTML:        r.Metadata.TextAsHTML,
			ImageBase64: r.Metadata.ImageBase64,
			Category:    r.Type,
			Page:        r.Metadata.PageNumber,
			Index:       i,
		})
	}
	return out
}
