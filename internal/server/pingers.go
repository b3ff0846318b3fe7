package server

import (
	"context"
	"fmt"
	"net/http"
)

// FuncPinger adapts a ping function, such as a vector store's or the
// ledger's Ping method, to the Pinger interface.
type FuncPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// ping is the probe.
	ping func(ctx context.Context) error
}

// NewFuncPinger constructs a FuncPinger labelled name.
func NewFuncPinger(name string, ping func(ctx context.Context) error) *FuncPinger {
	return &FuncPinger{name: name, ping: ping}
}

// Name returns the dependency label used in readiness responses.
func (p *FuncPinger) Name() string { return p.name }

// Ping runs the wrapped probe.
func (p *FuncPinger) Ping(ctx context.Context) error {
	if err := p.ping(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// HTTPPinger probes an HTTP dependency (the Unstructured partition API,
// an Ollama host) with a GET request. Any status below 500 counts as
// reachable, so probes never consume model tokens.
type HTTPPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// url is the probed endpoint.
	url string
	// client performs the request.
	client *http.Client
}

// NewHTTPPinger constructs an HTTPPinger. A nil client uses
// http.DefaultClient.
func NewHTTPPinger(name, url string, client *http.Client) *HTTPPinger {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPPinger{name: name, url: url, client: client}
}

// Name returns the dependency label used in readiness responses.
func (p *HTTPPinger) Name() string { return p.name }

// Ping issues GET url and checks the status code.
func (p *HTTPPinger) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("unhealthy status %d", resp.StatusCode)
	}
	return nil
}
