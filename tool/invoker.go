package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Invoker performs the HTTP call behind one external tool invocation. The
// argument payload is opaque to it; schema validation belongs to the handler.
type Invoker struct {
	baseURL    string
	httpClient *http.Client
}

// InvokerOption configures the Invoker.
type InvokerOption func(*Invoker)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) InvokerOption {
	return func(i *Invoker) {
		i.httpClient = c
	}
}

// NewInvoker creates an Invoker addressing handlers under baseURL, so tool
// "name" resolves to POST <baseURL>/tools/<name>.
func NewInvoker(baseURL string, opts ...InvokerOption) *Invoker {
	inv := &Invoker{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(inv)
	}
	return inv
}

// Invoke posts args to the handler for name and returns its JSON response
// verbatim. Unreachable handlers, non-2xx statuses, and non-JSON bodies fail
// the invocation; there is no retry.
func (i *Invoker) Invoke(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	endpoint := fmt.Sprintf("%s/tools/%s", i.baseURL, name)

	body := args
	if len(body) == 0 {
		body = json.RawMessage(`{}`)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tool %s: %w", name, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tool %s: reading response: %w", name, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("tool %s: status %d: %s", name, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if !json.Valid(respBody) {
		return nil, fmt.Errorf("tool %s: handler returned malformed JSON", name)
	}

	return respBody, nil
}
