// Package upstream holds the HTTP plumbing shared by the provider clients:
// bounded timeouts, instrumented transports and uniform error mapping.
package upstream

import (
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/metrics"
)

// DefaultTimeout bounds every provider call when no timeout is configured.
const DefaultTimeout = 20 * time.Second

// MaxPages caps cursor pagination per series.
const MaxPages = 20

const (
	maxErrorBody    = 512
	maxResponseBody = 16 << 20
)

// errorBodyPolicy strips markup from upstream error bodies; consumer web
// endpoints answer failures with full HTML pages.
var errorBodyPolicy = bluemonday.StrictPolicy()

// NewHTTPClient returns a client for provider with the given timeout and an
// instrumented transport layered over base (http.DefaultTransport when nil).
func NewHTTPClient(provider model.ProviderID, timeout time.Duration, m *metrics.Metrics, base http.RoundTripper) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if base == nil {
		base = http.DefaultTransport
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: m.InstrumentTransport(string(provider), base),
	}
}

// CheckResponse maps a non-2xx response to a *model.FetchError carrying a
// sanitized excerpt of the body. The body is not closed.
func CheckResponse(resp *http.Response, provider model.ProviderID, endpoint string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4*maxErrorBody))
	return &model.FetchError{
		Provider: provider,
		Endpoint: endpoint,
		Status:   resp.StatusCode,
		Body:     SanitizeBody(raw),
	}
}

// SanitizeBody removes markup, collapses whitespace and truncates raw to a
// short single-line excerpt.
func SanitizeBody(raw []byte) string {
	text := html.UnescapeString(string(errorBodyPolicy.SanitizeBytes(raw)))
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxErrorBody {
		text = text[:maxErrorBody] + "..."
	}
	return text
}

// Do sends req with client and decodes a 2xx JSON body into v (skipped when v
// is nil). Transport failures and non-2xx statuses become *model.FetchError.
// The returned response has its body closed and is only useful for headers.
func Do(client *http.Client, req *http.Request, provider model.ProviderID, endpoint string, v any) (*http.Response, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, &model.FetchError{Provider: provider, Endpoint: endpoint, Err: err}
	}
	defer func() {
		// Caching transports only store a body read to EOF.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		resp.Body.Close()
	}()

	if err := CheckResponse(resp, provider, endpoint); err != nil {
		return resp, err
	}

	if v == nil {
		return resp, nil
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(v); err != nil {
		return resp, &model.FetchError{
			Provider: provider,
			Endpoint: endpoint,
			Status:   resp.StatusCode,
			Err:      fmt.Errorf("decode response: %w", err),
		}
	}
	return resp, nil
}
