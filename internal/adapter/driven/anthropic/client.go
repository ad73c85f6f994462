// Package anthropic implements the AnthropicClient port against the
// Anthropic developer API.
package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.anthropic.com"

// APIVersion is sent as the anthropic-version header on every request.
const APIVersion = "2023-06-01"

// ProbeModel is the model addressed by the one-token probe request.
const ProbeModel = "claude-sonnet-4-20250514"

// DefaultRateLimitTTL is how long probed rate limits are reused per key.
const DefaultRateLimitTTL = 60 * time.Second

const (
	messagesPath   = "/v1/messages"
	costReportPath = "/v1/organizations/cost_report"

	// statusOverloaded is returned when the API is temporarily overloaded.
	statusOverloaded = 529
)

// Compile-time interface satisfaction check.
var _ driven.AnthropicClient = (*Client)(nil)

type rateLimitEntry struct {
	limits  model.RateLimits
	expires time.Time
}

// Client implements driven.AnthropicClient.
type Client struct {
	http    *http.Client
	baseURL string
	now     func() time.Time

	mu         sync.Mutex
	rateLimits map[string]rateLimitEntry
}

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the clock used for rate-limit expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		http:       httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		now:        time.Now,
		rateLimits: make(map[string]rateLimitEntry),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ValidateKey sends a one-token message. Only 401 and 403 reject the key.
// Any other 4xx, including 429, and 529 are answered after authentication
// succeeded, so the key is accepted. Remaining 5xx statuses are errors.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) (bool, error) {
	resp, err := c.probe(ctx, apiKey)
	if err != nil {
		return false, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		slog.Debug("anthropic key rejected", "status", resp.StatusCode)
		return false, nil
	case resp.StatusCode < http.StatusInternalServerError, resp.StatusCode == statusOverloaded:
		if resp.StatusCode >= http.StatusBadRequest {
			slog.Debug("anthropic key accepted on error status", "status", resp.StatusCode)
		}
		return true, nil
	default:
		return false, &model.FetchError{
			Provider: model.ProviderAnthropic,
			Endpoint: messagesPath,
			Status:   resp.StatusCode,
		}
	}
}

// FetchRateLimits reads the rate-limit headers of a probe response. A 2xx is
// read as is; 429 and 529 count only when they carry at least one category.
// Every other status is a *model.FetchError. Non-empty results are reused per
// key for DefaultRateLimitTTL.
func (c *Client) FetchRateLimits(ctx context.Context, apiKey string) (model.RateLimits, error) {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.rateLimits[apiKey]
	c.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.limits, nil
	}

	resp, err := c.probe(ctx, apiKey)
	if err != nil {
		return model.RateLimits{}, err
	}

	limits := ParseRateLimitHeaders(resp.Header)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
	case (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == statusOverloaded) && !limits.IsEmpty():
	default:
		return model.RateLimits{}, &model.FetchError{
			Provider: model.ProviderAnthropic,
			Endpoint: messagesPath,
			Status:   resp.StatusCode,
		}
	}

	if !limits.IsEmpty() {
		c.mu.Lock()
		c.rateLimits[apiKey] = rateLimitEntry{limits: limits, expires: now.Add(DefaultRateLimitTTL)}
		c.mu.Unlock()
	}

	return limits, nil
}

// ParseRateLimitHeaders extracts the anthropic-ratelimit-* categories from h.
// A category is present only when its -limit header is.
func ParseRateLimitHeaders(h http.Header) model.RateLimits {
	return model.RateLimits{
		Requests:     parseCategory(h, "requests"),
		InputTokens:  parseCategory(h, "input-tokens"),
		OutputTokens: parseCategory(h, "output-tokens"),
		Tokens:       parseCategory(h, "tokens"),
	}
}

func parseCategory(h http.Header, name string) *model.RateLimit {
	prefix := "anthropic-ratelimit-" + name + "-"
	limit := h.Get(prefix + "limit")
	if limit == "" {
		return nil
	}
	return &model.RateLimit{
		Limit:     parseInt(limit),
		Remaining: parseInt(h.Get(prefix + "remaining")),
		ResetAt:   h.Get(prefix + "reset"),
	}
}

func parseInt(s string) int64 {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

type probeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type probeRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	Messages  []probeMessage `json:"messages"`
}

// probe sends the minimal message request and returns the response with its
// body drained and closed. Only transport failures are errors.
func (c *Client) probe(ctx context.Context, apiKey string) (*http.Response, error) {
	body, err := json.Marshal(probeRequest{
		Model:     ProbeModel,
		MaxTokens: 1,
		Messages:  []probeMessage{{Role: "user", Content: "."}},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal probe: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build probe request: %w", err)
	}
	c.setHeaders(req, apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &model.FetchError{Provider: model.ProviderAnthropic, Endpoint: messagesPath, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	return resp, nil
}

// costAmount accepts both the documented decimal string and a bare number.
type costAmount float64

func (a *costAmount) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*a = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse cost amount %q: %w", s, err)
	}
	*a = costAmount(v)
	return nil
}

type costResult struct {
	Amount struct {
		Value    costAmount `json:"value"`
		Currency string     `json:"currency"`
	} `json:"amount"`
	Description string `json:"description"`
}

type costBucket struct {
	StartingAt string       `json:"starting_at"`
	StartedAt  string       `json:"started_at"`
	Results    []costResult `json:"results"`
}

type costPage struct {
	Data     []costBucket `json:"data"`
	HasMore  bool         `json:"has_more"`
	NextPage string       `json:"next_page"`
}

// FetchCostReport returns the daily cost lines of the organization for w,
// grouped by description. Amounts are converted from hundredths to display
// units.
func (c *Client) FetchCostReport(ctx context.Context, adminKey string, w model.Window) ([]driven.CostBucket, error) {
	params := url.Values{}
	params.Set("starting_at", w.Start.UTC().Format(time.RFC3339))
	params.Set("ending_at", w.End.UTC().Format(time.RFC3339))
	params.Set("bucket_width", "1d")
	params.Set("group_by", "description")

	out := []driven.CostBucket{}
	for i := 0; i < upstream.MaxPages; i++ {
		var pg costPage
		if err := c.get(ctx, adminKey, costReportPath, params, &pg); err != nil {
			return nil, fmt.Errorf("cost report (page %d): %w", i+1, err)
		}

		for _, b := range pg.Data {
			ts := b.StartingAt
			if ts == "" {
				ts = b.StartedAt
			}
			date := model.DateFromTimestamp(ts)
			for _, r := range b.Results {
				out = append(out, driven.CostBucket{
					Date:     date,
					LineItem: r.Description,
					Amount:   float64(r.Amount.Value) / 100,
				})
			}
		}

		if !pg.HasMore || pg.NextPage == "" {
			return out, nil
		}
		params.Set("page", pg.NextPage)
	}

	slog.Warn("anthropic pagination cap reached", "endpoint", costReportPath, "pages", upstream.MaxPages)
	return out, nil
}

func (c *Client) get(ctx context.Context, apiKey, path string, params url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	c.setHeaders(req, apiKey)

	_, err = upstream.Do(c.http, req, model.ProviderAnthropic, path, v)
	return err
}

func (c *Client) setHeaders(req *http.Request, apiKey string) {
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", APIVersion)
	req.Header.Set("Accept", "application/json")
}
