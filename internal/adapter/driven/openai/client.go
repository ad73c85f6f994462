// Package openai implements the OpenAIClient port against the OpenAI
// organization usage and costs API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.openai.com"

// adminKeyPrefix marks organization admin keys, which cannot list models.
const adminKeyPrefix = "sk-admin-"

const (
	costsPath       = "/v1/organization/costs"
	completionsPath = "/v1/organization/usage/completions"
)

// Compile-time interface satisfaction check.
var _ driven.OpenAIClient = (*Client)(nil)

// Client implements driven.OpenAIClient.
type Client struct {
	http    *http.Client
	baseURL string
	now     func() time.Time
}

// NewClient creates a Client. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		http:    httpClient,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

// IsAdminKey reports whether apiKey is an organization admin key.
func IsAdminKey(apiKey string) bool {
	return strings.HasPrefix(apiKey, adminKeyPrefix)
}

// ValidateKey probes the costs endpoint for admin keys and the models listing
// for standard keys. Any HTTP error status means the key is not usable;
// only transport failures are returned as errors.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) (bool, error) {
	var err error
	if IsAdminKey(apiKey) {
		params := url.Values{}
		params.Set("start_time", strconv.FormatInt(c.now().Add(-24*time.Hour).Unix(), 10))
		params.Set("bucket_width", "1d")
		_, err = c.get(ctx, apiKey, costsPath, params, nil)
	} else {
		err = c.listModels(ctx, apiKey)
	}

	if err == nil {
		return true, nil
	}
	if hasHTTPStatus(err) {
		slog.Debug("openai key rejected", "error", err)
		return false, nil
	}
	return false, err
}

// listModels calls GET /v1/models through the go-openai client.
func (c *Client) listModels(ctx context.Context, apiKey string) error {
	cfg := goopenai.DefaultConfig(apiKey)
	cfg.BaseURL = c.baseURL + "/v1"
	cfg.HTTPClient = c.http

	if _, err := goopenai.NewClientWithConfig(cfg).ListModels(ctx); err != nil {
		var apiErr *goopenai.APIError
		if errors.As(err, &apiErr) {
			return &model.FetchError{Provider: model.ProviderOpenAI, Endpoint: "/v1/models", Status: apiErr.HTTPStatusCode, Body: apiErr.Message}
		}
		var reqErr *goopenai.RequestError
		if errors.As(err, &reqErr) {
			return &model.FetchError{Provider: model.ProviderOpenAI, Endpoint: "/v1/models", Status: reqErr.HTTPStatusCode, Err: reqErr.Err}
		}
		return &model.FetchError{Provider: model.ProviderOpenAI, Endpoint: "/v1/models", Err: err}
	}
	return nil
}

// usageResult is one entry of a completions usage bucket.
type usageResult struct {
	InputTokens      int64  `json:"input_tokens"`
	OutputTokens     int64  `json:"output_tokens"`
	NumModelRequests int64  `json:"num_model_requests"`
	Model            string `json:"model"`
}

type usageBucket struct {
	StartTime int64         `json:"start_time"`
	Results   []usageResult `json:"results"`
}

// costResult is one entry of a costs bucket. Amount values arrive in
// hundredths of the display currency.
type costResult struct {
	Amount struct {
		Value    float64 `json:"value"`
		Currency string  `json:"currency"`
	} `json:"amount"`
	LineItem string `json:"line_item"`
}

type costBucket struct {
	StartTime int64        `json:"start_time"`
	Results   []costResult `json:"results"`
}

// page is the cursor-paginated envelope shared by the organization endpoints.
type page[T any] struct {
	Data     []T    `json:"data"`
	HasMore  bool   `json:"has_more"`
	NextPage string `json:"next_page"`
}

// FetchCompletionUsage returns daily completions usage grouped by model since start.
func (c *Client) FetchCompletionUsage(ctx context.Context, apiKey string, start time.Time) ([]driven.UsageBucket, error) {
	params := url.Values{}
	params.Set("start_time", strconv.FormatInt(start.Unix(), 10))
	params.Set("bucket_width", "1d")
	params.Set("group_by", "model")

	buckets, err := getAllPages[usageBucket](ctx, c, apiKey, completionsPath, params)
	if err != nil {
		return nil, err
	}

	var out []driven.UsageBucket
	for _, b := range buckets {
		date := model.DateFromUnix(b.StartTime)
		for _, r := range b.Results {
			out = append(out, driven.UsageBucket{
				Date:         date,
				Model:        r.Model,
				InputTokens:  r.InputTokens,
				OutputTokens: r.OutputTokens,
				Requests:     r.NumModelRequests,
			})
		}
	}
	return out, nil
}

// FetchCosts returns daily cost lines since start, converted to display units.
func (c *Client) FetchCosts(ctx context.Context, apiKey string, start time.Time) ([]driven.CostBucket, error) {
	params := url.Values{}
	params.Set("start_time", strconv.FormatInt(start.Unix(), 10))
	params.Set("bucket_width", "1d")

	buckets, err := getAllPages[costBucket](ctx, c, apiKey, costsPath, params)
	if err != nil {
		return nil, err
	}

	out := []driven.CostBucket{}
	for _, b := range buckets {
		date := model.DateFromUnix(b.StartTime)
		for _, r := range b.Results {
			out = append(out, driven.CostBucket{
				Date:     date,
				LineItem: r.LineItem,
				Amount:   r.Amount.Value / 100,
			})
		}
	}
	return out, nil
}

// getAllPages follows the next_page cursor until has_more is false, the
// cursor is empty, or upstream.MaxPages requests have been made.
func getAllPages[T any](ctx context.Context, c *Client, apiKey, path string, params url.Values) ([]T, error) {
	var all []T
	cursor := ""

	for i := 0; i < upstream.MaxPages; i++ {
		p := cloneValues(params)
		if cursor != "" {
			p.Set("page", cursor)
		}

		var pg page[T]
		if _, err := c.get(ctx, apiKey, path, p, &pg); err != nil {
			return nil, fmt.Errorf("%s (page %d): %w", path, i+1, err)
		}
		all = append(all, pg.Data...)

		slog.Debug("openai api call", "endpoint", path, "page", i+1, "count", len(pg.Data), "has_more", pg.HasMore)

		if !pg.HasMore || pg.NextPage == "" {
			return all, nil
		}
		cursor = pg.NextPage
	}

	slog.Warn("openai pagination cap reached", "endpoint", path, "pages", upstream.MaxPages)
	return all, nil
}

func (c *Client) get(ctx context.Context, apiKey, path string, params url.Values, v any) (*http.Response, error) {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)
	req.Header.Set("Accept", "application/json")

	return upstream.Do(c.http, req, model.ProviderOpenAI, path, v)
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v)+1)
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}

// hasHTTPStatus reports whether err carries an upstream HTTP status, meaning
// the provider answered.
func hasHTTPStatus(err error) bool {
	var fe *model.FetchError
	return errors.As(err, &fe) && fe.Status != 0
}
