// Package gemini implements the GeminiClient port against the Google
// Generative Language API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/gregjones/httpcache"

	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://generativelanguage.googleapis.com"

const (
	modelsPath    = "/v1beta/models"
	modelPrefix   = "models/"
	geminiPrefix  = "gemini-"
	listPageSize  = 100
	probePageSize = 1
)

// Compile-time interface satisfaction check.
var _ driven.GeminiClient = (*Client)(nil)

// Client implements driven.GeminiClient. Responses are kept in an in-memory
// HTTP cache honoring upstream cache headers; the API key is part of every
// request URL, so cached entries never cross credentials.
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a Client whose transport layers an HTTP cache over the
// transport of httpClient. An empty baseURL selects DefaultBaseURL.
func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: upstream.DefaultTimeout}
	}

	cache := httpcache.NewMemoryCacheTransport()
	cache.Transport = httpClient.Transport

	cached := *httpClient
	cached.Transport = cache

	return &Client{
		http:    &cached,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type listModelsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
	NextPageToken string `json:"nextPageToken"`
}

// ValidateKey lists a single model. Any HTTP error status rejects the key;
// transport failures are returned as errors.
func (c *Client) ValidateKey(ctx context.Context, apiKey string) (bool, error) {
	var resp listModelsResponse
	err := c.listPage(ctx, apiKey, probePageSize, "", &resp)
	if err == nil {
		return true, nil
	}

	var fe *model.FetchError
	if errors.As(err, &fe) && fe.Status != 0 {
		slog.Debug("gemini key rejected", "status", fe.Status)
		return false, nil
	}
	return false, err
}

// ListModels returns the sorted gemini-* model names the key can access.
func (c *Client) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	models := []string{}
	token := ""

	for i := 0; i < upstream.MaxPages; i++ {
		var resp listModelsResponse
		if err := c.listPage(ctx, apiKey, listPageSize, token, &resp); err != nil {
			return nil, fmt.Errorf("list models (page %d): %w", i+1, err)
		}

		for _, m := range resp.Models {
			name := strings.TrimPrefix(m.Name, modelPrefix)
			if strings.HasPrefix(name, geminiPrefix) {
				models = append(models, name)
			}
		}

		if resp.NextPageToken == "" {
			break
		}
		token = resp.NextPageToken
	}

	sort.Strings(models)
	return models, nil
}

func (c *Client) listPage(ctx context.Context, apiKey string, pageSize int, pageToken string, v *listModelsResponse) error {
	params := url.Values{}
	params.Set("key", apiKey)
	params.Set("pageSize", strconv.Itoa(pageSize))
	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+modelsPath+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", modelsPath, err)
	}
	req.Header.Set("Accept", "application/json")

	_, err = upstream.Do(c.http, req, model.ProviderGemini, modelsPath, v)
	return redactURL(err)
}

// redactURL drops the query string from transport errors, which would
// otherwise carry the API key into logs.
func redactURL(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		if i := strings.IndexByte(ue.URL, '?'); i >= 0 {
			ue.URL = ue.URL[:i]
		}
	}
	return err
}
