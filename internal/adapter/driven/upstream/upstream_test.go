package upstream_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/metrics"
)

func TestSanitizeBody_StripsMarkup(t *testing.T) {
	raw := []byte(`<html><head><title>Just a moment...</title></head>
<body><h1>Access   denied</h1><script>alert(1)</script><p>Ray &amp; ID</p></body></html>`)

	got := upstream.SanitizeBody(raw)

	assert.NotContains(t, got, "<")
	assert.NotContains(t, got, "alert")
	assert.Contains(t, got, "Access denied")
	assert.Contains(t, got, "Ray & ID")
}

func TestSanitizeBody_Truncates(t *testing.T) {
	got := upstream.SanitizeBody([]byte(strings.Repeat("a", 2000)))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, len(got), 515)
}

func TestDo_DecodesJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": 42}`))
	}))
	t.Cleanup(server.Close)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	var out struct {
		Value int `json:"value"`
	}
	resp, err := upstream.Do(server.Client(), req, model.ProviderOpenAI, "/x", &out)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 42, out.Value)
}

func TestDo_NonSuccessIsFetchError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Incorrect API key"}}`))
	}))
	t.Cleanup(server.Close)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = upstream.Do(server.Client(), req, model.ProviderOpenAI, "/v1/models", nil)

	var fe *model.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusUnauthorized, fe.Status)
	assert.Equal(t, "/v1/models", fe.Endpoint)
	assert.Contains(t, fe.Body, "Incorrect API key")
	assert.True(t, model.IsAuthFailure(err))
}

func TestDo_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	_, err = upstream.Do(&http.Client{Timeout: time.Second}, req, model.ProviderGemini, "/v1beta/models", nil)

	var fe *model.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.Status)
	assert.False(t, model.IsAuthFailure(err))
}

func TestNewHTTPClient_InstrumentsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	m := metrics.New()
	client := upstream.NewHTTPClient(model.ProviderAnthropic, 0, m, server.Client().Transport)
	assert.Equal(t, upstream.DefaultTimeout, client.Timeout)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL, nil)
	require.NoError(t, err)
	_, err = upstream.Do(client, req, model.ProviderAnthropic, "/", nil)
	require.NoError(t, err)

	count := testutil.ToFloat64(m.UpstreamRequestsTotal.WithLabelValues("anthropic", "204", "get"))
	assert.Equal(t, float64(1), count)
}
