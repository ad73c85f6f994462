package httphandler_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/ericfisherdev/usagepanel/internal/adapter/driving/http"
	"github.com/ericfisherdev/usagepanel/internal/application"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

// --- Mock implementations ---

type mockCredentials struct {
	providers  []model.ConnectedProvider
	connectRes application.ConnectResult
	connectErr error
	removeErr  error

	connected []application.ConnectRequest
	removed   []model.ProviderID
}

func (m *mockCredentials) Connect(_ context.Context, req application.ConnectRequest) (application.ConnectResult, error) {
	m.connected = append(m.connected, req)
	return m.connectRes, m.connectErr
}

func (m *mockCredentials) Disconnect(_ context.Context, p model.ProviderID) error {
	m.removed = append(m.removed, p)
	return m.removeErr
}

func (m *mockCredentials) List(_ context.Context) []model.ConnectedProvider {
	return m.providers
}

type usageCall struct {
	provider model.ProviderID
	days     int
	force    bool
}

type mockUsage struct {
	entry model.CacheEntry
	err   error
	calls []usageCall
}

func (m *mockUsage) Get(_ context.Context, p model.ProviderID, days int, force bool) (model.CacheEntry, error) {
	m.calls = append(m.calls, usageCall{p, days, force})
	return m.entry, m.err
}

type panicUsage struct{}

func (panicUsage) Get(context.Context, model.ProviderID, int, bool) (model.CacheEntry, error) {
	panic("boom")
}

// --- Test helpers ---

var testTime = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)

func setupRouter(creds httphandler.CredentialManager, usage httphandler.UsageReader) http.Handler {
	h := httphandler.NewHandler(creds, usage, slog.Default())
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("usagepanel_up 1\n"))
	})
	return httphandler.NewRouter(h, metrics, slog.Default())
}

func do(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

// --- Tests ---

func TestHealth(t *testing.T) {
	rec := do(t, setupRouter(&mockCredentials{}, &mockUsage{}), http.MethodGet, "/api/v1/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
}

func TestListTokens(t *testing.T) {
	hasAdmin := true
	tests := []struct {
		name      string
		providers []model.ConnectedProvider
		wantLen   int
	}{
		{name: "none connected", providers: nil, wantLen: 0},
		{
			name: "one connected",
			providers: []model.ConnectedProvider{{
				Provider:    model.ProviderAnthropic,
				Connected:   true,
				KeyHint:     "sk-an...wxyz",
				HasAdminKey: &hasAdmin,
				UpdatedAt:   testTime,
			}},
			wantLen: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, setupRouter(&mockCredentials{providers: tt.providers}, &mockUsage{}), http.MethodGet, "/api/tokens", "")

			require.Equal(t, http.StatusOK, rec.Code)
			var body struct {
				Providers []map[string]any `json:"providers"`
			}
			decodeJSON(t, rec, &body)
			require.NotNil(t, body.Providers)
			require.Len(t, body.Providers, tt.wantLen)
			if tt.wantLen > 0 {
				assert.Equal(t, "anthropic", body.Providers[0]["provider"])
				assert.Equal(t, "sk-an...wxyz", body.Providers[0]["keyHint"])
				assert.Equal(t, true, body.Providers[0]["hasAdminKey"])
				assert.NotContains(t, body.Providers[0], "apiKey")
			}
		})
	}
}

func TestSaveToken(t *testing.T) {
	valid := true
	tests := []struct {
		name        string
		body        string
		creds       *mockCredentials
		wantStatus  int
		wantError   string
		wantSession *bool
	}{
		{
			name:       "stored",
			body:       `{"provider":"gemini","apiKey":"AIza-1","tier":"paid"}`,
			creds:      &mockCredentials{},
			wantStatus: http.StatusOK,
		},
		{
			name:        "session key reported",
			body:        `{"provider":"anthropic","apiKey":"sk-ant-1","sessionKey":"sk-ant-sid01"}`,
			creds:       &mockCredentials{connectRes: application.ConnectResult{SessionKeyValid: &valid}},
			wantStatus:  http.StatusOK,
			wantSession: &valid,
		},
		{
			name:       "malformed body",
			body:       `{"provider":`,
			creds:      &mockCredentials{},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "missing api key",
			body:       `{"provider":"openai"}`,
			creds:      &mockCredentials{},
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing provider or apiKey",
		},
		{
			name:       "unknown provider",
			body:       `{"provider":"mistral","apiKey":"x"}`,
			creds:      &mockCredentials{},
			wantStatus: http.StatusBadRequest,
			wantError:  "unknown provider",
		},
		{
			name:       "rejected key",
			body:       `{"provider":"openai","apiKey":"sk-bad"}`,
			creds:      &mockCredentials{connectErr: fmt.Errorf("%w: invalid OpenAI API key", model.ErrValidationFailed)},
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid API key",
		},
		{
			name:       "validation unreachable",
			body:       `{"provider":"openai","apiKey":"sk-1"}`,
			creds:      &mockCredentials{connectErr: errors.New("failed to validate openai key: dial tcp: timeout")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to validate API key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, setupRouter(tt.creds, &mockUsage{}), http.MethodPost, "/api/tokens", tt.body)

			require.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]any
			decodeJSON(t, rec, &body)

			if tt.wantError != "" {
				assert.Equal(t, false, body["success"])
				assert.Contains(t, body["error"], tt.wantError)
				return
			}

			assert.Equal(t, true, body["success"])
			if tt.wantSession != nil {
				assert.Equal(t, *tt.wantSession, body["sessionKeyValid"])
			} else {
				assert.NotContains(t, body, "sessionKeyValid")
			}
		})
	}
}

func TestSaveToken_PassesParsedRequest(t *testing.T) {
	creds := &mockCredentials{}
	rec := do(t, setupRouter(creds, &mockUsage{}), http.MethodPost, "/api/tokens",
		`{"provider":"Gemini","apiKey":"AIza-1","tier":"PAID"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, creds.connected, 1)
	assert.Equal(t, model.ProviderGemini, creds.connected[0].Provider)
	assert.Equal(t, "AIza-1", creds.connected[0].APIKey)
	assert.Equal(t, model.TierPaid, creds.connected[0].Tier)
}

func TestRemoveToken(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		target      string
		body        string
		creds       *mockCredentials
		wantStatus  int
		wantRemoved []model.ProviderID
	}{
		{
			name:        "by path",
			target:      "/api/tokens/openai",
			creds:       &mockCredentials{},
			wantStatus:  http.StatusOK,
			wantRemoved: []model.ProviderID{model.ProviderOpenAI},
		},
		{
			name:        "by body",
			target:      "/api/tokens",
			body:        `{"provider":"gemini"}`,
			creds:       &mockCredentials{},
			wantStatus:  http.StatusOK,
			wantRemoved: []model.ProviderID{model.ProviderGemini},
		},
		{
			name:       "body without provider",
			target:     "/api/tokens",
			body:       `{}`,
			creds:      &mockCredentials{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown provider",
			target:     "/api/tokens/mistral",
			creds:      &mockCredentials{},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "store failure",
			target:      "/api/tokens/anthropic",
			creds:       &mockCredentials{removeErr: errors.New("disk full")},
			wantStatus:  http.StatusInternalServerError,
			wantRemoved: []model.ProviderID{model.ProviderAnthropic},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, setupRouter(tt.creds, &mockUsage{}), http.MethodDelete, tt.target, tt.body)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantRemoved, tt.creds.removed)
		})
	}
}

func TestGetUsage_Snapshot(t *testing.T) {
	cost := 12.5
	snap := model.NewUsageSnapshot(model.ProviderOpenAI, model.NewWindow(7, testTime))
	snap.TotalCost = &cost
	usage := &mockUsage{entry: model.CacheEntry{
		Report:    model.Report{Provider: model.ProviderOpenAI, Usage: snap},
		FetchedAt: testTime,
	}}

	rec := do(t, setupRouter(&mockCredentials{}, usage), http.MethodGet, "/api/usage/openai?days=7&refresh=true", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2026-02-10T12:00:00Z", rec.Header().Get("X-Fetched-At"))
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "openai", body["provider"])
	assert.Equal(t, 12.5, body["totalCost"])
	assert.Equal(t, []any{}, body["dailyUsage"])

	require.Len(t, usage.calls, 1)
	assert.Equal(t, usageCall{model.ProviderOpenAI, 7, true}, usage.calls[0])
}

func TestGetUsage_ModelLimits(t *testing.T) {
	usage := &mockUsage{entry: model.CacheEntry{
		Report: model.Report{
			Provider:    model.ProviderGemini,
			ModelLimits: model.NewGeminiSnapshot([]string{"gemini-2.0-flash"}, model.TierFree),
		},
		FetchedAt: testTime,
	}}

	rec := do(t, setupRouter(&mockCredentials{}, usage), http.MethodGet, "/api/usage/gemini", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, []any{"gemini-2.0-flash"}, body["availableModels"])
	assert.Equal(t, "free", body["tier"])
	assert.Equal(t, usageCall{model.ProviderGemini, model.DefaultWindowDays, false}, usage.calls[0])
}

func TestGetUsage_Errors(t *testing.T) {
	tests := []struct {
		name       string
		target     string
		err        error
		wantStatus int
		wantError  string
	}{
		{"not connected", "/api/usage/anthropic", application.ErrNotConnected, http.StatusNotFound, "Anthropic not connected"},
		{"unknown provider", "/api/usage/mistral", nil, http.StatusBadRequest, "unknown provider"},
		{"bad days", "/api/usage/openai?days=week", nil, http.StatusBadRequest, "invalid days"},
		{"bad refresh", "/api/usage/openai?refresh=maybe", nil, http.StatusBadRequest, "invalid refresh"},
		{"upstream failure", "/api/usage/gemini", errors.New("gemini /v1beta/models: status 500"), http.StatusInternalServerError, "status 500"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, setupRouter(&mockCredentials{}, &mockUsage{err: tt.err}), http.MethodGet, tt.target, "")

			require.Equal(t, tt.wantStatus, rec.Code)
			var body map[string]any
			decodeJSON(t, rec, &body)
			assert.Contains(t, body["error"], tt.wantError)
		})
	}
}

func TestRecovery(t *testing.T) {
	rec := do(t, setupRouter(&mockCredentials{}, panicUsage{}), http.MethodGet, "/api/usage/openai", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "internal server error", body["error"])
}

func TestMetricsRoute(t *testing.T) {
	rec := do(t, setupRouter(&mockCredentials{}, &mockUsage{}), http.MethodGet, "/metrics", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "usagepanel_up")
}
