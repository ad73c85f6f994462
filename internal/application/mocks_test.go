package application_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockOpenAIClient struct {
	validate func(ctx context.Context, apiKey string) (bool, error)
	usage    func(ctx context.Context, apiKey string, start time.Time) ([]driven.UsageBucket, error)
	costs    func(ctx context.Context, apiKey string, start time.Time) ([]driven.CostBucket, error)
}

func (m *mockOpenAIClient) ValidateKey(ctx context.Context, apiKey string) (bool, error) {
	return m.validate(ctx, apiKey)
}

func (m *mockOpenAIClient) FetchCompletionUsage(ctx context.Context, apiKey string, start time.Time) ([]driven.UsageBucket, error) {
	return m.usage(ctx, apiKey, start)
}

func (m *mockOpenAIClient) FetchCosts(ctx context.Context, apiKey string, start time.Time) ([]driven.CostBucket, error) {
	return m.costs(ctx, apiKey, start)
}

type mockAnthropicClient struct {
	validate   func(ctx context.Context, apiKey string) (bool, error)
	rateLimits func(ctx context.Context, apiKey string) (model.RateLimits, error)
	costReport func(ctx context.Context, adminKey string, w model.Window) ([]driven.CostBucket, error)
}

func (m *mockAnthropicClient) ValidateKey(ctx context.Context, apiKey string) (bool, error) {
	return m.validate(ctx, apiKey)
}

func (m *mockAnthropicClient) FetchRateLimits(ctx context.Context, apiKey string) (model.RateLimits, error) {
	return m.rateLimits(ctx, apiKey)
}

func (m *mockAnthropicClient) FetchCostReport(ctx context.Context, adminKey string, w model.Window) ([]driven.CostBucket, error) {
	return m.costReport(ctx, adminKey, w)
}

type mockSessionClient struct {
	validate func(ctx context.Context, sessionKey string) (bool, error)
	usage    func(ctx context.Context, sessionKey string) (model.SessionUsage, error)
}

func (m *mockSessionClient) ValidateSessionCredential(ctx context.Context, sessionKey string) (bool, error) {
	return m.validate(ctx, sessionKey)
}

func (m *mockSessionClient) FetchSessionUsage(ctx context.Context, sessionKey string) (model.SessionUsage, error) {
	return m.usage(ctx, sessionKey)
}

type mockGeminiClient struct {
	validate   func(ctx context.Context, apiKey string) (bool, error)
	listModels func(ctx context.Context, apiKey string) ([]string, error)
}

func (m *mockGeminiClient) ValidateKey(ctx context.Context, apiKey string) (bool, error) {
	return m.validate(ctx, apiKey)
}

func (m *mockGeminiClient) ListModels(ctx context.Context, apiKey string) ([]string, error) {
	return m.listModels(ctx, apiKey)
}

// countingAdapter is a UsageAdapter that counts FetchUsage calls.
type countingAdapter struct {
	provider model.ProviderID
	calls    atomic.Int32
	delay    time.Duration
	valid    bool
	err      error
}

func (a *countingAdapter) Provider() model.ProviderID { return a.provider }

func (a *countingAdapter) Validate(_ context.Context, _ model.CredentialRecord) (bool, error) {
	return a.valid, a.err
}

func (a *countingAdapter) FetchUsage(_ context.Context, _ model.CredentialRecord, w model.Window) (model.Report, error) {
	a.calls.Add(1)
	if a.delay > 0 {
		time.Sleep(a.delay)
	}
	if a.err != nil {
		return model.Report{}, a.err
	}
	return model.Report{Provider: a.provider, Usage: model.NewUsageSnapshot(a.provider, w)}, nil
}

// mapCredentials is an in-memory CredentialSource.
type mapCredentials struct {
	mu    sync.Mutex
	creds map[model.ProviderID]model.CredentialRecord
}

func newMapCredentials(providers ...model.ProviderID) *mapCredentials {
	m := &mapCredentials{creds: make(map[model.ProviderID]model.CredentialRecord)}
	for _, p := range providers {
		m.creds[p] = model.CredentialRecord{Provider: p, APIKey: "key-" + string(p)}
	}
	return m
}

func (m *mapCredentials) Get(_ context.Context, p model.ProviderID) (model.CredentialRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.creds[p]
	return rec, ok
}

func (m *mapCredentials) remove(p model.ProviderID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.creds, p)
}

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// funcAdapter is a UsageAdapter whose FetchUsage is supplied by the test.
type funcAdapter struct {
	provider model.ProviderID
	calls    atomic.Int32
	fetch    func(ctx context.Context, w model.Window) (model.Report, error)
}

func (a *funcAdapter) Provider() model.ProviderID { return a.provider }

func (a *funcAdapter) Validate(context.Context, model.CredentialRecord) (bool, error) {
	return true, nil
}

func (a *funcAdapter) FetchUsage(ctx context.Context, _ model.CredentialRecord, w model.Window) (model.Report, error) {
	a.calls.Add(1)
	return a.fetch(ctx, w)
}
