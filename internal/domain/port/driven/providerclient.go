package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

// UsageAdapter is the polymorphic contract every provider variant implements.
type UsageAdapter interface {
	// Provider returns the provider this adapter serves.
	Provider() model.ProviderID

	// Validate reports whether the upstream accepts the credential. A rejected
	// key yields (false, nil); an error means the upstream could not be asked.
	Validate(ctx context.Context, cred model.CredentialRecord) (bool, error)

	// FetchUsage returns a best-effort report. Failing optional sections are
	// reported through the snapshot note rather than an error.
	FetchUsage(ctx context.Context, cred model.CredentialRecord, w model.Window) (model.Report, error)
}

// UsageBucket is one provider-reported usage aggregate, already mapped to
// domain units.
type UsageBucket struct {
	Date         string
	Model        string
	InputTokens  int64
	OutputTokens int64
	Requests     int64
}

// CostBucket is one provider-reported cost line in display currency units.
type CostBucket struct {
	Date     string
	LineItem string
	Amount   float64
}

// OpenAIClient defines the driven port for the OpenAI organization API.
type OpenAIClient interface {
	ValidateKey(ctx context.Context, apiKey string) (bool, error)
	FetchCompletionUsage(ctx context.Context, apiKey string, start time.Time) ([]UsageBucket, error)
	FetchCosts(ctx context.Context, apiKey string, start time.Time) ([]CostBucket, error)
}

// AnthropicClient defines the driven port for the Anthropic developer API.
type AnthropicClient interface {
	ValidateKey(ctx context.Context, apiKey string) (bool, error)
	FetchRateLimits(ctx context.Context, apiKey string) (model.RateLimits, error)
	FetchCostReport(ctx context.Context, adminKey string, w model.Window) ([]CostBucket, error)
}

// GeminiClient defines the driven port for the Google Generative Language API.
type GeminiClient interface {
	ValidateKey(ctx context.Context, apiKey string) (bool, error)
	ListModels(ctx context.Context, apiKey string) ([]string, error)
}

// SessionClient defines the driven port for the claude.ai consumer web API,
// authenticated with a session cookie rather than an API key.
type SessionClient interface {
	ValidateSessionCredential(ctx context.Context, sessionKey string) (bool, error)
	FetchSessionUsage(ctx context.Context, sessionKey string) (model.SessionUsage, error)
}
