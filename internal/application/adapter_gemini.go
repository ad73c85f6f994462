package application

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UsageAdapter = (*GeminiAdapter)(nil)

// GeminiAdapter reports the models a key can reach with their documented
// per-tier rate limits. The API exposes no usage history.
type GeminiAdapter struct {
	client driven.GeminiClient
}

// NewGeminiAdapter creates a GeminiAdapter.
func NewGeminiAdapter(client driven.GeminiClient) *GeminiAdapter {
	return &GeminiAdapter{client: client}
}

// Provider implements driven.UsageAdapter.
func (a *GeminiAdapter) Provider() model.ProviderID { return model.ProviderGemini }

// Validate implements driven.UsageAdapter.
func (a *GeminiAdapter) Validate(ctx context.Context, cred model.CredentialRecord) (bool, error) {
	return a.client.ValidateKey(ctx, cred.APIKey)
}

// FetchUsage implements driven.UsageAdapter. The model listing is the only
// data source, so its failure is returned as an error.
func (a *GeminiAdapter) FetchUsage(ctx context.Context, cred model.CredentialRecord, _ model.Window) (model.Report, error) {
	models, err := a.client.ListModels(ctx, cred.APIKey)
	if err != nil {
		return model.Report{}, fmt.Errorf("list gemini models: %w", err)
	}

	tier := model.ParseTier(string(cred.Tier))
	return model.Report{
		Provider:    model.ProviderGemini,
		ModelLimits: model.NewGeminiSnapshot(models, tier),
	}, nil
}
