package application

import (
	"context"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/usagepanel/internal/metrics"
)

const (
	openAIAdminKeyNote = "Admin API key required for usage data. Go to platform.openai.com > Organization > Admin Keys."
	openAIUsageNote    = "Token usage data unavailable."
	openAICostNote     = "Cost data unavailable."
)

// Compile-time interface satisfaction check.
var _ driven.UsageAdapter = (*OpenAIAdapter)(nil)

// OpenAIAdapter builds usage snapshots from the organization completions
// usage and costs series.
type OpenAIAdapter struct {
	client driven.OpenAIClient
	agg    aggregator
}

// NewOpenAIAdapter creates an OpenAIAdapter. m may be nil.
func NewOpenAIAdapter(client driven.OpenAIClient, m *metrics.Metrics) *OpenAIAdapter {
	return &OpenAIAdapter{
		client: client,
		agg:    aggregator{provider: model.ProviderOpenAI, metrics: m},
	}
}

// Provider implements driven.UsageAdapter.
func (a *OpenAIAdapter) Provider() model.ProviderID { return model.ProviderOpenAI }

// Validate implements driven.UsageAdapter.
func (a *OpenAIAdapter) Validate(ctx context.Context, cred model.CredentialRecord) (bool, error) {
	return a.client.ValidateKey(ctx, cred.APIKey)
}

// FetchUsage fetches both series concurrently. Either may fail; when both
// do the snapshot is empty and points at the admin key requirement.
func (a *OpenAIAdapter) FetchUsage(ctx context.Context, cred model.CredentialRecord, w model.Window) (model.Report, error) {
	var (
		usage []driven.UsageBucket
		costs []driven.CostBucket
	)

	errs := a.agg.run(ctx,
		section{name: "usage", run: func(ctx context.Context) error {
			var err error
			usage, err = a.client.FetchCompletionUsage(ctx, cred.APIKey, w.Start)
			return err
		}},
		section{name: "costs", run: func(ctx context.Context) error {
			var err error
			costs, err = a.client.FetchCosts(ctx, cred.APIKey, w.Start)
			return err
		}},
	)
	usageErr, costErr := errs[0], errs[1]

	snap := model.NewUsageSnapshot(model.ProviderOpenAI, w)
	if usageErr != nil && costErr != nil {
		snap.AddNote(openAIAdminKeyNote)
		return model.Report{Provider: model.ProviderOpenAI, Usage: snap}, nil
	}

	acc := model.NewUsageAccumulator()
	if usageErr == nil {
		for _, b := range usage {
			acc.AddTokens(b.Date, b.Model, b.InputTokens, b.OutputTokens, b.Requests)
		}
	} else {
		snap.AddNote(openAIUsageNote)
	}

	if costErr == nil {
		acc.MarkCostSeen()
		for _, c := range costs {
			acc.AddCost(c.Date, "", c.Amount)
		}
	} else {
		snap.AddNote(openAICostNote)
	}

	snap.DailyUsage = acc.Daily()
	snap.ModelBreakdown = acc.ModelsByTokens()
	snap.TotalCost = acc.TotalCost()

	return model.Report{Provider: model.ProviderOpenAI, Usage: snap}, nil
}
