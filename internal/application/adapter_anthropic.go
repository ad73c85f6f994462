package application

import (
	"context"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/usagepanel/internal/metrics"
)

const (
	anthropicAdminKeyNote  = "Add an Admin API key (sk-ant-admin-*) in Settings for usage and cost data."
	anthropicRateLimitNote = "Rate limits unavailable."
	anthropicSessionNote   = "claude.ai session usage unavailable."
)

// Compile-time interface satisfaction check.
var _ driven.UsageAdapter = (*AnthropicAdapter)(nil)

// AnthropicAdapter combines probed rate limits, the organization cost report
// (admin key only) and consumer session usage (session key only).
type AnthropicAdapter struct {
	client  driven.AnthropicClient
	session driven.SessionClient
	agg     aggregator
}

// NewAnthropicAdapter creates an AnthropicAdapter. session may be nil, in
// which case session keys are ignored. m may be nil.
func NewAnthropicAdapter(client driven.AnthropicClient, session driven.SessionClient, m *metrics.Metrics) *AnthropicAdapter {
	return &AnthropicAdapter{
		client:  client,
		session: session,
		agg:     aggregator{provider: model.ProviderAnthropic, metrics: m},
	}
}

// Provider implements driven.UsageAdapter.
func (a *AnthropicAdapter) Provider() model.ProviderID { return model.ProviderAnthropic }

// Validate implements driven.UsageAdapter. Only the base API key is checked.
func (a *AnthropicAdapter) Validate(ctx context.Context, cred model.CredentialRecord) (bool, error) {
	return a.client.ValidateKey(ctx, cred.APIKey)
}

// ValidateSession reports whether the consumer web API accepts sessionKey.
func (a *AnthropicAdapter) ValidateSession(ctx context.Context, sessionKey string) (bool, error) {
	if a.session == nil {
		return false, nil
	}
	return a.session.ValidateSessionCredential(ctx, sessionKey)
}

// FetchUsage implements driven.UsageAdapter. Every section degrades on its
// own; the report is never an error.
func (a *AnthropicAdapter) FetchUsage(ctx context.Context, cred model.CredentialRecord, w model.Window) (model.Report, error) {
	var (
		limits  model.RateLimits
		costs   []driven.CostBucket
		session model.SessionUsage
	)

	hasAdmin := cred.AdminKey != ""
	hasSession := cred.SessionKey != "" && a.session != nil

	sections := []section{{name: "rate_limits", run: func(ctx context.Context) error {
		var err error
		limits, err = a.client.FetchRateLimits(ctx, cred.APIKey)
		return err
	}}}
	costIdx, sessionIdx := -1, -1

	if hasAdmin {
		costIdx = len(sections)
		sections = append(sections, section{name: "cost_report", run: func(ctx context.Context) error {
			var err error
			costs, err = a.client.FetchCostReport(ctx, cred.AdminKey, w)
			return err
		}})
	}
	if hasSession {
		sessionIdx = len(sections)
		sections = append(sections, section{name: "session", run: func(ctx context.Context) error {
			var err error
			session, err = a.session.FetchSessionUsage(ctx, cred.SessionKey)
			return err
		}})
	}

	errs := a.agg.run(ctx, sections...)

	snap := model.NewUsageSnapshot(model.ProviderAnthropic, w)
	snap.HasAdminKey = &hasAdmin

	if errs[0] == nil {
		if !limits.IsEmpty() {
			snap.RateLimits = &limits
		}
	} else {
		snap.AddNote(anthropicRateLimitNote)
	}

	switch {
	case !hasAdmin:
		snap.AddNote(anthropicAdminKeyNote)
	case errs[costIdx] != nil:
		snap.AddNote(costReportNote(errs[costIdx]))
	default:
		acc := model.NewUsageAccumulator()
		acc.MarkCostSeen()
		for _, c := range costs {
			item := c.LineItem
			if item == "" {
				item = model.UnknownModel
			}
			acc.AddCost(c.Date, item, c.Amount)
		}
		snap.DailyUsage = acc.Daily()
		snap.ModelBreakdown = acc.ModelsByCost()
		snap.TotalCost = acc.TotalCost()
	}

	if hasSession {
		if errs[sessionIdx] == nil {
			snap.SessionUsage = &session
		} else {
			snap.AddNote(anthropicSessionNote)
		}
	}

	return model.Report{Provider: model.ProviderAnthropic, Usage: snap}, nil
}

func costReportNote(err error) string {
	if model.IsAuthFailure(err) {
		return "Cost report unavailable: the Admin API key was rejected."
	}
	return "Cost report unavailable: the request to Anthropic failed."
}
