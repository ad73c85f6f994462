package model

import (
	"sort"
	"strings"
)

// GeminiNote explains why Gemini snapshots carry no usage history.
const GeminiNote = "Gemini API does not provide a usage history endpoint. For detailed usage metrics, use Google Cloud Monitoring (serviceruntime metrics) with a GCP project. Showing available models and rate limits."

// rateLimitEntry is a documented {RPM, TPM, RPD} triple.
type rateLimitEntry struct {
	rpm, tpm, rpd int
}

// geminiLimits holds the published per-tier limits keyed by base model name.
// Paid-tier RPD is zero because paid keys have no daily cap.
var geminiLimits = map[Tier]map[string]rateLimitEntry{
	TierFree: {
		"gemini-2.5-pro":        {5, 250000, 25},
		"gemini-2.5-flash":      {10, 250000, 250},
		"gemini-2.0-flash":      {15, 1000000, 1500},
		"gemini-2.0-flash-lite": {30, 1000000, 1500},
		"gemini-1.5-pro":        {2, 32000, 50},
		"gemini-1.5-flash":      {15, 1000000, 1500},
		"gemini-1.5-flash-8b":   {15, 1000000, 1500},
	},
	TierPaid: {
		"gemini-2.5-pro":        {1000, 4000000, 0},
		"gemini-2.5-flash":      {2000, 4000000, 0},
		"gemini-2.0-flash":      {2000, 4000000, 0},
		"gemini-2.0-flash-lite": {4000, 4000000, 0},
		"gemini-1.5-pro":        {1000, 4000000, 0},
		"gemini-1.5-flash":      {2000, 4000000, 0},
		"gemini-1.5-flash-8b":   {4000, 4000000, 0},
	},
}

// GeminiBaseModel returns the longest table key that prefixes model, or ""
// when no entry matches. "gemini-2.0-flash-lite-001" resolves to
// "gemini-2.0-flash-lite", not "gemini-2.0-flash".
func GeminiBaseModel(model string) string {
	var best string
	for base := range geminiLimits[TierFree] {
		if strings.HasPrefix(model, base) && len(base) > len(best) {
			best = base
		}
	}
	return best
}

// GeminiModelLimit looks up the documented limits for model on tier.
func GeminiModelLimit(tier Tier, model string) (ModelRateLimit, bool) {
	base := GeminiBaseModel(model)
	if base == "" {
		return ModelRateLimit{}, false
	}
	table, ok := geminiLimits[tier]
	if !ok {
		table = geminiLimits[TierFree]
	}
	e, ok := table[base]
	if !ok {
		return ModelRateLimit{}, false
	}
	return ModelRateLimit{Model: model, RPM: e.rpm, TPM: e.tpm, RPD: e.rpd}, true
}

// NewGeminiSnapshot maps the available models onto the tier's table. Models
// without a table entry are listed as available but get no rate limit.
func NewGeminiSnapshot(models []string, tier Tier) *ModelLimitsSnapshot {
	available := make([]string, len(models))
	copy(available, models)
	sort.Strings(available)

	limits := make([]ModelRateLimit, 0, len(available))
	for _, m := range available {
		if l, ok := GeminiModelLimit(tier, m); ok {
			limits = append(limits, l)
		}
	}

	return &ModelLimitsSnapshot{
		Provider:        ProviderGemini,
		AvailableModels: available,
		RateLimits:      limits,
		Tier:            tier,
		Note:            GeminiNote,
	}
}
