package model

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownProvider is returned when a provider identifier is not one of the
// supported providers.
var ErrUnknownProvider = errors.New("unknown provider")

// ProviderID identifies an external AI service.
type ProviderID string

const (
	ProviderOpenAI    ProviderID = "openai"
	ProviderAnthropic ProviderID = "anthropic"
	ProviderGemini    ProviderID = "gemini"
)

// Providers lists every supported provider in display order.
var Providers = []ProviderID{ProviderOpenAI, ProviderAnthropic, ProviderGemini}

// ParseProviderID converts a raw identifier into a ProviderID. Matching is
// case-insensitive and ignores surrounding whitespace.
func ParseProviderID(raw string) (ProviderID, error) {
	id := ProviderID(strings.ToLower(strings.TrimSpace(raw)))
	switch id {
	case ProviderOpenAI, ProviderAnthropic, ProviderGemini:
		return id, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, raw)
	}
}

// DisplayName returns the human-readable provider name.
func (p ProviderID) DisplayName() string {
	switch p {
	case ProviderOpenAI:
		return "OpenAI"
	case ProviderAnthropic:
		return "Anthropic"
	case ProviderGemini:
		return "Google Gemini"
	default:
		return string(p)
	}
}

// Tier is the Gemini billing tier used to select a rate-limit table.
type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

// ParseTier maps a raw tier to a Tier, defaulting to TierFree for anything
// other than "paid".
func ParseTier(raw string) Tier {
	if strings.EqualFold(strings.TrimSpace(raw), string(TierPaid)) {
		return TierPaid
	}
	return TierFree
}
