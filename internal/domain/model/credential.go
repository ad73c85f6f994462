package model

import "time"

// CredentialRecord holds the secrets for one provider. APIKey is always set;
// AdminKey and SessionKey are Anthropic-only and Tier is Gemini-only.
// The JSON names match the persisted vault payload.
type CredentialRecord struct {
	Provider   ProviderID `json:"-"`
	APIKey     string     `json:"apiKey"`
	AdminKey   string     `json:"adminKey,omitempty"`
	SessionKey string     `json:"sessionKey,omitempty"`
	Tier       Tier       `json:"tier,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Normalize drops fields that do not apply to the record's provider and
// defaults the Gemini tier.
func (c CredentialRecord) Normalize() CredentialRecord {
	switch c.Provider {
	case ProviderOpenAI:
		c.AdminKey, c.SessionKey, c.Tier = "", "", ""
	case ProviderAnthropic:
		c.Tier = ""
	case ProviderGemini:
		c.AdminKey, c.SessionKey = "", ""
		if c.Tier != TierPaid {
			c.Tier = TierFree
		}
	}
	return c
}

// ConnectedProvider is the display view of a stored credential. It never
// carries plaintext secrets.
type ConnectedProvider struct {
	Provider      ProviderID `json:"provider"`
	Connected     bool       `json:"connected"`
	KeyHint       string     `json:"keyHint"`
	HasAdminKey   *bool      `json:"hasAdminKey,omitempty"`
	HasSessionKey *bool      `json:"hasSessionKey,omitempty"`
	UpdatedAt     time.Time  `json:"updatedAt"`
}
