package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

// ErrMissingAPIKey is returned when a connect request carries no API key.
var ErrMissingAPIKey = errors.New("api key is required")

// ConnectRequest is a credential submitted for a provider.
type ConnectRequest struct {
	Provider   model.ProviderID
	APIKey     string
	AdminKey   string
	SessionKey string
	Tier       model.Tier
}

// ConnectResult reports the outcome of an accepted connect request.
// SessionKeyValid is set only when a session key was submitted.
type ConnectResult struct {
	SessionKeyValid *bool `json:"sessionKeyValid,omitempty"`
}

// sessionValidator is implemented by adapters that accept a consumer
// session credential alongside the API key.
type sessionValidator interface {
	ValidateSession(ctx context.Context, sessionKey string) (bool, error)
}

// CacheInvalidator drops cached usage of a provider. *UsageCache implements it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, provider model.ProviderID)
}

// CredentialService validates credentials against their provider before
// storing them, and keeps the usage cache consistent with the vault.
type CredentialService struct {
	vault    *Vault
	registry *Registry
	cache    CacheInvalidator
}

// NewCredentialService creates a CredentialService. cache may be nil.
func NewCredentialService(vault *Vault, registry *Registry, cache CacheInvalidator) *CredentialService {
	return &CredentialService{vault: vault, registry: registry, cache: cache}
}

// Connect validates req and stores it. A rejected API key yields
// model.ErrValidationFailed; an unreachable provider yields a wrapped
// transport error. An invalid session key never blocks the API key: it is
// dropped and reported through the result.
func (s *CredentialService) Connect(ctx context.Context, req ConnectRequest) (ConnectResult, error) {
	var result ConnectResult

	adapter, err := s.registry.Get(req.Provider)
	if err != nil {
		return result, err
	}

	rec := model.CredentialRecord{
		Provider:   req.Provider,
		APIKey:     strings.TrimSpace(req.APIKey),
		AdminKey:   strings.TrimSpace(req.AdminKey),
		SessionKey: strings.TrimSpace(req.SessionKey),
		Tier:       req.Tier,
	}.Normalize()
	if rec.APIKey == "" {
		return result, ErrMissingAPIKey
	}

	ok, err := adapter.Validate(ctx, rec)
	if err != nil {
		return result, fmt.Errorf("failed to validate %s key: %w", req.Provider, err)
	}
	if !ok {
		slog.Info("credential rejected", "provider", req.Provider, "key_hint", MaskKey(rec.APIKey))
		return result, fmt.Errorf("%w: invalid %s API key", model.ErrValidationFailed, req.Provider.DisplayName())
	}

	if rec.SessionKey != "" {
		valid := s.validateSession(ctx, adapter, rec.SessionKey)
		result.SessionKeyValid = &valid
		if !valid {
			rec.SessionKey = ""
		}
	}

	if err := s.vault.Save(ctx, rec); err != nil {
		return result, fmt.Errorf("save %s credential: %w", req.Provider, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, req.Provider)
	}
	return result, nil
}

func (s *CredentialService) validateSession(ctx context.Context, adapter any, sessionKey string) bool {
	sv, ok := adapter.(sessionValidator)
	if !ok {
		return false
	}
	valid, err := sv.ValidateSession(ctx, sessionKey)
	if err != nil {
		slog.Warn("session key validation failed", "error", err)
		return false
	}
	return valid
}

// Disconnect removes the stored credential of provider.
func (s *CredentialService) Disconnect(ctx context.Context, provider model.ProviderID) error {
	if _, err := model.ParseProviderID(string(provider)); err != nil {
		return err
	}
	if err := s.vault.Remove(ctx, provider); err != nil {
		return fmt.Errorf("remove %s credential: %w", provider, err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, provider)
	}
	return nil
}

// List returns the connected providers with masked key hints.
func (s *CredentialService) List(ctx context.Context) []model.ConnectedProvider {
	return s.vault.ListConnected(ctx)
}
