// Package application contains use-case orchestration services.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/usagepanel/internal/metrics"
)

// errVaultCorrupt marks stored contents that cannot be decrypted or parsed.
var errVaultCorrupt = errors.New("vault contents unusable")

// Vault persists provider credentials as a single encrypted blob. Writes are
// serialized so concurrent saves never lose each other's records.
type Vault struct {
	cipher  driven.Cipher
	store   driven.BlobStore
	metrics *metrics.Metrics
	now     func() time.Time

	mu sync.Mutex
}

// VaultOption configures a Vault.
type VaultOption func(*Vault)

// WithVaultClock replaces the clock used to stamp UpdatedAt.
func WithVaultClock(now func() time.Time) VaultOption {
	return func(v *Vault) {
		v.now = now
	}
}

// WithVaultMetrics records vault operations on m.
func WithVaultMetrics(m *metrics.Metrics) VaultOption {
	return func(v *Vault) {
		v.metrics = m
	}
}

// NewVault creates a Vault encrypting with cipher and persisting to store.
func NewVault(cipher driven.Cipher, store driven.BlobStore, opts ...VaultOption) *Vault {
	v := &Vault{
		cipher: cipher,
		store:  store,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Load returns every stored record keyed by provider. A missing, unreadable,
// tampered or malformed store yields an empty map; the cause is logged.
func (v *Vault) Load(ctx context.Context) map[model.ProviderID]model.CredentialRecord {
	records, err := v.load(ctx)
	if err != nil {
		slog.Warn("credential vault unreadable, treating as empty", "error", err)
		v.metrics.VaultOp("load", "error")
		return make(map[model.ProviderID]model.CredentialRecord)
	}
	v.metrics.VaultOp("load", "ok")
	return records
}

func (v *Vault) load(ctx context.Context) (map[model.ProviderID]model.CredentialRecord, error) {
	records := make(map[model.ProviderID]model.CredentialRecord)

	blob, err := v.store.Read(ctx)
	if errors.Is(err, driven.ErrBlobNotFound) {
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vault: %w", err)
	}

	plaintext, err := v.cipher.Decrypt(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt: %w", errVaultCorrupt, err)
	}

	var raw map[string]model.CredentialRecord
	if err := json.Unmarshal(plaintext, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse: %w", errVaultCorrupt, err)
	}

	for name, rec := range raw {
		id, err := model.ParseProviderID(name)
		if err != nil {
			slog.Warn("skipping unknown provider in vault", "provider", name)
			continue
		}
		if rec.APIKey == "" {
			continue
		}
		rec.Provider = id
		records[id] = rec
	}
	return records, nil
}

// loadForWrite is the starting point of a rewrite. Unusable contents are
// replaced; a failed read aborts the write so no stored record is dropped.
func (v *Vault) loadForWrite(ctx context.Context, op string) (map[model.ProviderID]model.CredentialRecord, error) {
	records, err := v.load(ctx)
	if errors.Is(err, errVaultCorrupt) {
		slog.Warn("credential vault unusable, overwriting", "op", op, "error", err)
		return make(map[model.ProviderID]model.CredentialRecord), nil
	}
	if err != nil {
		v.metrics.VaultOp(op, "error")
		return nil, err
	}
	return records, nil
}

// Save replaces the record for rec.Provider and stamps UpdatedAt. Other
// records are kept; a failed read of the store aborts the save.
func (v *Vault) Save(ctx context.Context, rec model.CredentialRecord) error {
	if _, err := model.ParseProviderID(string(rec.Provider)); err != nil {
		return err
	}
	if rec.APIKey == "" {
		return errors.New("api key is required")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	records, err := v.loadForWrite(ctx, "save")
	if err != nil {
		return err
	}
	rec = rec.Normalize()
	rec.UpdatedAt = v.now().UTC()
	records[rec.Provider] = rec

	if err := v.persist(ctx, records); err != nil {
		v.metrics.VaultOp("save", "error")
		return err
	}
	v.metrics.VaultOp("save", "ok")
	slog.Info("credential saved", "provider", rec.Provider, "key_hint", MaskKey(rec.APIKey))
	return nil
}

// Remove deletes the record for provider. Removing an absent provider still
// rewrites the store and is not an error. A failed read of the store is.
func (v *Vault) Remove(ctx context.Context, provider model.ProviderID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	records, err := v.loadForWrite(ctx, "remove")
	if err != nil {
		return err
	}
	delete(records, provider)

	if err := v.persist(ctx, records); err != nil {
		v.metrics.VaultOp("remove", "error")
		return err
	}
	v.metrics.VaultOp("remove", "ok")
	slog.Info("credential removed", "provider", provider)
	return nil
}

// Get returns the record for provider and whether one is stored.
func (v *Vault) Get(ctx context.Context, provider model.ProviderID) (model.CredentialRecord, bool) {
	rec, ok := v.Load(ctx)[provider]
	return rec, ok
}

// ListConnected returns display views of the stored records in provider
// order. The views carry masked hints only.
func (v *Vault) ListConnected(ctx context.Context) []model.ConnectedProvider {
	records := v.Load(ctx)

	out := make([]model.ConnectedProvider, 0, len(records))
	for _, p := range model.Providers {
		rec, ok := records[p]
		if !ok {
			continue
		}
		cp := model.ConnectedProvider{
			Provider:  p,
			Connected: true,
			KeyHint:   MaskKey(rec.APIKey),
			UpdatedAt: rec.UpdatedAt,
		}
		if p == model.ProviderAnthropic {
			hasAdmin := rec.AdminKey != ""
			hasSession := rec.SessionKey != ""
			cp.HasAdminKey = &hasAdmin
			cp.HasSessionKey = &hasSession
		}
		out = append(out, cp)
	}
	return out
}

func (v *Vault) persist(ctx context.Context, records map[model.ProviderID]model.CredentialRecord) error {
	plaintext, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal vault: %w", err)
	}

	blob, err := v.cipher.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("encrypt vault: %w", err)
	}

	if err := v.store.Write(ctx, blob); err != nil {
		return fmt.Errorf("write vault: %w", err)
	}
	return nil
}

// MaskKey returns a display hint for secret: the first five and last four
// characters, or "****" for secrets of eight characters or fewer.
func MaskKey(secret string) string {
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:5] + "..." + secret[len(secret)-4:]
}
