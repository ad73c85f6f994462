package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/usagepanel/internal/metrics"
)

// DefaultCacheTTL is how long a fetched report is served before refetching.
const DefaultCacheTTL = time.Hour

// DefaultFetchTimeout bounds one shared upstream fetch.
const DefaultFetchTimeout = 2 * time.Minute

// ErrNotConnected is returned when usage is requested for a provider without
// a stored credential.
var ErrNotConnected = errors.New("provider not connected")

// CredentialSource looks up stored credentials. *Vault implements it.
type CredentialSource interface {
	Get(ctx context.Context, provider model.ProviderID) (model.CredentialRecord, bool)
}

// sweeper is implemented by stores that evict expired entries on demand.
type sweeper interface {
	Sweep(now time.Time, ttl time.Duration) int
}

// UsageCache serves usage reports per (provider, window) and refetches them
// once they are older than the TTL. Concurrent misses for the same key share
// one upstream fetch.
type UsageCache struct {
	creds    CredentialSource
	registry *Registry
	store    driven.SnapshotStore
	ttl      time.Duration
	timeout  time.Duration
	now      func() time.Time
	metrics  *metrics.Metrics

	group singleflight.Group

	mu   sync.Mutex
	seen map[model.CacheKey]struct{}
}

// CacheOption configures a UsageCache.
type CacheOption func(*UsageCache)

// WithCacheClock replaces the clock used for freshness checks.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *UsageCache) {
		c.now = now
	}
}

// WithFetchTimeout bounds each shared upstream fetch. Non-positive values
// keep DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) CacheOption {
	return func(c *UsageCache) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithCacheMetrics records lookups and refreshes on m.
func WithCacheMetrics(m *metrics.Metrics) CacheOption {
	return func(c *UsageCache) {
		c.metrics = m
	}
}

// NewUsageCache creates a UsageCache. A non-positive ttl selects DefaultCacheTTL.
func NewUsageCache(creds CredentialSource, registry *Registry, store driven.SnapshotStore, ttl time.Duration, opts ...CacheOption) *UsageCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	c := &UsageCache{
		creds:    creds,
		registry: registry,
		store:    store,
		ttl:      ttl,
		timeout:  DefaultFetchTimeout,
		now:      time.Now,
		seen:     make(map[model.CacheKey]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the report for provider over windowDays. A fresh cached entry
// is returned without contacting the provider unless force is set.
func (c *UsageCache) Get(ctx context.Context, provider model.ProviderID, windowDays int, force bool) (model.CacheEntry, error) {
	if _, err := c.registry.Get(provider); err != nil {
		return model.CacheEntry{}, err
	}

	cred, ok := c.creds.Get(ctx, provider)
	if !ok {
		return model.CacheEntry{}, fmt.Errorf("%w: %s", ErrNotConnected, provider)
	}

	key := model.CacheKey{Provider: provider, WindowDays: model.ClampWindowDays(windowDays)}
	c.track(key)

	if force {
		c.metrics.CacheLookup(string(provider), "forced")
	} else {
		entry, ok, err := c.store.Get(ctx, key)
		if err != nil {
			slog.Warn("usage cache read failed", "key", key.String(), "error", err)
		}
		if ok && c.now().Sub(entry.FetchedAt) < c.ttl {
			c.metrics.CacheLookup(string(provider), "hit")
			return entry, nil
		}
		c.metrics.CacheLookup(string(provider), "miss")
	}

	return c.fetch(ctx, key, cred)
}

// fetch collapses concurrent fetches for key into one upstream call. The
// shared call is detached from any single caller's cancellation and bounded
// by the fetch timeout instead; a caller whose ctx ends stops waiting without
// aborting the fetch for the others.
func (c *UsageCache) fetch(ctx context.Context, key model.CacheKey, cred model.CredentialRecord) (model.CacheEntry, error) {
	ch := c.group.DoChan(key.String(), func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.refresh(fetchCtx, key, cred)
	})

	select {
	case <-ctx.Done():
		return model.CacheEntry{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return model.CacheEntry{}, res.Err
		}
		if res.Shared {
			slog.Debug("usage fetch shared", "key", key.String())
		}
		return res.Val.(model.CacheEntry), nil
	}
}

// refresh fetches and stores one report. A report assembled after ctx ended
// is degraded by the cancellation itself and is discarded.
func (c *UsageCache) refresh(ctx context.Context, key model.CacheKey, cred model.CredentialRecord) (model.CacheEntry, error) {
	adapter, err := c.registry.Get(key.Provider)
	if err != nil {
		return model.CacheEntry{}, err
	}

	start := c.now()
	report, err := adapter.FetchUsage(ctx, cred, model.NewWindow(key.WindowDays, start))
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return model.CacheEntry{}, fmt.Errorf("fetch %s usage: %w", key.Provider, err)
	}

	entry := model.CacheEntry{Key: key, Report: report, FetchedAt: c.now()}
	if err := c.store.Put(ctx, entry); err != nil {
		slog.Warn("usage cache write failed", "key", key.String(), "error", err)
	}

	slog.Info("usage fetched",
		"provider", key.Provider,
		"window_days", key.WindowDays,
		"duration", c.now().Sub(start).Round(time.Millisecond),
	)
	return entry, nil
}

// Invalidate drops every cached report of provider.
func (c *UsageCache) Invalidate(ctx context.Context, provider model.ProviderID) {
	keys := []model.CacheKey{{Provider: provider, WindowDays: model.DefaultWindowDays}}
	for _, k := range c.trackedKeys() {
		if k.Provider == provider && k.WindowDays != model.DefaultWindowDays {
			keys = append(keys, k)
		}
	}

	for _, k := range keys {
		if err := c.store.Delete(ctx, k); err != nil {
			slog.Warn("usage cache delete failed", "key", k.String(), "error", err)
		}
	}
	slog.Debug("usage cache invalidated", "provider", provider, "keys", len(keys))
}

// Start refreshes every previously requested key once per TTL until ctx is
// canceled. Keys whose provider is no longer connected are dropped. Start
// blocks.
func (c *UsageCache) Start(ctx context.Context) {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("usage refresh loop stopped")
			return
		case <-ticker.C:
			c.refreshAll(ctx)
		}
	}
}

func (c *UsageCache) refreshAll(ctx context.Context) {
	start := c.now()
	var refreshed, dropped, failed int

	for _, key := range c.trackedKeys() {
		if ctx.Err() != nil {
			return
		}

		cred, ok := c.creds.Get(ctx, key.Provider)
		if !ok {
			c.untrack(key)
			if err := c.store.Delete(ctx, key); err != nil {
				slog.Warn("usage cache delete failed", "key", key.String(), "error", err)
			}
			dropped++
			continue
		}

		if _, err := c.fetch(ctx, key, cred); err != nil {
			slog.Error("background usage refresh failed", "key", key.String(), "error", err)
			c.metrics.CacheRefresh(string(key.Provider), "error")
			failed++
			continue
		}
		c.metrics.CacheRefresh(string(key.Provider), "ok")
		refreshed++
	}

	if s, ok := c.store.(sweeper); ok {
		s.Sweep(c.now(), c.ttl)
	}

	slog.Info("usage refresh cycle complete",
		"refreshed", refreshed,
		"dropped", dropped,
		"errors", failed,
		"duration", c.now().Sub(start).Round(time.Millisecond),
	)
}

func (c *UsageCache) track(key model.CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen[key] = struct{}{}
}

func (c *UsageCache) untrack(key model.CacheKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.seen, key)
}

func (c *UsageCache) trackedKeys() []model.CacheKey {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]model.CacheKey, 0, len(c.seen))
	for k := range c.seen {
		keys = append(keys, k)
	}
	return keys
}
