package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	anthropicadapter "github.com/ericfisherdev/usagepanel/internal/adapter/driven/anthropic"
	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/claudesession"
	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/cryptobox"
	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/filestore"
	geminiadapter "github.com/ericfisherdev/usagepanel/internal/adapter/driven/gemini"
	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/memcache"
	openaiadapter "github.com/ericfisherdev/usagepanel/internal/adapter/driven/openai"
	redisadapter "github.com/ericfisherdev/usagepanel/internal/adapter/driven/redis"
	sqliteadapter "github.com/ericfisherdev/usagepanel/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/usagepanel/internal/adapter/driven/upstream"
	"github.com/ericfisherdev/usagepanel/internal/application"
	"github.com/ericfisherdev/usagepanel/internal/config"
	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
	"github.com/ericfisherdev/usagepanel/internal/metrics"
)

// app is the wired object graph shared by every subcommand.
type app struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	vault   *application.Vault
	creds   *application.CredentialService
	cache   *application.UsageCache

	closers []func() error
}

// newApp loads configuration, installs the process logger and wires the
// vault, provider adapters and usage cache.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(cfg.NewLogger())

	a := &app{cfg: cfg, metrics: metrics.New()}

	box, err := cryptobox.NewFromConfig(cfg.EncryptionKey, cfg.KeyFilePath())
	if err != nil {
		return nil, fmt.Errorf("init encryption: %w", err)
	}
	if cfg.EncryptionKey == "" {
		slog.Info("no encryption key configured, using key file", "path", cfg.KeyFilePath())
	}

	blobs, err := a.openBlobStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.vault = application.NewVault(box, blobs, application.WithVaultMetrics(a.metrics))

	registry := a.newRegistry()
	slog.Debug("usage adapters registered", "providers", registry.Providers())

	snapshots, err := a.openSnapshotStore(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	a.cache = application.NewUsageCache(a.vault, registry, snapshots, cfg.CacheTTL,
		application.WithFetchTimeout(cfg.FetchTimeout),
		application.WithCacheMetrics(a.metrics),
	)
	a.creds = application.NewCredentialService(a.vault, registry, a.cache)

	return a, nil
}

func (a *app) openBlobStore(ctx context.Context) (driven.BlobStore, error) {
	switch a.cfg.VaultBackend {
	case config.BackendSQLite:
		db, err := sqliteadapter.NewDB(ctx, a.cfg.DBPath())
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
			return nil, err
		}
		slog.Info("vault backend ready", "backend", config.BackendSQLite, "path", db.Path())
		return sqliteadapter.NewBlobRepo(db, sqliteadapter.DefaultBlobName), nil
	default:
		store := filestore.NewBlobStore(a.cfg.TokensPath())
		slog.Info("vault backend ready", "backend", config.BackendFile, "path", store.Path())
		return store, nil
	}
}

func (a *app) openSnapshotStore(ctx context.Context) (driven.SnapshotStore, error) {
	if !a.cfg.HasRedis() {
		return memcache.NewStore(), nil
	}
	store, err := redisadapter.New(ctx, a.cfg.RedisURL, a.cfg.CacheTTL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, store.Close)
	slog.Info("usage cache backed by redis")
	return store, nil
}

func (a *app) newRegistry() *application.Registry {
	cfg, m := a.cfg, a.metrics

	openai := openaiadapter.NewClient(
		upstream.NewHTTPClient(model.ProviderOpenAI, cfg.HTTPTimeout, m, nil),
		cfg.OpenAIBaseURL,
	)
	anthropic := anthropicadapter.NewClient(
		upstream.NewHTTPClient(model.ProviderAnthropic, cfg.HTTPTimeout, m, nil),
		cfg.AnthropicBaseURL,
	)
	session := claudesession.NewClient(
		upstream.NewHTTPClient(model.ProviderAnthropic, cfg.HTTPTimeout, m, nil),
		cfg.ClaudeWebBaseURL,
	)
	gemini := geminiadapter.NewClient(
		upstream.NewHTTPClient(model.ProviderGemini, cfg.HTTPTimeout, m, nil),
		cfg.GeminiBaseURL,
	)

	return application.NewRegistry(
		application.NewOpenAIAdapter(openai, m),
		application.NewAnthropicAdapter(anthropic, session, m),
		application.NewGeminiAdapter(gemini),
	)
}

// close releases stores in reverse order of opening.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
