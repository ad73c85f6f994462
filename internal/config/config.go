// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Vault backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	// EncryptionKey is the external vault secret. When empty the key is
	// generated into KeyFilePath on first start.
	EncryptionKey string
	DataDir       string
	VaultBackend  string
	ListenAddr    string
	CacheTTL      time.Duration
	HTTPTimeout   time.Duration
	// FetchTimeout bounds one full usage fetch, independent of the request
	// that triggered it.
	FetchTimeout time.Duration
	RedisURL      string
	LogLevel      slog.Level
	LogFormat     string

	OpenAIBaseURL    string
	AnthropicBaseURL string
	GeminiBaseURL    string
	ClaudeWebBaseURL string
}

// TokensPath returns the encrypted credential file used by the file backend.
func (c *Config) TokensPath() string {
	return filepath.Join(c.DataDir, "tokens.json")
}

// KeyFilePath returns the generated key file used when no EncryptionKey is set.
func (c *Config) KeyFilePath() string {
	return filepath.Join(c.DataDir, ".encryption-key")
}

// DBPath returns the database file used by the sqlite backend.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "usagepanel.db")
}

// HasRedis reports whether snapshots are cached in Redis instead of memory.
func (c *Config) HasRedis() bool {
	return c.RedisURL != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is loaded first when present; variables
// already set in the environment win.
// Optional variables with defaults: USAGEPANEL_DATA_DIR (data),
// USAGEPANEL_VAULT_BACKEND (file), USAGEPANEL_LISTEN_ADDR (127.0.0.1:8080),
// USAGEPANEL_CACHE_TTL (1h), USAGEPANEL_HTTP_TIMEOUT (20s),
// USAGEPANEL_FETCH_TIMEOUT (2m),
// USAGEPANEL_LOG_LEVEL (info), USAGEPANEL_LOG_FORMAT (text).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		EncryptionKey:    firstEnv("USAGEPANEL_ENCRYPTION_KEY", "ENCRYPTION_KEY"),
		DataDir:          getEnv("USAGEPANEL_DATA_DIR", "data"),
		VaultBackend:     strings.ToLower(getEnv("USAGEPANEL_VAULT_BACKEND", BackendFile)),
		ListenAddr:       getEnv("USAGEPANEL_LISTEN_ADDR", "127.0.0.1:8080"),
		RedisURL:         os.Getenv("USAGEPANEL_REDIS_URL"),
		LogFormat:        strings.ToLower(getEnv("USAGEPANEL_LOG_FORMAT", LogFormatText)),
		OpenAIBaseURL:    os.Getenv("USAGEPANEL_OPENAI_BASE_URL"),
		AnthropicBaseURL: os.Getenv("USAGEPANEL_ANTHROPIC_BASE_URL"),
		GeminiBaseURL:    os.Getenv("USAGEPANEL_GEMINI_BASE_URL"),
		ClaudeWebBaseURL: os.Getenv("USAGEPANEL_CLAUDE_WEB_BASE_URL"),
	}

	var err error
	if cfg.CacheTTL, err = getDuration("USAGEPANEL_CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.HTTPTimeout, err = getDuration("USAGEPANEL_HTTP_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = getDuration("USAGEPANEL_FETCH_TIMEOUT", 2*time.Minute); err != nil {
		return nil, err
	}

	switch cfg.VaultBackend {
	case BackendFile, BackendSQLite:
	default:
		return nil, fmt.Errorf("USAGEPANEL_VAULT_BACKEND must be %q or %q, got %q", BackendFile, BackendSQLite, cfg.VaultBackend)
	}

	switch cfg.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return nil, fmt.Errorf("USAGEPANEL_LOG_FORMAT must be %q or %q, got %q", LogFormatText, LogFormatJSON, cfg.LogFormat)
	}

	if v, ok := os.LookupEnv("USAGEPANEL_LOG_LEVEL"); ok && v != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(v)); err != nil {
			return nil, fmt.Errorf("USAGEPANEL_LOG_LEVEL has invalid level %q: %w", v, err)
		}
	}

	return cfg, nil
}

// NewLogger builds the process logger for the configured level and format.
func (c *Config) NewLogger() *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == LogFormatJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return parsed, nil
}
