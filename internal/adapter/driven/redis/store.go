// Package redis implements the SnapshotStore port on Redis so cached usage
// survives restarts and is shared between instances.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// DefaultPrefix namespaces every key written by the store.
const DefaultPrefix = "usagepanel:snapshot:"

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*Store)(nil)

// Store keeps JSON-encoded cache entries under prefixed keys that expire
// after ttl.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to redisURL and verifies the connection with a PING.
func New(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return NewWithClient(client, DefaultPrefix, ttl), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(k model.CacheKey) string {
	return s.prefix + k.String()
}

// Get returns the entry for key. A missing or expired key is not an error.
func (s *Store) Get(ctx context.Context, key model.CacheKey) (model.CacheEntry, bool, error) {
	raw, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.CacheEntry{}, false, nil
	}
	if err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("redis get %s: %w", key, err)
	}

	var e model.CacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return model.CacheEntry{}, false, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	e.Key = key
	return e, true, nil
}

// Put stores the entry with the store TTL as its Redis expiry.
func (s *Store) Put(ctx context.Context, entry model.CacheEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", entry.Key, err)
	}
	if err := s.client.Set(ctx, s.key(entry.Key), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", entry.Key, err)
	}
	return nil
}

// Delete removes the entry for key.
func (s *Store) Delete(ctx context.Context, key model.CacheKey) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
