// Package memcache implements the SnapshotStore port in process memory.
package memcache

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SnapshotStore = (*Store)(nil)

// Store keeps cache entries in a map guarded by a RWMutex.
type Store struct {
	mu      sync.RWMutex
	entries map[model.CacheKey]model.CacheEntry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[model.CacheKey]model.CacheEntry)}
}

// Get returns the entry for key.
func (s *Store) Get(_ context.Context, key model.CacheKey) (model.CacheEntry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	return e, ok, nil
}

// Put stores or overwrites the entry for entry.Key.
func (s *Store) Put(_ context.Context, entry model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[entry.Key] = entry
	return nil
}

// Delete removes the entry for key.
func (s *Store) Delete(_ context.Context, key model.CacheKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	return nil
}

// Sweep evicts entries fetched more than ttl before now and returns how many
// were removed.
func (s *Store) Sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed int
	for k, e := range s.entries {
		if now.Sub(e.FetchedAt) > ttl {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
