package driven

import (
	"context"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

// SnapshotStore defines the driven port for cached usage reports. Exactly one
// entry exists per key; Put overwrites.
type SnapshotStore interface {
	// Get returns the entry for key and whether it exists.
	Get(ctx context.Context, key model.CacheKey) (model.CacheEntry, bool, error)

	// Put stores or overwrites the entry for entry.Key.
	Put(ctx context.Context, entry model.CacheEntry) error

	// Delete removes the entry for key if present.
	Delete(ctx context.Context, key model.CacheKey) error
}
