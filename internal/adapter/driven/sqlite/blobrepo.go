package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// DefaultBlobName is the row holding the credential vault.
const DefaultBlobName = "credentials"

// Compile-time interface satisfaction check.
var _ driven.BlobStore = (*BlobRepo)(nil)

// BlobRepo is the SQLite implementation of the BlobStore port. The row
// payload is the same {"encrypted": ...} envelope the file backend writes, so
// a vault can be moved between backends by copying the payload.
type BlobRepo struct {
	db   *DB
	name string
}

// NewBlobRepo creates a BlobRepo storing its blob under name.
func NewBlobRepo(db *DB, name string) *BlobRepo {
	if name == "" {
		name = DefaultBlobName
	}
	return &BlobRepo{db: db, name: name}
}

type envelope struct {
	Encrypted string `json:"encrypted"`
}

// Read returns the stored blob, or driven.ErrBlobNotFound if the row is absent.
func (r *BlobRepo) Read(ctx context.Context) (string, error) {
	const query = `SELECT payload FROM vault_blobs WHERE name = ?`

	var payload string
	err := r.db.Reader.QueryRowContext(ctx, query, r.name).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return "", driven.ErrBlobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read vault blob %q: %w", r.name, err)
	}

	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		return "", fmt.Errorf("parse vault blob %q: %w", r.name, err)
	}
	return env.Encrypted, nil
}

// Write stores or replaces the blob in a single statement.
func (r *BlobRepo) Write(ctx context.Context, blob string) error {
	payload, err := json.Marshal(envelope{Encrypted: blob})
	if err != nil {
		return fmt.Errorf("marshal vault blob: %w", err)
	}

	const query = `INSERT OR REPLACE INTO vault_blobs (name, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	if _, err := r.db.Writer.ExecContext(ctx, query, r.name, string(payload)); err != nil {
		return fmt.Errorf("write vault blob %q: %w", r.name, err)
	}
	return nil
}
