// Package filestore implements the BlobStore port on a single JSON file.
package filestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"

	"github.com/ericfisherdev/usagepanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.BlobStore = (*BlobStore)(nil)

// envelope is the on-disk shape: {"encrypted": "<base64>"}.
type envelope struct {
	Encrypted string `json:"encrypted"`
}

// BlobStore persists the encrypted credential blob at a fixed path.
type BlobStore struct {
	path string
}

// NewBlobStore creates a BlobStore for path. The file and its directory are
// created on the first Write.
func NewBlobStore(path string) *BlobStore {
	return &BlobStore{path: path}
}

// Path returns the file location.
func (s *BlobStore) Path() string {
	return s.path
}

// Read returns the stored blob, or driven.ErrBlobNotFound when the file does
// not exist.
func (s *BlobStore) Read(_ context.Context) (string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", driven.ErrBlobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("read credential file: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("parse credential file: %w", err)
	}
	return env.Encrypted, nil
}

// Write replaces the file contents with blob in a single atomic rename.
func (s *BlobStore) Write(_ context.Context, blob string) error {
	data, err := json.Marshal(envelope{Encrypted: blob})
	if err != nil {
		return fmt.Errorf("marshal credential file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := atomic.WriteFile(s.path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := os.Chmod(s.path, 0o600); err != nil {
		return fmt.Errorf("chmod credential file: %w", err)
	}
	return nil
}
