package driven

import (
	"context"
	"errors"
)

// ErrBlobNotFound is returned by BlobStore.Read when nothing has been persisted yet.
var ErrBlobNotFound = errors.New("credential blob not found")

// Cipher defines the driven port for authenticated symmetric encryption.
// Decrypt must fail with an error wrapping model.ErrIntegrity when the blob is
// malformed or does not authenticate under the cipher's key.
type Cipher interface {
	Encrypt(plaintext []byte) (string, error)
	Decrypt(blob string) ([]byte, error)
}

// BlobStore defines the driven port for persisting the single encrypted
// credential blob. Implementations replace the stored value in one write.
type BlobStore interface {
	// Read returns the stored blob, or ErrBlobNotFound if none exists.
	Read(ctx context.Context) (string, error)

	// Write replaces the stored blob.
	Write(ctx context.Context, blob string) error
}
