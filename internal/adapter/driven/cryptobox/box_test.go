package cryptobox

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/usagepanel/internal/domain/model"
)

func testBox(t *testing.T) *Box {
	t.Helper()
	// Fixed 32-byte key for deterministic tests.
	box, err := New([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	return box
}

func TestBox_Roundtrip(t *testing.T) {
	box := testBox(t)

	payloads := [][]byte{
		{},
		[]byte("x"),
		[]byte(`{"openai":{"apiKey":"sk-123","updatedAt":"2026-01-01T00:00:00Z"}}`),
		bytes.Repeat([]byte{0x00, 0xff, 0x10}, 4096),
	}

	for _, p := range payloads {
		blob, err := box.Encrypt(p)
		require.NoError(t, err)

		got, err := box.Decrypt(blob)
		require.NoError(t, err)
		assert.True(t, bytes.Equal(p, got), "roundtrip mismatch for %d-byte payload", len(p))
	}
}

func TestBox_DifferentCiphertexts(t *testing.T) {
	box := testBox(t)

	enc1, err := box.Encrypt([]byte("same input"))
	require.NoError(t, err)
	enc2, err := box.Encrypt([]byte("same input"))
	require.NoError(t, err)

	assert.NotEqual(t, enc1, enc2, "random IV must produce distinct blobs")
}

func TestBox_Layout(t *testing.T) {
	box := testBox(t)

	blob, err := box.Encrypt([]byte("hello"))
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)
	assert.Len(t, raw, ivSize+tagSize+len("hello"))
}

func TestBox_TamperDetection(t *testing.T) {
	box := testBox(t)

	blob, err := box.Encrypt([]byte("credential payload"))
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(blob)
	require.NoError(t, err)

	// Flip every bit after the IV: the tag and the ciphertext.
	for i := ivSize; i < len(raw); i++ {
		for bit := 0; bit < 8; bit++ {
			tampered := bytes.Clone(raw)
			tampered[i] ^= 1 << bit

			got, err := box.Decrypt(base64.StdEncoding.EncodeToString(tampered))
			require.ErrorIs(t, err, model.ErrIntegrity, "byte %d bit %d", i, bit)
			assert.Nil(t, got)
		}
	}
}

func TestBox_WrongKeyFailsClosed(t *testing.T) {
	blob, err := testBox(t).Encrypt([]byte("secret"))
	require.NoError(t, err)

	other, err := New(DeriveKey("another secret"))
	require.NoError(t, err)

	got, err := other.Decrypt(blob)
	assert.ErrorIs(t, err, model.ErrIntegrity)
	assert.Nil(t, got)
}

func TestBox_MalformedBlob(t *testing.T) {
	box := testBox(t)

	_, err := box.Decrypt("!!!not-base64!!!")
	assert.ErrorIs(t, err, model.ErrIntegrity)

	short := base64.StdEncoding.EncodeToString(make([]byte, ivSize+tagSize-1))
	_, err = box.Decrypt(short)
	assert.ErrorIs(t, err, model.ErrIntegrity)
}

func TestNew_InvalidKeyLength(t *testing.T) {
	_, err := New([]byte("0123456789abcdef"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestDeriveKey_Deterministic(t *testing.T) {
	k1 := DeriveKey("correct horse battery staple")
	k2 := DeriveKey("correct horse battery staple")
	k3 := DeriveKey("different")

	assert.Len(t, k1, KeySize)
	assert.Equal(t, k1, k2)
	assert.NotEqual(t, k1, k3)
}

func TestNewFromConfig_SecretIgnoresKeyFile(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "data", ".encryption-key")

	box, err := NewFromConfig("env secret", keyPath)
	require.NoError(t, err)
	require.NotNil(t, box)

	_, err = os.Stat(keyPath)
	assert.True(t, os.IsNotExist(err), "key file must not be created when a secret is configured")

	// Two boxes derived from the same secret read each other's blobs.
	again, err := NewFromConfig("env secret", keyPath)
	require.NoError(t, err)
	blob, err := box.Encrypt([]byte("x"))
	require.NoError(t, err)
	got, err := again.Decrypt(blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), got)
}

func TestLoadOrCreateKeyFile_Idempotent(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "data", ".encryption-key")

	first, err := LoadOrCreateKeyFile(keyPath)
	require.NoError(t, err)
	second, err := LoadOrCreateKeyFile(keyPath)
	require.NoError(t, err)

	assert.Len(t, first, KeySize)
	assert.Equal(t, first, second)

	info, err := os.Stat(keyPath)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	raw, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(first), string(raw))
}

func TestLoadOrCreateKeyFile_CorruptFileIsError(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), ".encryption-key")
	require.NoError(t, os.WriteFile(keyPath, []byte("zz-not-hex"), 0o600))

	_, err := LoadOrCreateKeyFile(keyPath)
	require.Error(t, err)

	raw, err := os.ReadFile(keyPath)
	require.NoError(t, err)
	assert.Equal(t, "zz-not-hex", string(raw), "corrupt key file must not be overwritten")
}
