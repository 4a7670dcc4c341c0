package crypto_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skimapp/skimsync/internal/crypto"
	"github.com/skimapp/skimsync/internal/models"
)

type payload struct {
	Title string `json:"title"`
	Pages int    `json:"pages"`
}

func TestCodec_EncryptDecrypt(t *testing.T) {
	codec := crypto.NewTestCodec()

	tests := []struct {
		name       string
		passphrase string
		data       payload
	}{
		{
			name:       "simple payload",
			passphrase: "correct horse battery",
			data:       payload{Title: "Moby Dick", Pages: 635},
		},
		{
			name:       "unicode passphrase",
			passphrase: "пароль-чтения-123",
			data:       payload{Title: "Война и мир", Pages: 1225},
		},
		{
			name:       "empty payload",
			passphrase: "some passphrase",
			data:       payload{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			blob, err := codec.Encrypt(tt.data, tt.passphrase, nil)
			require.NoError(t, err)
			require.NotNil(t, blob)

			assert.Equal(t, models.BlobVersion, blob.Version)
			assert.Equal(t, models.AlgorithmAESGCM, blob.Algorithm)
			assert.False(t, blob.IsPlaintext())
			assert.Positive(t, blob.EncryptedAt)

			var got payload
			require.NoError(t, codec.Decrypt(blob, tt.passphrase, &got))
			assert.Equal(t, tt.data, got)
		})
	}
}

func TestCodec_WrongPassphrase(t *testing.T) {
	codec := crypto.NewTestCodec()

	blob, err := codec.Encrypt(payload{Title: "secret"}, "right passphrase", nil)
	require.NoError(t, err)

	var got payload
	err = codec.Decrypt(blob, "wrong passphrase", &got)
	assert.ErrorIs(t, err, models.ErrDecryptionFailed)
	assert.Empty(t, got.Title)
}

func TestCodec_TamperedCiphertext(t *testing.T) {
	codec := crypto.NewTestCodec()

	blob, err := codec.Encrypt(payload{Title: "secret"}, "passphrase1", nil)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	require.NoError(t, err)
	raw[0] ^= 0xff
	blob.Ciphertext = base64.StdEncoding.EncodeToString(raw)

	var got payload
	err = codec.Decrypt(blob, "passphrase1", &got)
	assert.ErrorIs(t, err, models.ErrDecryptionFailed)
}

func TestCodec_DeriveKeyDeterministic(t *testing.T) {
	codec := crypto.NewTestCodec()
	salt := []byte("0123456789abcdef")

	key1 := codec.DeriveKey("my passphrase", salt)
	key2 := codec.DeriveKey("my passphrase", salt)
	assert.Equal(t, key1, key2)
	assert.Len(t, key1, crypto.KeySize)

	other := codec.DeriveKey("my passphrase", []byte("fedcba9876543210"))
	assert.NotEqual(t, key1, other)
}

func TestCodec_DeriveKeyNormalizesPassphrase(t *testing.T) {
	codec := crypto.NewTestCodec()
	salt := []byte("0123456789abcdef")

	// "é" precomposed (U+00E9) vs "e" + combining acute (U+0301):
	// NFKC folds both to the same key.
	composed := codec.DeriveKey("café", salt)
	decomposed := codec.DeriveKey("café", salt)
	assert.Equal(t, composed, decomposed)
}

func TestCodec_FreshNoncePerEncrypt(t *testing.T) {
	codec := crypto.NewTestCodec()
	salt := []byte("0123456789abcdef")

	blob1, err := codec.Encrypt(payload{Title: "same"}, "passphrase1", salt)
	require.NoError(t, err)
	blob2, err := codec.Encrypt(payload{Title: "same"}, "passphrase1", salt)
	require.NoError(t, err)

	assert.NotEqual(t, blob1.IV, blob2.IV)
	assert.NotEqual(t, blob1.Ciphertext, blob2.Ciphertext)
}

func TestCodec_GenerateSalt(t *testing.T) {
	codec := crypto.NewTestCodec()

	salt1, err := codec.GenerateSalt()
	require.NoError(t, err)
	salt2, err := codec.GenerateSalt()
	require.NoError(t, err)

	assert.Len(t, salt1, crypto.SaltSize)
	assert.NotEqual(t, salt1, salt2)
}

func TestCodec_PlaintextMode(t *testing.T) {
	codec := crypto.NewTestCodec()

	blob, err := codec.EncryptPlaintext(payload{Title: "open book", Pages: 12})
	require.NoError(t, err)
	assert.True(t, blob.IsPlaintext())
	assert.Equal(t, models.PlaintextSalt, blob.Salt)
	assert.Equal(t, models.PlaintextIV, blob.IV)

	// Any passphrase (including none) opens a plaintext blob.
	var got payload
	require.NoError(t, codec.Decrypt(blob, "", &got))
	assert.Equal(t, "open book", got.Title)

	require.NoError(t, codec.Decrypt(blob, "irrelevant", &got))
	assert.Equal(t, 12, got.Pages)
}

func TestCodec_VerifyPassphrase(t *testing.T) {
	codec := crypto.NewTestCodec()

	blob, err := codec.Encrypt(payload{Title: "x"}, "the passphrase", nil)
	require.NoError(t, err)

	ok, err := codec.VerifyPassphrase(blob, "the passphrase")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = codec.VerifyPassphrase(blob, "not the passphrase")
	require.NoError(t, err)
	assert.False(t, ok)

	// A malformed blob is an error, not a quiet false.
	blob.Algorithm = "ROT13"
	_, err = codec.VerifyPassphrase(blob, "the passphrase")
	assert.ErrorIs(t, err, models.ErrInvalidBlob)
}

func TestCodec_BlobRoundTripsThroughWire(t *testing.T) {
	codec := crypto.NewTestCodec()

	blob, err := codec.Encrypt(payload{Title: "wire"}, "passphrase1", nil)
	require.NoError(t, err)

	data, err := blob.Marshal()
	require.NoError(t, err)

	parsed, err := models.ParseBlob(data)
	require.NoError(t, err)

	var got payload
	require.NoError(t, codec.Decrypt(parsed, "passphrase1", &got))
	assert.Equal(t, "wire", got.Title)
}
