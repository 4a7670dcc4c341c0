package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/text/unicode/norm"

	"github.com/skimapp/skimsync/internal/models"
)

const (
	// Key sizes
	KeySize   = 32 // AES-256
	NonceSize = 12 // GCM standard
	TagSize   = 16 // GCM tag

	// PBKDF2 parameters
	DefaultIterations = 250000
	SaltSize          = 16
)

// Codec encrypts and decrypts sync payloads. Key derivation is fully
// determined by (passphrase, salt); the codec holds no per-session
// state and is safe for concurrent use.
type Codec struct {
	iterations int
}

// NewCodec creates a codec with production derivation parameters.
func NewCodec() *Codec {
	return &Codec{iterations: DefaultIterations}
}

// NewTestCodec lowers the iteration count so test suites stay fast.
func NewTestCodec() *Codec {
	return &Codec{iterations: 1000}
}

// DeriveKey derives a 256-bit key from a passphrase and salt. The
// passphrase is NFKC-normalized first so a passphrase typed on a
// different keyboard layout or IME still derives the same key.
func (c *Codec) DeriveKey(passphrase string, salt []byte) []byte {
	normalized := norm.NFKC.String(passphrase)
	return pbkdf2.Key([]byte(normalized), salt, c.iterations, KeySize, sha256.New)
}

// GenerateSalt returns a fresh random salt.
func (c *Codec) GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt serializes data to JSON and seals it into an EncryptedBlob.
// A nil salt generates a fresh one. The nonce is always freshly
// random; it is never reused across calls even with the same key.
func (c *Codec) Encrypt(data interface{}, passphrase string, salt []byte) (*models.EncryptedBlob, error) {
	plaintext, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}

	if salt == nil {
		if salt, err = c.GenerateSalt(); err != nil {
			return nil, err
		}
	}

	key := c.DeriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	return &models.EncryptedBlob{
		Version:     models.BlobVersion,
		Algorithm:   models.AlgorithmAESGCM,
		Salt:        base64.StdEncoding.EncodeToString(salt),
		IV:          base64.StdEncoding.EncodeToString(nonce),
		Ciphertext:  base64.StdEncoding.EncodeToString(ciphertext),
		EncryptedAt: time.Now().UnixMilli(),
	}, nil
}

// EncryptPlaintext wraps data in the blob shape without encrypting
// it, marked with the sentinel salt/iv values. Used when the
// transport is already trusted at a lower layer.
func (c *Codec) EncryptPlaintext(data interface{}) (*models.EncryptedBlob, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("serialize payload: %w", err)
	}

	return &models.EncryptedBlob{
		Version:     models.BlobVersion,
		Algorithm:   models.AlgorithmAESGCM,
		Salt:        models.PlaintextSalt,
		IV:          models.PlaintextIV,
		Ciphertext:  base64.StdEncoding.EncodeToString(payload),
		EncryptedAt: time.Now().UnixMilli(),
	}, nil
}

// Decrypt opens a blob and unmarshals the payload into out. A
// plaintext blob is decoded directly and never fed to AES-GCM. An
// authentication failure (wrong passphrase or tampered ciphertext)
// returns models.ErrDecryptionFailed; no partial or silently-wrong
// value is ever produced.
func (c *Codec) Decrypt(blob *models.EncryptedBlob, passphrase string, out interface{}) error {
	if err := blob.Validate(); err != nil {
		return err
	}

	if blob.IsPlaintext() {
		payload, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
		if err != nil {
			return fmt.Errorf("%w: bad ciphertext encoding", models.ErrInvalidBlob)
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode plaintext payload: %w", err)
		}
		return nil
	}

	salt, err := base64.StdEncoding.DecodeString(blob.Salt)
	if err != nil {
		return fmt.Errorf("%w: bad salt encoding", models.ErrInvalidBlob)
	}
	nonce, err := base64.StdEncoding.DecodeString(blob.IV)
	if err != nil {
		return fmt.Errorf("%w: bad iv encoding", models.ErrInvalidBlob)
	}
	if len(nonce) != NonceSize {
		return fmt.Errorf("%w: iv must be %d bytes", models.ErrInvalidBlob, NonceSize)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(blob.Ciphertext)
	if err != nil {
		return fmt.Errorf("%w: bad ciphertext encoding", models.ErrInvalidBlob)
	}
	if len(ciphertext) < TagSize {
		return fmt.Errorf("%w: ciphertext shorter than auth tag", models.ErrInvalidBlob)
	}

	key := c.DeriveKey(passphrase, salt)

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("create GCM: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return models.ErrDecryptionFailed
	}

	if err := json.Unmarshal(plaintext, out); err != nil {
		return fmt.Errorf("decode decrypted payload: %w", err)
	}
	return nil
}

// VerifyPassphrase reports whether passphrase opens the blob. A
// failed authentication maps to false; any other error propagates.
func (c *Codec) VerifyPassphrase(blob *models.EncryptedBlob, passphrase string) (bool, error) {
	var discard json.RawMessage
	err := c.Decrypt(blob, passphrase, &discard)
	if errors.Is(err, models.ErrDecryptionFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
