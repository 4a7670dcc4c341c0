package models

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// EncryptedBlob wire format constants.
const (
	BlobVersion     = 1
	AlgorithmAESGCM = "AES-GCM"

	// Sentinel salt/iv values marking a plaintext blob. The shape is
	// kept identical to the encrypted form so existing remote data
	// written by either mode parses the same way.
	PlaintextSalt = "UNENCRYPTED"
	PlaintextIV   = "PLAIN"
)

// EncryptedBlob is the self-describing envelope stored remotely. It
// carries everything needed to derive its own key: the codec only
// needs the user passphrase at decrypt time.
type EncryptedBlob struct {
	Version     int    `json:"version"`
	Algorithm   string `json:"algorithm"`
	Salt        string `json:"salt"` // base64, or PlaintextSalt
	IV          string `json:"iv"`   // base64, or PlaintextIV
	Ciphertext  string `json:"ciphertext"`
	EncryptedAt int64  `json:"encryptedAt"` // epoch ms
}

// IsPlaintext reports whether the blob carries unencrypted payload.
// Detection is static; a plaintext blob is never fed to AES-GCM.
func (b *EncryptedBlob) IsPlaintext() bool {
	return b.Salt == PlaintextSalt && b.IV == PlaintextIV
}

// Validate checks the envelope before any decode attempt.
func (b *EncryptedBlob) Validate() error {
	if b.Version != BlobVersion {
		return fmt.Errorf("%w: unsupported blob version %d", ErrInvalidBlob, b.Version)
	}
	if b.Algorithm != AlgorithmAESGCM {
		return fmt.Errorf("%w: unsupported algorithm %q", ErrInvalidBlob, b.Algorithm)
	}
	if b.Ciphertext == "" {
		return fmt.Errorf("%w: empty ciphertext", ErrInvalidBlob)
	}
	if b.IsPlaintext() {
		return nil
	}
	if _, err := base64.StdEncoding.DecodeString(b.Salt); err != nil {
		return fmt.Errorf("%w: bad salt encoding", ErrInvalidBlob)
	}
	if _, err := base64.StdEncoding.DecodeString(b.IV); err != nil {
		return fmt.Errorf("%w: bad iv encoding", ErrInvalidBlob)
	}
	return nil
}

// ParseBlob decodes an EncryptedBlob from its JSON wire form.
func ParseBlob(data []byte) (*EncryptedBlob, error) {
	var blob EncryptedBlob
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	if err := blob.Validate(); err != nil {
		return nil, err
	}
	return &blob, nil
}

// Marshal encodes the blob to its JSON wire form.
func (b *EncryptedBlob) Marshal() ([]byte, error) {
	return json.Marshal(b)
}
