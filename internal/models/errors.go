package models

import (
	"errors"
	"fmt"
)

// Error codes for structured error handling.
const (
	ErrCodeConfig     = "CONFIG_ERROR"
	ErrCodeDecryption = "DECRYPTION_ERROR"
	ErrCodeIntegrity  = "INTEGRITY_ERROR"
	ErrCodeUpload     = "UPLOAD_ERROR"
	ErrCodeDownload   = "DOWNLOAD_ERROR"
	ErrCodeContent    = "CONTENT_ERROR"
	ErrCodeState      = "STATE_ERROR"
)

// Sentinel errors
var (
	ErrSyncInProgress     = errors.New("sync already in progress")
	ErrNotConfigured      = errors.New("sync provider not configured")
	ErrPassphraseRequired = errors.New("passphrase required")
	ErrPassphraseTooShort = errors.New("passphrase must be at least 8 characters")
	ErrDecryptionFailed   = errors.New("decryption failed: wrong passphrase or corrupted data")
	ErrInvalidBlob        = errors.New("invalid encrypted blob")
	ErrNoRemoteData       = errors.New("no remote data")
	ErrNotConnected       = errors.New("provider not connected")
)

// ConfigError reports a failed Configure attempt.
type ConfigError struct {
	Reason string // "passphrase", "decrypt", "provider"
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration failed (%s)", e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// SyncError wraps a state-file-level failure with the phase it
// occurred in. These abort the current sync attempt.
type SyncError struct {
	Code  string
	Phase string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("sync %s [%s]: %v", e.Phase, e.Code, e.Err)
}

func (e *SyncError) Unwrap() error {
	return e.Err
}

// ContentItemError is a per-item content sync failure. These are
// collected, never thrown: one bad document must not abort the batch.
type ContentItemError struct {
	ItemID    string `json:"itemId"`
	Operation string `json:"operation"` // "upload", "download", "delete"
	Message   string `json:"message"`
}

func (e *ContentItemError) Error() string {
	return fmt.Sprintf("content %s failed for item %s: %s", e.Operation, e.ItemID, e.Message)
}

// IntegrityError records a checksum mismatch. Treated as a warning by
// the content manager: the payload may still be usable.
type IntegrityError struct {
	ContentKey string
	Expected   string
	Actual     string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("checksum mismatch for %s: expected %s, got %s",
		e.ContentKey, e.Expected, e.Actual)
}
