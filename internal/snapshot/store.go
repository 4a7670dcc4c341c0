// Package snapshot owns the device-local reading state the sync core
// reads from and applies merged results back into.
package snapshot

import (
	"errors"

	"github.com/skimapp/skimsync/internal/content"
	"github.com/skimapp/skimsync/internal/models"
)

// Errors
var (
	ErrItemNotFound = errors.New("archive item not found")
)

// SyncConfig is the persisted orchestrator configuration. The
// passphrase itself is never part of it; only the salt needed to
// re-derive the key next session is stored.
type SyncConfig struct {
	Provider          string `json:"provider"`
	EncryptionEnabled bool   `json:"encryptionEnabled"`
	Salt              string `json:"salt,omitempty"` // base64
	LastSyncTime      int64  `json:"lastSyncTime,omitempty"`
}

// Store is the local state the orchestrator syncs. Implementations
// must hand out a fully populated document from StateForSync and
// atomically replace their state in ApplyRemoteState.
type Store interface {
	// DeviceID returns this device's stable identifier, generating
	// one on first use.
	DeviceID() (string, error)

	// StateForSync assembles the current snapshot as a sync document.
	// The document's updatedAt is the last local modification stamp,
	// not the call time: snapshotting is a read, and advancing the
	// stamp here would make every remote write look older than local.
	StateForSync() (*models.SyncStateDocument, error)

	// ApplyRemoteState replaces local state with a merged document.
	ApplyRemoteState(doc *models.SyncStateDocument) error

	// ItemsWithCachedContent returns archive items whose extracted
	// document is cached locally, for content sync.
	ItemsWithCachedContent() ([]content.CachedItem, error)

	// UpdateCachedDocument stores a downloaded document for an item.
	UpdateCachedDocument(itemID string, doc *models.CachedDocument) error

	// SaveSyncConfig persists orchestrator configuration.
	SaveSyncConfig(cfg *SyncConfig) error

	// LoadSyncConfig returns the persisted configuration, or nil if
	// none exists.
	LoadSyncConfig() (*SyncConfig, error)

	// DeleteSyncConfig removes the persisted configuration.
	DeleteSyncConfig() error

	// Close releases resources.
	Close() error
}
