// Package content moves large document payloads between the local
// cache and the remote store. The manifest keeps content that is
// already present remotely from ever being uploaded twice.
package content

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/skimapp/skimsync/internal/crypto"
	"github.com/skimapp/skimsync/internal/events"
	"github.com/skimapp/skimsync/internal/models"
	"github.com/skimapp/skimsync/internal/remote"
)

// CachedItem pairs an archive item with its locally cached document.
type CachedItem struct {
	Item     models.ArchiveItem
	Document *models.CachedDocument
}

// DownloadedContent reports a document fetched during SyncContent so
// the caller can apply it to the local cache.
type DownloadedContent struct {
	ArchiveItemID string
	Document      *models.CachedDocument
}

// SyncResult summarizes one content reconciliation pass.
type SyncResult struct {
	Manifest   *models.ContentManifest
	Uploaded   []string // content keys
	Downloaded []DownloadedContent
	Errors     []models.ContentItemError
}

// Changed reports whether the pass moved any content.
func (r *SyncResult) Changed() bool {
	return len(r.Uploaded) > 0 || len(r.Downloaded) > 0
}

// Manager compresses, checksums, optionally encrypts and transfers
// per-document content blobs. Encryption credentials live only for
// the session: set after configure, cleared on disconnect, never
// persisted.
type Manager struct {
	store  remote.Store
	codec  *crypto.Codec
	logger *events.Logger

	mu         sync.Mutex
	passphrase string
	salt       []byte
	encrypt    bool
}

// NewManager creates a content manager against a remote store.
func NewManager(store remote.Store, codec *crypto.Codec, logger *events.Logger) *Manager {
	return &Manager{
		store:  store,
		codec:  codec,
		logger: logger.WithField("component", "content_manager"),
	}
}

// SetCredentials arms content encryption for the session.
func (m *Manager) SetCredentials(passphrase string, salt []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passphrase = passphrase
	m.salt = append([]byte(nil), salt...)
	m.encrypt = true
}

// ClearCredentials drops the session credentials.
func (m *Manager) ClearCredentials() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.passphrase = ""
	m.salt = nil
	m.encrypt = false
}

func (m *Manager) credentials() (string, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.passphrase, append([]byte(nil), m.salt...), m.encrypt
}

// ContentKey returns the stable identifier addressing an item's
// content blob: the file hash when known, otherwise a hash of the
// URL or id. Independent of the item's local record id, so the same
// document keyed from two devices lands on the same blob.
func ContentKey(item models.ArchiveItem) string {
	if item.FileHash != "" {
		return item.FileHash
	}
	source := item.URL
	if source == "" {
		source = item.ID
	}
	digest := sha256.Sum256([]byte(source))
	return hex.EncodeToString(digest[:])
}

// Checksum computes the integrity digest over a compressed blob.
func Checksum(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// Compress serializes and gzips a document.
func Compress(doc *models.CachedDocument) ([]byte, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("serialize document: %w", err)
	}

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("create gzip writer: %w", err)
	}
	if _, err := gz.Write(payload); err != nil {
		return nil, fmt.Errorf("compress document: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("flush gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decompress reverses Compress.
func Decompress(data []byte) (*models.CachedDocument, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create gzip reader: %w", err)
	}
	defer gz.Close()

	payload, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress document: %w", err)
	}

	var doc models.CachedDocument
	if err := json.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return &doc, nil
}

// UploadContent pushes one document blob and returns its manifest
// entry, or nil on failure. Failures are per-item: the caller records
// them and moves on.
func (m *Manager) UploadContent(ctx context.Context, item models.ArchiveItem, doc *models.CachedDocument) *models.ContentManifestItem {
	key := ContentKey(item)
	log := m.logger.WithFields(map[string]interface{}{
		"content_key": key,
		"item_id":     item.ID,
	})

	compressed, err := Compress(doc)
	if err != nil {
		log.WithError(err).Error("Failed to compress content")
		return nil
	}
	checksum := Checksum(compressed)

	payload := compressed
	if passphrase, salt, encrypt := m.credentials(); encrypt {
		blob, err := m.codec.Encrypt(compressed, passphrase, salt)
		if err != nil {
			log.WithError(err).Error("Failed to encrypt content")
			return nil
		}
		if payload, err = blob.Marshal(); err != nil {
			log.WithError(err).Error("Failed to marshal content blob")
			return nil
		}
	}

	if err := m.store.UploadContentFile(ctx, key, payload); err != nil {
		log.WithError(err).Error("Failed to upload content")
		return nil
	}

	originalSize := 0
	if raw, err := json.Marshal(doc); err == nil {
		originalSize = len(raw)
	}

	log.WithField("compressed_size", len(compressed)).Debug("Uploaded content")

	return &models.ContentManifestItem{
		ContentKey:     key,
		ArchiveItemID:  item.ID,
		FileHash:       item.FileHash,
		Type:           item.Type,
		Title:          item.Title,
		CompressedSize: len(compressed),
		OriginalSize:   originalSize,
		SyncedAt:       time.Now().UnixMilli(),
		Checksum:       checksum,
	}
}

// DownloadContent fetches and unpacks one blob. A checksum mismatch
// is logged and tolerated; the content may still be usable, and
// refusing it would strand the document on its origin device.
func (m *Manager) DownloadContent(ctx context.Context, entry models.ContentManifestItem) *models.CachedDocument {
	log := m.logger.WithFields(map[string]interface{}{
		"content_key": entry.ContentKey,
		"item_id":     entry.ArchiveItemID,
	})

	payload, err := m.store.DownloadContentFile(ctx, entry.ContentKey)
	if err != nil {
		log.WithError(err).Error("Failed to download content")
		return nil
	}

	compressed := payload
	if blob, err := models.ParseBlob(payload); err == nil {
		passphrase, _, encrypt := m.credentials()
		if !blob.IsPlaintext() && !encrypt {
			log.Error("Encrypted content but no session credentials")
			return nil
		}
		var inner []byte
		if err := m.codec.Decrypt(blob, passphrase, &inner); err != nil {
			log.WithError(err).Error("Failed to decrypt content")
			return nil
		}
		compressed = inner
	}

	if actual := Checksum(compressed); entry.Checksum != "" && actual != entry.Checksum {
		intErr := &models.IntegrityError{
			ContentKey: entry.ContentKey,
			Expected:   entry.Checksum,
			Actual:     actual,
		}
		log.WithError(intErr).Warn("Content checksum mismatch, using anyway")
	}

	doc, err := Decompress(compressed)
	if err != nil {
		log.WithError(err).Error("Failed to decompress content")
		return nil
	}
	return doc
}

// SyncContent reconciles local cached documents against the manifest:
// cached content missing from the manifest is uploaded, manifest
// entries without local content are downloaded. Individual failures
// accumulate in Errors and never abort the batch.
func (m *Manager) SyncContent(ctx context.Context, localItems []CachedItem, manifest *models.ContentManifest) *SyncResult {
	if manifest == nil {
		manifest = models.NewContentManifest()
	}
	result := &SyncResult{Manifest: manifest.Clone()}

	if err := m.store.EnsureContentFolder(ctx); err != nil {
		m.logger.WithError(err).Warn("Could not ensure content folder")
	}

	haveLocal := make(map[string]bool, len(localItems))
	for _, ci := range localItems {
		key := ContentKey(ci.Item)
		haveLocal[key] = ci.Document != nil

		if ci.Document == nil {
			continue
		}
		if _, synced := result.Manifest.Items[key]; synced {
			continue
		}

		entry := m.UploadContent(ctx, ci.Item, ci.Document)
		if entry == nil {
			result.Errors = append(result.Errors, models.ContentItemError{
				ItemID:    ci.Item.ID,
				Operation: "upload",
				Message:   "content upload failed",
			})
			continue
		}
		result.Manifest.Items[key] = *entry
		result.Uploaded = append(result.Uploaded, key)
	}

	for key, entry := range manifest.Items {
		if haveLocal[key] {
			continue
		}
		doc := m.DownloadContent(ctx, entry)
		if doc == nil {
			result.Errors = append(result.Errors, models.ContentItemError{
				ItemID:    entry.ArchiveItemID,
				Operation: "download",
				Message:   "content download failed",
			})
			continue
		}
		result.Downloaded = append(result.Downloaded, DownloadedContent{
			ArchiveItemID: entry.ArchiveItemID,
			Document:      doc,
		})
	}

	m.logger.WithFields(map[string]interface{}{
		"uploaded":   len(result.Uploaded),
		"downloaded": len(result.Downloaded),
		"errors":     len(result.Errors),
	}).Info("Content sync finished")

	return result
}

// PruneOrphanedContent deletes remote blobs whose archive item no
// longer exists locally and drops their manifest entries. Returns the
// pruned manifest and the number of blobs removed.
func (m *Manager) PruneOrphanedContent(ctx context.Context, manifest *models.ContentManifest, liveItemIDs map[string]bool) (*models.ContentManifest, int) {
	pruned := manifest.Clone()
	removed := 0

	for key, entry := range manifest.Items {
		if liveItemIDs[entry.ArchiveItemID] {
			continue
		}
		if err := m.store.DeleteContentFile(ctx, key); err != nil {
			m.logger.WithError(err).WithField("content_key", key).Warn("Failed to delete orphaned content")
			continue
		}
		delete(pruned.Items, key)
		removed++
	}

	if removed > 0 {
		m.logger.WithField("removed", removed).Info("Pruned orphaned content")
	}
	return pruned, removed
}
