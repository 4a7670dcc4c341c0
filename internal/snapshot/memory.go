package snapshot

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skimapp/skimsync/internal/content"
	"github.com/skimapp/skimsync/internal/models"
)

// MemoryStore is an in-memory Store for tests and embedders that
// manage their own persistence.
type MemoryStore struct {
	mu       sync.Mutex
	deviceID string
	doc      *models.SyncStateDocument
	cached   map[string]*models.CachedDocument
	config   *SyncConfig
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	deviceID := uuid.NewString()
	return &MemoryStore{
		deviceID: deviceID,
		doc:      models.NewSyncStateDocument(deviceID, time.Now().UnixMilli()),
		cached:   make(map[string]*models.CachedDocument),
	}
}

// SetDocument seeds the store with a snapshot (test helper). The
// document is stored as given, updatedAt stamp included; callers
// simulating a local edit stamp it themselves.
func (s *MemoryStore) SetDocument(doc *models.SyncStateDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = doc
}

// SetCachedDocument seeds a cached document (test helper).
func (s *MemoryStore) SetCachedDocument(itemID string, doc *models.CachedDocument) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached[itemID] = doc
}

func (s *MemoryStore) DeviceID() (string, error) {
	return s.deviceID, nil
}

func (s *MemoryStore) StateForSync() (*models.SyncStateDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// UpdatedAt stays as stored: the writer stamps modifications,
	// snapshotting does not.
	snap := cloneDocument(s.doc)
	snap.DeviceID = s.deviceID
	snap.Normalize()
	return snap, nil
}

func (s *MemoryStore) ApplyRemoteState(doc *models.SyncStateDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.doc = cloneDocument(doc)

	live := make(map[string]bool, len(doc.ArchiveItems))
	for _, item := range doc.ArchiveItems {
		live[item.ID] = true
	}
	for id := range s.cached {
		if !live[id] {
			delete(s.cached, id)
		}
	}
	return nil
}

func (s *MemoryStore) ItemsWithCachedContent() ([]content.CachedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var items []content.CachedItem
	for _, item := range s.doc.ArchiveItems {
		if doc, ok := s.cached[item.ID]; ok {
			items = append(items, content.CachedItem{Item: item, Document: doc})
		}
	}
	return items, nil
}

func (s *MemoryStore) UpdateCachedDocument(itemID string, doc *models.CachedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.doc.ArchiveItems {
		if item.ID == itemID {
			s.cached[itemID] = doc
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
}

func (s *MemoryStore) SaveSyncConfig(cfg *SyncConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *cfg
	s.config = &copied
	return nil
}

func (s *MemoryStore) LoadSyncConfig() (*SyncConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return nil, nil
	}
	copied := *s.config
	return &copied, nil
}

func (s *MemoryStore) DeleteSyncConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = nil
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// cloneDocument deep-copies via the JSON round trip; snapshot reads
// and writes must not alias caller-held maps.
func cloneDocument(doc *models.SyncStateDocument) *models.SyncStateDocument {
	if doc == nil {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		copied := *doc
		return &copied
	}
	var out models.SyncStateDocument
	if err := json.Unmarshal(data, &out); err != nil {
		copied := *doc
		return &copied
	}
	return &out
}
