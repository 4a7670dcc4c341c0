package snapshot

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/skimapp/skimsync/internal/content"
	"github.com/skimapp/skimsync/internal/events"
	"github.com/skimapp/skimsync/internal/models"
)

// SQLiteStore persists the local snapshot in a single SQLite file.
type SQLiteStore struct {
	db     *sql.DB
	logger *events.Logger
	mu     sync.Mutex
}

// NewSQLiteStore opens (and initializes) the snapshot database.
func NewSQLiteStore(dbPath string, logger *events.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	store := &SQLiteStore{
		db:     db,
		logger: logger.WithField("component", "sqlite_snapshot"),
	}

	if err := store.initialize(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
    CREATE TABLE IF NOT EXISTS meta (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS archive_items (
        id TEXT PRIMARY KEY,
        last_opened_at INTEGER NOT NULL DEFAULT 0,
        doc TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_archive_last_opened
        ON archive_items(last_opened_at DESC);

    CREATE TABLE IF NOT EXISTS positions (
        doc_key TEXT PRIMARY KEY,
        doc TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS tombstones (
        key TEXT PRIMARY KEY,
        deleted_at INTEGER NOT NULL
    );

    CREATE TABLE IF NOT EXISTS cached_documents (
        item_id TEXT PRIMARY KEY,
        doc TEXT NOT NULL,
        updated_at INTEGER NOT NULL DEFAULT 0
    );
    `
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// DeviceID returns the stable device identifier, generating and
// persisting one on first call.
func (s *SQLiteStore) DeviceID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deviceIDLocked()
}

// StateForSync assembles the full snapshot document.
func (s *SQLiteStore) StateForSync() (*models.SyncStateDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deviceID, err := s.deviceIDLocked()
	if err != nil {
		return nil, err
	}

	doc := models.NewSyncStateDocument(deviceID, time.Now().UnixMilli())

	if err := s.loadMetaJSON("state_doc", doc); err != nil {
		return nil, err
	}
	// The identity always reflects this device, whatever the stored
	// document says. UpdatedAt stays as persisted: it is the stamp of
	// the last local modification, and re-stamping it at read time
	// would break last-writer-wins against remote documents.
	doc.SchemaVersion = models.CurrentSchemaVersion
	doc.DeviceID = deviceID

	rows, err := s.db.Query(`SELECT doc FROM archive_items ORDER BY last_opened_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("query archive items: %w", err)
	}
	defer rows.Close()

	doc.ArchiveItems = doc.ArchiveItems[:0]
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan archive item: %w", err)
		}
		var item models.ArchiveItem
		if err := json.Unmarshal([]byte(raw), &item); err != nil {
			return nil, fmt.Errorf("decode archive item: %w", err)
		}
		doc.ArchiveItems = append(doc.ArchiveItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive items: %w", err)
	}

	doc.Positions = make(map[string]models.ReadingPosition)
	posRows, err := s.db.Query(`SELECT doc_key, doc FROM positions`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer posRows.Close()
	for posRows.Next() {
		var key, raw string
		if err := posRows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		var pos models.ReadingPosition
		if err := json.Unmarshal([]byte(raw), &pos); err != nil {
			return nil, fmt.Errorf("decode position: %w", err)
		}
		doc.Positions[key] = pos
	}
	if err := posRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate positions: %w", err)
	}

	doc.DeletedItems = make(map[string]int64)
	tombRows, err := s.db.Query(`SELECT key, deleted_at FROM tombstones`)
	if err != nil {
		return nil, fmt.Errorf("query tombstones: %w", err)
	}
	defer tombRows.Close()
	for tombRows.Next() {
		var key string
		var ts int64
		if err := tombRows.Scan(&key, &ts); err != nil {
			return nil, fmt.Errorf("scan tombstone: %w", err)
		}
		doc.DeletedItems[key] = ts
	}
	if err := tombRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tombstones: %w", err)
	}

	doc.Normalize()
	return doc, nil
}

// ApplyRemoteState replaces the local snapshot with a merged document
// in one transaction.
func (s *SQLiteStore) ApplyRemoteState(doc *models.SyncStateDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Everything except the row-level tables travels as one JSON
	// document: settings, presets, themes, collections, annotations,
	// stats, manifest and flags.
	slim := *doc
	slim.ArchiveItems = nil
	slim.Positions = nil
	slim.DeletedItems = nil
	raw, err := json.Marshal(&slim)
	if err != nil {
		return fmt.Errorf("encode state doc: %w", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO meta (key, value) VALUES ('state_doc', ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(raw)); err != nil {
		return fmt.Errorf("store state doc: %w", err)
	}

	if _, err := tx.Exec(`DELETE FROM archive_items`); err != nil {
		return fmt.Errorf("clear archive items: %w", err)
	}
	for _, item := range doc.ArchiveItems {
		encoded, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode archive item %s: %w", item.ID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO archive_items (id, last_opened_at, doc) VALUES (?, ?, ?)`,
			item.ID, item.LastOpenedAt, string(encoded)); err != nil {
			return fmt.Errorf("store archive item %s: %w", item.ID, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM positions`); err != nil {
		return fmt.Errorf("clear positions: %w", err)
	}
	for key, pos := range doc.Positions {
		encoded, err := json.Marshal(pos)
		if err != nil {
			return fmt.Errorf("encode position %s: %w", key, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO positions (doc_key, doc) VALUES (?, ?)`,
			key, string(encoded)); err != nil {
			return fmt.Errorf("store position %s: %w", key, err)
		}
	}

	if _, err := tx.Exec(`DELETE FROM tombstones`); err != nil {
		return fmt.Errorf("clear tombstones: %w", err)
	}
	for key, ts := range doc.DeletedItems {
		if _, err := tx.Exec(
			`INSERT INTO tombstones (key, deleted_at) VALUES (?, ?)`,
			key, ts); err != nil {
			return fmt.Errorf("store tombstone %s: %w", key, err)
		}
	}

	// Cached documents for items that no longer exist go with them.
	if _, err := tx.Exec(
		`DELETE FROM cached_documents
         WHERE item_id NOT IN (SELECT id FROM archive_items)`); err != nil {
		return fmt.Errorf("prune cached documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"items":     len(doc.ArchiveItems),
		"positions": len(doc.Positions),
	}).Debug("Applied merged state")
	return nil
}

// ItemsWithCachedContent returns archive items whose extracted
// document is cached locally.
func (s *SQLiteStore) ItemsWithCachedContent() ([]content.CachedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
        SELECT a.doc, c.doc
        FROM archive_items a
        JOIN cached_documents c ON c.item_id = a.id
        ORDER BY a.last_opened_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query cached items: %w", err)
	}
	defer rows.Close()

	var items []content.CachedItem
	for rows.Next() {
		var itemRaw, docRaw string
		if err := rows.Scan(&itemRaw, &docRaw); err != nil {
			return nil, fmt.Errorf("scan cached item: %w", err)
		}
		var ci content.CachedItem
		if err := json.Unmarshal([]byte(itemRaw), &ci.Item); err != nil {
			return nil, fmt.Errorf("decode archive item: %w", err)
		}
		var doc models.CachedDocument
		if err := json.Unmarshal([]byte(docRaw), &doc); err != nil {
			return nil, fmt.Errorf("decode cached document: %w", err)
		}
		ci.Document = &doc
		items = append(items, ci)
	}
	return items, rows.Err()
}

// UpdateCachedDocument stores a downloaded document for an item.
func (s *SQLiteStore) UpdateCachedDocument(itemID string, doc *models.CachedDocument) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM archive_items WHERE id = ?`, itemID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrItemNotFound, itemID)
	}
	if err != nil {
		return fmt.Errorf("check archive item: %w", err)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode cached document: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO cached_documents (item_id, doc, updated_at) VALUES (?, ?, ?)
         ON CONFLICT(item_id) DO UPDATE SET doc = excluded.doc, updated_at = excluded.updated_at`,
		itemID, string(encoded), time.Now().UnixMilli()); err != nil {
		return fmt.Errorf("store cached document: %w", err)
	}
	return nil
}

// SaveSyncConfig persists orchestrator configuration.
func (s *SQLiteStore) SaveSyncConfig(cfg *SyncConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode sync config: %w", err)
	}
	if _, err := s.db.Exec(
		`INSERT INTO meta (key, value) VALUES ('sync_config', ?)
         ON CONFLICT(key) DO UPDATE SET value = excluded.value`, string(raw)); err != nil {
		return fmt.Errorf("store sync config: %w", err)
	}
	return nil
}

// LoadSyncConfig returns the stored configuration, or nil.
func (s *SQLiteStore) LoadSyncConfig() (*SyncConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'sync_config'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync config: %w", err)
	}

	var cfg SyncConfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, fmt.Errorf("decode sync config: %w", err)
	}
	return &cfg, nil
}

// DeleteSyncConfig removes the persisted configuration.
func (s *SQLiteStore) DeleteSyncConfig() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.Exec(`DELETE FROM meta WHERE key = 'sync_config'`); err != nil {
		return fmt.Errorf("delete sync config: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) deviceIDLocked() (string, error) {
	var id string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = 'device_id'`).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("load device id: %w", err)
	}
	id = uuid.NewString()
	if _, err := s.db.Exec(`INSERT INTO meta (key, value) VALUES ('device_id', ?)`, id); err != nil {
		return "", fmt.Errorf("store device id: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) loadMetaJSON(key string, out interface{}) error {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}
