package models

import (
	"fmt"
	"strings"
)

// CurrentSchemaVersion of the sync state document.
const CurrentSchemaVersion = 1

// SyncStateDocument is one device's full syncable snapshot. It is built
// fresh from the local store each sync cycle and only ever leaves the
// device wrapped in an EncryptedBlob (or explicit plaintext mode).
type SyncStateDocument struct {
	SchemaVersion int    `json:"schemaVersion"`
	UpdatedAt     int64  `json:"updatedAt"` // device wall-clock, epoch ms
	DeviceID      string `json:"deviceId"`

	Settings     map[string]interface{} `json:"settings,omitempty"`
	Presets      []Preset               `json:"presets,omitempty"`
	CustomThemes []Theme                `json:"customThemes,omitempty"`

	ArchiveItems []ArchiveItem              `json:"archiveItems,omitempty"`
	Positions    map[string]ReadingPosition `json:"positions,omitempty"`

	ContentManifest *ContentManifest `json:"contentManifest,omitempty"`

	// DeletedItems maps an item id, "hash:<fileHash>" or
	// "url:<normalizedUrl>" to its deletion timestamp (epoch ms).
	DeletedItems map[string]int64 `json:"deletedItems,omitempty"`

	Collections []Collection            `json:"collections,omitempty"`
	Annotations map[string][]Annotation `json:"annotations,omitempty"`

	ReadingStats *ReadingStats `json:"readingStats,omitempty"`

	OnboardingDone bool `json:"onboardingDone,omitempty"`
	WelcomeSeen    bool `json:"welcomeSeen,omitempty"`
}

// NewSyncStateDocument creates an empty document stamped for a device.
func NewSyncStateDocument(deviceID string, now int64) *SyncStateDocument {
	return &SyncStateDocument{
		SchemaVersion: CurrentSchemaVersion,
		UpdatedAt:     now,
		DeviceID:      deviceID,
		Settings:      make(map[string]interface{}),
		Positions:     make(map[string]ReadingPosition),
		DeletedItems:  make(map[string]int64),
		Annotations:   make(map[string][]Annotation),
	}
}

// Normalize replaces absent maps and the manifest with empty values so
// merge logic never has to nil-check collection fields.
func (d *SyncStateDocument) Normalize() {
	if d.Settings == nil {
		d.Settings = make(map[string]interface{})
	}
	if d.Positions == nil {
		d.Positions = make(map[string]ReadingPosition)
	}
	if d.DeletedItems == nil {
		d.DeletedItems = make(map[string]int64)
	}
	if d.Annotations == nil {
		d.Annotations = make(map[string][]Annotation)
	}
	if d.ContentManifest == nil {
		d.ContentManifest = NewContentManifest()
	}
	if d.ReadingStats == nil {
		d.ReadingStats = NewReadingStats()
	}
}

// Validate checks structural invariants before upload.
func (d *SyncStateDocument) Validate() error {
	if strings.TrimSpace(d.DeviceID) == "" {
		return fmt.Errorf("device ID is required")
	}
	if d.SchemaVersion <= 0 {
		return fmt.Errorf("schema version must be positive, got %d", d.SchemaVersion)
	}
	seen := make(map[string]struct{}, len(d.ArchiveItems))
	for _, item := range d.ArchiveItems {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("archive item with empty id")
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("duplicate archive item id: %s", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
	return nil
}

// ArchiveItem is one entry in the user's reading archive.
type ArchiveItem struct {
	ID           string           `json:"id"`
	Type         string           `json:"type"` // epub, pdf, article, ...
	Title        string           `json:"title"`
	Author       string           `json:"author,omitempty"`
	SourceLabel  string           `json:"sourceLabel,omitempty"`
	URL          string           `json:"url,omitempty"`
	FileHash     string           `json:"fileHash,omitempty"`
	CreatedAt    int64            `json:"createdAt"`
	LastOpenedAt int64            `json:"lastOpenedAt"`
	LastPosition *ReadingPosition `json:"lastPosition,omitempty"`
	Progress     *ReadingProgress `json:"progress,omitempty"`
}

// ReadingProgress tracks how far through a document the reader is.
type ReadingProgress struct {
	Percent    float64 `json:"percent"`
	WordsRead  int     `json:"wordsRead,omitempty"`
	TotalWords int     `json:"totalWords,omitempty"`
}

// ReadingPosition locates a point inside a document. ChapterIndex is
// nil for single-chapter documents and treated as 0 when ordering.
type ReadingPosition struct {
	ChapterIndex *int  `json:"chapterIndex,omitempty"`
	BlockIndex   int   `json:"blockIndex"`
	CharOffset   int   `json:"charOffset"`
	Timestamp    int64 `json:"timestamp"`
}

// Chapter returns the effective chapter index.
func (p ReadingPosition) Chapter() int {
	if p.ChapterIndex == nil {
		return 0
	}
	return *p.ChapterIndex
}

// IsFurtherThan reports whether p is strictly further into the
// document than other, comparing (chapter, block) lexicographically.
// CharOffset is deliberately ignored: sub-block offsets are too noisy
// to decide cross-device winners.
func (p ReadingPosition) IsFurtherThan(other ReadingPosition) bool {
	if p.Chapter() != other.Chapter() {
		return p.Chapter() > other.Chapter()
	}
	return p.BlockIndex > other.BlockIndex
}

// FurtherPosition picks the position that is further along. Equal
// (chapter, block) pairs break ties on timestamp, then char offset,
// so the result is the same whichever order the arguments arrive in.
func FurtherPosition(a, b ReadingPosition) ReadingPosition {
	if a.IsFurtherThan(b) {
		return a
	}
	if b.IsFurtherThan(a) {
		return b
	}
	if a.Timestamp != b.Timestamp {
		if a.Timestamp > b.Timestamp {
			return a
		}
		return b
	}
	if b.CharOffset > a.CharOffset {
		return b
	}
	return a
}

// Preset is a named reading-speed configuration.
type Preset struct {
	Name      string `json:"name"`
	WPM       int    `json:"wpm"`
	ChunkSize int    `json:"chunkSize"`
	FontScale int    `json:"fontScale,omitempty"`
}

// Theme is a user-defined color theme.
type Theme struct {
	Name   string            `json:"name"`
	Colors map[string]string `json:"colors"`
}

// Collection groups archive items under a user-chosen name.
type Collection struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	ItemIDs   []string `json:"itemIds,omitempty"`
	UpdatedAt int64    `json:"updatedAt"`
}

// Annotation is a highlight or note anchored inside a document.
type Annotation struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	Note       string `json:"note,omitempty"`
	Color      string `json:"color,omitempty"`
	BlockIndex int    `json:"blockIndex"`
	CharStart  int    `json:"charStart"`
	CharEnd    int    `json:"charEnd"`
	CreatedAt  int64  `json:"createdAt"`
	UpdatedAt  int64  `json:"updatedAt"`
}

// TombstoneHashKey builds the deletion key for a file hash.
func TombstoneHashKey(fileHash string) string {
	return "hash:" + fileHash
}

// TombstoneURLKey builds the deletion key for a normalized URL.
func TombstoneURLKey(normalizedURL string) string {
	return "url:" + normalizedURL
}
