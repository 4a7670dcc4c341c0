package models

// ManifestVersion of the content manifest wire format.
const ManifestVersion = 1

// ContentManifest indexes the content blobs believed present remotely.
// It is consulted before every upload so content already synced is
// never pushed twice, and drives pruning of orphaned files.
type ContentManifest struct {
	Version int                            `json:"version"`
	Items   map[string]ContentManifestItem `json:"items"` // contentKey -> item
}

// NewContentManifest creates an empty manifest.
func NewContentManifest() *ContentManifest {
	return &ContentManifest{
		Version: ManifestVersion,
		Items:   make(map[string]ContentManifestItem),
	}
}

// Clone deep-copies the manifest.
func (m *ContentManifest) Clone() *ContentManifest {
	clone := &ContentManifest{
		Version: m.Version,
		Items:   make(map[string]ContentManifestItem, len(m.Items)),
	}
	for k, v := range m.Items {
		clone.Items[k] = v
	}
	return clone
}

// ContentManifestItem describes one synced content blob. It is created
// on first successful upload and removed only when its archive item no
// longer exists locally.
type ContentManifestItem struct {
	ContentKey     string `json:"contentKey"`
	ArchiveItemID  string `json:"archiveItemId"`
	FileHash       string `json:"fileHash,omitempty"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	CompressedSize int    `json:"compressedSize"`
	OriginalSize   int    `json:"originalSize"`
	SyncedAt       int64  `json:"syncedAt"`
	Checksum       string `json:"checksum"`
}

// CachedDocument is the extracted, reader-ready form of a document:
// what the format parsers produce and the reading view consumes. The
// sync core treats it as an opaque JSON-serializable payload.
type CachedDocument struct {
	Title    string            `json:"title"`
	Author   string            `json:"author,omitempty"`
	Language string            `json:"language,omitempty"`
	Chapters []DocumentChapter `json:"chapters"`
}

// DocumentChapter is one chapter's text blocks.
type DocumentChapter struct {
	Title  string   `json:"title,omitempty"`
	Blocks []string `json:"blocks"`
}
