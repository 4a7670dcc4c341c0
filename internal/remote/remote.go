// Package remote defines the blob-store interface the sync core runs
// against. Adapters own authentication, timeouts and retries; any
// error they return is treated as a sync failure by the caller.
package remote

import "context"

// StateFileName is the remote key of the encrypted state document.
const StateFileName = "state.json"

// ContentFolder is the remote prefix for per-document content blobs.
const ContentFolder = "content"

// UploadInfo describes a completed state upload.
type UploadInfo struct {
	UpdatedAt int64  // epoch ms as observed by the backend
	ETag      string // backend revision tag, if any
}

// Metadata describes the remote state file without downloading it.
type Metadata struct {
	Exists    bool
	UpdatedAt int64
	Size      int64
	ETag      string
}

// Store is an already-authenticated remote backend. Download returns
// models.ErrNoRemoteData when no state file exists.
type Store interface {
	// State file operations.
	Upload(ctx context.Context, data []byte) (*UploadInfo, error)
	Download(ctx context.Context) ([]byte, error)
	GetMetadata(ctx context.Context) (*Metadata, error)

	// Content file operations, keyed under ContentFolder.
	ListContentFiles(ctx context.Context) ([]string, error)
	UploadContentFile(ctx context.Context, key string, data []byte) error
	DownloadContentFile(ctx context.Context, key string) ([]byte, error)
	DeleteContentFile(ctx context.Context, key string) error
	EnsureContentFolder(ctx context.Context) error

	// Connection lifecycle.
	Name() string
	IsConnected() bool
	Disconnect(ctx context.Context) error
}
