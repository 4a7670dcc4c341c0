// Package folder implements the remote store against a local
// directory: a synced folder (Syncthing, network mount) whose
// transport is trusted at a lower layer. Pairs naturally with
// plaintext mode, though encrypted blobs work the same way.
package folder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/skimapp/skimsync/internal/events"
	"github.com/skimapp/skimsync/internal/models"
	"github.com/skimapp/skimsync/internal/remote"
)

// Store is a directory-backed remote.
type Store struct {
	root   string
	logger *events.Logger

	mu        sync.Mutex
	connected bool
}

// New creates a folder store rooted at dir, creating it if needed.
func New(dir string, logger *events.Logger) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("folder path is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create sync folder: %w", err)
	}
	return &Store{
		root:      dir,
		logger:    logger.WithField("component", "folder_store"),
		connected: true,
	}, nil
}

func (s *Store) Upload(ctx context.Context, data []byte) (*remote.UploadInfo, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	path := filepath.Join(s.root, remote.StateFileName)
	if err := writeAtomic(path, data); err != nil {
		return nil, fmt.Errorf("write state file: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	return &remote.UploadInfo{UpdatedAt: info.ModTime().UnixMilli()}, nil
}

func (s *Store) Download(ctx context.Context) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, remote.StateFileName))
	if os.IsNotExist(err) {
		return nil, models.ErrNoRemoteData
	}
	if err != nil {
		return nil, fmt.Errorf("read state file: %w", err)
	}
	return data, nil
}

func (s *Store) GetMetadata(ctx context.Context) (*remote.Metadata, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	info, err := os.Stat(filepath.Join(s.root, remote.StateFileName))
	if os.IsNotExist(err) {
		return &remote.Metadata{Exists: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat state file: %w", err)
	}
	return &remote.Metadata{
		Exists:    true,
		UpdatedAt: info.ModTime().UnixMilli(),
		Size:      info.Size(),
	}, nil
}

func (s *Store) ListContentFiles(ctx context.Context) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(s.root, remote.ContentFolder))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list content folder: %w", err)
	}
	var keys []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		keys = append(keys, strings.TrimSuffix(entry.Name(), ".bin"))
	}
	return keys, nil
}

func (s *Store) UploadContentFile(ctx context.Context, key string, data []byte) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := s.EnsureContentFolder(ctx); err != nil {
		return err
	}
	path := filepath.Join(s.root, remote.ContentFolder, key+".bin")
	if err := writeAtomic(path, data); err != nil {
		return fmt.Errorf("write content file %s: %w", key, err)
	}
	return nil
}

func (s *Store) DownloadContentFile(ctx context.Context, key string) ([]byte, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(s.root, remote.ContentFolder, key+".bin"))
	if err != nil {
		return nil, fmt.Errorf("read content file %s: %w", key, err)
	}
	return data, nil
}

func (s *Store) DeleteContentFile(ctx context.Context, key string) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, remote.ContentFolder, key+".bin"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete content file %s: %w", key, err)
	}
	return nil
}

func (s *Store) EnsureContentFolder(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Join(s.root, remote.ContentFolder), 0o755); err != nil {
		return fmt.Errorf("create content folder: %w", err)
	}
	return nil
}

func (s *Store) Name() string { return "folder" }

func (s *Store) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Store) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.logger.Debug("Folder store disconnected")
	return nil
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.IsConnected() {
		return models.ErrNotConnected
	}
	return nil
}

// writeAtomic writes via a temp file and rename so a crash mid-write
// never leaves a truncated state file for another device to read.
func writeAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}
