// Package client assembles the sync core from configuration: the
// high-level API the CLI and embedders use.
package client

import (
	"context"
	"fmt"
	"os"

	"github.com/skimapp/skimsync/internal/config"
	"github.com/skimapp/skimsync/internal/crypto"
	"github.com/skimapp/skimsync/internal/events"
	"github.com/skimapp/skimsync/internal/remote"
	"github.com/skimapp/skimsync/internal/remote/folder"
	"github.com/skimapp/skimsync/internal/remote/s3"
	"github.com/skimapp/skimsync/internal/service/sync"
	"github.com/skimapp/skimsync/internal/snapshot"
)

// Client provides the high-level API for skimsync operations.
type Client struct {
	Sync     *sync.Service
	Snapshot snapshot.Store

	config *config.Config
	logger *events.Logger
}

// New creates a client from configuration.
func New(cfg *config.Config, logger *events.Logger) (*Client, error) {
	if err := os.MkdirAll(cfg.Storage.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	snapStore, err := snapshot.NewSQLiteStore(cfg.Storage.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	codec := crypto.NewCodec()
	emitter := events.NewEmitter(logger)
	syncService := sync.NewService(snapStore, codec, emitter, logger)

	return &Client{
		Sync:     syncService,
		Snapshot: snapStore,
		config:   cfg,
		logger:   logger,
	}, nil
}

// NewRemoteStore builds the configured remote backend.
func (c *Client) NewRemoteStore(ctx context.Context) (remote.Store, error) {
	switch c.config.Remote.Provider {
	case "folder":
		return folder.New(c.config.Remote.FolderPath, c.logger)
	case "s3":
		return s3.New(ctx, c.config.Remote.S3Bucket, c.config.Remote.S3Prefix,
			c.config.Remote.S3Region, c.logger)
	case "":
		return nil, fmt.Errorf("no remote provider configured")
	default:
		return nil, fmt.Errorf("unknown remote provider: %q", c.config.Remote.Provider)
	}
}

// Close releases resources.
func (c *Client) Close() error {
	return c.Snapshot.Close()
}
