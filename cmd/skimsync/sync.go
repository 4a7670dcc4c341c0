package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/skimapp/skimsync/internal/events"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle now",
	Long: `Sync downloads the remote state, merges it with local state,
uploads the result and reconciles document content. Conflicts are
resolved deterministically (furthest reading position wins).`,
	RunE: runSync,
}

var syncPassphrase string

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().StringVarP(&syncPassphrase, "passphrase", "p", "",
		"Sync passphrase (will prompt if required and not provided)")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c, _, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	store, err := c.NewRemoteStore(ctx)
	if err != nil {
		return err
	}

	cfg, err := c.Snapshot.LoadSyncConfig()
	if err != nil {
		return err
	}
	if cfg == nil {
		return fmt.Errorf("not configured; run 'skimsync configure' first")
	}

	passphrase := syncPassphrase
	if cfg.EncryptionEnabled && passphrase == "" {
		if passphrase, err = promptPassphrase("Sync passphrase: "); err != nil {
			return err
		}
	}
	if err := c.Sync.Restore(store, passphrase); err != nil {
		return err
	}

	unsubscribe := c.Sync.Subscribe(func(e events.Event) {
		if e.Type == events.EventConflictDetected {
			color.Yellow("Resolved %v conflict(s)", e.Data["count"])
		}
	})
	defer unsubscribe()

	result := c.Sync.SyncNow(ctx)
	if !result.Success {
		return fmt.Errorf("sync failed: %s", result.Error)
	}

	color.Green("Sync %s in %s", result.Action, result.Duration.Round(time.Millisecond))
	if result.ContentUploaded > 0 || result.ContentDownloaded > 0 || result.ContentPruned > 0 {
		fmt.Printf("Content: %d uploaded, %d downloaded, %d pruned\n",
			result.ContentUploaded, result.ContentDownloaded, result.ContentPruned)
	}
	for _, itemErr := range result.ContentErrors {
		color.Red("  %s", itemErr.Error())
	}
	return nil
}
