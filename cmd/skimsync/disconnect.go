package main

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var disconnectCmd = &cobra.Command{
	Use:   "disconnect",
	Short: "Revoke the provider session and clear credentials",
	RunE:  runDisconnect,
}

func init() {
	rootCmd.AddCommand(disconnectCmd)
}

func runDisconnect(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c, _, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if store, err := c.NewRemoteStore(ctx); err == nil {
		_ = c.Sync.Restore(store, "")
	}
	c.Sync.Disconnect(ctx)

	color.Green("Disconnected.")
	return nil
}
