package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show sync configuration and last sync result",
	RunE:  runStatus,
}

var statusJSON bool

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusJSON, "json", false,
		"Output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, appCfg, err := newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	cfg, err := c.Snapshot.LoadSyncConfig()
	if err != nil {
		return err
	}

	if statusJSON {
		out := map[string]interface{}{
			"configured": cfg != nil,
			"provider":   appCfg.Remote.Provider,
		}
		if cfg != nil {
			out["encryptionEnabled"] = cfg.EncryptionEnabled
			out["lastSyncTime"] = cfg.LastSyncTime
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if cfg == nil {
		color.Yellow("Not configured. Run 'skimsync configure'.")
		return nil
	}

	fmt.Printf("Provider:   %s\n", cfg.Provider)
	if cfg.EncryptionEnabled {
		color.Green("Encryption: enabled")
	} else {
		color.Yellow("Encryption: disabled")
	}
	if cfg.LastSyncTime > 0 {
		fmt.Printf("Last sync:  %s\n", time.UnixMilli(cfg.LastSyncTime).Format(time.RFC1123))
	} else {
		fmt.Println("Last sync:  never")
	}
	return nil
}
