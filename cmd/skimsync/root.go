package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/skimapp/skimsync/internal/client"
	"github.com/skimapp/skimsync/internal/config"
	"github.com/skimapp/skimsync/internal/events"
)

var rootCmd = &cobra.Command{
	Use:   "skimsync",
	Short: "Sync reading state across devices",
	Long: `Skimsync keeps reading positions, progress, settings, highlights
and document content consistent across devices through an
end-to-end-encrypted blob on a shared remote (folder or S3).`,
	SilenceUsage: true,
}

var (
	configPath string
	verbose    bool
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}

// newClient loads config and assembles the client. Callers must
// Close() it.
func newClient() (*client.Client, *config.Config, error) {
	cfg, err := config.NewLoader(configPath).Load()
	if err != nil {
		return nil, nil, err
	}

	level := cfg.Log.Level
	if verbose {
		level = "debug"
	}
	var out *os.File = os.Stderr
	if cfg.Log.File != "" {
		f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err == nil {
			out = f
		}
	}
	logger := events.NewLogger(level, cfg.Log.Format, out)

	c, err := client.New(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return c, cfg, nil
}
