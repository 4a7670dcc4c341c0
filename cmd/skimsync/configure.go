package main

import (
	"context"
	"fmt"
	"os"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Connect a remote provider and set the sync passphrase",
	Long: `Configure validates the passphrase against any existing remote data
and stores the provider settings. The passphrase itself is never
written to disk; pass it again (or be prompted) on later runs.`,
	Example: `  skimsync configure
  skimsync configure --no-encryption`,
	RunE: runConfigure,
}

var (
	configureNoEncryption bool
	configurePassphrase   string
)

func init() {
	rootCmd.AddCommand(configureCmd)

	configureCmd.Flags().BoolVar(&configureNoEncryption, "no-encryption", false,
		"Skip end-to-end encryption (transport must be trusted)")
	configureCmd.Flags().StringVarP(&configurePassphrase, "passphrase", "p", "",
		"Sync passphrase (will prompt if not provided)")
}

func runConfigure(cmd *cobra.Command, args []string) error {
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

	if configureNoEncryption {
		if err := c.Sync.ConfigureWithoutEncryption(ctx, store); err != nil {
			return err
		}
		color.Yellow("Configured %s without encryption. The remote sees plaintext.", store.Name())
		return nil
	}

	passphrase := configurePassphrase
	if passphrase == "" {
		if passphrase, err = promptPassphrase("Sync passphrase: "); err != nil {
			return err
		}
	}

	if err := c.Sync.Configure(ctx, store, passphrase); err != nil {
		return err
	}

	color.Green("Configured %s with end-to-end encryption.", store.Name())
	return nil
}

func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(raw), nil
}
