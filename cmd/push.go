package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/app"
	"github.com/fulmenhq/confsync/pkg/config"
)

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Commit any pending store changes and push to the store's remote",
	RunE:  runPush,
}

func init() {
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("push: load config: %w", err)
	}
	a, err := app.Open(storeFlag(cmd), cfg.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	defer a.Close() //nolint:errcheck

	if _, err := a.Gateway.EnsureStoreCommitted(); err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if err := a.Gateway.Push(); err != nil {
		return fmt.Errorf("push: %w", err)
	}

	_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Pushed.")
	return nil
}
