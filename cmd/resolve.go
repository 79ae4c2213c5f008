package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/app"
	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/pkg/config"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id> <keep_store|keep_target|merged_content|delete_both>",
	Short: "Settle a pending conflict",
	Args:  cobra.ExactArgs(2),
	RunE:  runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

var resolutionNames = map[string]model.Resolution{
	"keep_store":     model.ResolutionKeepStore,
	"keep_target":    model.ResolutionKeepTarget,
	"merged_content": model.ResolutionMergedContent,
	"delete_both":    model.ResolutionDeleteBoth,
}

func runResolve(cmd *cobra.Command, args []string) error {
	conflictID := args[0]
	resolution, ok := resolutionNames[args[1]]
	if !ok {
		return fmt.Errorf("resolve: unknown resolution %q (want keep_store, keep_target, merged_content, or delete_both)", args[1])
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("resolve: load config: %w", err)
	}
	a, err := app.Open(storeFlag(cmd), cfg.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	defer a.Close() //nolint:errcheck

	if err := a.Engine.ResolveConflict(conflictID, resolution); err != nil {
		return fmt.Errorf("resolve: %w", err)
	}
	if err := a.Gateway.FlushQueuedCommits(); err != nil {
		return fmt.Errorf("resolve: flush commit: %w", err)
	}
	if err := a.Save(); err != nil {
		return fmt.Errorf("resolve: save state: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Resolved %s with %s\n", conflictID, resolution)
	return nil
}
