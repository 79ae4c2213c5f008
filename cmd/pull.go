package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/app"
	"github.com/fulmenhq/confsync/pkg/config"
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Pull the store's remote and reconcile every target against the new HEAD",
	RunE:  runPull,
}

func init() {
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("pull: load config: %w", err)
	}
	a, err := app.Open(storeFlag(cmd), cfg.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}
	defer a.Close() //nolint:errcheck

	out := cmd.OutOrStdout()

	prePullHead, err := a.Gateway.HeadIdentity()
	if err != nil {
		return fmt.Errorf("pull: %w", err)
	}

	a.Engine.EnterPullMode()
	result, err := a.Gateway.Pull()
	if err != nil {
		a.Engine.LeavePullMode()
		return fmt.Errorf("pull: %w", err)
	}
	if len(result.Conflicts) > 0 {
		a.Engine.LeavePullMode()
		_, _ = fmt.Fprintln(out, "Pull produced manifest conflicts that need manual resolution:")
		for _, c := range result.Conflicts {
			_, _ = fmt.Fprintf(out, "  %s\n", c.File)
		}
		return fmt.Errorf("pull: %d manifest conflict(s) require manual resolution", len(result.Conflicts))
	}

	a.Engine.SyncAfterPull(prePullHead)

	if err := a.Save(); err != nil {
		return fmt.Errorf("pull: save state: %w", err)
	}

	_, _ = fmt.Fprintln(out, "Pulled and reconciled.")
	return nil
}
