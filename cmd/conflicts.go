package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/app"
	"github.com/fulmenhq/confsync/pkg/config"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List pending conflicts awaiting resolution",
	RunE:  runConflicts,
}

func init() {
	rootCmd.AddCommand(conflictsCmd)
}

func runConflicts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("conflicts: load config: %w", err)
	}
	a, err := app.Open(storeFlag(cmd), cfg.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("conflicts: %w", err)
	}
	defer a.Close() //nolint:errcheck

	out := cmd.OutOrStdout()
	pending := a.Conflicts.ListPending()
	if len(pending) == 0 {
		_, _ = fmt.Fprintln(out, "No pending conflicts.")
		return nil
	}

	for _, c := range pending {
		tf, _ := a.Files.Get(c.TrackedFileID)
		target, _ := a.Targets.Get(tf.TargetID)
		_, _ = fmt.Fprintf(out, "%s  %s/%s  (%s)\n", c.ID, target.StorePath, tf.RelPath, c.Kind)
	}
	return nil
}
