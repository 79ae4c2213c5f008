package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/app"
	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/pkg/config"
)

var unlinkCmd = &cobra.Command{
	Use:   "unlink <name>",
	Short: "Stop tracking a target by name or store path",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnlink,
}

func init() {
	rootCmd.AddCommand(unlinkCmd)
}

func runUnlink(cmd *cobra.Command, args []string) error {
	query := args[0]

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("unlink: load config: %w", err)
	}
	a, err := app.Open(storeFlag(cmd), cfg.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("unlink: %w", err)
	}
	defer a.Close() //nolint:errcheck

	var match model.Target
	found := false
	for _, t := range a.Targets.List() {
		if t.Name == query || t.StorePath == query {
			match = t
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("unlink: no target matches %q", query)
	}

	for _, tf := range a.Files.ListByTarget(match.ID) {
		_ = a.Files.Delete(tf.ID)
	}
	if err := a.Targets.Delete(match.ID); err != nil {
		return fmt.Errorf("unlink: %w", err)
	}

	if err := a.Save(); err != nil {
		return fmt.Errorf("unlink: save state: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s\n", match.StorePath)
	return nil
}
