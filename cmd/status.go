package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/app"
	"github.com/fulmenhq/confsync/pkg/ascii"
	"github.com/fulmenhq/confsync/pkg/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show every linked target and its tracked files' sync status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("status: load config: %w", err)
	}
	a, err := app.Open(storeFlag(cmd), cfg.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	defer a.Close() //nolint:errcheck

	out := cmd.OutOrStdout()
	targets := a.Targets.List()
	if len(targets) == 0 {
		_, _ = fmt.Fprintln(out, "No targets linked. Run 'confsync link <path>' to add one.")
		return nil
	}

	for _, t := range targets {
		_, _ = fmt.Fprintf(out, "%s (%s) [%s] -> %s\n", t.Name, t.StorePath, t.Status, t.LocalPath)
		var rows [][]string
		for _, tf := range a.Files.ListByTarget(t.ID) {
			rows = append(rows, []string{tf.RelPath, string(tf.Status)})
		}
		for _, line := range ascii.PadColumns(rows) {
			_, _ = fmt.Fprintf(out, "  %s\n", line)
		}
	}
	return nil
}
