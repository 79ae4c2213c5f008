package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/store"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or open the sync store at --store",
	Long: `init ensures --store exists, is a git repository, carries the
multi-machine manifest (machines.json), and ignores its private state
directory. It is safe to run again against an already-initialized store.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	root := storeFlag(cmd)
	if _, err := store.Initialize(root); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Initialized sync store at %s\n", root)
	return nil
}
