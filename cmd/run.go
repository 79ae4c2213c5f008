package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/app"
	"github.com/fulmenhq/confsync/pkg/config"
	"github.com/fulmenhq/confsync/pkg/logger"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Watch and poll every linked target, reconciling continuously until interrupted",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("run: load config: %w", err)
	}
	a, err := app.Open(storeFlag(cmd), cfg.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	defer a.Close() //nolint:errcheck

	if err := a.WatchTargets(); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	// An initial full pass catches anything that changed while no
	// process was watching.
	a.Engine.ScanAndReconcileAll()

	stop := make(chan struct{})
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go a.Watcher.Run(stop)

	engineDone := make(chan struct{})
	go func() {
		a.Engine.Run(stop)
		close(engineDone)
	}()

	logger.Info(fmt.Sprintf("confsync running against %s (ctrl-c to stop)", a.StoreRoot))
	<-sig
	close(stop)
	<-engineDone

	if err := a.Gateway.FlushQueuedCommits(); err != nil {
		logger.Warn("flush queued commits on shutdown failed", logger.Err(err))
	}
	if err := a.Save(); err != nil {
		return fmt.Errorf("run: save state: %w", err)
	}
	return nil
}
