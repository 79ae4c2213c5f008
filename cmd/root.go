package cmd

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/pkg/exitcode"
	"github.com/fulmenhq/confsync/pkg/logger"
)

// rootCmd is the base command when confsync is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "confsync",
	Short: "Bidirectional sync for AI configuration files across machines",
	Long: `confsync keeps AI assistant configuration files (CLAUDE.md, .cursorrules,
and similar) synchronized between a central, version-controlled store and
any number of target working directories or tool configuration folders.

Examples:
  confsync init                    # create or open a store in the current directory
  confsync link ~/code/myproject   # start tracking a repo against the store
  confsync run                     # watch + poll and reconcile continuously
  confsync status                  # show tracked files and their sync state
  confsync conflicts               # list pending conflicts
  confsync resolve <id> keep_store # settle a conflict`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initializeLogger(cmd)
	},
}

// Execute adds all child commands to the root command and runs it. Called
// once from main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("command failed", logger.Err(err))
		os.Exit(exitcode.GeneralError)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "info", "Set log level (trace|debug|info|warn|error)")
	rootCmd.PersistentFlags().Bool("json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().String("store", ".", "Path to the sync store")

	rootCmd.Version = binaryVersion()
	rootCmd.SetVersionTemplate("confsync {{.Version}}\n")
}

func initializeLogger(cmd *cobra.Command) {
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	jsonLogs, _ := cmd.Flags().GetBool("json")
	noColor, _ := cmd.Flags().GetBool("no-color")

	var level logger.Level
	switch strings.ToLower(logLevelStr) {
	case "trace":
		level = logger.TraceLevel
	case "debug":
		level = logger.DebugLevel
	case "warn":
		level = logger.WarnLevel
	case "error":
		level = logger.ErrorLevel
	default:
		level = logger.InfoLevel
	}

	cfg := logger.Config{
		Level:     level,
		UseColor:  !noColor,
		JSON:      jsonLogs,
		Component: "confsync",
	}
	if err := logger.Initialize(cfg); err != nil {
		_, _ = os.Stderr.WriteString("failed to initialize logger: " + err.Error() + "\n")
		os.Exit(exitcode.ConfigError)
	}
}

func storeFlag(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("store")
	if path == "" {
		return "."
	}
	return path
}
