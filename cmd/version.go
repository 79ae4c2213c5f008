package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/pkg/buildinfo"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE:  runVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output version information as JSON")
}

func binaryVersion() string {
	if buildinfo.BinaryVersion != "dev" {
		return buildinfo.BinaryVersion
	}
	if v := buildinfo.ModuleVersion(); v != "" {
		return v
	}
	return "dev"
}

func runVersion(cmd *cobra.Command, args []string) error {
	jsonOut, _ := cmd.Flags().GetBool("json")
	out := cmd.OutOrStdout()

	version := binaryVersion()
	if jsonOut {
		info := map[string]string{
			"version":   version,
			"buildTime": buildinfo.BuildTime,
			"gitCommit": buildinfo.GitCommit,
			"goVersion": runtime.Version(),
			"platform":  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		}
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintln(out, string(data))
		return nil
	}

	_, _ = fmt.Fprintf(out, "confsync %s\n", version)
	_, _ = fmt.Fprintf(out, "Build time: %s\n", buildinfo.BuildTime)
	_, _ = fmt.Fprintf(out, "Git commit: %s\n", buildinfo.GitCommit)
	_, _ = fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(out, "Platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	return nil
}
