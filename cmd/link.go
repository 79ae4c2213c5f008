package cmd

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fulmenhq/confsync/internal/app"
	"github.com/fulmenhq/confsync/internal/model"
	"github.com/fulmenhq/confsync/pkg/config"
)

var linkCmd = &cobra.Command{
	Use:   "link <path>",
	Short: "Start tracking a working directory or tool config folder against the store",
	Args:  cobra.ExactArgs(1),
	RunE:  runLink,
}

func init() {
	rootCmd.AddCommand(linkCmd)
	linkCmd.Flags().String("name", "", "Target name (defaults to the directory's base name)")
	linkCmd.Flags().Bool("service", false, "Link as a tool configuration directory instead of a repo")
	linkCmd.Flags().String("service-type", "", "Tool identifier for a --service target (e.g. claude, cursor)")
}

var slugPattern = regexp.MustCompile(`[^a-z0-9-]+`)

func slugify(name string) string {
	lower := strings.ToLower(name)
	slug := slugPattern.ReplaceAllString(lower, "-")
	slug = strings.Trim(slug, "-")
	if slug == "" {
		slug = "target"
	}
	return slug
}

func runLink(cmd *cobra.Command, args []string) error {
	localPath, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("link: resolve path: %w", err)
	}

	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(localPath)
	}
	isService, _ := cmd.Flags().GetBool("service")
	serviceType, _ := cmd.Flags().GetString("service-type")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("link: load config: %w", err)
	}
	a, err := app.Open(storeFlag(cmd), cfg.ToEngineConfig())
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}
	defer a.Close() //nolint:errcheck

	kind := model.TargetKindRepo
	storePrefix := "repos"
	if isService {
		kind = model.TargetKindService
		storePrefix = "services"
	}
	storePath := fmt.Sprintf("%s/%s", storePrefix, slugify(name))

	target, err := a.Targets.Insert(model.Target{
		Kind:        kind,
		Name:        name,
		LocalPath:   localPath,
		StorePath:   storePath,
		Status:      model.TargetStatusActive,
		ServiceType: serviceType,
	})
	if err != nil {
		return fmt.Errorf("link: %w", err)
	}

	a.Engine.ScanAndReconcileAll()

	if err := a.Save(); err != nil {
		return fmt.Errorf("link: save state: %w", err)
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Linked %s (%s) -> %s\n", target.Name, target.StorePath, target.LocalPath)
	return nil
}
