package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPaths []string
	jsonOutput  bool
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rpmforge",
		Short: "RPMForge - Release Planning and Repository Reconciliation Engine",
		Long: `RPMForge plans and executes releases of built RPM packages into the
production repositories of a distribution platform.

Features:
  - Typed platform configuration via CUE
  - Presence-checked release plans with affinity-based repository matching
  - Modular metadata merging for module streams
  - Strict modify-then-publish execution against the repository manager
  - OPA policy gate on commit
  - Starlark hooks for operator plan edits`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVarP(&configPaths, "config", "c", nil, "CUE config file or directory (repeatable)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newPlanCommand(version))
	rootCmd.AddCommand(newShowCommand(version))
	rootCmd.AddCommand(newUpdateCommand(version))
	rootCmd.AddCommand(newCommitCommand(version))
	rootCmd.AddCommand(newRevertCommand(version))
	rootCmd.AddCommand(newPoliciesCommand(version))

	return rootCmd
}
