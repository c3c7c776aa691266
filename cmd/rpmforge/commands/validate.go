package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpmforge/rpmforge/pkg/config"
)

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [path...]",
		Short: "Validate CUE configuration files",
		Long: `Validate CUE configuration files.

This command checks:
  - CUE syntax validity
  - Service section completeness
  - Platform declarations (repository ids, devel buckets per architecture)`,
		Example: `  # Validate the configured files
  rpmforge validate -c /etc/rpmforge/config.cue

  # Validate a directory of configs
  rpmforge validate ./configs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			paths := args
			if len(paths) == 0 {
				paths = configPaths
			}
			if len(paths) == 0 {
				return fmt.Errorf("no configuration given, pass paths or use --config")
			}

			return validateConfig(cmd.Context(), paths)
		},
	}

	return cmd
}

func validateConfig(ctx context.Context, paths []string) error {
	parser := config.NewCUEParser()
	parsed, err := parser.Parse(ctx, paths)
	if err != nil {
		return err
	}

	for _, verr := range parsed.Errors {
		if verr.File != "" {
			fmt.Printf("%s:%d:%d: %s: %s\n", verr.File, verr.Line, verr.Column, verr.Severity, verr.Message)
		} else {
			fmt.Printf("%s: %s\n", verr.Severity, verr.Message)
		}
	}
	if len(parsed.Errors) > 0 {
		return fmt.Errorf("configuration has %d error(s)", len(parsed.Errors))
	}

	platforms, err := parsed.PlatformMap()
	if err != nil {
		return err
	}

	fmt.Printf("configuration valid: %d file(s), %d platform(s)\n", len(parsed.SourceFiles), len(platforms))
	for name, platform := range platforms {
		fmt.Printf("  %s: %d arch(es), %d repositories\n", name, len(platform.Arches), len(platform.Repositories))
	}
	return nil
}
