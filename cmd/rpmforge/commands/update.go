package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rpmforge/rpmforge/pkg/release"
)

func newUpdateCommand(version string) *cobra.Command {
	var (
		buildIDs   []int64
		planFile   string
		buildsFile string
	)

	cmd := &cobra.Command{
		Use:   "update <release-id>",
		Short: "Replace a scheduled release's plan",
		Long: `Replace the plan of a release that has not been committed yet.

Either supply a new build set, which rebuilds the plan from scratch, or an
edited plan document, which is presence-checked and stored as-is. Operator
plan edits also run through the configured Starlark hook.`,
		Example: `  # Rebuild the plan from a different build set
  rpmforge update --build 4213 --builds-file builds.json <release-id>

  # Store an edited plan
  rpmforge update --plan plan.json <release-id>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(buildIDs) == 0 && planFile == "" {
				return fmt.Errorf("update requires --build or --plan")
			}

			var newPlan *release.Plan
			if planFile != "" {
				data, err := os.ReadFile(planFile)
				if err != nil {
					return fmt.Errorf("failed to read plan file: %w", err)
				}
				var plan release.Plan
				if err := json.Unmarshal(data, &plan); err != nil {
					return fmt.Errorf("failed to parse plan file %s: %w", planFile, err)
				}
				newPlan = &plan
			}

			var manifest *buildManifest
			if buildsFile != "" {
				var err error
				manifest, err = loadBuildManifest(buildsFile)
				if err != nil {
					return err
				}
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, manifest, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rel, err := rt.coord.Update(rt.Context(ctx), args[0], buildIDs, newPlan)
			if err != nil {
				return err
			}
			return printRelease(rel)
		},
	}

	cmd.Flags().Int64SliceVarP(&buildIDs, "build", "b", nil, "replacement build id (repeatable)")
	cmd.Flags().StringVar(&planFile, "plan", "", "edited plan document (JSON)")
	cmd.Flags().StringVar(&buildsFile, "builds-file", "", "build manifest, required with --build")

	return cmd
}
