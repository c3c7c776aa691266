package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpmforge/rpmforge/pkg/release"
)

func newCommitCommand(version string) *cobra.Command {
	var buildsFile string

	cmd := &cobra.Command{
		Use:   "commit <release-id>",
		Short: "Execute a release plan",
		Long: `Execute the plan of a scheduled release against the repository manager.

The commit verifies build signatures, refreshes the presence check, stages
packages and module streams, then modifies all target repositories before
publishing any of them. Handled failures mark the release failed; anything
else leaves it in progress for inspection and re-commit.`,
		Example: `  rpmforge commit --builds-file builds.json <release-id>`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := loadBuildManifest(buildsFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, manifest, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rel, _, err := rt.coord.Commit(rt.Context(ctx), args[0])
			if err != nil {
				return err
			}
			if err := printRelease(rel); err != nil {
				return err
			}
			if rel.Status != release.StatusCompleted && !jsonOutput {
				fmt.Printf("\ncommit did not complete, release is %s\n", rel.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&buildsFile, "builds-file", "", "build manifest JSON exported from the build scheduler")
	_ = cmd.MarkFlagRequired("builds-file")

	return cmd
}
