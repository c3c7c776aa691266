package commands

import (
	"os/user"

	"github.com/spf13/cobra"

	"github.com/rpmforge/rpmforge/pkg/release"
)

func newPlanCommand(version string) *cobra.Command {
	var (
		platform   string
		buildIDs   []int64
		taskIDs    []int64
		buildsFile string
		userName   string
	)

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Create a release with a freshly built plan",
		Long: `Create a new release for a platform from a set of finished builds.

The plan:
  - Converts build artifacts into release candidates
  - Matches each candidate to its target repositories
  - Merges module metadata for modular builds
  - Checks which packages are already present in the targets

The release is persisted in scheduled state; nothing is shipped until
'commit'.`,
		Example: `  # Plan a release of two builds
  rpmforge plan --platform el-9 --build 4211 --build 4212 --builds-file builds.json

  # Plan a subset of a build's tasks
  rpmforge plan --platform el-9 --build 4211 --task 9001 --builds-file builds.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := loadBuildManifest(buildsFile)
			if err != nil {
				return err
			}
			if userName == "" {
				if current, err := user.Current(); err == nil {
					userName = current.Username
				}
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, manifest, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rel, err := rt.coord.Create(rt.Context(ctx), release.CreateRequest{
				Platform:     platform,
				BuildIDs:     buildIDs,
				BuildTaskIDs: taskIDs,
				User:         userName,
			})
			if err != nil {
				return err
			}
			return printRelease(rel)
		},
	}

	cmd.Flags().StringVarP(&platform, "platform", "p", "", "target platform name")
	cmd.Flags().Int64SliceVarP(&buildIDs, "build", "b", nil, "build id to release (repeatable)")
	cmd.Flags().Int64SliceVarP(&taskIDs, "task", "t", nil, "limit to specific build task ids")
	cmd.Flags().StringVar(&buildsFile, "builds-file", "", "build manifest JSON exported from the build scheduler")
	cmd.Flags().StringVarP(&userName, "user", "u", "", "user recorded as release creator")
	_ = cmd.MarkFlagRequired("platform")
	_ = cmd.MarkFlagRequired("build")
	_ = cmd.MarkFlagRequired("builds-file")

	return cmd
}
