package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rpmforge/rpmforge/pkg/release"
)

func newRevertCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "revert <release-id>",
		Short: "Remove a completed release's content",
		Long: `Remove the content a completed release added to the production
repositories.

Only content this release actually added is removed: packages that were
already present before the commit stay, and module streams are never
removed. The release ends up in reverted state and its builds are
unlinked.`,
		Example: `  rpmforge revert <release-id>`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rel, _, err := rt.coord.Revert(rt.Context(ctx), args[0])
			if err != nil {
				return err
			}
			if err := printRelease(rel); err != nil {
				return err
			}
			if rel.Status != release.StatusReverted && !jsonOutput {
				fmt.Printf("\nrevert did not complete, release is %s\n", rel.Status)
			}
			return nil
		},
	}

	return cmd
}
