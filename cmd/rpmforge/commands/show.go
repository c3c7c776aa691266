package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newShowCommand(version string) *cobra.Command {
	var events bool

	cmd := &cobra.Command{
		Use:   "show <release-id>",
		Short: "Show a release and its plan",
		Example: `  # Show a release summary
  rpmforge show 2f1c9a7e-8a4b-4a44-9d5b-0c1f9f6f1a2d

  # Full plan as JSON
  rpmforge show --json 2f1c9a7e-8a4b-4a44-9d5b-0c1f9f6f1a2d

  # Include the audit trail
  rpmforge show --events 2f1c9a7e-8a4b-4a44-9d5b-0c1f9f6f1a2d`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx, nil, version)
			if err != nil {
				return err
			}
			defer rt.Close(ctx)

			rel, err := rt.coord.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if err := printRelease(rel); err != nil {
				return err
			}

			if events {
				trail, err := rt.store.GetEvents(ctx, rel.ID, nil, 100, 0)
				if err != nil {
					return fmt.Errorf("failed to load events: %w", err)
				}
				if jsonOutput {
					return printJSON(trail)
				}
				fmt.Println("Events:")
				for _, event := range trail {
					fmt.Printf("  %s [%s] %s\n", event.Timestamp.Format("2006-01-02 15:04:05"), event.Level, event.Message)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&events, "events", false, "include the release audit trail")

	return cmd
}
