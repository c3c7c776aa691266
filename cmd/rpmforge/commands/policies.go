package commands

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/rpmforge/rpmforge/pkg/config"
	"github.com/rpmforge/rpmforge/pkg/policy"
)

func newPoliciesCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policies",
		Short: "List the commit policies that would gate releases",
		Long: `List the policies the commit gate evaluates: the built-in ones plus
any loaded from the configured policy directory.`,
		Example: `  rpmforge policies -c /etc/rpmforge/config.cue`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var dir string
			if len(configPaths) > 0 {
				parser := config.NewCUEParser()
				parsed, err := parser.Load(ctx, configPaths)
				if err != nil {
					return err
				}
				dir = parsed.Service.Policy.Dir
			}

			engine, err := policy.NewEngine(zerolog.Nop())
			if err != nil {
				return err
			}
			if dir != "" {
				if err := engine.LoadPolicies(ctx, []string{dir}); err != nil {
					return err
				}
			}

			policies := engine.ListPolicies()
			sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })

			if jsonOutput {
				return printJSON(policies)
			}
			for _, p := range policies {
				state := "enabled"
				if !p.Enabled {
					state = "disabled"
				}
				fmt.Printf("%-20s %-8s %-8s %s\n", p.Name, p.Severity, state, p.Description)
			}
			return nil
		},
	}

	return cmd
}
