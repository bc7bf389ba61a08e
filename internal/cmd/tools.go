package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotcommander/betbox/internal/present"
)

func newToolsCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List the tools the agent can call",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			stop := interruptible(cmd)
			defer stop()

			reg, err := rt.service().Registry(cmd.Context())
			if err != nil {
				return err
			}
			styles := present.StdoutStyles()
			for _, spec := range reg.Specs() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n",
					styles.Flag.Render(spec.Name),
					styles.Muted.Render(spec.Description))
			}
			return nil
		},
	}
}
