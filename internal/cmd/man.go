package cmd

import (
	"fmt"

	mcobra "github.com/muesli/mango-cobra"
	"github.com/muesli/roff"
	"github.com/spf13/cobra"
)

const manEnvironment = `BETBOX_BETFAIR_USERNAME, BETBOX_BETFAIR_PASSWORD, BETBOX_BETFAIR_APP_KEY and BETBOX_BETFAIR_CERT_PATH hold the exchange login.
Any other setting can be given as BETBOX_<SETTING>, and a .env file in the working directory or a parent is read first.
OPENAI_API_KEY, ANTHROPIC_API_KEY and the other provider variables hold model keys, and TAVILY_API_KEY enables search.`

func newManCmd(root *cobra.Command) *cobra.Command {
	return &cobra.Command{
		Use:                   "man",
		Short:                 "Print the betbox man page",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Hidden:                true,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			page, err := mcobra.NewManPage(1, root)
			if err != nil {
				return fmt.Errorf("build man page: %w", err)
			}
			page = page.WithSection("Environment", manEnvironment)
			if _, err := fmt.Fprint(cmd.OutOrStdout(), page.Build(roff.NewDocument())); err != nil {
				return fmt.Errorf("write man page: %w", err)
			}
			return nil
		},
	}
}
