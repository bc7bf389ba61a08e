package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dotcommander/betbox/internal/betfair"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/present"
)

func newBetfairCmd(rt *runtime) *cobra.Command {
	betfairCmd := &cobra.Command{
		Use:   "betfair",
		Short: "Query the Betfair exchange directly",
	}

	betfairCmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Log in and list every event type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			stop := interruptible(cmd)
			defer stop()

			ctx := cmd.Context()
			session, err := rt.service().Session(ctx)
			if err != nil {
				return err
			}
			if !rt.cfg.Quiet {
				present.PrintConfirmation(cmd.ErrOrStderr(), "LOGGED IN", rt.cfg.Betfair.Username)
			}
			results, err := session.ListEventTypes(ctx, betfair.MarketFilter{})
			if err != nil {
				return errs.Wrap(err, "Could not list event types.")
			}
			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return nil
		},
	})

	betfairCmd.AddCommand(&cobra.Command{
		Use:   "competitions EVENT_TYPE_ID...",
		Short: "List the competitions for the given event types",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			stop := interruptible(cmd)
			defer stop()

			ctx := cmd.Context()
			session, err := rt.service().Session(ctx)
			if err != nil {
				return err
			}
			results, err := session.ListCompetitions(ctx, betfair.MarketFilter{EventTypeIDs: args})
			if err != nil {
				return errs.Wrap(err, "Could not list competitions.")
			}
			for _, r := range results {
				fmt.Fprintln(cmd.OutOrStdout(), r.String())
			}
			return nil
		},
	})

	return betfairCmd
}
