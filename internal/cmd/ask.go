package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/agent"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/present"
	"github.com/dotcommander/betbox/internal/transport"
)

// maxTurnAttempts bounds how often a turn is retried after a recoverable
// provider error.
const maxTurnAttempts = 2

func newAskCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [QUESTION]",
		Short: "Answer one question and print the answer",
		Long:  "Answer one question and print the answer. Text piped on stdin is appended to the question.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return rt.runAsk(cmd, args)
		},
	}
}

func (rt *runtime) runAsk(cmd *cobra.Command, args []string) error {
	stop := interruptible(cmd)
	defer stop()

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return errs.Wrap(err, "Could not read the question.")
	}
	if prompt == "" {
		return errs.Error{
			Reason: "You haven't provided a question.",
			Err: errs.UserErrorf(
				"You can give your question as arguments and/or pipe it from STDIN.\nExample: %s",
				present.StdoutStyles().InlineCode.Render(`betbox ask "which sports can I bet on?"`),
			),
		}
	}

	ctx := cmd.Context()
	g, err := rt.service().Graph(ctx)
	if err != nil {
		return err
	}
	shim := transport.NewShim(g, rt.logger.Named("shim"))
	sink := &transport.TrackingSink{Sink: transport.WriterSink{W: cmd.OutOrStdout()}}

	for attempt := 1; ; attempt++ {
		_, err := shim.Turn(ctx, prompt, sink)
		if err == nil {
			return nil
		}
		action := agent.ActionForTurnError(err, rt.cfg.Agent.API, prompt)
		// Part of the answer is already printed; a retry would repeat it.
		if !action.Retry || attempt >= maxTurnAttempts || sink.Delivered() {
			return action.Err
		}
		rt.logger.Warn("retrying turn", zap.Int("attempt", attempt), zap.Error(err))
		prompt = action.Prompt
	}
}
