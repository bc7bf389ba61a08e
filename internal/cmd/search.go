package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/agent"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/proto"
)

// fallbackQuestion is asked once when no input can be read.
const fallbackQuestion = "What do you know about LangGraph?"

var exitCommands = []string{"quit", "exit", "q"}

func newSearchCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "search",
		Short: "Answer questions with web search in a plain read-eval loop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			stop := interruptible(cmd)
			defer stop()
			return rt.runSearch(cmd, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
}

func (rt *runtime) runSearch(cmd *cobra.Command, in io.Reader, out io.Writer) error {
	ctx := cmd.Context()
	g, err := rt.service().SearchGraph(ctx)
	if err != nil {
		return err
	}
	runner := agent.Described(g, rt.cfg.Search.API)

	answer := func(question string) error {
		convo, err := runner.Run(ctx, question, proto.Discard)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, "Assistant:", convo.Last().Content)
		return err
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "User: ")
		if !scanner.Scan() {
			rt.logger.Debug("no input, asking the fallback question", zap.Error(scanner.Err()))
			fmt.Fprintln(out, fallbackQuestion)
			return answer(fallbackQuestion)
		}
		question := strings.TrimSpace(scanner.Text())
		if isExitCommand(question) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if question == "" {
			continue
		}
		if err := answer(question); err != nil {
			if ctx.Err() != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), errs.ReasonOf(err, err.Error()))
		}
	}
}

func isExitCommand(s string) bool {
	for _, c := range exitCommands {
		if strings.EqualFold(s, c) {
			return true
		}
	}
	return false
}
