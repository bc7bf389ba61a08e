package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/agent"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/present"
	"github.com/dotcommander/betbox/internal/transport"
	"github.com/dotcommander/betbox/internal/tui"
)

func newChatCmd(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [QUESTION]",
		Short: "Chat with the assistant in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			return rt.runChat(cmd, strings.Join(args, " "))
		},
	}
}

func (rt *runtime) runChat(cmd *cobra.Command, initial string) error {
	stop := interruptible(cmd)
	defer stop()

	// The terminal belongs to the UI; logs go to a file or nowhere.
	logger, closeLog, err := rt.chatLogger()
	if err != nil {
		return err
	}
	defer closeLog()
	rt.logger = logger

	ctx := cmd.Context()
	g, err := rt.service().Graph(ctx)
	if err != nil {
		return err
	}
	shim := transport.NewShim(agent.Described(g, rt.cfg.Agent.API), logger.Named("shim"))

	chat := tui.NewChat(ctx, present.StderrRenderer(), shim, tui.Options{
		WordWrap:      rt.cfg.WordWrap,
		Quiet:         rt.cfg.Quiet,
		InitialPrompt: strings.TrimSpace(initial),
	})
	m, err := tea.NewProgram(chat,
		tea.WithContext(ctx),
		tea.WithAltScreen(),
		tea.WithOutput(os.Stderr),
	).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return errs.Error{Err: err, Reason: "Couldn't start Bubble Tea program."}
	}

	chat = m.(*tui.Chat)
	if chat.Error != nil {
		return *chat.Error
	}
	if transcript := chat.Transcript(); transcript != "" && !rt.cfg.Quiet {
		if present.IsOutputTTY() {
			if formatted, err := present.RenderTranscript(transcript, rt.cfg.WordWrap); err == nil {
				transcript = formatted
			}
		}
		fmt.Fprint(cmd.OutOrStdout(), transcript)
	}
	return nil
}

func (rt *runtime) chatLogger() (*zap.Logger, func(), error) {
	if !rt.cfg.Debug {
		return zap.NewNop(), func() {}, nil
	}
	path := filepath.Join(filepath.Dir(rt.cfg.SettingsPath), "debug.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, nil, errs.Wrap(err, "Could not open the debug log.")
	}
	logger, err := rt.newLogger(f, false)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}
	return logger.Named("chat"), func() {
		_ = logger.Sync()
		_ = f.Close()
	}, nil
}
