package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	glamour "github.com/charmbracelet/glamour/styles"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dotcommander/betbox/internal/agent"
	"github.com/dotcommander/betbox/internal/config"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/logging"
	imcp "github.com/dotcommander/betbox/internal/mcp"
	"github.com/dotcommander/betbox/internal/present"
)

type runtime struct {
	build  BuildInfo
	cfg    config.Config
	cfgErr error

	logger    *zap.Logger
	agentOpts []agent.Option
}

// NewRootCmd constructs the Cobra root command. opts are handed to every
// agent service the commands build.
func NewRootCmd(build BuildInfo, cfg config.Config, cfgErr error, opts ...agent.Option) *cobra.Command {
	// XXX: unset error styles in Glamour dark and light styles.
	glamour.DarkStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)
	glamour.LightStyleConfig.CodeBlock.Chroma.Error.BackgroundColor = new(string)

	rt := &runtime{
		build:     normalizeBuildInfo(build),
		cfg:       cfg,
		cfgErr:    cfgErr,
		logger:    zap.NewNop(),
		agentOpts: opts,
	}

	rootCmd := &cobra.Command{
		Use:           "betbox",
		Short:         "A betting assistant that answers from the Betfair exchange.",
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		Example:       randomExample(),
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return rt.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			if len(args) == 0 && present.IsInputTTY() && present.IsOutputTTY() {
				return rt.runChat(cmd, "")
			}
			return rt.runAsk(cmd, args)
		},
	}

	rootCmd.SetUsageFunc(usageFunc)
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return newFlagParseError(err)
	})

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	rootCmd.Version = rt.build.Version
	rootCmd.SetVersionTemplate(versionTemplate(rt.build))

	initRootFlags(rootCmd, &rt.cfg)

	rootCmd.AddCommand(newAskCmd(rt))
	rootCmd.AddCommand(newChatCmd(rt))
	rootCmd.AddCommand(newServeCmd(rt))
	rootCmd.AddCommand(newSearchCmd(rt))
	rootCmd.AddCommand(newBetfairCmd(rt))
	rootCmd.AddCommand(newToolsCmd(rt))
	rootCmd.AddCommand(newMCPCmd(rt))
	rootCmd.AddCommand(newConfigCmd(rt))
	rootCmd.AddCommand(newManCmd(rootCmd))

	rootCmd.InitDefaultCompletionCmd()

	return rootCmd
}

// setup builds the logger and resolves file:// flag values before any
// command runs.
func (rt *runtime) setup(cmd *cobra.Command) error {
	w := cmd.ErrOrStderr()
	logger, err := rt.newLogger(w, present.IsTerminal(w))
	if err != nil {
		return err
	}
	rt.logger = logger.Named(cmd.Name())

	for _, name := range []string{"persona", "system"} {
		if !cmd.Flags().Changed(name) {
			continue
		}
		field := &rt.cfg.Persona
		if name == "system" {
			field = &rt.cfg.System
		}
		msg, err := config.LoadMsg(*field)
		if err != nil {
			return errs.Wrapf(err, "Could not load the --%s message.", name)
		}
		*field = msg
	}
	return nil
}

// interruptible installs a context cancelled by SIGINT or SIGTERM.
func interruptible(cmd *cobra.Command) context.CancelFunc {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	cmd.SetContext(ctx)
	return stop
}

func (rt *runtime) newLogger(w io.Writer, color bool) (*zap.Logger, error) {
	level, err := logging.ParseLevel(rt.cfg.LogLevel)
	if err != nil {
		return nil, errs.Error{
			Err:    err,
			Reason: fmt.Sprintf("Invalid log level %q.", rt.cfg.LogLevel),
		}
	}
	if rt.cfg.Debug {
		level = zapcore.DebugLevel
	}
	return logging.New(
		logging.WithLevel(level),
		logging.WithJSON(strings.EqualFold(rt.cfg.LogFormat, "json")),
		logging.WithColor(color),
		logging.WithWriters(w),
	), nil
}

func (rt *runtime) service() *agent.Service {
	return agent.New(&rt.cfg, rt.logger, imcp.New(&rt.cfg, rt.logger), rt.agentOpts...)
}
