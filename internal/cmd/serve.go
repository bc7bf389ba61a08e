package cmd

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dotcommander/betbox/internal/agent"
	"github.com/dotcommander/betbox/internal/errs"
	"github.com/dotcommander/betbox/internal/present"
	"github.com/dotcommander/betbox/internal/transport"
	"github.com/dotcommander/betbox/internal/transport/httpchat"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(rt *runtime) *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat API over HTTP with server-sent events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			stop := interruptible(cmd)
			defer stop()

			l, err := net.Listen("tcp", rt.cfg.Listen)
			if err != nil {
				return errs.Wrapf(err, "Could not listen on %s.", rt.cfg.Listen)
			}
			return rt.serve(cmd.Context(), l)
		},
	}
	serveCmd.Flags().StringVarP(&rt.cfg.Listen, "listen", "l", rt.cfg.Listen, present.StdoutStyles().FlagDesc.Render(helpText["listen"]))
	serveCmd.Flags().DurationVar(&rt.cfg.SessionTTL, "session-ttl", rt.cfg.SessionTTL, present.StdoutStyles().FlagDesc.Render(helpText["session-ttl"]))
	return serveCmd
}

// serve runs the chat server on l until ctx is done.
func (rt *runtime) serve(ctx context.Context, l net.Listener) error {
	g, err := rt.service().Graph(ctx)
	if err != nil {
		_ = l.Close()
		return err
	}
	shim := transport.NewShim(agent.Described(g, rt.cfg.Agent.API), rt.logger.Named("shim"))
	srv := httpchat.New(shim, rt.logger.Named("http"), httpchat.WithSessionTTL(rt.cfg.SessionTTL))

	served := make(chan error, 1)
	go func() { served <- srv.RunWithListener(l) }()

	select {
	case err := <-served:
		if err != nil {
			return errs.Wrap(err, "The chat server stopped.")
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(err, "Could not shut down the chat server.")
	}
	return <-served
}
