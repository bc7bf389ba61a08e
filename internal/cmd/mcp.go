package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dotcommander/betbox/internal/config"
	imcp "github.com/dotcommander/betbox/internal/mcp"
	"github.com/dotcommander/betbox/internal/present"
)

func newMCPCmd(rt *runtime) *cobra.Command {
	mcpCmd := &cobra.Command{
		Use:   "mcp",
		Short: "MCP server integration",
	}

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List configured MCP servers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			mcpList(cmd.OutOrStdout(), imcp.New(&rt.cfg, rt.logger), &rt.cfg)
			return nil
		},
	})

	mcpCmd.AddCommand(&cobra.Command{
		Use:   "tools",
		Short: "List tools from enabled MCP servers, as the agent sees them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if rt.cfgErr != nil {
				return rt.cfgErr
			}
			stop := interruptible(cmd)
			defer stop()
			return mcpListTools(cmd.Context(), cmd.OutOrStdout(), imcp.New(&rt.cfg, rt.logger))
		},
	})

	return mcpCmd
}

func mcpList(w io.Writer, svc *imcp.Service, cfg *config.Config) {
	for _, name := range slices.Sorted(maps.Keys(cfg.MCPServers)) {
		s := name
		if svc.IsEnabled(name) {
			s += present.StdoutStyles().Muted.Render(" (enabled)")
		}
		fmt.Fprintln(w, s)
	}
}

func mcpListTools(ctx context.Context, w io.Writer, svc *imcp.Service) error {
	specs, err := svc.Specs(ctx)
	if err != nil {
		return err
	}
	for _, spec := range specs {
		fmt.Fprintln(w, spec.Name)
	}
	return nil
}
