package cmd

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dotcommander/betbox/internal/config"
	"github.com/dotcommander/betbox/internal/present"
)

func initRootFlags(cmd *cobra.Command, cfg *config.Config) {
	desc := func(name string) string {
		return present.StdoutStyles().FlagDesc.Render(helpText[name])
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&cfg.Agent.Model, "model", "m", cfg.Agent.Model, desc("model"))
	flags.StringVarP(&cfg.Agent.API, "api", "a", cfg.Agent.API, desc("api"))
	flags.Float64Var(&cfg.Agent.Temperature, "temp", cfg.Agent.Temperature, desc("temp"))
	flags.Float64Var(&cfg.Agent.TopP, "topp", cfg.Agent.TopP, desc("topp"))
	flags.Int64Var(&cfg.Agent.MaxTokens, "max-tokens", cfg.Agent.MaxTokens, desc("max-tokens"))
	flags.StringVar(&cfg.Final.Model, "final-model", cfg.Final.Model, desc("final-model"))
	flags.StringVar(&cfg.Final.API, "final-api", cfg.Final.API, desc("final-api"))
	flags.StringVar(&cfg.Search.Model, "search-model", cfg.Search.Model, desc("search-model"))
	flags.StringVar(&cfg.Search.API, "search-api", cfg.Search.API, desc("search-api"))
	flags.StringVar(&cfg.Persona, "persona", cfg.Persona, desc("persona"))
	flags.StringVar(&cfg.System, "system", cfg.System, desc("system"))
	flags.IntVar(&cfg.MaxToolRounds, "max-tool-rounds", cfg.MaxToolRounds, desc("max-tool-rounds"))
	flags.DurationVar(&cfg.TurnTimeout, "turn-timeout", cfg.TurnTimeout, desc("turn-timeout"))
	flags.StringVarP(&cfg.HTTPProxy, "http-proxy", "x", cfg.HTTPProxy, desc("http-proxy"))
	flags.IntVar(&cfg.WordWrap, "word-wrap", cfg.WordWrap, desc("word-wrap"))
	flags.StringArrayVar(&cfg.MCPDisable, "mcp-disable", cfg.MCPDisable, desc("mcp-disable"))
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, desc("log-level"))
	flags.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, desc("log-format"))
	flags.BoolVar(&cfg.Debug, "debug", cfg.Debug, desc("debug"))
	flags.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, desc("quiet"))
	flags.BoolP("help", "h", false, desc("help"))
	flags.SortFlags = false

	cmd.Flags().BoolP("version", "v", false, desc("version"))

	flags.BoolVar(&memprofile, "memprofile", false, "Write memory profiles to CWD")
	_ = flags.MarkHidden("memprofile")

	_ = cmd.RegisterFlagCompletionFunc("api", func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return apiNames(cfg, toComplete), cobra.ShellCompDirectiveNoFileComp
	})
	for _, name := range []string{"model", "final-model", "search-model"} {
		_ = cmd.RegisterFlagCompletionFunc(name, func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			return modelNames(cfg, toComplete), cobra.ShellCompDirectiveNoFileComp
		})
	}
	_ = cmd.RegisterFlagCompletionFunc("log-level", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"debug", "info", "warn", "error"}, cobra.ShellCompDirectiveNoFileComp
	})
}

func apiNames(cfg *config.Config, prefix string) []string {
	var names []string
	for _, api := range cfg.APIs {
		if strings.HasPrefix(api.Name, prefix) {
			names = append(names, api.Name)
		}
	}
	return names
}

func modelNames(cfg *config.Config, prefix string) []string {
	var names []string
	for _, api := range cfg.APIs {
		for name, model := range api.Models {
			for _, n := range append([]string{name}, model.Aliases...) {
				if strings.HasPrefix(n, prefix) {
					names = append(names, n)
				}
			}
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}
