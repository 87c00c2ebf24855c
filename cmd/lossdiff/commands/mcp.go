package commands

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/lossdiff/pkg/mcp"
	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
	"github.com/Sumatoshi-tech/lossdiff/pkg/version"
)

func newMCPCommand(global *globalFlags) *cobra.Command {
	var debug bool

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server drives one in-memory lossdiff engine through these tools:
  - lossdiff_load: load a dataset from CSV text
  - lossdiff_window: set the window [start, end) and get its statistics
  - lossdiff_stats: get the current window and statistics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := global.setup(cmd, observability.ModeMCP, func(cfg *observability.Config) {
				// Stdout carries the protocol; logs stay structured on stderr.
				cfg.LogJSON = true

				if debug {
					cfg.LogLevel = slog.LevelDebug
					cfg.DebugTrace = true
				}
			})
			if err != nil {
				return err
			}
			defer env.close(cmd.Context())

			red, err := observability.NewREDMetrics(env.providers.Meter)
			if err != nil {
				return err
			}

			engineMetrics, err := observability.NewEngineMetrics(env.providers.Meter)
			if err != nil {
				return err
			}

			srv := mcp.NewServer(mcp.ServerDeps{
				Manager: env.newManager(engineMetrics),
				SeriesA: env.cfg.Engine.SeriesA,
				SeriesB: env.cfg.Engine.SeriesB,
				Version: version.Version,
				Logger:  env.logger,
				Metrics: red,
				Tracer:  env.providers.Tracer,
			})

			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}
