// Package commands implements CLI command handlers for lossdiff.
package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/lossdiff/pkg/config"
	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
	"github.com/Sumatoshi-tech/lossdiff/pkg/version"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	verbose    bool
	quiet      bool
}

// NewRootCommand creates the lossdiff root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "lossdiff",
		Short: "Compare two training loss curves step by step",
		Long: `lossdiff compares the loss curves of two runs of the same training job.

Input is CSV with one step,value_a,value_b row per line and no header.

Commands:
  stats     Print difference statistics for a window of the dataset
  plot      Write a standalone HTML page with the loss and diff charts
  serve     Run the interactive web UI
  mcp       Run an MCP server on stdio`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "", "config file (default .lossdiff.yaml in the working directory or $HOME)")
	rootCmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "suppress output")
	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(
		newStatsCommand(flags),
		newPlotCommand(flags),
		newServeCommand(flags),
		newMCPCommand(flags),
		newVersionCommand(),
	)

	return rootCmd
}

// env is what a command needs once config and telemetry are up.
type env struct {
	cfg       *config.Config
	providers observability.Providers
	logger    *slog.Logger
}

// setup loads config and initializes telemetry for mode, with logs on the
// command's stderr. Callers must call close.
func (g *globalFlags) setup(cmd *cobra.Command, mode observability.AppMode, adjust func(*observability.Config)) (*env, error) {
	cfg, err := config.LoadConfig(g.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	telemetry := cfg.Telemetry(mode, version.Version)

	switch {
	case g.verbose:
		telemetry.LogLevel = slog.LevelDebug
	case g.quiet:
		telemetry.LogLevel = slog.LevelError
	}

	if adjust != nil {
		adjust(&telemetry)
	}

	providers, err := observability.InitWithWriter(telemetry, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	return &env{cfg: cfg, providers: providers, logger: providers.Logger}, nil
}

func (e *env) close(ctx context.Context) {
	err := e.providers.Shutdown(context.WithoutCancel(ctx))
	if err != nil {
		e.logger.Warn("observability shutdown failed", "error", err)
	}
}

// newManager creates an engine configured from e. metrics may be nil.
func (e *env) newManager(metrics *observability.EngineMetrics) *window.Manager {
	return window.NewManager(
		window.WithEpsilon(e.cfg.Engine.Epsilon),
		window.WithLogger(e.logger),
		window.WithTracer(e.providers.Tracer),
		window.WithMetrics(metrics),
	)
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
