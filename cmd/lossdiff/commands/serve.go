package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
	"github.com/Sumatoshi-tech/lossdiff/pkg/plotpage"
	"github.com/Sumatoshi-tech/lossdiff/pkg/server"
)

type serveOptions struct {
	host string
	port int
}

func newServeCommand(global *globalFlags) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve [file]",
		Short: "Run the interactive web UI",
		Long: `Serve a page where a loss CSV can be dropped or picked, the window
adjusted and the charts replotted. Every change is pushed to open pages over
a websocket. A file given as argument is loaded before the server starts.

The server stops gracefully on SIGINT or SIGTERM.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "listen port (default from config)")

	return cmd
}

func runServe(cmd *cobra.Command, global *globalFlags, opts *serveOptions, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd.SetContext(ctx)

	env, err := global.setup(cmd, observability.ModeServe, nil)
	if err != nil {
		return err
	}
	defer env.close(ctx)

	if cmd.Flags().Changed("host") {
		env.cfg.Server.Host = opts.host
	}

	if cmd.Flags().Changed("port") {
		env.cfg.Server.Port = opts.port
	}

	validateErr := env.cfg.Validate()
	if validateErr != nil {
		return fmt.Errorf("validate flags: %w", validateErr)
	}

	red, err := observability.NewREDMetrics(env.providers.Meter)
	if err != nil {
		return fmt.Errorf("create request metrics: %w", err)
	}

	engineMetrics, err := observability.NewEngineMetrics(env.providers.Meter)
	if err != nil {
		return fmt.Errorf("create engine metrics: %w", err)
	}

	manager := env.newManager(engineMetrics)

	if len(args) == 1 {
		_, loadErr := loadDataset(cmd, env.logger, manager, args[0], windowFlags{})
		if loadErr != nil {
			return loadErr
		}
	}

	srv := server.New(manager, server.Options{
		Addr:         env.cfg.Server.Addr(),
		ReadTimeout:  env.cfg.Server.ReadTimeout,
		WriteTimeout: env.cfg.Server.WriteTimeout,
		IdleTimeout:  env.cfg.Server.IdleTimeout,
		UploadLimit:  env.cfg.Server.UploadLimit(),
		SeriesA:      env.cfg.Engine.SeriesA,
		SeriesB:      env.cfg.Engine.SeriesB,
		Theme:        plotpage.ParseTheme(env.cfg.Plot.Theme),
		PlotHeight:   env.cfg.Plot.Height,
		Logger:       env.logger,
		Tracer:       env.providers.Tracer,
		RED:          red,
		Metrics:      env.providers.MetricsHandler,
	})

	return srv.Run(ctx)
}
