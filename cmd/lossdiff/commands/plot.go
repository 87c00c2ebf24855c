package commands

import (
	"bytes"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/lossdiff/pkg/config"
	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
	"github.com/Sumatoshi-tech/lossdiff/pkg/plotpage"
	"github.com/Sumatoshi-tech/lossdiff/pkg/report"
)

const plotFileMode = 0o644

type plotOptions struct {
	window windowFlags
	output string
	theme  string
	height string
}

func newPlotCommand(global *globalFlags) *cobra.Command {
	opts := &plotOptions{}

	cmd := &cobra.Command{
		Use:   "plot <file|->",
		Short: "Write a standalone HTML page with the loss and diff charts",
		Long: `Load a loss CSV and write an HTML page with the "Loss Curve" chart
(both series), the "Loss Diff Curve" chart (absolute and relative difference)
and a statistics table, all for the window [start, end).

Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlot(cmd, global, opts, args[0])
		},
	}

	opts.window.register(cmd)
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "HTML file to write")
	cmd.Flags().StringVar(&opts.theme, "theme", "", "page theme: dark or light (default from config)")
	cmd.Flags().StringVar(&opts.height, "height", "", "chart height, e.g. 500px (default from config)")

	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runPlot(cmd *cobra.Command, global *globalFlags, opts *plotOptions, path string) error {
	env, err := global.setup(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer env.close(cmd.Context())

	theme := env.cfg.Plot.Theme
	if opts.theme != "" {
		theme = opts.theme
	}

	if theme != string(plotpage.ThemeDark) && theme != string(plotpage.ThemeLight) {
		return fmt.Errorf("%w: %q", config.ErrInvalidTheme, theme)
	}

	height := env.cfg.Plot.Height
	if opts.height != "" {
		height = opts.height
	}

	view, err := loadDataset(cmd, env.logger, env.newManager(nil), path, opts.window)
	if err != nil {
		return err
	}

	page := report.BuildPage(view, report.PageOptions{
		Options: report.Options{SeriesA: env.cfg.Engine.SeriesA, SeriesB: env.cfg.Engine.SeriesB},
		Theme:   plotpage.Theme(theme),
		Height:  height,
	})

	var buf bytes.Buffer

	err = plotpage.HTMLRenderer{}.Render(&buf, page)
	if err != nil {
		return fmt.Errorf("render plot: %w", err)
	}

	err = os.WriteFile(opts.output, buf.Bytes(), plotFileMode)
	if err != nil {
		return fmt.Errorf("write plot: %w", err)
	}

	env.logger.InfoContext(cmd.Context(), "plot written",
		"path", opts.output,
		"size", humanize.Bytes(uint64(buf.Len())),
		"records", view.End-view.Start,
	)

	return nil
}
