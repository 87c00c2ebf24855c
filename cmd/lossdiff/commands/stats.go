package commands

import (
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
	"github.com/Sumatoshi-tech/lossdiff/pkg/report"
)

type statsOptions struct {
	window  windowFlags
	format  string
	series  bool
	noColor bool
}

func newStatsCommand(global *globalFlags) *cobra.Command {
	opts := &statsOptions{}

	cmd := &cobra.Command{
		Use:   "stats <file|->",
		Short: "Print difference statistics for a window of the dataset",
		Long: `Load a loss CSV and print the statistics of value_a - value_b over the
window [start, end): max, min and mean difference, the same over absolute
differences, and the smallest non-negative and largest negative difference.

Use "-" to read from standard input.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats(cmd, global, opts, args[0])
		},
	}

	opts.window.register(cmd)
	cmd.Flags().StringVarP(&opts.format, "format", "f", string(report.FormatText), "output format: text, json or yaml")
	cmd.Flags().BoolVar(&opts.series, "series", false, "include the visible loss and diff series (json and yaml)")
	cmd.Flags().BoolVar(&opts.noColor, "no-color", false, "disable colored output")

	return cmd
}

func runStats(cmd *cobra.Command, global *globalFlags, opts *statsOptions, path string) error {
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	env, err := global.setup(cmd, observability.ModeCLI, nil)
	if err != nil {
		return err
	}
	defer env.close(cmd.Context())

	view, err := loadDataset(cmd, env.logger, env.newManager(nil), path, opts.window)
	if err != nil {
		return err
	}

	return report.Write(cmd.OutOrStdout(), format, view, report.Options{
		SeriesA:       env.cfg.Engine.SeriesA,
		SeriesB:       env.cfg.Engine.SeriesB,
		IncludeSeries: opts.series,
		NoColor:       opts.noColor,
	})
}
