package report

import (
	"fmt"
	"strconv"

	"github.com/Sumatoshi-tech/lossdiff/pkg/mathutil"
	"github.com/Sumatoshi-tech/lossdiff/pkg/plotpage"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

const (
	defaultSeriesA = "A"
	defaultSeriesB = "B"
	pageTitle      = "Loss comparison"
)

// Chart and section titles.
const (
	LossCurveTitle = "Loss Curve"
	DiffCurveTitle = "Loss Diff Curve"
	StatsTitle     = "Statistics"
)

// PageOptions configure BuildPage.
type PageOptions struct {
	Options

	Theme plotpage.Theme
	// Height is the CSS height of each chart; empty keeps the default.
	Height string
}

// BuildPage lays out the loss curve, the difference curve and the statistics
// table for the visible window of view.
func BuildPage(view window.View, opts PageOptions) *plotpage.Page {
	if opts.SeriesA == "" {
		opts.SeriesA = defaultSeriesA
	}

	if opts.SeriesB == "" {
		opts.SeriesB = defaultSeriesB
	}

	opts.Theme = plotpage.ParseTheme(string(opts.Theme))

	page := plotpage.NewPage(pageTitle, WindowTitle(view, opts.Options)).WithTheme(opts.Theme)
	page.Style = page.Style.WithHeight(opts.Height)

	cOpts := plotpage.NewChartOpts(opts.Theme, page.Style)
	palette := plotpage.GetSeriesPalette(opts.Theme)

	labels := make([]string, len(view.Losses))
	seriesA := make([]float64, len(view.Losses))
	seriesB := make([]float64, len(view.Losses))

	for i, rec := range view.Losses {
		labels[i] = strconv.FormatFloat(rec.Step, 'f', -1, 64)
		seriesA[i] = rec.ValueA
		seriesB[i] = rec.ValueB
	}

	abs := make([]float64, len(view.Diffs))
	rel := make([]float64, len(view.Diffs))

	for i, d := range view.Diffs {
		abs[i] = d.AbsoluteDiff
		rel[i] = d.RelativeDiff
	}

	lossChart := plotpage.BuildLineChart(cOpts, plotpage.LineChart{
		Title:  LossCurveTitle,
		XLabel: "Step",
		YLabel: "Loss",
		Labels: labels,
		Series: []plotpage.LineSeries{
			{Name: opts.SeriesA, Data: seriesA, Color: palette.SeriesA},
			{Name: opts.SeriesB, Data: seriesB, Color: palette.SeriesB},
		},
	})

	diffChart := plotpage.BuildLineChart(cOpts, plotpage.LineChart{
		Title:  DiffCurveTitle,
		XLabel: "Step",
		YLabel: "Diff",
		Labels: labels,
		Series: []plotpage.LineSeries{
			{Name: "Abs", Data: abs, Color: palette.Absolute},
			{Name: "Rel", Data: rel, Color: palette.Relative},
		},
	})

	page.Add(
		plotpage.Section{
			Title:    LossCurveTitle,
			Subtitle: fmt.Sprintf("%s and %s loss per step", opts.SeriesA, opts.SeriesB),
			Chart:    plotpage.WrapChart(lossChart),
		},
		plotpage.Section{
			Title:    DiffCurveTitle,
			Subtitle: fmt.Sprintf("Abs is %s - %s, Rel is Abs / %s", opts.SeriesA, opts.SeriesB, opts.SeriesB),
			Chart:    plotpage.WrapChart(diffChart),
			Hint:     diffHint(view),
		},
		plotpage.Section{
			Title: StatsTitle,
			Chart: StatsTable(view),
		},
	)

	return page
}

// StatsTable renders the statistics of view as a plot page table.
func StatsTable(view window.View) plotpage.Table {
	rows := StatRows(view.Stats, view.End == view.Start)
	cells := make([][]string, len(rows))

	for i, row := range rows {
		value := row.Value
		if row.Missing {
			value = NoData
		}

		cells[i] = []string{row.Metric, value, row.Step}
	}

	return plotpage.Table{
		Headers: []string{"Metric", "Value", "Step"},
		Rows:    cells,
		Striped: true,
	}
}

func diffHint(view window.View) plotpage.Hint {
	gaps := 0

	for _, d := range view.Diffs {
		if !mathutil.IsFinite(d.RelativeDiff) {
			gaps++
		}
	}

	if gaps == 0 {
		return plotpage.Hint{}
	}

	return plotpage.Hint{
		Title: "Gaps",
		Items: []string{
			fmt.Sprintf("%d relative differences are infinite or undefined and are not drawn.", gaps),
		},
	}
}
