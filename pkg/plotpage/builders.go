package plotpage

import (
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/Sumatoshi-tech/lossdiff/pkg/mathutil"
)

// missingValue is how echarts spells a gap in a series.
const missingValue = "-"

// LineSeries is one named line of float values.
type LineSeries struct {
	Name  string
	Data  []float64
	Color string // Optional, echarts palette if empty.
}

// LineChart describes a line chart over a shared label axis.
type LineChart struct {
	Title  string
	XLabel string
	YLabel string
	Labels []string
	Series []LineSeries
}

// BuildLineChart constructs a go-echarts Line chart. Non-finite values become
// gaps since echarts cannot plot them. If cOpts is nil, DefaultChartOpts is used.
func BuildLineChart(cOpts *ChartOpts, def LineChart) *charts.Line {
	if cOpts == nil {
		cOpts = DefaultChartOpts()
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(cOpts.Init()),
		charts.WithTitleOpts(cOpts.Title(def.Title)),
		charts.WithTooltipOpts(cOpts.Tooltip()),
		charts.WithDataZoomOpts(cOpts.DataZoom()...),
		charts.WithGridOpts(cOpts.Grid()),
		charts.WithXAxisOpts(cOpts.XAxis(def.XLabel)),
		charts.WithYAxisOpts(cOpts.YAxis(def.YLabel)),
		charts.WithLegendOpts(cOpts.Legend()),
	)

	line.SetXAxis(def.Labels)

	for _, s := range def.Series {
		lineData := make([]opts.LineData, len(s.Data))
		for i, v := range s.Data {
			lineData[i] = opts.LineData{Value: plotValue(v)}
		}

		seriesOpts := []charts.SeriesOpts{
			charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(len(s.Data) <= symbolLimit)}),
		}

		if s.Color != "" {
			seriesOpts = append(seriesOpts,
				charts.WithItemStyleOpts(opts.ItemStyle{Color: s.Color}),
				charts.WithLineStyleOpts(opts.LineStyle{Color: s.Color}),
			)
		}

		line.AddSeries(s.Name, lineData, seriesOpts...)
	}

	return line
}

// symbolLimit is the series length above which point markers are hidden.
const symbolLimit = 200

func plotValue(v float64) any {
	if !mathutil.IsFinite(v) {
		return missingValue
	}

	return v
}
