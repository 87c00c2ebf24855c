package plotpage

import (
	"github.com/go-echarts/go-echarts/v2/opts"
)

const dataZoomEndPercent = 100

// ChartOpts provides themed echarts options.
type ChartOpts struct {
	theme ThemeConfig
	style Style
}

// NewChartOpts creates ChartOpts for the given theme and style.
func NewChartOpts(theme Theme, style Style) *ChartOpts {
	return &ChartOpts{theme: GetThemeConfig(theme), style: style}
}

// DefaultChartOpts returns dark-themed options with the default style.
func DefaultChartOpts() *ChartOpts {
	return NewChartOpts(ThemeDark, DefaultStyle())
}

// Init returns initialization options sized from the style.
func (c *ChartOpts) Init() opts.Initialization {
	return opts.Initialization{
		Width:           c.style.Width,
		Height:          c.style.Height,
		BackgroundColor: c.theme.ChartBackground,
		Theme:           c.theme.EChartsTheme,
	}
}

// Title returns a centered chart title.
func (c *ChartOpts) Title(title string) opts.Title {
	return opts.Title{
		Title:      title,
		Left:       "center",
		TitleStyle: &opts.TextStyle{Color: c.theme.ChartText},
	}
}

// Legend returns a legend in the top right corner, as the loss charts place it.
func (c *ChartOpts) Legend() opts.Legend {
	return opts.Legend{
		Show:      opts.Bool(true),
		Right:     "5%",
		Top:       "0",
		TextStyle: &opts.TextStyle{Color: c.theme.ChartTextMuted},
	}
}

// XAxis returns a category axis with themed colors.
func (c *ChartOpts) XAxis(name string) opts.XAxis {
	return opts.XAxis{
		Name:         name,
		NameLocation: "middle",
		NameGap:      30,
		AxisLabel:    &opts.AxisLabel{Color: c.theme.ChartTextMuted},
		AxisLine:     &opts.AxisLine{LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
		SplitLine: &opts.SplitLine{
			Show:      opts.Bool(true),
			LineStyle: &opts.LineStyle{Color: c.theme.ChartGrid},
		},
	}
}

// YAxis returns a value axis that does not force zero into range.
func (c *ChartOpts) YAxis(name string) opts.YAxis {
	return opts.YAxis{
		Name:      name,
		Scale:     opts.Bool(true),
		AxisLabel: &opts.AxisLabel{Color: c.theme.ChartTextMuted},
		AxisLine:  &opts.AxisLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: c.theme.ChartAxis}},
		SplitLine: &opts.SplitLine{
			Show:      opts.Bool(true),
			LineStyle: &opts.LineStyle{Color: c.theme.ChartGrid},
		},
	}
}

// Grid returns grid options from the style margins.
func (c *ChartOpts) Grid() opts.Grid {
	return opts.Grid{
		Top:          c.style.GridTop,
		Bottom:       c.style.GridBottom,
		Left:         c.style.GridLeft,
		Right:        c.style.GridRight,
		ContainLabel: opts.Bool(true),
	}
}

// DataZoom returns a slider plus mouse-wheel zoom.
func (c *ChartOpts) DataZoom() []opts.DataZoom {
	return []opts.DataZoom{
		{Type: "slider", Start: 0, End: dataZoomEndPercent},
		{Type: "inside"},
	}
}

// Tooltip returns an axis-triggered tooltip with a cross pointer, so both
// series at the hovered step are shown together.
func (c *ChartOpts) Tooltip() opts.Tooltip {
	return opts.Tooltip{
		Show:        opts.Bool(true),
		Trigger:     "axis",
		AxisPointer: &opts.AxisPointer{Type: "cross"},
	}
}
