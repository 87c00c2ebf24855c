package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/Sumatoshi-tech/lossdiff/pkg/lossstats"
	"github.com/Sumatoshi-tech/lossdiff/pkg/mathutil"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

// valuePrecision is the number of significant digits shown for statistics.
const valuePrecision = 6

// NoData marks a statistic with no record to report.
const NoData = "no data"

// Row is one statistic prepared for display.
type Row struct {
	Metric string
	Value  string
	Step   string
	// Missing is set when the window has no record for this statistic.
	Missing bool
	// NonFinite is set when Value is an infinity or NaN.
	NonFinite bool
}

// StatRows lists the statistics of a window in display order. An empty window
// marks every row missing.
func StatRows(st lossstats.Statistics, empty bool) []Row {
	rows := []Row{
		extremumRow("max diff", st.MaxDiff, true),
		extremumRow("min diff", st.MinDiff, true),
		meanRow("mean diff", st.MeanDiff),
		extremumRow("max |diff|", st.MaxAbsDiff, true),
		extremumRow("min |diff|", st.MinAbsDiff, true),
		meanRow("mean |diff|", st.MeanAbsDiff),
		extremumRow("min positive diff", st.MinPositiveDiff, st.HasMinPositive()),
		extremumRow("max negative diff", st.MaxNegativeDiff, st.HasMaxNegative()),
	}

	if empty {
		for i := range rows {
			rows[i] = Row{Metric: rows[i].Metric, Missing: true}
		}
	}

	return rows
}

func extremumRow(metric string, e lossstats.Extremum, available bool) Row {
	if !available {
		return Row{Metric: metric, Missing: true}
	}

	return Row{
		Metric:    metric,
		Value:     mathutil.FormatFloat(e.Value, valuePrecision),
		Step:      strconv.FormatInt(e.Step, 10),
		NonFinite: !mathutil.IsFinite(e.Value),
	}
}

func meanRow(metric string, v float64) Row {
	return Row{
		Metric:    metric,
		Value:     mathutil.FormatFloat(v, valuePrecision),
		NonFinite: !mathutil.IsFinite(v),
	}
}

// WindowTitle describes the bounds of a view.
func WindowTitle(view window.View, opts Options) string {
	title := fmt.Sprintf("Window [%d, %d) of %d records", view.Start, view.End, view.Len)
	if opts.SeriesA != "" && opts.SeriesB != "" {
		title += fmt.Sprintf(" (%s vs %s)", opts.SeriesA, opts.SeriesB)
	}

	return title
}

// WriteText renders the statistics of view as a table.
func WriteText(w io.Writer, view window.View, opts Options) error {
	missing := color.New(color.FgYellow)
	nonFinite := color.New(color.FgRed)

	if opts.NoColor {
		missing.DisableColor()
		nonFinite.DisableColor()
	}

	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.AppendHeader(table.Row{"Metric", "Value", "Step"})

	for _, row := range StatRows(view.Stats, view.End == view.Start) {
		value := row.Value

		switch {
		case row.Missing:
			value = missing.Sprint(NoData)
		case row.NonFinite:
			value = nonFinite.Sprint(value)
		}

		tbl.AppendRow(table.Row{row.Metric, value, row.Step})
	}

	_, err := fmt.Fprintf(w, "%s\n%s\n", WindowTitle(view, opts), tbl.Render())
	if err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}
