package server

import (
	"bytes"
	"embed"
	"html/template"
	"io"
	"net/http"

	"github.com/Sumatoshi-tech/lossdiff/pkg/plotpage"
	"github.com/Sumatoshi-tech/lossdiff/pkg/report"
)

//go:embed assets/*
var assetFS embed.FS

var (
	controlsTemplate = template.Must(template.ParseFS(assetFS, "assets/controls.html"))
	appCSS           = mustAsset("assets/app.css")
	appJS            = mustAsset("assets/app.js")
)

func mustAsset(path string) string {
	data, err := assetFS.ReadFile(path)
	if err != nil {
		panic("server: missing embedded asset " + path)
	}

	return string(data)
}

type controlsData struct {
	SeriesA string
	SeriesB string
	Start   int
	End     int
	Len     int
	Loaded  bool
}

// controls is the drop zone and window form shown above the charts.
type controls controlsData

func (c controls) Render(w io.Writer) error {
	return controlsTemplate.Execute(w, controlsData(c))
}

func (s *Server) handlePage(rw http.ResponseWriter, hr *http.Request) {
	ctx := hr.Context()
	view := s.manager.View()

	opts := report.Options{SeriesA: s.opts.SeriesA, SeriesB: s.opts.SeriesB}
	page := report.BuildPage(view, report.PageOptions{
		Options: opts,
		Theme:   s.opts.Theme,
		Height:  s.opts.PlotHeight,
	})

	renderer := plotpage.HTMLRenderer{
		ExtraCSS: appCSS,
		Prelude: controls{
			SeriesA: opts.SeriesA,
			SeriesB: opts.SeriesB,
			Start:   view.Start,
			End:     view.End,
			Len:     view.Len,
			Loaded:  view.Loaded,
		},
		ExtraScript: template.JS(appJS), //nolint:gosec // embedded asset.
	}

	var buf bytes.Buffer

	err := renderer.Render(&buf, page)
	if err != nil {
		s.logger.ErrorContext(ctx, "render page failed", "error", err)
		http.Error(rw, "render page failed", http.StatusInternalServerError)

		return
	}

	rw.Header().Set("Content-Type", "text/html; charset=utf-8")

	_, err = buf.WriteTo(rw)
	if err != nil {
		s.logger.DebugContext(ctx, "write page failed", "error", err)
	}
}
