// Package report renders a window view as a text table, JSON, YAML or an
// HTML plot page.
package report

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/lossdiff/pkg/lossdata"
	"github.com/Sumatoshi-tech/lossdiff/pkg/lossstats"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

// Format is an output format name.
type Format string

// Output formats.
const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ErrUnknownFormat is returned for a format name outside text, json and yaml.
var ErrUnknownFormat = errors.New("unknown output format")

// ParseFormat validates a format name.
func ParseFormat(name string) (Format, error) {
	switch f := Format(name); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownFormat, name)
	}
}

// Options control what a rendering includes.
type Options struct {
	// SeriesA and SeriesB label the two backends.
	SeriesA string
	SeriesB string
	// IncludeSeries adds the visible loss and diff records to JSON and YAML.
	IncludeSeries bool
	// NoColor disables ANSI markers in text output.
	NoColor bool
}

// Summary is the machine-readable form of a window view.
type Summary struct {
	Generation uint64                `json:"generation"       yaml:"generation"`
	SeriesA    string                `json:"series_a"         yaml:"series_a"`
	SeriesB    string                `json:"series_b"         yaml:"series_b"`
	Start      int                   `json:"start"            yaml:"start"`
	End        int                   `json:"end"              yaml:"end"`
	Len        int                   `json:"len"              yaml:"len"`
	Stats      lossstats.Statistics  `json:"stats"            yaml:"stats"`
	Losses     []lossdata.LossRecord `json:"losses,omitempty" yaml:"losses,omitempty"`
	Diffs      []lossdata.DiffRecord `json:"diffs,omitempty"  yaml:"diffs,omitempty"`
}

// NewSummary builds a Summary from a view.
func NewSummary(view window.View, opts Options) Summary {
	s := Summary{
		Generation: view.Generation,
		SeriesA:    opts.SeriesA,
		SeriesB:    opts.SeriesB,
		Start:      view.Start,
		End:        view.End,
		Len:        view.Len,
		Stats:      view.Stats,
	}

	if opts.IncludeSeries {
		s.Losses = view.Losses
		s.Diffs = view.Diffs
	}

	return s
}

// Write renders view in the given format.
func Write(w io.Writer, format Format, view window.View, opts Options) error {
	switch format {
	case FormatText:
		return WriteText(w, view, opts)
	case FormatJSON:
		return WriteJSON(w, view, opts)
	case FormatYAML:
		return WriteYAML(w, view, opts)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteJSON encodes the view summary as indented JSON.
func WriteJSON(w io.Writer, view window.View, opts Options) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	err := encoder.Encode(NewSummary(view, opts))
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}

	return nil
}

// WriteYAML encodes the view summary as YAML.
func WriteYAML(w io.Writer, view window.View, opts Options) error {
	data, err := yaml.Marshal(NewSummary(view, opts))
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write yaml: %w", err)
	}

	return nil
}
