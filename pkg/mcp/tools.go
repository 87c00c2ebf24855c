package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/lossdiff/pkg/lossdata"
	"github.com/Sumatoshi-tech/lossdiff/pkg/report"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

// Tool name constants.
const (
	ToolNameLoad   = "lossdiff_load"
	ToolNameWindow = "lossdiff_window"
	ToolNameStats  = "lossdiff_stats"
)

// MaxCSVInputBytes is the maximum allowed size for inline CSV input (16 MB).
const MaxCSVInputBytes = 16 << 20

// ErrCSVTooLarge indicates the csv input exceeds the size limit.
var ErrCSVTooLarge = errors.New("csv input exceeds maximum size")

// Input types (auto-generate JSON schemas via struct tags).

// LoadInput is the input schema for the lossdiff_load tool.
type LoadInput struct {
	CSV string `json:"csv" jsonschema:"loss CSV text, one step,value_a,value_b row per line, no header; empty text loads an empty dataset"`
}

// WindowInput is the input schema for the lossdiff_window tool.
type WindowInput struct {
	Start int `json:"start" jsonschema:"first row index in the window (inclusive)"`
	End   int `json:"end"   jsonschema:"row index one past the last row in the window"`
}

// StatsInput is the input schema for the lossdiff_stats tool.
type StatsInput struct{}

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: json.RawMessage(data)}, nil
}

func (s *Server) summary(view window.View) report.Summary {
	return report.NewSummary(view, report.Options{SeriesA: s.seriesA, SeriesB: s.seriesB})
}

func (s *Server) handleLoad(ctx context.Context, _ *mcpsdk.CallToolRequest, in LoadInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if len(in.CSV) > MaxCSVInputBytes {
		return errorResult(fmt.Errorf("%w: %d bytes (max %d)", ErrCSVTooLarge, len(in.CSV), MaxCSVInputBytes))
	}

	view, err := s.manager.Load(ctx, in.CSV)
	if err != nil {
		var parseErr *lossdata.ParseError
		if errors.As(err, &parseErr) {
			return errorResult(fmt.Errorf("parse csv: %w", parseErr))
		}

		return errorResult(err)
	}

	return jsonResult(s.summary(view))
}

func (s *Server) handleWindow(ctx context.Context, _ *mcpsdk.CallToolRequest, in WindowInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	view, err := s.manager.SetWindow(ctx, in.Start, in.End)
	if err != nil {
		return errorResult(err)
	}

	return jsonResult(s.summary(view))
}

func (s *Server) handleStats(_ context.Context, _ *mcpsdk.CallToolRequest, _ StatsInput) (*mcpsdk.CallToolResult, ToolOutput, error) {
	view := s.manager.View()
	if !view.Loaded {
		return errorResult(window.ErrNoDataset)
	}

	return jsonResult(s.summary(view))
}
