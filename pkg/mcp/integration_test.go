package mcp_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/lossdiff/pkg/mcp"
	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

const exampleCSV = "1,10,8\n2,9,9\n3,5,10\n"

type summary struct {
	SeriesA string         `json:"series_a"`
	SeriesB string         `json:"series_b"`
	Start   int            `json:"start"`
	End     int            `json:"end"`
	Len     int            `json:"len"`
	Stats   map[string]any `json:"stats"`
}

func connect(t *testing.T, deps mcp.ServerDeps) *mcpsdk.ClientSession {
	t.Helper()

	srv := mcp.NewServer(deps)

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return session
}

func callTool(t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	result, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func firstText(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	text, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok, "content is %T", result.Content[0])

	return text.Text
}

func decodeSummary(t *testing.T, result *mcpsdk.CallToolResult) summary {
	t.Helper()

	var out summary
	require.NoError(t, json.Unmarshal([]byte(firstText(t, result)), &out))

	return out
}

func TestServer_ListToolNames(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer(mcp.ServerDeps{})

	assert.Equal(t, []string{mcp.ToolNameLoad, mcp.ToolNameStats, mcp.ToolNameWindow}, srv.ListToolNames())
}

func TestMCPServer_InMemoryTransport_ToolsList(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.ServerDeps{})

	toolsResult, err := session.ListTools(context.Background(), nil)
	require.NoError(t, err)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
		assert.NotEmpty(t, tool.Description)
	}

	assert.ElementsMatch(t, []string{"lossdiff_load", "lossdiff_window", "lossdiff_stats"}, toolNames)
}

func TestMCPServer_LoadWindowStats(t *testing.T) {
	t.Parallel()

	manager := window.NewManager()
	session := connect(t, mcp.ServerDeps{Manager: manager, SeriesA: "XPU", SeriesB: "GPU"})

	result := callTool(t, session, mcp.ToolNameLoad, map[string]any{"csv": exampleCSV})
	require.False(t, result.IsError, firstText(t, result))

	loaded := decodeSummary(t, result)
	assert.Equal(t, "XPU", loaded.SeriesA)
	assert.Equal(t, "GPU", loaded.SeriesB)
	assert.Equal(t, 3, loaded.Len)
	assert.Equal(t, 3, loaded.End)
	assert.InDelta(t, -1.0, loaded.Stats["mean_diff"], 1e-12)

	result = callTool(t, session, mcp.ToolNameWindow, map[string]any{"start": 0, "end": 2})
	require.False(t, result.IsError, firstText(t, result))

	windowed := decodeSummary(t, result)
	assert.Equal(t, 2, windowed.End)
	assert.Equal(t, false, windowed.Stats["has_max_negative"])

	maxNeg, ok := windowed.Stats["max_negative_diff"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "-Inf", maxNeg["value"])

	result = callTool(t, session, mcp.ToolNameStats, map[string]any{})
	require.False(t, result.IsError)
	assert.Equal(t, windowed, decodeSummary(t, result))

	assert.Equal(t, 2, manager.View().End)
}

func TestMCPServer_WindowClamped(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.ServerDeps{})

	callTool(t, session, mcp.ToolNameLoad, map[string]any{"csv": exampleCSV})

	result := callTool(t, session, mcp.ToolNameWindow, map[string]any{"start": 2, "end": 1})
	require.False(t, result.IsError)

	got := decodeSummary(t, result)
	assert.Equal(t, 2, got.Start)
	assert.Equal(t, 2, got.End)
	assert.InDelta(t, 0.0, got.Stats["mean_diff"], 0)
}

func TestMCPServer_LoadEmpty(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.ServerDeps{})

	callTool(t, session, mcp.ToolNameLoad, map[string]any{"csv": exampleCSV})

	result := callTool(t, session, mcp.ToolNameLoad, map[string]any{"csv": ""})
	require.False(t, result.IsError, firstText(t, result))

	got := decodeSummary(t, result)
	assert.Equal(t, 0, got.Len)
	assert.Equal(t, 0, got.Start)
	assert.Equal(t, 0, got.End)
	assert.InDelta(t, 0.0, got.Stats["mean_diff"], 0)

	result = callTool(t, session, mcp.ToolNameWindow, map[string]any{"start": 1, "end": 5})
	require.False(t, result.IsError, firstText(t, result))
	assert.Equal(t, 0, decodeSummary(t, result).End)
}

func TestMCPServer_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		tool    string
		args    map[string]any
		wantMsg string
	}{
		{name: "malformed_csv", tool: mcp.ToolNameLoad, args: map[string]any{"csv": "1,2\n"}, wantMsg: "parse csv: row 0 (line 1)"},
		{name: "window_without_dataset", tool: mcp.ToolNameWindow, args: map[string]any{"start": 0, "end": 1}, wantMsg: "no dataset"},
		{name: "stats_without_dataset", tool: mcp.ToolNameStats, args: map[string]any{}, wantMsg: "no dataset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			session := connect(t, mcp.ServerDeps{})

			result := callTool(t, session, tt.tool, tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, firstText(t, result), tt.wantMsg)
		})
	}
}

func TestMCPServer_FailedLoadKeepsDataset(t *testing.T) {
	t.Parallel()

	session := connect(t, mcp.ServerDeps{})

	callTool(t, session, mcp.ToolNameLoad, map[string]any{"csv": exampleCSV})

	result := callTool(t, session, mcp.ToolNameLoad, map[string]any{"csv": "1,x,2\n"})
	require.True(t, result.IsError)

	got := decodeSummary(t, callTool(t, session, mcp.ToolNameStats, map[string]any{}))
	assert.Equal(t, 3, got.Len)
}

func TestMCPServer_MetricsAndTracing(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	red, err := observability.NewREDMetrics(meterProvider.Meter("test"))
	require.NoError(t, err)

	recorder := tracetest.NewSpanRecorder()
	tracerProvider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))

	session := connect(t, mcp.ServerDeps{Metrics: red, Tracer: tracerProvider.Tracer("test")})

	result := callTool(t, session, mcp.ToolNameLoad, map[string]any{"csv": exampleCSV})
	require.False(t, result.IsError)

	last, ok := result.Content[len(result.Content)-1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(last.Text, "trace_id="), last.Text)

	stats := callTool(t, session, mcp.ToolNameStats, map[string]any{})
	require.False(t, stats.IsError)

	callTool(t, session, mcp.ToolNameLoad, map[string]any{"csv": "1,2\n"})

	spans := recorder.Ended()
	require.Len(t, spans, 3)
	assert.Equal(t, "mcp.lossdiff_load", spans[0].Name())
	assert.Equal(t, "mcp.lossdiff_stats", spans[1].Name())
	assert.Contains(t, spans[2].Attributes(), attribute.Bool("mcp.tool_error", true))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[attribute.Distinct]int64{}
	sets := map[attribute.Distinct]attribute.Set{}

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "lossdiff.requests.total" {
				continue
			}

			sum, isSum := m.Data.(metricdata.Sum[int64])
			require.True(t, isSum)

			for _, dp := range sum.DataPoints {
				counts[dp.Attributes.Equivalent()] = dp.Value
				sets[dp.Attributes.Equivalent()] = dp.Attributes
			}
		}
	}

	loadOK := attribute.NewSet(attribute.String("op", "mcp.lossdiff_load"), attribute.String("status", "ok"))
	loadErr := attribute.NewSet(attribute.String("op", "mcp.lossdiff_load"), attribute.String("status", "error"))
	statsOK := attribute.NewSet(attribute.String("op", "mcp.lossdiff_stats"), attribute.String("status", "ok"))

	assert.Equal(t, int64(1), counts[loadOK.Equivalent()], sets)
	assert.Equal(t, int64(1), counts[loadErr.Equivalent()], sets)
	assert.Equal(t, int64(1), counts[statsOK.Equivalent()], sets)
}
