package commands_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/lossdiff/cmd/lossdiff/commands"
	"github.com/Sumatoshi-tech/lossdiff/pkg/config"
	"github.com/Sumatoshi-tech/lossdiff/pkg/lossdata"
	"github.com/Sumatoshi-tech/lossdiff/pkg/report"
)

const exampleCSV = "1,10,8\n2,9,9\n3,5,10\n"

type result struct {
	stdout string
	stderr string
	err    error
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// testConfig pins series names and theme so a local .lossdiff.yaml cannot leak in.
func testConfig(t *testing.T) string {
	t.Helper()

	return writeFile(t, "lossdiff.yaml", "engine:\n  series_a: XPU\n  series_b: GPU\nplot:\n  theme: dark\n")
}

func execute(ctx context.Context, t *testing.T, stdin string, args ...string) result {
	t.Helper()

	root := commands.NewRootCommand()

	var stdout, stderr bytes.Buffer

	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)

	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func run(t *testing.T, args ...string) result {
	t.Helper()

	return execute(context.Background(), t, "", append(args, "--config", testConfig(t))...)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	res := execute(context.Background(), t, "", "version")
	require.NoError(t, res.err)
	assert.True(t, strings.HasPrefix(res.stdout, "lossdiff "), res.stdout)
	assert.Contains(t, res.stdout, "commit:")
}

func TestStats_Text(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "loss.csv", exampleCSV)

	res := run(t, "stats", path, "--no-color", "--end", "2")
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "Window [0, 2) of 3 records (XPU vs GPU)")
	assert.Contains(t, res.stdout, report.NoData)
	assert.NotContains(t, res.stdout, "\x1b[")

	assert.Contains(t, res.stderr, "reading dataset")
	assert.Contains(t, res.stderr, "name=loss.csv")
	assert.Contains(t, res.stderr, "size=")
}

func TestStats_JSONWindow(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "loss.csv", exampleCSV)

	res := run(t, "stats", path, "--format", "json", "--start", "1", "--series")
	require.NoError(t, res.err)

	var out struct {
		SeriesA string           `json:"series_a"`
		Start   int              `json:"start"`
		End     int              `json:"end"`
		Len     int              `json:"len"`
		Stats   map[string]any   `json:"stats"`
		Diffs   []map[string]any `json:"diffs"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &out))

	assert.Equal(t, "XPU", out.SeriesA)
	assert.Equal(t, 1, out.Start)
	assert.Equal(t, 3, out.End)
	assert.Equal(t, 3, out.Len)
	assert.Len(t, out.Diffs, 2)
	assert.InDelta(t, -2.5, out.Stats["mean_diff"], 1e-12)
}

func TestStats_YAMLFromStdin(t *testing.T) {
	t.Parallel()

	res := execute(context.Background(), t, exampleCSV, "stats", "-", "-f", "yaml", "-q", "--config", testConfig(t))
	require.NoError(t, res.err)

	assert.Contains(t, res.stdout, "len: 3")
	assert.Contains(t, res.stdout, "has_min_positive: true")
	assert.Empty(t, res.stderr)
}

func TestStats_Errors(t *testing.T) {
	t.Parallel()

	good := writeFile(t, "loss.csv", exampleCSV)
	bad := writeFile(t, "bad.csv", "1,10,8\n2,x,9\n")

	t.Run("unknown_format", func(t *testing.T) {
		t.Parallel()

		res := run(t, "stats", good, "--format", "xml")
		assert.ErrorIs(t, res.err, report.ErrUnknownFormat)
	})

	t.Run("parse_error", func(t *testing.T) {
		t.Parallel()

		res := run(t, "stats", bad)

		var parseErr *lossdata.ParseError
		require.ErrorAs(t, res.err, &parseErr)
		assert.Equal(t, 2, parseErr.Line)
	})

	t.Run("missing_file", func(t *testing.T) {
		t.Parallel()

		res := run(t, "stats", filepath.Join(t.TempDir(), "absent.csv"))
		assert.ErrorIs(t, res.err, os.ErrNotExist)
	})

	t.Run("directory", func(t *testing.T) {
		t.Parallel()

		res := run(t, "stats", t.TempDir())
		assert.ErrorContains(t, res.err, "is a directory")
	})

	t.Run("no_args", func(t *testing.T) {
		t.Parallel()

		res := run(t, "stats")
		assert.Error(t, res.err)
	})

	t.Run("invalid_config", func(t *testing.T) {
		t.Parallel()

		res := execute(context.Background(), t, "", "stats", good, "--config", writeFile(t, "bad.yaml", "engine:\n  epsilon: -1\n"))
		assert.ErrorIs(t, res.err, config.ErrInvalidEpsilon)
	})

	t.Run("verbose_and_quiet", func(t *testing.T) {
		t.Parallel()

		res := run(t, "stats", good, "-v", "-q")
		assert.Error(t, res.err)
	})
}

func TestPlot_WritesPage(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "loss.csv", exampleCSV)
	out := filepath.Join(t.TempDir(), "plot.html")

	res := run(t, "plot", path, "-o", out, "--theme", "light", "--height", "320px")
	require.NoError(t, res.err)

	html, err := os.ReadFile(out)
	require.NoError(t, err)

	assert.Contains(t, string(html), "Loss Curve")
	assert.Contains(t, string(html), "Loss Diff Curve")
	assert.Contains(t, string(html), "XPU and GPU loss per step")
	assert.Contains(t, string(html), "height:320px")
	assert.Contains(t, string(html), `class=""`)
	assert.NotContains(t, string(html), "drop-zone")
	assert.Contains(t, res.stderr, "plot written")
}

func TestPlot_Errors(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "loss.csv", exampleCSV)

	res := run(t, "plot", path)
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), `required flag(s) "output" not set`)

	res = run(t, "plot", path, "-o", filepath.Join(t.TempDir(), "p.html"), "--theme", "sepia")
	assert.ErrorIs(t, res.err, config.ErrInvalidTheme)
}

func TestMCPCommand_Flags(t *testing.T) {
	t.Parallel()

	root := commands.NewRootCommand()

	cmd, _, err := root.Find([]string{"mcp"})
	require.NoError(t, err)
	assert.Equal(t, "mcp", cmd.Use)
	assert.NotEmpty(t, cmd.Long)

	flag := cmd.Flags().Lookup("debug")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
}

func TestServe_InvalidPort(t *testing.T) {
	t.Parallel()

	res := run(t, "serve", "--port", "70000")
	assert.ErrorIs(t, res.err, config.ErrInvalidPort)
}

func freePort(t *testing.T) int {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	return port
}

func TestServe_PreloadAndShutdown(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "loss.csv", exampleCSV)
	port := freePort(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfgPath := testConfig(t)
	done := make(chan result, 1)

	go func() {
		done <- execute(ctx, t, "", "serve", path, "--host", "127.0.0.1", "--port", fmt.Sprint(port), "--config", cfgPath)
	}()

	base := fmt.Sprintf("http://127.0.0.1:%d", port)

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/readyz") //nolint:noctx // test polling.
		if err != nil {
			return false
		}
		resp.Body.Close()

		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(base + "/api/stats") //nolint:noctx // test request.
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), `"len":3`)

	resp, err = http.Get(base + "/metrics") //nolint:noctx // test request.
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case res := <-done:
		if res.err != nil && !errors.Is(res.err, context.Canceled) {
			t.Fatalf("serve returned %v", res.err)
		}

		assert.Contains(t, res.stderr, "server shutting down")
	case <-time.After(15 * time.Second):
		t.Fatal("serve did not stop")
	}
}
