package commands

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

// stdinPath selects standard input as the dataset source.
const stdinPath = "-"

// windowFlags are the --start/--end flags shared by stats and plot.
type windowFlags struct {
	start int
	end   int
}

func (w *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&w.start, "start", 0, "first row of the window (inclusive)")
	cmd.Flags().IntVar(&w.end, "end", 0, "row one past the last row of the window (default: dataset length)")
}

// loadDataset reads path ("-" for stdin) into manager and applies the window
// flags that were set. Bounds are clamped by the engine.
func loadDataset(cmd *cobra.Command, logger *slog.Logger, manager *window.Manager, path string, flags windowFlags) (window.View, error) {
	ctx := cmd.Context()

	src, err := openDataset(ctx, cmd, logger, path)
	if err != nil {
		return window.View{}, err
	}
	defer src.Close()

	view, err := manager.LoadFrom(ctx, src)
	if err != nil {
		return window.View{}, fmt.Errorf("load %s: %w", path, err)
	}

	startSet := cmd.Flags().Changed("start")
	endSet := cmd.Flags().Changed("end")

	if !startSet && !endSet {
		return view, nil
	}

	end := view.Len
	if endSet {
		end = flags.end
	}

	view, err = manager.SetWindow(ctx, flags.start, end)
	if err != nil {
		return window.View{}, fmt.Errorf("set window: %w", err)
	}

	return view, nil
}

func openDataset(ctx context.Context, cmd *cobra.Command, logger *slog.Logger, path string) (io.ReadCloser, error) {
	if path == stdinPath {
		logger.DebugContext(ctx, "reading dataset", "name", "stdin")

		return io.NopCloser(cmd.InOrStdin()), nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()

		return nil, fmt.Errorf("stat dataset: %w", err)
	}

	if info.IsDir() {
		file.Close()

		return nil, fmt.Errorf("open dataset: %s is a directory", path)
	}

	logger.InfoContext(ctx, "reading dataset",
		"name", filepath.Base(path),
		"size", humanize.Bytes(uint64(max(info.Size(), 0))),
		"modified", info.ModTime().UTC().Format(time.RFC3339),
		"age", humanize.Time(info.ModTime()),
	)

	return file, nil
}
