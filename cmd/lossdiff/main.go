// Package main provides the entry point for the lossdiff CLI tool.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"

	"github.com/Sumatoshi-tech/lossdiff/cmd/lossdiff/commands"
	"github.com/Sumatoshi-tech/lossdiff/pkg/version"
)

func main() {
	// A .env file in the working directory may carry LOSSDIFF_* and OTEL_* settings.
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: load .env: %v\n", err)
	}

	version.InitBinaryVersion()

	rootCmd := commands.NewRootCommand()

	err = rootCmd.ExecuteContext(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
