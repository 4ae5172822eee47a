// Package main provides the screener CLI entrypoint.
//
// Usage:
//
//	screener <command> [subcommand] [options]
//
// Exit codes:
//   - 0: success
//   - 1: transport failure (network, non-2xx, payload error)
//   - 2: validation error or bad usage
//   - 3: configuration error
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/screener/cli/cmd"
	"github.com/pithecene-io/screener/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		// ExitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:           "screener",
		Usage:          "Ask an AI stock screener about tickers and keep a local history",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.AskCommand(),
			cmd.TUICommand(),
			cmd.HistoryCommand(),
			cmd.PingCommand(),
			cmd.VersionCommand(commit),
		},
	}
}

// exitErrHandler handles errors from the CLI, preserving exit codes from cli.Exit().
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}
	os.Exit(reportError(os.Stderr, err))
}

// reportError prints err to w and returns the process exit code.
func reportError(w io.Writer, err error) int {
	// Check for ExitCoder (from cli.Exit), handles wrapped errors
	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()

		// cli.Exit("", N).Error() is empty or "exit status N"; print neither.
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(w, msg)
		}
		return code
	}

	// Unexpected error - print and exit with code 1
	fmt.Fprintf(w, "Error: %v\n", err)
	return 1
}
