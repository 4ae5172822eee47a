package cmd

import (
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/screener/cli/tui"
)

// TUICommand returns the tui command: an interactive session.
// Logs go to --log-file (or nowhere) while the session owns the terminal.
func TUICommand() *cli.Command {
	return &cli.Command{
		Name:  "tui",
		Usage: "Start an interactive screener session",
		Flags: withFlags(SessionFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:  "export-dir",
				Usage: "Directory for results saved with ctrl+s (default: working dir)",
			},
		}),
		Action: tuiAction,
	}
}

func tuiAction(c *cli.Context) error {
	if !isTerminal(os.Stdin) || !isTerminal(os.Stdout) {
		return cli.Exit("tui requires an interactive terminal; use `screener ask` instead", exitUsage)
	}

	e, err := openEnv(c, true)
	if err != nil {
		return err
	}
	defer e.Close()

	orch, err := e.orchestrator(c)
	if err != nil {
		return err
	}

	return tui.Run(c.Context, orch, tui.Options{
		ExportDir: c.String("export-dir"),
		Logger:    e.logger,
	})
}

// isTerminal returns true if f is a character device.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
