package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/screener/analysis"
	"github.com/pithecene-io/screener/cli/render"
	"github.com/pithecene-io/screener/progress"
	"github.com/pithecene-io/screener/query"
)

// AskCommand returns the ask command: submit one query and print the
// normalized result.
func AskCommand() *cli.Command {
	return &cli.Command{
		Name:      "ask",
		Usage:     "Ask the analysis service one question",
		ArgsUsage: "<question>",
		Flags: withFlags(ReadOnlyFlags(), SessionFlags(), []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "Also write the result (pretty JSON, or text) to file",
			},
			&cli.BoolFlag{
				Name:  "steps",
				Usage: "Print the declared analysis steps to stderr",
			},
		}),
		Action: askAction,
	}
}

func askAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	e, err := openEnv(c, false)
	if err != nil {
		return err
	}
	defer e.Close()

	orch, err := e.orchestrator(c)
	if err != nil {
		return err
	}

	text := strings.Join(c.Args().Slice(), " ")
	if err := orch.Submit(c.Context, text); err != nil {
		return submitExit(err)
	}

	snap := orch.Snapshot()
	if out := c.String("out"); out != "" {
		if err := writeResult(out, snap.Result); err != nil {
			return err
		}
	}
	if c.Bool("steps") {
		printSteps(c, orch.Progress())
	}
	return r.RenderResult(snap.Result)
}

// submitExit maps a Submit error to an exit code.
func submitExit(err error) error {
	var verr *query.ValidationError
	if errors.As(err, &verr) {
		return cli.Exit(verr.Message, exitUsage)
	}
	var terr *query.TransportError
	if errors.As(err, &terr) {
		if terr.Status != 0 {
			return cli.Exit(fmt.Sprintf("request failed (HTTP %d): %s", terr.Status, terr.Message), exitTransport)
		}
		return cli.Exit(fmt.Sprintf("request failed: %s", terr.Message), exitTransport)
	}
	return err
}

// writeResult saves the export form of res to path.
func writeResult(path string, res analysis.Result) error {
	if res.IsEmpty() {
		return cli.Exit("nothing to write: the service returned no data", exitTransport)
	}
	if err := os.WriteFile(path, []byte(res.Pretty()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	return nil
}

// printSteps lists the declared stages, one per line.
func printSteps(c *cli.Context, snap progress.Snapshot) {
	for i, st := range snap.Stages {
		line := fmt.Sprintf("%d. %s", i+1, st.Stage)
		if st.Detail != "" {
			line += " (" + st.Detail + ")"
		}
		fmt.Fprintln(c.App.ErrWriter, line)
	}
}
