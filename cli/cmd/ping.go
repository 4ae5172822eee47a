package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/screener/cli/render"
	"github.com/pithecene-io/screener/client"
)

// PingResponse is the response for the ping command.
type PingResponse struct {
	ServiceURL string `json:"service_url"`
	Reachable  bool   `json:"reachable"`
	LatencyMS  int64  `json:"latency_ms"`
	Response   any    `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
}

// PingCommand returns the ping command: a health check against the
// service root. It never touches history.
func PingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check that the analysis service is reachable",
		Flags: withFlags(ReadOnlyFlags(), []cli.Flag{
			ConfigFlag,
			EnvFileFlag,
			ServiceURLFlag,
			ServiceTimeoutFlag,
		}),
		Action: pingAction,
	}
}

func pingAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return cli.Exit(err.Error(), exitUsage)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	resp := PingResponse{ServiceURL: resolveString(c, "service-url", cfg.ServiceURL())}
	cl, err := client.New(client.Config{
		BaseURL: resp.ServiceURL,
		Headers: cfg.Service.Headers,
		Timeout: resolveDuration(c, "service-timeout", cfg.Service.Timeout.Duration),
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	defer func() { _ = cl.Close() }()

	start := time.Now()
	body, err := cl.Ping(c.Context)
	resp.LatencyMS = time.Since(start).Milliseconds()
	if err != nil {
		resp.Error = err.Error()
		if rerr := r.Render(resp); rerr != nil {
			return rerr
		}
		return cli.Exit("", exitTransport)
	}

	resp.Reachable = true
	resp.Response = body
	return r.Render(resp)
}
