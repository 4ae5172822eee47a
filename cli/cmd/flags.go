// Package cmd provides CLI commands for the screener binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for output-producing commands.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// Flags shared by every command that talks to storage or the service.
var (
	// ConfigFlag points at a screener.yaml file. When unset, ./screener.yaml
	// is read if present.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to YAML config file (default: ./screener.yaml if present)",
	}

	// EnvFileFlag names .env files loaded before the config is expanded.
	EnvFileFlag = &cli.StringSliceFlag{
		Name:  "env-file",
		Usage: "Load KEY=VALUE pairs from file before reading config (default: .env if present)",
	}

	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "Log level: debug, info, warn, error",
		Value: "warn",
	}

	LogFileFlag = &cli.StringFlag{
		Name:  "log-file",
		Usage: "Write logs to file instead of stderr",
	}
)

// Service flags.
var (
	ServiceURLFlag = &cli.StringFlag{
		Name:    "service-url",
		Usage:   "Analysis service base URL",
		EnvVars: []string{"SCREENER_SERVICE_URL"},
	}

	ServiceTimeoutFlag = &cli.DurationFlag{
		Name:  "service-timeout",
		Usage: "Per-request timeout for the analysis service",
	}
)

// History storage flags.
var (
	HistoryBackendFlag = &cli.StringFlag{
		Name:  "history-backend",
		Usage: "History backend: file, sqlite, redis, memory",
	}

	HistoryPathFlag = &cli.StringFlag{
		Name:  "history-path",
		Usage: "History location (file: directory, sqlite: database file)",
	}

	HistoryURLFlag = &cli.StringFlag{
		Name:  "history-url",
		Usage: "Redis URL for the redis history backend",
	}

	HistoryCodecFlag = &cli.StringFlag{
		Name:  "history-codec",
		Usage: "History encoding: json or msgpack",
	}
)

// Adapter flags.
var (
	AdapterFlag = &cli.StringFlag{
		Name:  "adapter",
		Usage: "Notification adapter: webhook or redis (default: none)",
	}

	AdapterURLFlag = &cli.StringFlag{
		Name:  "adapter-url",
		Usage: "Adapter endpoint (webhook URL or Redis URL)",
	}

	AdapterChannelFlag = &cli.StringFlag{
		Name:  "adapter-channel",
		Usage: "Redis pub/sub channel (redis adapter)",
	}

	AdapterTimeoutFlag = &cli.DurationFlag{
		Name:  "adapter-timeout",
		Usage: "Per-notification timeout",
	}

	AdapterRetriesFlag = &cli.IntFlag{
		Name:  "adapter-retries",
		Usage: "Retry attempts for a failed notification",
	}
)

// ReadOnlyFlags returns the output flags for commands that only render.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// StorageFlags returns the flags needed to open the history store.
func StorageFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		EnvFileFlag,
		LogLevelFlag,
		LogFileFlag,
		HistoryBackendFlag,
		HistoryPathFlag,
		HistoryURLFlag,
		HistoryCodecFlag,
	}
}

// SessionFlags returns the flags needed to submit queries: storage,
// service and adapter.
func SessionFlags() []cli.Flag {
	flags := StorageFlags()
	return append(flags,
		ServiceURLFlag,
		ServiceTimeoutFlag,
		AdapterFlag,
		AdapterURLFlag,
		AdapterChannelFlag,
		AdapterTimeoutFlag,
		AdapterRetriesFlag,
	)
}

// withFlags concatenates flag groups into a fresh slice.
func withFlags(groups ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}
