package cmd

import (
	"time"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/screener/cli/config"
)

// Precedence for every setting: CLI flag > config file > built-in default.

// resolveString returns the flag value when explicitly set, then the
// config value when non-empty, then the flag's own default.
func resolveString(c *cli.Context, flag, configValue string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	if configValue != "" {
		return configValue
	}
	return c.String(flag)
}

func resolveInt(c *cli.Context, flag string, configValue int) int {
	if c.IsSet(flag) {
		return c.Int(flag)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Int(flag)
}

func resolveBool(c *cli.Context, flag string, configValue bool) bool {
	if c.IsSet(flag) {
		return c.Bool(flag)
	}
	return configValue || c.Bool(flag)
}

func resolveDuration(c *cli.Context, flag string, configValue time.Duration) time.Duration {
	if c.IsSet(flag) {
		return c.Duration(flag)
	}
	if configValue != 0 {
		return configValue
	}
	return c.Duration(flag)
}

// configVal reads a field from a possibly nil config.
func configVal[T any](cfg *config.Config, get func(*config.Config) T) T {
	var zero T
	if cfg == nil {
		return zero
	}
	return get(cfg)
}
