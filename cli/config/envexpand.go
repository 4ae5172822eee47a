// Package config handles screener.yaml loading and .env bootstrapping.
package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} patterns in input with
// process environment values.
//
// Unset variables without defaults expand to the empty string; missing
// required values surface at validation (e.g. an empty service URL falls
// back to the default, an empty adapter URL is rejected).
func ExpandEnv(input string) string {
	return expand(input, os.LookupEnv)
}

func expand(input string, lookup func(string) (string, bool)) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value, ok := lookup(groups[1]); ok && value != "" {
			return value
		}
		// groups[2] is the default, "" when absent
		return groups[2]
	})
}
