// Package config handles YAML config file loading for pulseline runs.
package config

import (
	"os"
	"regexp"
)

// envVarPattern matches ${VAR} and ${VAR:-default}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv replaces ${VAR} and ${VAR:-default} in the raw config text
// before YAML decoding. ${VAR} expands to the variable's value, empty
// when unset; ${VAR:-default} falls back to the default when the
// variable is unset or empty.
//
// Missing variables are not an error here. Required values fail at
// downstream validation instead, where the error can name the setting
// rather than the variable.
func ExpandEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 3 {
			return match
		}

		if value, ok := os.LookupEnv(groups[1]); ok && value != "" {
			return value
		}
		return groups[2]
	})
}
