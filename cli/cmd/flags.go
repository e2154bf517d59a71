// Package cmd provides CLI commands for the pulseline binary.
package cmd

import "github.com/urfave/cli/v2"

// Shared flags for read-only commands.
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

	// TUIFlag enables Bubble Tea interactive mode.
	// Only valid for select commands (run, inspect, stats).
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Enable interactive TUI mode (run, inspect, stats only)",
	}

	// ConfigFlag names the YAML config file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to pulseline.yaml config file",
	}

	// StorageDirFlag overrides the survey directory from config.
	StorageDirFlag = &cli.StringFlag{
		Name:  "storage-dir",
		Usage: "Directory holding result files and manifests",
	}

	// ScriptDirFlag overrides the procedure script directory from config.
	ScriptDirFlag = &cli.StringFlag{
		Name:  "script-dir",
		Usage: "Directory searched for interpreted procedure scripts",
	}
)

// ReadOnlyFlags returns the shared flags for all read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
		TUIFlag,
		ConfigFlag,
		StorageDirFlag,
	}
}
