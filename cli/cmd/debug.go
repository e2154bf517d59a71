package cmd

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/pulseline-io/pulseline/cli/reader"
	"github.com/pulseline-io/pulseline/cli/render"
	"github.com/pulseline-io/pulseline/procedure"
	"github.com/pulseline-io/pulseline/units"
)

// DebugCommand returns the debug command with subcommands. Debug
// operations validate configuration artifacts without executing a run.
func DebugCommand() *cli.Command {
	return &cli.Command{
		Name:  "debug",
		Usage: "Validate scripts, column declarations, and config",
		Subcommands: []*cli.Command{
			debugScriptCommand(),
			debugColumnsCommand(),
			debugConfigCommand(),
		},
	}
}

func debugScriptCommand() *cli.Command {
	return &cli.Command{
		Name:      "script",
		Usage:     "Dry-load a procedure script and show its spec",
		ArgsUsage: "<script.go>",
		Flags:     ReadOnlyFlags(),
		Action:    debugScriptAction,
	}
}

func debugScriptAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("debug script requires a script path", exitConfig)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	name := strings.TrimSuffix(filepath.Base(path), ".go")
	reg := procedure.NewRegistry(filepath.Dir(path))
	spec, lerr := reg.Load(name)
	if lerr != nil {
		return cli.Exit(fmt.Sprintf("script rejected: %v", lerr), exitConfig)
	}

	return r.Render(reader.ListProcedureItem{
		Name:        spec.Name(),
		Description: spec.Description(),
		Parameters:  parameterSummaries(spec),
	})
}

func debugColumnsCommand() *cli.Command {
	return &cli.Command{
		Name:      "columns",
		Usage:     "Parse column declarations and show resolved units",
		ArgsUsage: "<decl>...",
		Flags:     ReadOnlyFlags(),
		Action:    debugColumnsAction,
	}
}

// columnReport is the per-declaration result of debug columns.
type columnReport struct {
	Declaration string `json:"declaration"`
	Label       string `json:"label"`
	Unit        string `json:"unit,omitempty"`
	Quantity    string `json:"quantity,omitempty"`
	Error       string `json:"error,omitempty"`
}

func debugColumnsAction(c *cli.Context) error {
	if c.Args().Len() == 0 {
		return cli.Exit("debug columns requires at least one declaration", exitConfig)
	}
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	reports := make([]columnReport, 0, c.Args().Len())
	for _, decl := range c.Args().Slice() {
		report := columnReport{Declaration: decl}
		col, err := units.ParseColumn(decl)
		if err != nil {
			report.Error = err.Error()
			reports = append(reports, report)
			continue
		}
		report.Label = col.Label
		if col.HasUnit {
			report.Unit = col.Unit.Symbol
			report.Quantity = col.Unit.Quantity
		}
		reports = append(reports, report)
	}
	return r.Render(reports)
}

func debugConfigCommand() *cli.Command {
	return &cli.Command{
		Name:   "config",
		Usage:  "Load, expand, and show the effective config",
		Flags:  ReadOnlyFlags(),
		Action: debugConfigAction,
	}
}

func debugConfigAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for debug commands", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	return r.Render(cfg)
}
