package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/pulseline-io/pulseline/cli/reader"
	"github.com/pulseline-io/pulseline/cli/render"
	"github.com/pulseline-io/pulseline/procedure"
)

// listWarningThreshold is the number of items above which we warn about
// using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command with subcommands.
// List returns thin slices, not inspect-level detail.
func ListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (procedures, runs)",
		Subcommands: []*cli.Command{
			listProceduresCommand(),
			listRunsCommand(),
		},
	}
}

func listProceduresCommand() *cli.Command {
	return &cli.Command{
		Name:   "procedures",
		Usage:  "List available procedures (builtin and script directory)",
		Flags:  append(ReadOnlyFlags(), ScriptDirFlag),
		Action: listProceduresAction,
	}
}

func listProceduresAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	reg, err := buildRegistry(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	items := make([]reader.ListProcedureItem, 0)
	for _, name := range reg.Names() {
		spec, ok := reg.Get(name)
		if !ok {
			continue
		}
		items = append(items, reader.ListProcedureItem{
			Name:        spec.Name(),
			Description: spec.Description(),
			Parameters:  parameterSummaries(spec),
		})
	}
	return r.Render(items)
}

// parameterSummaries renders "name (unit)" entries for the parameter
// table shown by list.
func parameterSummaries(spec *procedure.Spec) []string {
	decls := spec.ParameterDecls()
	out := make([]string, 0, len(decls))
	for _, d := range decls {
		if d.Unit != "" {
			out = append(out, fmt.Sprintf("%s (%s)", d.Name, d.Unit))
			continue
		}
		out = append(out, d.Name)
	}
	return out
}

func listRunsCommand() *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List persisted runs",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "procedure",
				Usage: "Filter by procedure name",
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status: finished, failed, aborted, lost",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listRunsAction,
	}
}

func listRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for list commands", 1)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	opts := reader.ListRunsOptions{
		Procedure: c.String("procedure"),
		Status:    c.String("status"),
		Limit:     c.Int("limit"),
	}
	items, err := newReader(c, cfg).ListRuns(opts)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	// Warn if output is large and --limit was not specified (TTY only
	// to avoid noise in pipelines)
	if len(items) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
		fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(items))
	}

	return r.Render(items)
}
