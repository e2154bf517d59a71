package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pulseline-io/pulseline/cli/render"
)

// StatsCommand returns the stats command.
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Aggregate statistics over persisted runs",
		Subcommands: []*cli.Command{
			statsRunsCommand(),
		},
	}
}

func statsRunsCommand() *cli.Command {
	return &cli.Command{
		Name:   "runs",
		Usage:  "Terminal status counts across the survey directory",
		Flags:  ReadOnlyFlags(),
		Action: statsRunsAction,
	}
}

func statsRunsAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	stats, err := newReader(c, cfg).StatsRuns()
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	if c.Bool("tui") {
		return r.RenderTUI("stats_runs", stats)
	}
	return r.Render(stats)
}
