package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/pulseline-io/pulseline/cli/render"
)

// InspectCommand returns the inspect command.
// Inspect reads persisted run artifacts only; it never touches a live
// worker.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:      "inspect",
		Usage:     "Inspect one persisted run by run ID or sink path",
		ArgsUsage: "<run-id | sink-path>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	ref := c.Args().First()
	if ref == "" {
		return cli.Exit("inspect requires a run ID or sink path", exitConfig)
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	resp, err := newReader(c, cfg).InspectRun(ref)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	if c.Bool("tui") {
		return r.RenderTUI("inspect_run", resp)
	}
	return r.Render(resp)
}
