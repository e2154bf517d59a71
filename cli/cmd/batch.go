package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/pulseline-io/pulseline/config"
	"github.com/pulseline-io/pulseline/log"
	"github.com/pulseline-io/pulseline/metrics"
	"github.com/pulseline-io/pulseline/procedure"
	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
	"github.com/pulseline-io/pulseline/worker"
)

// batchManifest is the YAML shape of a batch file.
type batchManifest struct {
	Runs []batchEntry `yaml:"runs"`
}

// batchEntry describes one run inside a batch.
type batchEntry struct {
	Procedure string         `yaml:"procedure"`
	Params    map[string]any `yaml:"params,omitempty"`
	Out       string         `yaml:"out,omitempty"`
	RunID     string         `yaml:"run_id,omitempty"`
}

// BatchCommand returns the batch command: several runs from one YAML
// manifest with bounded concurrency.
func BatchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "Execute several procedure runs from a YAML manifest",
		ArgsUsage: "<batch.yaml>",
		Flags: []cli.Flag{
			ConfigFlag,
			StorageDirFlag,
			ScriptDirFlag,
			&cli.IntFlag{
				Name:  "concurrency",
				Usage: "Maximum runs in flight at once",
				Value: 2,
			},
			&cli.BoolFlag{
				Name:  "keep-going",
				Usage: "Run remaining entries even after a failure",
			},
		},
		Action: batchAction,
	}
}

func batchAction(c *cli.Context) error {
	path := c.Args().First()
	if path == "" {
		return cli.Exit("batch requires a manifest file", exitConfig)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cli.Exit(fmt.Sprintf("read batch manifest: %v", err), exitConfig)
	}
	var manifest batchManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return cli.Exit(fmt.Sprintf("invalid batch manifest %s: %v", path, err), exitConfig)
	}
	if len(manifest.Runs) == 0 {
		return cli.Exit("batch manifest has no runs", exitConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	reg, err := buildRegistry(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	concurrency := c.Int("concurrency")
	if concurrency < 1 {
		concurrency = 1
	}
	keepGoing := c.Bool("keep-going")

	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(concurrency)

	failed := 0
	done := make(chan types.Status, len(manifest.Runs))
	for i, entry := range manifest.Runs {
		g.Go(func() error {
			status, err := executeBatchEntry(ctx, c, cfg, reg, entry)
			if err != nil {
				fmt.Fprintf(os.Stderr, "run %d (%s): %v\n", i+1, entry.Procedure, err)
				if keepGoing {
					done <- types.StatusFailed
					return nil
				}
				return err
			}
			done <- status
			fmt.Printf("run %d (%s): %s\n", i+1, entry.Procedure, status)
			return nil
		})
	}
	err = g.Wait()
	close(done)
	for status := range done {
		if status != types.StatusFinished {
			failed++
		}
	}
	if err != nil {
		return cli.Exit(err.Error(), exitFailed)
	}

	fmt.Printf("\nbatch complete: %d runs, %d not finished\n", len(manifest.Runs), failed)
	if failed > 0 {
		return cli.Exit("", exitFailed)
	}
	return nil
}

// executeBatchEntry runs one batch entry to completion. Unlike the
// interactive run command it drains the monitor stream silently; per-run
// detail lives in the sink and manifest.
func executeBatchEntry(ctx context.Context, c *cli.Context, cfg *config.Config, reg *procedure.Registry, entry batchEntry) (types.Status, error) {
	if entry.Procedure == "" {
		return "", fmt.Errorf("entry missing procedure name")
	}

	proc := loadProcedure(c, cfg, reg, entry.Procedure)
	if info := proc.Lost(); info != nil {
		fmt.Fprintln(os.Stderr, info.Reason)
		return proc.Status(), nil
	}
	if len(entry.Params) > 0 {
		if err := proc.SetParameters(entry.Params, false); err != nil {
			return "", err
		}
	}

	runID := entry.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	meta := &types.RunMeta{
		RunID:     runID,
		Procedure: entry.Procedure,
		Attempt:   1,
		StartedAt: time.Now().UTC(),
	}

	sink := entry.Out
	if sink == "" {
		sink = filepath.Join(storageDir(c, cfg), fmt.Sprintf("%s-%s.txt", entry.Procedure, runID))
	}
	r, err := results.New(proc, sink)
	if err != nil {
		return "", err
	}
	if r.Reloaded() {
		return proc.Status(), nil
	}

	w, err := worker.New(worker.Config{
		Procedure: proc,
		Results:   r,
		Meta:      meta,
		Logger:    log.NewLogger(meta),
		Collector: metrics.NewCollector(),
	})
	if err != nil {
		return "", err
	}
	if err := w.Start(ctx); err != nil {
		return "", err
	}
	for range w.Events() {
		// Drain so the worker is never throttled by an absent consumer.
	}
	w.Wait()
	return proc.Status(), nil
}
