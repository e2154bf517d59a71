package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pulseline-io/pulseline/cli/tui"
	"github.com/pulseline-io/pulseline/config"
	"github.com/pulseline-io/pulseline/log"
	"github.com/pulseline-io/pulseline/metrics"
	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
	"github.com/pulseline-io/pulseline/worker"
)

// Exit codes for run and batch.
const (
	exitSuccess = 0
	exitFailed  = 1
	exitAborted = 2
	exitConfig  = 3
)

// RunCommand returns the run command, the only execution entrypoint.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute one procedure run",
		ArgsUsage: "<procedure>",
		Flags: []cli.Flag{
			ConfigFlag,
			StorageDirFlag,
			ScriptDirFlag,
			TUIFlag,
			&cli.StringSliceFlag{
				Name:    "param",
				Aliases: []string{"p"},
				Usage:   "Parameter value as name=value (repeatable)",
			},
			&cli.StringFlag{
				Name:  "job",
				Usage: "YAML file of parameter values (flags override it)",
			},
			&cli.StringFlag{
				Name:  "out",
				Usage: "Result file path (default <storage-dir>/<procedure>-<run-id>.txt)",
			},
			&cli.StringSliceFlag{
				Name:  "mirror",
				Usage: "Additional result file copy (repeatable)",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (default: random UUID)",
			},
			&cli.IntFlag{
				Name:  "attempt",
				Usage: "Attempt number (starts at 1)",
				Value: 1,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress progress output",
			},
		},
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	name := c.Args().First()
	if name == "" {
		return cli.Exit("run requires a procedure name", exitConfig)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	reg, err := buildRegistry(c, cfg)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	proc := loadProcedure(c, cfg, reg, name)
	if info := proc.Lost(); info != nil {
		if params := proc.ParameterValues(); len(params) > 0 {
			fmt.Fprintf(os.Stderr, "recovered parameters: %v\n", params)
		}
		return cli.Exit(info.Reason, statusToExitCode(proc.Status()))
	}

	values, err := collectParams(c)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}
	if len(values) > 0 {
		if err := proc.SetParameters(values, false); err != nil {
			return cli.Exit(err.Error(), exitConfig)
		}
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = uuid.NewString()
	}
	meta := &types.RunMeta{
		RunID:     runID,
		Procedure: name,
		Attempt:   c.Int("attempt"),
		StartedAt: time.Now().UTC(),
	}

	sinks := resolveSinks(c, cfg, name, runID)
	r, err := results.New(proc, sinks...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("open results: %v", err), exitConfig)
	}
	if r.Reloaded() {
		fmt.Printf("run already completed: %s (%d rows)\n", r.Primary(), r.RowCount())
		return nil
	}

	logger, err := buildLogger(cfg, meta)
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	archiver, err := buildArchiver(ctx, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("archive setup: %v", err), exitConfig)
	}

	collector := metrics.NewCollector()
	w, err := worker.New(worker.Config{
		Procedure:     proc,
		Results:       r,
		Meta:          meta,
		Logger:        logger,
		Collector:     collector,
		Archiver:      archiver,
		MonitorBuffer: cfg.Monitor.Buffer,
	})
	if err != nil {
		return cli.Exit(err.Error(), exitConfig)
	}

	// First signal requests a cooperative stop; a second cancels the
	// run context outright.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		w.RequestStop()
		<-sigCh
		cancel()
	}()

	if err := w.Start(ctx); err != nil {
		return cli.Exit(fmt.Sprintf("start run: %v", err), exitConfig)
	}

	if c.Bool("tui") {
		if err := tui.RunMonitor(runID, name, w.Events(), w.RequestStop); err != nil {
			fmt.Fprintf(os.Stderr, "monitor error: %v\n", err)
		}
	} else {
		followRun(w, c.Bool("quiet"))
	}
	w.Wait()

	final := proc.Status()
	if !c.Bool("quiet") {
		printRunSummary(runID, r, collector, final)
	}
	return cli.Exit("", statusToExitCode(final))
}

// collectParams merges the job file with --param overrides.
func collectParams(c *cli.Context) (map[string]any, error) {
	values := map[string]any{}
	if path := c.String("job"); path != "" {
		fromFile, err := loadJobFile(path)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			values[k] = v
		}
	}
	fromFlags, err := parseParams(c.StringSlice("param"))
	if err != nil {
		return nil, err
	}
	for k, v := range fromFlags {
		values[k] = v
	}
	return values, nil
}

func resolveSinks(c *cli.Context, cfg *config.Config, name, runID string) []string {
	primary := c.String("out")
	if primary == "" {
		primary = filepath.Join(storageDir(c, cfg), fmt.Sprintf("%s-%s.txt", name, runID))
	}
	sinks := []string{primary}
	base := filepath.Base(primary)
	for _, dir := range cfg.Storage.Mirrors {
		sinks = append(sinks, filepath.Join(dir, base))
	}
	sinks = append(sinks, c.StringSlice("mirror")...)
	return sinks
}

func buildLogger(cfg *config.Config, meta *types.RunMeta) (*log.Logger, error) {
	logger := log.NewLogger(meta)
	if cfg.Log.Path != "" {
		f, err := os.OpenFile(cfg.Log.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger = logger.WithOutput(f)
	}
	return logger, nil
}

func buildArchiver(ctx context.Context, cfg *config.Config) (results.Archiver, error) {
	if cfg.Archive.Bucket == "" {
		return nil, nil
	}
	return results.NewS3Archiver(ctx, results.S3Config{
		Bucket:       cfg.Archive.Bucket,
		Prefix:       cfg.Archive.Prefix,
		Region:       cfg.Archive.Region,
		Endpoint:     cfg.Archive.Endpoint,
		UsePathStyle: cfg.Archive.S3PathStyle,
	})
}

// followRun drains the monitor stream to the terminal until the worker
// closes it.
func followRun(w *worker.Worker, quiet bool) {
	for ev := range w.Events() {
		switch ev.Topic {
		case types.TopicStatus:
			fmt.Printf("status: %v\n", ev.Payload)
		case types.TopicProgress:
			if !quiet {
				fmt.Printf("progress: %v%%\n", ev.Payload)
			}
		case types.TopicResponses:
			if resp, ok := ev.Payload.(types.Response); ok {
				fmt.Printf("[%s] %s\n", resp.Level, resp.Message)
			}
		}
	}
}

func printRunSummary(runID string, r *results.Results, collector *metrics.Collector, final types.Status) {
	snap := collector.Snapshot()
	fmt.Printf("\nrun_id=%s, status=%s, rows=%d, events=%d\n",
		runID, final, r.RowCount(), snap.EventsEmitted)
	fmt.Printf("sink=%s\n", r.Primary())
}

func statusToExitCode(s types.Status) int {
	switch s {
	case types.StatusFinished:
		return exitSuccess
	case types.StatusAborted:
		return exitAborted
	default:
		return exitFailed
	}
}
