// Package worker drives one procedure lifecycle on a background
// goroutine and routes its emitted events: result records to a
// recorder goroutine that owns the sink, monitor topics to an ordered
// event stream consumed by the caller.
//
// Exactly three goroutines participate in one run: the caller (drains
// the monitor stream), the worker (executes the lifecycle hooks), and
// the recorder (sole writer of the sink). Cancellation is cooperative
// only: procedures poll ShouldStop and return; the worker never kills
// hook code and enforces no timeout.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/pulseline-io/pulseline/log"
	"github.com/pulseline-io/pulseline/metrics"
	"github.com/pulseline-io/pulseline/procedure"
	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
)

// Sentinel errors for worker setup and lifecycle faults.
var (
	// ErrWorkerFinished indicates a start or emit on a worker whose
	// one-shot run has already started or completed.
	ErrWorkerFinished = errors.New("worker is one-shot and already ran")

	// ErrRunCompleted indicates a start against a procedure whose run
	// was reconstructed from an existing sink.
	ErrRunCompleted = errors.New("run already completed")
)

// Defaults for queue capacities.
const (
	defaultMonitorBuffer = 256
	defaultRecordBuffer  = 1024
)

// Config assembles a worker run.
type Config struct {
	// Procedure is the unit of work. Required.
	Procedure *procedure.Procedure
	// Results is the persistence boundary bound to the procedure. Required.
	Results *results.Results
	// Meta is the run identity. Required.
	Meta *types.RunMeta
	// Logger receives run diagnostics. Defaults to a no-op logger.
	Logger *log.Logger
	// Collector receives run metrics. Optional (nil-safe).
	Collector *metrics.Collector
	// Archiver mirrors completed runs to long-term storage. Optional.
	Archiver results.Archiver
	// MonitorBuffer overrides the monitor stream capacity.
	MonitorBuffer int
}

// Worker owns exactly one procedure and one results object for the
// duration of a run. A worker cannot be restarted once its run has
// started: construct a new one per run.
type Worker struct {
	proc      *procedure.Procedure
	results   *results.Results
	meta      *types.RunMeta
	logger    *log.Logger
	collector *metrics.Collector
	archiver  results.Archiver

	monitor  chan types.Event
	records  chan types.Record
	recorder *Recorder

	runCtx   context.Context
	stop     atomic.Bool
	started  atomic.Bool
	finished atomic.Bool
	dropped  atomic.Int64
	done     chan struct{}
}

// New validates the configuration and assembles a worker.
func New(cfg Config) (*Worker, error) {
	if cfg.Procedure == nil {
		return nil, errors.New("worker: procedure is required")
	}
	if cfg.Results == nil {
		return nil, errors.New("worker: results is required")
	}
	if cfg.Results.Procedure() != cfg.Procedure {
		return nil, errors.New("worker: results is bound to a different procedure")
	}
	if err := cfg.Meta.Validate(); err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}
	monitorBuffer := cfg.MonitorBuffer
	if monitorBuffer <= 0 {
		monitorBuffer = defaultMonitorBuffer
	}

	w := &Worker{
		proc:      cfg.Procedure,
		results:   cfg.Results,
		meta:      cfg.Meta,
		logger:    logger,
		collector: cfg.Collector,
		archiver:  cfg.Archiver,
		monitor:   make(chan types.Event, monitorBuffer),
		records:   make(chan types.Record, defaultRecordBuffer),
		done:      make(chan struct{}),
	}
	w.recorder = newRecorder(w.records, cfg.Results, logger, cfg.Collector)
	return w, nil
}

// Events returns the monitor stream. The channel is closed when the
// run ends; closure is the stream's terminal sentinel.
func (w *Worker) Events() <-chan types.Event { return w.monitor }

// Done returns a channel closed when the run has fully ended (recorder
// drained, monitor closed).
func (w *Worker) Done() <-chan struct{} { return w.done }

// Wait blocks until the run has fully ended.
func (w *Worker) Wait() { <-w.done }

// DroppedEvents returns the count of monitor events discarded because
// the consumer fell behind. Result records are never dropped.
func (w *Worker) DroppedEvents() int64 { return w.dropped.Load() }

// RequestStop requests a cooperative stop. The procedure observes it
// via ShouldStop at its own discretion; a procedure that never polls
// runs to completion. The flag is one-way.
func (w *Worker) RequestStop() { w.stop.Store(true) }

// ShouldStop implements procedure.RunContext. It reports true once a
// stop has been requested or the run context was cancelled.
func (w *Worker) ShouldStop() bool {
	if w.stop.Load() {
		return true
	}
	ctx := w.runCtx
	return ctx != nil && ctx.Err() != nil
}

// Emit implements procedure.RunContext.
//
// Topic routing: TopicResults goes to the recorder queue, which never
// drops and applies backpressure to the worker goroutine; monitor
// topics go to the monitor stream, where events are dropped when the
// consumer is disconnected or slow. Result persistence never waits on
// monitor consumption.
func (w *Worker) Emit(topic types.Topic, payload any) error {
	if w.finished.Load() {
		return fmt.Errorf("%w: emit %q", ErrWorkerFinished, topic)
	}
	w.collector.IncEventsEmitted()

	if topic == types.TopicResults {
		rec, err := coerceRecord(payload)
		if err != nil {
			return err
		}
		w.collector.IncRecorderRecords()
		w.records <- rec
		return nil
	}

	if !topic.IsMonitor() {
		return fmt.Errorf("unknown topic %q", topic)
	}

	select {
	case w.monitor <- types.Event{Topic: topic, Payload: payload}:
		w.collector.IncMonitorEvents()
	default:
		w.dropped.Add(1)
	}
	return nil
}

// Start validates setup and launches the run goroutine. Configuration
// errors (missing parameters, lost implementation, completed run,
// reuse) are raised synchronously here, before any goroutine starts;
// faults after this point are surfaced only through the event stream.
func (w *Worker) Start(ctx context.Context) error {
	if w.proc.IsLost() {
		w.collector.IncRunLost()
		info := w.proc.Lost()
		return fmt.Errorf("%w: %s", procedure.ErrProcedureLost, info.Reason)
	}
	if w.results.Reloaded() {
		return fmt.Errorf("%w: %s", ErrRunCompleted, w.results.Primary())
	}
	if err := w.proc.CheckParameters(); err != nil {
		return err
	}
	if !w.started.CompareAndSwap(false, true) {
		return ErrWorkerFinished
	}

	w.runCtx = ctx
	go w.run(ctx)
	return nil
}

// run executes the lifecycle on the worker goroutine. Hook faults are
// trapped and converted to status; nothing propagates to the caller.
func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	w.proc.BindRuntime(w)
	defer w.proc.BindRuntime(nil)

	w.recorder.Start()
	w.collector.IncRunStarted()
	w.logger.Info("run started", map[string]any{
		"sink":    w.results.Primary(),
		"columns": len(w.proc.Spec().Columns()),
	})

	w.setStatus(types.StatusRunning)
	_ = w.Emit(types.TopicProgress, 0.0)

	runErr := w.phases(ctx)

	final := w.classify(runErr)
	if final == types.StatusFinished {
		_ = w.Emit(types.TopicProgress, 100.0)
	}

	// Shutdown runs exactly once on every terminal path. A shutdown
	// fault is reported but does not change the outcome classification.
	if err := w.trap(func() error {
		return w.proc.Hooks().Shutdown(ctx, w.proc, w)
	}); err != nil {
		w.logger.Error("shutdown fault", map[string]any{"error": err.Error()})
		w.respond(types.LevelWarn, fmt.Sprintf("shutdown fault: %v", err))
	}

	w.setStatus(final)
	if runErr != nil && final == types.StatusFailed {
		w.respond(types.LevelError, runErr.Error())
	}
	if final == types.StatusAborted {
		w.respond(types.LevelWarn, "run aborted on stop request")
	}

	w.persistManifest()

	// Stop the recorder before closing the monitor: rows already
	// enqueued are drained and written, then the sentinel goes out.
	// The finished flag flips first so a stray emit errors instead of
	// racing the closed queue.
	w.finished.Store(true)
	close(w.records)
	w.recorder.Wait()

	w.archive(ctx, final)
	w.countTerminal(final)
	w.logger.Info("run ended", map[string]any{
		"status":         string(final),
		"rows":           w.results.RowCount(),
		"dropped_events": w.dropped.Load(),
	})

	close(w.monitor)
}

// phases runs startup, metadata evaluation, manifest persistence, and
// execute, stopping at the first fault.
func (w *Worker) phases(ctx context.Context) error {
	if err := w.trap(func() error {
		return w.proc.Hooks().Startup(ctx, w.proc, w)
	}); err != nil {
		return fmt.Errorf("startup: %w", err)
	}

	if err := w.trap(w.proc.EvaluateMetadata); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	// Metadata is persisted before execute so a crash mid-run still
	// leaves a recoverable manifest. Sink faults here are reported,
	// not fatal.
	w.persistManifest()

	if err := w.trap(func() error {
		return w.proc.Hooks().Execute(ctx, w.proc, w)
	}); err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

// trap invokes fn, converting panics into errors so a misbehaving hook
// cannot take down the process.
func (w *Worker) trap(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("hook panic", map[string]any{
				"panic": fmt.Sprintf("%v", r),
				"stack": string(debug.Stack()),
			})
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

// classify maps the run error and stop flag to a terminal status.
// A stop request honored by the procedure is an abort, not a failure,
// even when the hook surfaced the cancellation as an error.
func (w *Worker) classify(runErr error) types.Status {
	stopped := w.ShouldStop()
	switch {
	case runErr == nil && !stopped:
		return types.StatusFinished
	case runErr == nil || errors.Is(runErr, context.Canceled):
		return types.StatusAborted
	case stopped:
		return types.StatusAborted
	default:
		return types.StatusFailed
	}
}

// setStatus applies a transition and mirrors it onto the monitor stream.
func (w *Worker) setStatus(s types.Status) {
	if err := w.proc.SetStatus(s); err != nil {
		w.logger.Warn("status transition rejected", map[string]any{
			"target": string(s),
			"error":  err.Error(),
		})
		return
	}
	select {
	case w.monitor <- types.Event{Topic: types.TopicStatus, Payload: s}:
		w.collector.IncMonitorEvents()
	default:
		w.dropped.Add(1)
	}
}

func (w *Worker) respond(level types.Level, message string) {
	select {
	case w.monitor <- types.Event{Topic: types.TopicResponses, Payload: types.Response{Message: message, Level: level}}:
		w.collector.IncMonitorEvents()
	default:
		w.dropped.Add(1)
	}
}

// persistManifest writes the run sidecar. Sink faults during a run are
// logged and reported, never raised: a long survey run continues.
func (w *Worker) persistManifest() {
	if err := w.results.WriteManifest(w.meta, time.Now().UTC()); err != nil {
		w.collector.IncSinkWriteErrors()
		w.logger.Error("manifest write failed", map[string]any{"error": err.Error()})
		w.respond(types.LevelWarn, fmt.Sprintf("manifest write failed: %v", err))
	}
}

func (w *Worker) archive(ctx context.Context, final types.Status) {
	if w.archiver == nil || final != types.StatusFinished {
		return
	}
	// Archive with a detached, bounded context so caller cancellation
	// cannot strand a completed run half-uploaded.
	archiveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := results.ArchiveRun(archiveCtx, w.archiver, w.results, w.meta); err != nil {
		w.logger.Warn("archive failed (best effort)", map[string]any{"error": err.Error()})
	}
}

func (w *Worker) countTerminal(final types.Status) {
	switch final {
	case types.StatusFinished:
		w.collector.IncRunFinished()
	case types.StatusFailed:
		w.collector.IncRunFailed()
	case types.StatusAborted:
		w.collector.IncRunAborted()
	}
}

// coerceRecord normalizes results payload shapes.
func coerceRecord(payload any) (types.Record, error) {
	switch rec := payload.(type) {
	case types.Record:
		return rec, nil
	case map[string]any:
		return types.Record(rec), nil
	default:
		return nil, fmt.Errorf("results payload must be a record, got %T", payload)
	}
}

// Verify Worker implements the capability contract.
var _ procedure.RunContext = (*Worker)(nil)
