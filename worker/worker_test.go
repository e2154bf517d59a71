package worker_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pulseline-io/pulseline/metrics"
	"github.com/pulseline-io/pulseline/procedure"
	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
	"github.com/pulseline-io/pulseline/worker"
)

func newRun(t *testing.T, hooks procedure.Hooks) (*procedure.Procedure, *results.Results, string) {
	t.Helper()
	spec, err := procedure.NewSpec("stacking").
		ParamDefault("traces", "traces", 4000).
		Columns("STEP", "Power (W)").
		FlowNode("stack", "averages trace blocks").
		Hooks(func() procedure.Hooks { return hooks }).
		Build()
	if err != nil {
		t.Fatalf("build spec: %v", err)
	}
	proc := procedure.New(spec)
	sink := filepath.Join(t.TempDir(), "stacking.txt")
	r, err := results.New(proc, sink)
	if err != nil {
		t.Fatalf("new results: %v", err)
	}
	return proc, r, sink
}

func newWorker(t *testing.T, proc *procedure.Procedure, r *results.Results, collector *metrics.Collector) *worker.Worker {
	t.Helper()
	w, err := worker.New(worker.Config{
		Procedure: proc,
		Results:   r,
		Meta: &types.RunMeta{
			RunID:     "run-1",
			Procedure: proc.Name(),
			Attempt:   1,
			StartedAt: time.Now().UTC(),
		},
		Collector: collector,
	})
	if err != nil {
		t.Fatalf("new worker: %v", err)
	}
	return w
}

// drain consumes the monitor stream until the worker closes it,
// returning the events in arrival order.
func drain(t *testing.T, w *worker.Worker) []types.Event {
	t.Helper()
	var events []types.Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-w.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-timeout:
			t.Fatal("monitor stream never closed")
		}
	}
}

func lastStatus(events []types.Event) (types.Status, bool) {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Topic == types.TopicStatus {
			s, ok := events[i].Payload.(types.Status)
			return s, ok
		}
	}
	return "", false
}

func TestWorker_FinishedRun(t *testing.T) {
	hooks := &procedure.StubHooks{
		OnExecute: func(_ context.Context, _ *procedure.Procedure, rc procedure.RunContext) error {
			for step := 1; step <= 3; step++ {
				if err := rc.Emit(types.TopicResults, types.Record{
					"STEP":      step,
					"Power (W)": float64(step) * 0.5,
				}); err != nil {
					return err
				}
			}
			return nil
		},
	}
	proc, r, sink := newRun(t, hooks)
	collector := metrics.NewCollector()
	w := newWorker(t, proc, r, collector)

	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	events := drain(t, w)
	w.Wait()

	if got := proc.Status(); got != types.StatusFinished {
		t.Fatalf("status = %q, want %q", got, types.StatusFinished)
	}
	if s, ok := lastStatus(events); !ok || s != types.StatusFinished {
		t.Errorf("last status event = %v, want finished", s)
	}
	if startup, execute, shutdown := hooks.Calls(); startup != 1 || execute != 1 || shutdown != 1 {
		t.Errorf("hook calls = %d/%d/%d, want 1/1/1", startup, execute, shutdown)
	}

	// Rows land in emit order, one block per record.
	rows := r.Rows()
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	wantSteps := []string{"1", "2", "3"}
	for i, row := range rows {
		if row[0] != wantSteps[i] {
			t.Errorf("row %d STEP = %q, want %q", i, row[0], wantSteps[i])
		}
	}

	data, err := os.ReadFile(sink)
	if err != nil {
		t.Fatalf("read sink: %v", err)
	}
	if !strings.Contains(string(data), "1\t0.5\n") {
		t.Errorf("sink missing first row:\n%s", data)
	}

	snap := collector.Snapshot()
	if snap.RunsFinished != 1 || snap.RunsStarted != 1 {
		t.Errorf("snapshot = %+v, want one started and one finished run", snap)
	}
	if snap.RowsWritten != 3 {
		t.Errorf("rows written = %d, want 3", snap.RowsWritten)
	}
}

func TestWorker_ExecuteFaultFails(t *testing.T) {
	hooks := &procedure.StubHooks{
		OnExecute: func(context.Context, *procedure.Procedure, procedure.RunContext) error {
			return errors.New("antenna offline")
		},
	}
	proc, r, _ := newRun(t, hooks)
	w := newWorker(t, proc, r, nil)

	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	events := drain(t, w)

	if got := proc.Status(); got != types.StatusFailed {
		t.Fatalf("status = %q, want %q", got, types.StatusFailed)
	}
	if _, _, shutdown := hooks.Calls(); shutdown != 1 {
		t.Errorf("shutdown calls = %d, want exactly 1", shutdown)
	}

	var sawError bool
	for _, ev := range events {
		resp, ok := ev.Payload.(types.Response)
		if ev.Topic == types.TopicResponses && ok &&
			resp.Level == types.LevelError && strings.Contains(resp.Message, "antenna offline") {
			sawError = true
		}
	}
	if !sawError {
		t.Errorf("no error response carrying the fault, events: %+v", events)
	}
}

func TestWorker_PanicContained(t *testing.T) {
	hooks := &procedure.StubHooks{
		OnExecute: func(context.Context, *procedure.Procedure, procedure.RunContext) error {
			panic("index out of range")
		},
	}
	proc, r, _ := newRun(t, hooks)
	w := newWorker(t, proc, r, nil)

	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, w)

	if got := proc.Status(); got != types.StatusFailed {
		t.Fatalf("status = %q, want %q", got, types.StatusFailed)
	}
	if _, _, shutdown := hooks.Calls(); shutdown != 1 {
		t.Errorf("shutdown calls = %d, want exactly 1", shutdown)
	}
}

func TestWorker_CooperativeAbort(t *testing.T) {
	started := make(chan struct{})
	hooks := &procedure.StubHooks{
		OnExecute: func(_ context.Context, _ *procedure.Procedure, rc procedure.RunContext) error {
			close(started)
			for !rc.ShouldStop() {
				time.Sleep(time.Millisecond)
			}
			return nil
		},
	}
	proc, r, _ := newRun(t, hooks)
	w := newWorker(t, proc, r, nil)

	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-started
	w.RequestStop()
	events := drain(t, w)

	if got := proc.Status(); got != types.StatusAborted {
		t.Fatalf("status = %q, want %q", got, types.StatusAborted)
	}
	if s, ok := lastStatus(events); !ok || s != types.StatusAborted {
		t.Errorf("last status event = %v, want aborted", s)
	}
	if _, _, shutdown := hooks.Calls(); shutdown != 1 {
		t.Errorf("shutdown calls = %d, want exactly 1", shutdown)
	}
}

func TestWorker_OneShot(t *testing.T) {
	proc, r, _ := newRun(t, &procedure.StubHooks{})
	w := newWorker(t, proc, r, nil)

	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("first start: %v", err)
	}
	w.Wait()

	if err := w.Start(t.Context()); !errors.Is(err, worker.ErrWorkerFinished) {
		t.Fatalf("second start err = %v, want ErrWorkerFinished", err)
	}
}

func TestWorker_StartMissingParameter(t *testing.T) {
	spec := procedure.NewSpec("dewow").
		Param("window", "samples").
		Columns("STEP").
		MustBuild()
	proc := procedure.New(spec)
	r, err := results.New(proc, filepath.Join(t.TempDir(), "dewow.txt"))
	if err != nil {
		t.Fatalf("new results: %v", err)
	}
	w := newWorker(t, proc, r, nil)

	if err := w.Start(t.Context()); !errors.Is(err, procedure.ErrMissingParameter) {
		t.Fatalf("start err = %v, want ErrMissingParameter", err)
	}
	if got := proc.Status(); got != types.StatusQueued {
		t.Errorf("status = %q, want still queued", got)
	}
	// The parameter check is a setup error, not a consumed run.
	if err := proc.SetParameters(map[string]any{"window": 64}, false); err != nil {
		t.Fatalf("set parameters: %v", err)
	}
	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start after fix: %v", err)
	}
	w.Wait()
}

func TestWorker_LostProcedureRejected(t *testing.T) {
	// A lost placeholder carries no column declarations, so it is
	// refused at the persistence boundary before a worker ever exists.
	proc := procedure.NewLost("ghost", errors.New("script removed"), map[string]any{"traces": 100})
	if _, err := results.New(proc, filepath.Join(t.TempDir(), "ghost.txt")); err == nil {
		t.Fatal("results accepted a lost procedure")
	}
	if got := proc.Status(); got != types.StatusLost {
		t.Errorf("status = %q, want %q", got, types.StatusLost)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := worker.New(worker.Config{}); err == nil {
		t.Fatal("empty config accepted")
	}

	proc, r, _ := newRun(t, &procedure.StubHooks{})
	other := procedure.New(proc.Spec())
	if _, err := worker.New(worker.Config{
		Procedure: other,
		Results:   r,
		Meta:      &types.RunMeta{RunID: "run-2", Procedure: "stacking", Attempt: 1, StartedAt: time.Now()},
	}); err == nil {
		t.Fatal("mismatched procedure accepted")
	}
}

func TestWorker_ReloadedRunRefusesStart(t *testing.T) {
	proc, r, sink := newRun(t, &procedure.StubHooks{})
	if err := r.Append(types.Record{"STEP": 1, "Power (W)": 2.0}); err != nil {
		t.Fatalf("append: %v", err)
	}

	reloadedProc := procedure.New(proc.Spec())
	reloaded, err := results.New(reloadedProc, sink)
	if err != nil {
		t.Fatalf("reopen results: %v", err)
	}
	if !reloaded.Reloaded() {
		t.Fatal("existing sink not detected")
	}

	w := newWorker(t, reloadedProc, reloaded, nil)
	if err := w.Start(t.Context()); !errors.Is(err, worker.ErrRunCompleted) {
		t.Fatalf("start err = %v, want ErrRunCompleted", err)
	}
}

func TestWorker_SequencePayloadOneBlock(t *testing.T) {
	hooks := &procedure.StubHooks{
		OnExecute: func(_ context.Context, _ *procedure.Procedure, rc procedure.RunContext) error {
			return rc.Emit(types.TopicResults, types.Record{
				"STEP":      "stack",
				"Power (W)": []float64{1.5, 2.5},
			})
		},
	}
	proc, r, sink := newRun(t, hooks)
	w := newWorker(t, proc, r, nil)

	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	drain(t, w)

	// One record, two data lines, first line carries the scalar.
	data, err := os.ReadFile(sink)
	if err != nil {
		t.Fatalf("read sink: %v", err)
	}
	body := string(data)
	if !strings.Contains(body, "stack\t1.5\n\t2.5\n") {
		t.Errorf("sequence block malformed:\n%s", body)
	}
	if r.RowCount() != 2 {
		t.Errorf("row count = %d, want 2", r.RowCount())
	}
}

func TestWorker_EmitAfterRunFinished(t *testing.T) {
	proc, r, _ := newRun(t, &procedure.StubHooks{})
	w := newWorker(t, proc, r, nil)
	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Wait()

	if err := w.Emit(types.TopicResults, types.Record{"STEP": 1}); !errors.Is(err, worker.ErrWorkerFinished) {
		t.Fatalf("emit err = %v, want ErrWorkerFinished", err)
	}
	if err := proc.Emit(types.TopicProgress, 50.0); !errors.Is(err, procedure.ErrNotBound) {
		t.Fatalf("detached emit err = %v, want ErrNotBound", err)
	}
}

func TestWorker_ManifestPersisted(t *testing.T) {
	proc, r, sink := newRun(t, &procedure.StubHooks{})
	w := newWorker(t, proc, r, nil)
	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	w.Wait()

	m, err := results.ReadManifest(sink)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if m.Status != string(types.StatusFinished) {
		t.Errorf("manifest status = %q, want finished", m.Status)
	}
	if m.RunID != "run-1" || m.Procedure != "stacking" {
		t.Errorf("manifest identity = %q/%q", m.RunID, m.Procedure)
	}
	if got := m.Parameters["traces"]; got == nil {
		t.Errorf("manifest missing traces parameter: %+v", m.Parameters)
	}
}

func TestWorker_NilCollectorFinishes(t *testing.T) {
	hooks := &procedure.StubHooks{
		OnExecute: func(_ context.Context, _ *procedure.Procedure, rc procedure.RunContext) error {
			return rc.Emit(types.TopicResults, types.Record{"STEP": 1, "Power (W)": 0.5})
		},
	}
	proc, r, _ := newRun(t, hooks)
	w := newWorker(t, proc, r, nil)

	if err := w.Start(t.Context()); err != nil {
		t.Fatalf("start: %v", err)
	}
	events := drain(t, w)
	w.Wait()

	if status, _ := lastStatus(events); status != types.StatusFinished {
		t.Errorf("final status = %s, want finished", status)
	}
	if r.RowCount() != 1 {
		t.Errorf("rows = %d, want 1", r.RowCount())
	}
}
