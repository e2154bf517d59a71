package reader_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pulseline-io/pulseline/cli/reader"
	"github.com/pulseline-io/pulseline/procedure"
	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
)

// persistRun writes a sink, two data rows, and a manifest sidecar into
// dir, the shape a completed worker run leaves behind.
func persistRun(t *testing.T, dir, name, runID string, status types.Status, startedAt time.Time) string {
	t.Helper()
	spec := procedure.NewSpec(name).
		ParamDefault("traces", "traces", 4000).
		Columns("STEP", "Power (W)").
		MustBuild()
	proc := procedure.New(spec)

	sink := filepath.Join(dir, runID+".txt")
	r, err := results.New(proc, sink)
	if err != nil {
		t.Fatalf("new results: %v", err)
	}
	for step := 1; step <= 2; step++ {
		if err := r.Append(types.Record{"STEP": step, "Power (W)": 1.0}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	if status.IsTerminal() {
		if err := proc.SetStatus(types.StatusRunning); err != nil {
			t.Fatalf("to running: %v", err)
		}
		if err := proc.SetStatus(status); err != nil {
			t.Fatalf("to %s: %v", status, err)
		}
	}
	meta := &types.RunMeta{RunID: runID, Procedure: name, Attempt: 1, StartedAt: startedAt}
	if err := r.WriteManifest(meta, startedAt.Add(time.Minute)); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return sink
}

func TestManifestReader_ListRuns(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	persistRun(t, dir, "stacking", "run-a", types.StatusFinished, base)
	persistRun(t, dir, "dewow", "run-b", types.StatusFailed, base.Add(time.Hour))
	persistRun(t, dir, "stacking", "run-c", types.StatusFinished, base.Add(2*time.Hour))

	r := reader.NewManifestReader(dir)
	items, err := r.ListRuns(reader.ListRunsOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("got %d runs, want 3", len(items))
	}
	// Newest first.
	if items[0].RunID != "run-c" || items[2].RunID != "run-a" {
		t.Errorf("order = %s, %s, %s", items[0].RunID, items[1].RunID, items[2].RunID)
	}

	only, err := r.ListRuns(reader.ListRunsOptions{Procedure: "dewow"})
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	if len(only) != 1 || only[0].RunID != "run-b" {
		t.Errorf("procedure filter = %+v", only)
	}

	limited, err := r.ListRuns(reader.ListRunsOptions{Limit: 2})
	if err != nil {
		t.Fatalf("limited list: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limit = %d items", len(limited))
	}
}

func TestManifestReader_InspectRun(t *testing.T) {
	dir := t.TempDir()
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	sink := persistRun(t, dir, "stacking", "run-a", types.StatusFinished, started)

	r := reader.NewManifestReader(dir)

	byID, err := r.InspectRun("run-a")
	if err != nil {
		t.Fatalf("inspect by id: %v", err)
	}
	if byID.Procedure != "stacking" || byID.Status != string(types.StatusFinished) {
		t.Errorf("inspect = %+v", byID)
	}
	if byID.Rows != 2 {
		t.Errorf("rows = %d, want 2", byID.Rows)
	}
	if byID.Parameters["traces"] == nil {
		t.Errorf("parameters lost: %+v", byID.Parameters)
	}

	byPath, err := r.InspectRun(sink)
	if err != nil {
		t.Fatalf("inspect by path: %v", err)
	}
	if byPath.RunID != "run-a" {
		t.Errorf("run id = %q", byPath.RunID)
	}
}

func TestManifestReader_InspectMissing(t *testing.T) {
	r := reader.NewManifestReader(t.TempDir())
	if _, err := r.InspectRun("ghost"); err == nil {
		t.Fatal("expected error for unknown run")
	}
}

func TestManifestReader_StatsRuns(t *testing.T) {
	dir := t.TempDir()
	base := time.Now().UTC()
	persistRun(t, dir, "stacking", "run-a", types.StatusFinished, base)
	persistRun(t, dir, "stacking", "run-b", types.StatusFailed, base)
	persistRun(t, dir, "dewow", "run-c", types.StatusAborted, base)

	r := reader.NewManifestReader(dir)
	stats, err := r.StatsRuns()
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 || stats.Finished != 1 || stats.Failed != 1 || stats.Aborted != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestManifestReader_EmptyDir(t *testing.T) {
	r := reader.NewManifestReader(filepath.Join(t.TempDir(), "never-created"))
	items, err := r.ListRuns(reader.ListRunsOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("got %d runs from missing dir", len(items))
	}
}
