package cmd

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pulseline-io/pulseline/builtin"
	"github.com/pulseline-io/pulseline/config"
	"github.com/pulseline-io/pulseline/procedure"
	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
)

// newTestContext builds a cli.Context over a bare flag set. Flags are
// registered and populated by the setup callback.
func newTestContext(t *testing.T, setup func(set *flag.FlagSet)) *cli.Context {
	t.Helper()
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	if setup != nil {
		setup(set)
	}
	return cli.NewContext(nil, set, nil)
}

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestIsStderrTTY(_ *testing.T) {
	// This test documents the function exists and can be called.
	// Actual TTY behavior depends on runtime environment.
	_ = isStderrTTY()
}

func TestParseParams(t *testing.T) {
	values, err := parseParams([]string{
		"traces=4000",
		"gain=2.5",
		"antenna=shielded-500",
		"dry_run=true",
	})
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}

	if v, ok := values["traces"].(int); !ok || v != 4000 {
		t.Errorf("traces = %v (%T), want int 4000", values["traces"], values["traces"])
	}
	if v, ok := values["gain"].(float64); !ok || v != 2.5 {
		t.Errorf("gain = %v (%T), want float64 2.5", values["gain"], values["gain"])
	}
	if v, ok := values["antenna"].(string); !ok || v != "shielded-500" {
		t.Errorf("antenna = %v (%T), want string", values["antenna"], values["antenna"])
	}
	if v, ok := values["dry_run"].(bool); !ok || !v {
		t.Errorf("dry_run = %v (%T), want bool true", values["dry_run"], values["dry_run"])
	}
}

func TestParseParams_Empty(t *testing.T) {
	values, err := parseParams(nil)
	if err != nil {
		t.Fatalf("parseParams: %v", err)
	}
	if values != nil {
		t.Errorf("expected nil map for no pairs, got %v", values)
	}
}

func TestParseParams_Invalid(t *testing.T) {
	tests := []struct {
		name string
		pair string
	}{
		{"missing separator", "traces"},
		{"empty name", "=4000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseParams([]string{tt.pair}); err == nil {
				t.Errorf("parseParams(%q) should fail", tt.pair)
			}
		})
	}
}

func TestLoadJobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	content := "traces: 2048\nwindow: 32\nlabel: line-7\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	values, err := loadJobFile(path)
	if err != nil {
		t.Fatalf("loadJobFile: %v", err)
	}
	if v, ok := values["traces"].(int); !ok || v != 2048 {
		t.Errorf("traces = %v (%T), want int 2048", values["traces"], values["traces"])
	}
	if v, ok := values["label"].(string); !ok || v != "line-7" {
		t.Errorf("label = %v, want line-7", values["label"])
	}
}

func TestLoadJobFile_Missing(t *testing.T) {
	if _, err := loadJobFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("expected error for missing job file")
	}
}

func TestLoadJobFile_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("- not\n- a\n- map\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadJobFile(path); err == nil {
		t.Error("expected error for non-map job file")
	}
}

func TestCollectParams_FlagsOverrideJobFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte("traces: 2048\nwindow: 32\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestContext(t, func(set *flag.FlagSet) {
		set.String("job", "", "")
		set.Var(cli.NewStringSlice(), "param", "")
		if err := set.Set("job", path); err != nil {
			t.Fatal(err)
		}
		if err := set.Set("param", "window=64"); err != nil {
			t.Fatal(err)
		}
	})

	values, err := collectParams(c)
	if err != nil {
		t.Fatalf("collectParams: %v", err)
	}
	if v := values["traces"]; v != 2048 {
		t.Errorf("traces = %v, want 2048 from job file", v)
	}
	if v := values["window"]; v != 64 {
		t.Errorf("window = %v, want 64 from --param override", v)
	}
}

func TestResolveSinks_Default(t *testing.T) {
	c := newTestContext(t, func(set *flag.FlagSet) {
		set.String("out", "", "")
		set.String("storage-dir", "", "")
		set.Var(cli.NewStringSlice(), "mirror", "")
		if err := set.Set("storage-dir", "/surveys"); err != nil {
			t.Fatal(err)
		}
	})

	sinks := resolveSinks(c, &config.Config{}, "stacking", "run-1")
	if len(sinks) != 1 {
		t.Fatalf("sinks = %v, want one entry", sinks)
	}
	want := filepath.Join("/surveys", "stacking-run-1.txt")
	if sinks[0] != want {
		t.Errorf("primary = %q, want %q", sinks[0], want)
	}
}

func TestResolveSinks_ExplicitOutWithMirrors(t *testing.T) {
	c := newTestContext(t, func(set *flag.FlagSet) {
		set.String("out", "", "")
		set.String("storage-dir", "", "")
		set.Var(cli.NewStringSlice(), "mirror", "")
		if err := set.Set("out", "/data/line7.txt"); err != nil {
			t.Fatal(err)
		}
		if err := set.Set("mirror", "/extra/copy.txt"); err != nil {
			t.Fatal(err)
		}
	})

	cfg := &config.Config{}
	cfg.Storage.Mirrors = []string{"/mnt/backup"}

	sinks := resolveSinks(c, cfg, "stacking", "run-1")
	want := []string{
		"/data/line7.txt",
		filepath.Join("/mnt/backup", "line7.txt"),
		"/extra/copy.txt",
	}
	if len(sinks) != len(want) {
		t.Fatalf("sinks = %v, want %v", sinks, want)
	}
	for i := range want {
		if sinks[i] != want[i] {
			t.Errorf("sinks[%d] = %q, want %q", i, sinks[i], want[i])
		}
	}
}

func TestStorageDir_Precedence(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Dir = "/from-config"

	withFlag := newTestContext(t, func(set *flag.FlagSet) {
		set.String("storage-dir", "", "")
		if err := set.Set("storage-dir", "/from-flag"); err != nil {
			t.Fatal(err)
		}
	})
	if got := storageDir(withFlag, cfg); got != "/from-flag" {
		t.Errorf("flag should win, got %q", got)
	}

	withoutFlag := newTestContext(t, func(set *flag.FlagSet) {
		set.String("storage-dir", "", "")
	})
	if got := storageDir(withoutFlag, cfg); got != "/from-config" {
		t.Errorf("config should win without flag, got %q", got)
	}

	if got := storageDir(withoutFlag, &config.Config{}); got != "." {
		t.Errorf("cwd fallback, got %q", got)
	}
}

func TestStatusToExitCode(t *testing.T) {
	tests := []struct {
		status types.Status
		want   int
	}{
		{types.StatusFinished, exitSuccess},
		{types.StatusFailed, exitFailed},
		{types.StatusAborted, exitAborted},
		{types.StatusLost, exitFailed},
		{types.StatusRunning, exitFailed},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := statusToExitCode(tt.status); got != tt.want {
				t.Errorf("statusToExitCode(%s) = %d, want %d", tt.status, got, tt.want)
			}
		})
	}
}

func TestBatchManifest_Unmarshal(t *testing.T) {
	doc := `
runs:
  - procedure: stacking
    params:
      traces: 1024
      window: 64
    out: /surveys/line1.txt
  - procedure: dewow
    run_id: fixed-id
`
	var m batchManifest
	if err := yaml.Unmarshal([]byte(doc), &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(m.Runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(m.Runs))
	}
	if m.Runs[0].Procedure != "stacking" || m.Runs[0].Out != "/surveys/line1.txt" {
		t.Errorf("first entry = %+v", m.Runs[0])
	}
	if v := m.Runs[0].Params["traces"]; v != 1024 {
		t.Errorf("traces param = %v (%T), want int 1024", v, v)
	}
	if m.Runs[1].RunID != "fixed-id" {
		t.Errorf("second run_id = %q, want fixed-id", m.Runs[1].RunID)
	}
}

func TestParameterSummaries(t *testing.T) {
	reg := procedure.NewRegistry("")
	if err := builtin.Register(reg); err != nil {
		t.Fatal(err)
	}
	spec, ok := reg.Get("stacking")
	if !ok {
		t.Fatal("stacking should be registered")
	}

	summaries := parameterSummaries(spec)
	if len(summaries) == 0 {
		t.Fatal("expected parameter summaries")
	}
	joined := strings.Join(summaries, ", ")
	if !strings.Contains(joined, "traces (traces)") {
		t.Errorf("summaries %q should contain unit-annotated traces", joined)
	}
}

func TestBuildRegistry_Builtins(t *testing.T) {
	c := newTestContext(t, func(set *flag.FlagSet) {
		set.String("script-dir", "", "")
	})

	reg, err := buildRegistry(c, &config.Config{})
	if err != nil {
		t.Fatalf("buildRegistry: %v", err)
	}
	for _, name := range []string{"stacking", "dewow"} {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("builtin %q should be registered", name)
		}
	}
}

func TestLoadConfig_ExplicitPathMustExist(t *testing.T) {
	c := newTestContext(t, func(set *flag.FlagSet) {
		set.String("config", "", "")
		if err := set.Set("config", filepath.Join(t.TempDir(), "absent.yaml")); err != nil {
			t.Fatal(err)
		}
	})

	if _, err := loadConfig(c); err == nil {
		t.Error("explicit --config pointing at a missing file should fail")
	}
}

func TestLoadConfig_ExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulseline.yaml")
	doc := "storage:\n  dir: /surveys\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestContext(t, func(set *flag.FlagSet) {
		set.String("config", "", "")
		if err := set.Set("config", path); err != nil {
			t.Fatal(err)
		}
	})

	cfg, err := loadConfig(c)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Storage.Dir != "/surveys" {
		t.Errorf("storage dir = %q, want /surveys", cfg.Storage.Dir)
	}
}

// persistManifest leaves a completed-run manifest in dir so parameter
// recovery has something to find.
func persistManifest(t *testing.T, dir, name, runID string) {
	t.Helper()
	spec := procedure.NewSpec(name).
		ParamDefault("traces", "traces", 2048).
		Columns("STEP", "Power (W)").
		MustBuild()
	proc := procedure.New(spec)

	r, err := results.New(proc, filepath.Join(dir, name+"-"+runID+".txt"))
	if err != nil {
		t.Fatalf("new results: %v", err)
	}
	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	meta := &types.RunMeta{RunID: runID, Procedure: name, Attempt: 1, StartedAt: started}
	if err := r.WriteManifest(meta, started.Add(time.Minute)); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
}

func TestLoadProcedure_Registered(t *testing.T) {
	c := newTestContext(t, func(set *flag.FlagSet) {
		set.String("script-dir", "", "")
		set.String("storage-dir", "", "")
	})
	reg, err := buildRegistry(c, &config.Config{})
	if err != nil {
		t.Fatal(err)
	}

	proc := loadProcedure(c, &config.Config{}, reg, "stacking")
	if proc.IsLost() {
		t.Fatal("registered procedure should not degrade to lost")
	}
	if proc.Name() != "stacking" {
		t.Errorf("name = %q", proc.Name())
	}
}

func TestLoadProcedure_DegradesToLost(t *testing.T) {
	dir := t.TempDir()
	persistManifest(t, dir, "breakout", "run-1")

	c := newTestContext(t, func(set *flag.FlagSet) {
		set.String("script-dir", "", "")
		set.String("storage-dir", "", "")
		if err := set.Set("storage-dir", dir); err != nil {
			t.Fatal(err)
		}
	})
	reg, err := buildRegistry(c, &config.Config{})
	if err != nil {
		t.Fatal(err)
	}

	proc := loadProcedure(c, &config.Config{}, reg, "breakout")
	if !proc.IsLost() {
		t.Fatal("unresolvable procedure should degrade to lost, not raise")
	}
	if proc.Status() != types.StatusLost {
		t.Errorf("status = %s, want lost", proc.Status())
	}
	if got := fmt.Sprintf("%v", proc.ParameterValues()["traces"]); got != "2048" {
		t.Errorf("recovered traces = %v, want 2048", proc.ParameterValues()["traces"])
	}
	if code := statusToExitCode(proc.Status()); code != exitFailed {
		t.Errorf("lost exit code = %d, want %d", code, exitFailed)
	}
}

func TestRecoverParams_NoManifest(t *testing.T) {
	if params := recoverParams(t.TempDir(), "stacking"); params != nil {
		t.Errorf("expected nil without a persisted manifest, got %v", params)
	}
}
