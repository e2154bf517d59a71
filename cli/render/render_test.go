package render_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/pulseline-io/pulseline/cli/reader"
	"github.com/pulseline-io/pulseline/cli/render"
)

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    render.Format
		wantErr bool
	}{
		{"json", render.FormatJSON, false},
		{"JSON", render.FormatJSON, false},
		{"table", render.FormatTable, false},
		{"yaml", render.FormatYAML, false},
		{"", "", false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := render.ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRender_JSON(t *testing.T) {
	var buf bytes.Buffer
	r := render.NewRendererWithWriter(render.FormatJSON, false, &buf)

	data := []reader.ListRunItem{
		{RunID: "run-1", Procedure: "stacking", Status: "finished", StartedAt: time.Now()},
	}
	if err := r.Render(data); err != nil {
		t.Fatalf("render: %v", err)
	}

	var decoded []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, buf.String())
	}
	if decoded[0]["run_id"] != "run-1" {
		t.Errorf("run_id = %v", decoded[0]["run_id"])
	}
}

func TestRender_Table(t *testing.T) {
	var buf bytes.Buffer
	r := render.NewRendererWithWriter(render.FormatTable, true, &buf)

	data := []reader.ListRunItem{
		{RunID: "run-1", Procedure: "stacking", Status: "finished"},
		{RunID: "run-2", Procedure: "dewow", Status: "failed"},
	}
	if err := r.Render(data); err != nil {
		t.Fatalf("render: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"run_id", "run-1", "run-2", "stacking", "dewow"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}

func TestRender_TableEmptySlice(t *testing.T) {
	var buf bytes.Buffer
	r := render.NewRendererWithWriter(render.FormatTable, false, &buf)

	if err := r.Render([]reader.ListRunItem{}); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "(no results)") {
		t.Errorf("empty slice output = %q", buf.String())
	}
}

func TestRender_StructTable(t *testing.T) {
	var buf bytes.Buffer
	r := render.NewRendererWithWriter(render.FormatTable, false, &buf)

	data := &reader.RunStats{Total: 5, Finished: 4, Failed: 1}
	if err := r.Render(data); err != nil {
		t.Fatalf("render: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"total", "5", "finished", "4"} {
		if !strings.Contains(out, want) {
			t.Errorf("struct table missing %q:\n%s", want, out)
		}
	}
}

func TestRender_YAML(t *testing.T) {
	var buf bytes.Buffer
	r := render.NewRendererWithWriter(render.FormatYAML, false, &buf)

	data := &reader.RunStats{Total: 5, Finished: 4, Failed: 1}
	if err := r.Render(data); err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(buf.String(), "total: 5") {
		t.Errorf("yaml output:\n%s", buf.String())
	}
}
