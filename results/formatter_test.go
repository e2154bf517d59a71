package results_test

import (
	"strings"
	"testing"

	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
)

func newFormatter(t *testing.T, decls ...string) *results.Formatter {
	t.Helper()
	f, err := results.NewFormatter(decls)
	if err != nil {
		t.Fatalf("new formatter: %v", err)
	}
	return f
}

func TestFormatter_Labels(t *testing.T) {
	f := newFormatter(t, "STEP", "Power (W)")
	if got := f.Labels(); got != "STEP\tPower (W)" {
		t.Errorf("labels = %q", got)
	}
}

func TestFormatter_SequenceExpansion(t *testing.T) {
	f := newFormatter(t, "STEP", "Power (W)")

	block := f.Format(types.Record{
		"STEP":      "stack",
		"Power (W)": []float64{1.5, 2.5, 3.5},
	})
	lines := strings.Split(strings.TrimSuffix(block, "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), block)
	}

	// Scalar STEP appears on the first line only.
	if lines[0] != "stack\t1.5" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "\t2.5" {
		t.Errorf("line 1 = %q", lines[1])
	}
	if lines[2] != "\t3.5" {
		t.Errorf("line 2 = %q", lines[2])
	}
}

func TestFormatter_CompletedTimeScalar(t *testing.T) {
	f := newFormatter(t, "Two-way time (ns)", "COMPLETED TIME")

	block := f.Format(types.Record{
		"Two-way time (ns)": []int{10, 20},
		"COMPLETED TIME":    "2026-08-28T10:00:00Z",
	})
	lines := strings.Split(strings.TrimSuffix(block, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", block)
	}
	if lines[0] != "10\t2026-08-28T10:00:00Z" {
		t.Errorf("line 0 = %q", lines[0])
	}
	if lines[1] != "20\t" {
		t.Errorf("completed time must not repeat: line 1 = %q", lines[1])
	}
}

func TestFormatter_BareLabelLookup(t *testing.T) {
	f := newFormatter(t, "Power (W)")

	// Records may key values by bare label instead of full declaration.
	block := f.Format(types.Record{"Power": 7.0})
	if block != "7\n" {
		t.Errorf("block = %q", block)
	}
}

func TestFormatter_MissingColumnsBlank(t *testing.T) {
	f := newFormatter(t, "STEP", "Power (W)", "Gain (dB)")

	block := f.Format(types.Record{"Power (W)": 1.0})
	if block != "\t1\t\n" {
		t.Errorf("block = %q", block)
	}
}

func TestFormatter_EmptyRecordSingleLine(t *testing.T) {
	f := newFormatter(t, "STEP", "Power (W)")

	block := f.Format(types.Record{})
	if block != "\t\n" {
		t.Errorf("empty record should render one blank line, got %q", block)
	}
}

func TestNewFormatter_NoColumns(t *testing.T) {
	if _, err := results.NewFormatter(nil); err == nil {
		t.Error("expected error for empty column declaration")
	}
}
