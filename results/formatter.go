package results

import (
	"fmt"
	"strings"

	"github.com/pulseline-io/pulseline/types"
	"github.com/pulseline-io/pulseline/units"
)

// Delimiter joins column values within a formatted line.
const Delimiter = "\t"

// scalarKey reports whether a column holds scalar values rather than
// sequences. Stage markers and the completion timestamp are written
// once per record block, not expanded per sample.
func scalarKey(label string) bool {
	return strings.Contains(label, "STEP") || label == "COMPLETED TIME"
}

// Formatter renders result records as delimiter-joined lines according
// to the declared column layout. Units are resolved from the "(unit)"
// column-name suffix at construction; an unrecognized unit is a
// configuration error raised before any worker starts.
type Formatter struct {
	decls   []string
	columns []units.Column
}

// NewFormatter builds a formatter for the declared columns. Fails fast
// with an error wrapping units.ErrUndefinedUnit on a bad suffix.
func NewFormatter(decls []string) (*Formatter, error) {
	if len(decls) == 0 {
		return nil, fmt.Errorf("no result columns declared")
	}
	cols, err := units.ParseColumns(decls)
	if err != nil {
		return nil, err
	}
	return &Formatter{decls: decls, columns: cols}, nil
}

// Columns returns the parsed column layout.
func (f *Formatter) Columns() []units.Column {
	out := make([]units.Column, len(f.columns))
	copy(out, f.columns)
	return out
}

// Labels returns the delimiter-joined column-label line, rendered with
// unit suffixes as declared.
func (f *Formatter) Labels() string {
	return strings.Join(f.decls, Delimiter)
}

// Format renders one record as a block of delimiter-joined lines.
//
// Sequence columns expand to one line per element; the block height is
// the longest sequence. Scalar columns (keys containing "STEP" or the
// key "COMPLETED TIME") appear on the first line only. A record value
// is looked up under the full declaration first, then under the bare
// label. Missing columns render blank.
func (f *Formatter) Format(rec types.Record) string {
	values := make([][]string, len(f.columns))
	scalar := make([]bool, len(f.columns))
	height := 1

	for i, col := range f.columns {
		v, ok := rec[f.decls[i]]
		if !ok {
			v, ok = rec[col.Label]
		}
		scalar[i] = scalarKey(col.Label)
		if !ok || v == nil {
			continue
		}

		if scalar[i] {
			values[i] = []string{render(v)}
			continue
		}

		seq := sequence(v)
		values[i] = seq
		if len(seq) > height {
			height = len(seq)
		}
	}

	var b strings.Builder
	for line := 0; line < height; line++ {
		fields := make([]string, len(f.columns))
		for i := range f.columns {
			switch {
			case scalar[i] && line > 0:
				// scalars only on the first line of a block
			case line < len(values[i]):
				fields[i] = values[i][line]
			}
		}
		b.WriteString(strings.Join(fields, Delimiter))
		b.WriteByte('\n')
	}
	return b.String()
}

// sequence coerces a record value into its string elements. Scalars
// become single-element sequences.
func sequence(v any) []string {
	switch s := v.(type) {
	case []any:
		out := make([]string, len(s))
		for i, e := range s {
			out[i] = render(e)
		}
		return out
	case []float64:
		out := make([]string, len(s))
		for i, e := range s {
			out[i] = render(e)
		}
		return out
	case []int:
		out := make([]string, len(s))
		for i, e := range s {
			out[i] = render(e)
		}
		return out
	case []string:
		out := make([]string, len(s))
		copy(out, s)
		return out
	default:
		return []string{render(v)}
	}
}

// render formats a single value. Floats use %g so reloaded values
// round-trip without artificial precision.
func render(v any) string {
	switch n := v.(type) {
	case float64:
		return fmt.Sprintf("%g", n)
	case float32:
		return fmt.Sprintf("%g", n)
	default:
		return fmt.Sprintf("%v", v)
	}
}
