// Package results is the persistence boundary for one procedure run:
// the comment-prefixed header, the delimiter-joined column layout,
// append-only result rows, and reload-from-disk reconstruction of
// completed runs.
package results

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/pulseline-io/pulseline/iox"
	"github.com/pulseline-io/pulseline/procedure"
	"github.com/pulseline-io/pulseline/types"
)

// commentPrefix marks header/metadata lines in the sink file. Parsers
// must treat any line with this prefix as metadata, never data.
const commentPrefix = "#"

// reloadChunkLines bounds how many rows a reload parses per chunk, so
// an unbounded sink file is never materialized in one allocation.
const reloadChunkLines = 1024

// Results manages the on-disk representation of a run: one or more
// mirrored sink files sharing a header, column layout, and append-only
// rows. If the primary sink already exists at construction, the run is
// treated as completed: existing rows are reloaded and the procedure is
// marked FINISHED instead of being re-executed.
type Results struct {
	mu        sync.Mutex
	proc      *procedure.Procedure
	sinks     []string
	formatter *Formatter

	headerLines int
	rows        [][]string
	rawTail     string
	reloaded    bool
}

// New binds a procedure to one or more sink paths. The first path is
// the primary sink; the rest are mirrors receiving identical writes.
//
// Formatter construction validates the declared column units and fails
// fast; header write failures are also raised here, before any worker
// thread exists.
func New(proc *procedure.Procedure, sinks ...string) (*Results, error) {
	if len(sinks) == 0 {
		return nil, fmt.Errorf("results: at least one sink path is required")
	}

	formatter, err := NewFormatter(proc.Spec().Columns())
	if err != nil {
		return nil, fmt.Errorf("results: %w", err)
	}

	r := &Results{
		proc:      proc,
		sinks:     append([]string(nil), sinks...),
		formatter: formatter,
	}
	r.headerLines = strings.Count(r.Header(), "\n") + 1 // +1 label line

	if _, statErr := os.Stat(sinks[0]); statErr == nil {
		if err := r.reload(); err != nil {
			return nil, fmt.Errorf("results: reload %s: %w", sinks[0], err)
		}
		r.reloaded = true
		proc.MarkReloaded()
		return r, nil
	}

	block := r.Header() + r.Labels() + "\n"
	for _, sink := range r.sinks {
		if err := os.WriteFile(sink, []byte(block), 0o644); err != nil {
			return nil, wrapSinkError("header", sink, err)
		}
	}
	return r, nil
}

// Procedure returns the bound procedure.
func (r *Results) Procedure() *procedure.Procedure { return r.proc }

// Primary returns the primary sink path.
func (r *Results) Primary() string { return r.sinks[0] }

// Sinks returns all sink paths.
func (r *Results) Sinks() []string {
	out := make([]string, len(r.sinks))
	copy(out, r.sinks)
	return out
}

// Reloaded reports whether construction found an existing sink and
// reconstructed a completed run.
func (r *Results) Reloaded() bool { return r.reloaded }

// HeaderLines returns the total header height (comment block plus the
// label line), used to distinguish rows from header on reload.
func (r *Results) HeaderLines() int { return r.headerLines }

// Header renders the deterministic comment-prefixed header block: the
// procedure representation and its enumerated processing flow.
func (r *Results) Header() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s procedure: %s\n", commentPrefix, r.proc.String())
	fmt.Fprintf(&b, "%s flow:\n", commentPrefix)
	for i, node := range r.proc.Spec().FlowNodes() {
		fmt.Fprintf(&b, "%s %d. %s: %s\n", commentPrefix, i+1, node.Stage, node.Description)
	}
	fmt.Fprintf(&b, "%s ---\n", commentPrefix)
	return b.String()
}

// Labels returns the delimiter-joined column-label line.
func (r *Results) Labels() string { return r.formatter.Labels() }

// Format renders a record via the bound column formatter.
func (r *Results) Format(rec types.Record) string { return r.formatter.Format(rec) }

// Append formats a record and appends it to every sink, updating the
// in-memory row cache. The recorder goroutine is the only writer during
// a run. A mirror failure does not stop the remaining sinks; the first
// error is returned for logging.
func (r *Results) Append(rec types.Record) error {
	block := r.formatter.Format(rec)

	var firstErr error
	for _, sink := range r.sinks {
		if err := appendFile(sink, block); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	r.mu.Lock()
	for _, line := range strings.Split(strings.TrimSuffix(block, "\n"), "\n") {
		r.rows = append(r.rows, strings.Split(line, Delimiter))
	}
	r.mu.Unlock()

	return firstErr
}

// Rows returns a copy of the cached tabular rows.
func (r *Results) Rows() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]string, len(r.rows))
	for i, row := range r.rows {
		out[i] = append([]string(nil), row...)
	}
	return out
}

// RowCount returns the number of cached data rows.
func (r *Results) RowCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// RawTail returns any unparseable remainder captured during reload.
func (r *Results) RawTail() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rawTail
}

// Reload re-parses the primary sink from scratch, replacing the row
// cache. Rows are consumed in bounded-size chunks; on a read fault the
// raw remainder is captured instead of failing the reload.
func (r *Results) Reload() error {
	r.mu.Lock()
	r.rows = nil
	r.rawTail = ""
	r.mu.Unlock()
	return r.reload()
}

func (r *Results) reload() error {
	f, err := os.Open(r.sinks[0])
	if err != nil {
		return wrapSinkError("read", r.sinks[0], err)
	}
	defer iox.DiscardClose(f)

	labels := r.formatter.Labels()
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	chunk := make([][]string, 0, reloadChunkLines)
	flush := func() {
		if len(chunk) == 0 {
			return
		}
		r.mu.Lock()
		r.rows = append(r.rows, chunk...)
		r.mu.Unlock()
		chunk = make([][]string, 0, reloadChunkLines)
	}

	labelSeen := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, commentPrefix) {
			continue
		}
		if !labelSeen && line == labels {
			labelSeen = true
			continue
		}
		if line == "" {
			continue
		}
		chunk = append(chunk, strings.Split(line, Delimiter))
		if len(chunk) >= reloadChunkLines {
			flush()
		}
	}
	flush()

	if scanErr := scanner.Err(); scanErr != nil {
		// Parse fault: capture whatever remains as raw text rather than
		// losing it. Reload still succeeds.
		tail, readErr := io.ReadAll(f)
		if readErr == nil {
			r.mu.Lock()
			r.rawTail = string(tail)
			r.mu.Unlock()
		}
	}
	return nil
}

// appendFile appends a formatted block to one sink file.
func appendFile(path, block string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return wrapSinkError("write", path, err)
	}
	if _, err := f.WriteString(block); err != nil {
		iox.DiscardClose(f)
		return wrapSinkError("write", path, err)
	}
	return wrapSinkError("write", path, iox.SyncClose(f))
}
