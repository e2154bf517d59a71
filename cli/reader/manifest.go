package reader

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pulseline-io/pulseline/results"
	"github.com/pulseline-io/pulseline/types"
)

// manifestSuffix mirrors the sidecar naming used by the results package.
const manifestSuffix = ".manifest"

// ManifestReader reads persisted runs from a survey directory by
// scanning manifest sidecars.
type ManifestReader struct {
	dir string
}

// NewManifestReader creates a reader over a survey directory.
func NewManifestReader(dir string) *ManifestReader {
	return &ManifestReader{dir: dir}
}

// InspectRun implements Reader. The ref may be a run ID or a sink path.
func (r *ManifestReader) InspectRun(ref string) (*InspectRunResponse, error) {
	if sink := strings.TrimSuffix(ref, manifestSuffix); looksLikePath(sink) {
		m, err := results.ReadManifest(sink)
		if err != nil {
			return nil, err
		}
		return buildInspect(sink, m), nil
	}

	sinks, err := r.scan()
	if err != nil {
		return nil, err
	}
	for _, sink := range sinks {
		m, err := results.ReadManifest(sink)
		if err != nil {
			continue
		}
		if m.RunID == ref {
			return buildInspect(sink, m), nil
		}
	}
	return nil, fmt.Errorf("run %q not found in %s", ref, r.dir)
}

// ListRuns implements Reader. Runs come back newest first.
func (r *ManifestReader) ListRuns(opts ListRunsOptions) ([]ListRunItem, error) {
	sinks, err := r.scan()
	if err != nil {
		return nil, err
	}

	items := make([]ListRunItem, 0, len(sinks))
	for _, sink := range sinks {
		m, err := results.ReadManifest(sink)
		if err != nil {
			continue
		}
		if opts.Procedure != "" && m.Procedure != opts.Procedure {
			continue
		}
		if opts.Status != "" && m.Status != opts.Status {
			continue
		}
		items = append(items, ListRunItem{
			RunID:     m.RunID,
			Procedure: m.Procedure,
			Status:    m.Status,
			StartedAt: m.StartedAt,
		})
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].StartedAt.After(items[j].StartedAt)
	})
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items, nil
}

// StatsRuns implements Reader.
func (r *ManifestReader) StatsRuns() (*RunStats, error) {
	sinks, err := r.scan()
	if err != nil {
		return nil, err
	}

	stats := &RunStats{}
	for _, sink := range sinks {
		m, err := results.ReadManifest(sink)
		if err != nil {
			continue
		}
		stats.Total++
		switch types.Status(m.Status) {
		case types.StatusFinished:
			stats.Finished++
		case types.StatusFailed:
			stats.Failed++
		case types.StatusAborted:
			stats.Aborted++
		case types.StatusLost:
			stats.Lost++
		default:
			stats.Other++
		}
	}
	return stats, nil
}

// scan returns the sink paths of every manifest sidecar under the
// survey directory. A missing directory is an empty result, not an
// error: no runs have been recorded yet.
func (r *ManifestReader) scan() ([]string, error) {
	var sinks []string
	err := filepath.WalkDir(r.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, manifestSuffix) {
			sinks = append(sinks, strings.TrimSuffix(path, manifestSuffix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", r.dir, err)
	}
	return sinks, nil
}

func buildInspect(sink string, m *results.Manifest) *InspectRunResponse {
	return &InspectRunResponse{
		RunID:       m.RunID,
		Procedure:   m.Procedure,
		Status:      m.Status,
		Parameters:  m.Parameters,
		Metadata:    m.Metadata,
		StartedAt:   m.StartedAt,
		CompletedAt: m.CompletedAt,
		Sink:        sink,
		Rows:        countRows(sink),
	}
}

// countRows counts data lines in a sink file: comment lines, the label
// line, and blank lines are excluded. Unreadable sinks count as zero
// rows rather than failing inspection.
func countRows(sink string) int {
	f, err := os.Open(sink)
	if err != nil {
		return 0
	}
	defer f.Close()

	rows := 0
	labelSeen := false
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || strings.TrimSpace(line) == "" {
			continue
		}
		if !labelSeen {
			labelSeen = true
			continue
		}
		rows++
	}
	return rows
}

// looksLikePath reports whether ref resolves to an existing manifest
// sidecar when treated as a sink path.
func looksLikePath(sink string) bool {
	_, err := os.Stat(sink + manifestSuffix)
	return err == nil
}

// Verify ManifestReader implements Reader.
var _ Reader = (*ManifestReader)(nil)
