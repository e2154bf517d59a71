package reader

import (
	"fmt"
	"time"
)

// StubReader returns shape-correct canned data. Used in tests and as
// the default before a survey directory is wired in.
type StubReader struct{}

// NewStubReader creates a stub reader.
func NewStubReader() *StubReader { return &StubReader{} }

// InspectRun implements Reader with canned data.
func (s *StubReader) InspectRun(ref string) (*InspectRunResponse, error) {
	if ref == "" {
		return nil, fmt.Errorf("run reference required")
	}
	now := time.Now()
	return &InspectRunResponse{
		RunID:       ref,
		Procedure:   "stacking",
		Status:      "finished",
		Parameters:  map[string]any{"traces": 4000},
		StartedAt:   now.Add(-5 * time.Minute),
		CompletedAt: now.Add(-time.Minute),
		Sink:        "stacking.txt",
		Rows:        4000,
	}, nil
}

// ListRuns implements Reader with canned data.
func (s *StubReader) ListRuns(opts ListRunsOptions) ([]ListRunItem, error) {
	now := time.Now()
	runs := []ListRunItem{
		{RunID: "run-001", Procedure: "stacking", Status: "finished", StartedAt: now.Add(-1 * time.Hour)},
		{RunID: "run-002", Procedure: "dewow", Status: "finished", StartedAt: now.Add(-2 * time.Hour)},
		{RunID: "run-003", Procedure: "stacking", Status: "failed", StartedAt: now.Add(-30 * time.Minute)},
	}

	filtered := make([]ListRunItem, 0, len(runs))
	for _, r := range runs {
		if opts.Procedure != "" && r.Procedure != opts.Procedure {
			continue
		}
		if opts.Status != "" && r.Status != opts.Status {
			continue
		}
		filtered = append(filtered, r)
	}
	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered, nil
}

// StatsRuns implements Reader with canned data.
func (s *StubReader) StatsRuns() (*RunStats, error) {
	return &RunStats{Total: 3, Finished: 2, Failed: 1}, nil
}

// Verify StubReader implements Reader.
var _ Reader = (*StubReader)(nil)
