// Package reader provides the read-side data access layer for the
// pulseline CLI.
//
// This package isolates all read operations from worker internals. Data
// comes from persisted run artifacts (result files and manifest
// sidecars), never from a live worker.
package reader

import "time"

// InspectRunResponse is the full detail view of one persisted run.
type InspectRunResponse struct {
	RunID       string         `json:"run_id"`
	Procedure   string         `json:"procedure"`
	Status      string         `json:"status"`
	Parameters  map[string]any `json:"parameters"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	CompletedAt time.Time      `json:"completed_at"`
	Sink        string         `json:"sink"`
	Rows        int            `json:"rows"`
}

// RunStats aggregates terminal statuses across persisted runs.
type RunStats struct {
	Total    int `json:"total"`
	Finished int `json:"finished"`
	Failed   int `json:"failed"`
	Aborted  int `json:"aborted"`
	Lost     int `json:"lost"`
	Other    int `json:"other"`
}

// ListRunItem is the thin list view of one persisted run.
type ListRunItem struct {
	RunID     string    `json:"run_id"`
	Procedure string    `json:"procedure"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ListProcedureItem is the thin list view of an available procedure.
type ListProcedureItem struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Parameters  []string `json:"parameters"`
}

// ListRunsOptions filters the run listing.
type ListRunsOptions struct {
	Procedure string
	Status    string
	Limit     int
}
