package reader

// Reader abstracts read-only access to persisted runs for CLI commands.
// Implementations scan manifest sidecars, use stubs, or aggregate from
// multiple survey directories.
//
// All methods are read-only and must not mutate stored runs.
type Reader interface {
	// InspectRun returns the full detail view for one run, identified
	// by run ID or by sink path.
	InspectRun(ref string) (*InspectRunResponse, error)

	// ListRuns returns thin slices of persisted runs, newest first.
	ListRuns(opts ListRunsOptions) ([]ListRunItem, error)

	// StatsRuns aggregates terminal statuses across persisted runs.
	StatsRuns() (*RunStats, error)
}
