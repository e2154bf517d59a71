package types

import (
	"errors"
	"time"
)

// RunMeta carries run identity shared by loggers, manifests, and sinks.
type RunMeta struct {
	// RunID is the canonical run identifier (UUID).
	RunID string
	// Procedure is the declared procedure name.
	Procedure string
	// Attempt is the attempt number, starts at 1.
	Attempt int
	// StartedAt is the wall-clock run start time (UTC).
	StartedAt time.Time
}

// Validate checks run metadata invariants before a worker accepts it.
func (m *RunMeta) Validate() error {
	if m == nil {
		return errors.New("run metadata is nil")
	}
	if m.RunID == "" {
		return errors.New("run_id is required")
	}
	if m.Procedure == "" {
		return errors.New("procedure name is required")
	}
	if m.Attempt < 1 {
		return errors.New("attempt must be >= 1")
	}
	return nil
}
