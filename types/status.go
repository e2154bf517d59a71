package types

// Status represents the lifecycle state of a procedure run.
type Status string

// Status constants. A procedure is constructed QUEUED and driven through
// the state machine by its worker; the procedure never transitions itself.
const (
	// StatusQueued is the initial state: constructed, not yet started.
	StatusQueued Status = "queued"
	// StatusRunning indicates the worker is driving the lifecycle hooks.
	StatusRunning Status = "running"
	// StatusFinished indicates normal completion.
	StatusFinished Status = "finished"
	// StatusFailed indicates a hook raised a fault.
	StatusFailed Status = "failed"
	// StatusAborted indicates a cooperative stop was honored.
	StatusAborted Status = "aborted"
	// StatusLost marks a procedure whose backing implementation failed to
	// load. Reachable only at construction, never from another state.
	StatusLost Status = "lost"
)

// IsTerminal returns true if no further transition is permitted.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusFinished, StatusFailed, StatusAborted, StatusLost:
		return true
	}
	return false
}

// CanTransition reports whether the transition s -> to is legal.
//
// Legal transitions:
//
//	queued  -> running
//	running -> finished | failed | aborted
//
// Terminal states absorb. StatusLost is assigned at construction only.
func (s Status) CanTransition(to Status) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case StatusQueued:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusFinished || to == StatusFailed || to == StatusAborted
	}
	return false
}

// Valid returns true for known status values. Used when reloading
// persisted manifests, where the on-disk value is untrusted.
func (s Status) Valid() bool {
	switch s {
	case StatusQueued, StatusRunning, StatusFinished, StatusFailed, StatusAborted, StatusLost:
		return true
	}
	return false
}
