// Package types defines the run state machine, event topics, and record
// shapes shared by the procedure, worker, and results packages. It is a
// leaf package with no internal dependencies.
package types

// Topic classifies an emitted event and determines its routing.
type Topic string

// Topic constants. TopicResults is routed to the recorder queue; all
// other topics are routed to the monitor stream.
const (
	// TopicResults carries a result record destined for the sink.
	TopicResults Topic = "results"
	// TopicStatus carries a Status value.
	TopicStatus Topic = "status"
	// TopicProgress carries a numeric completion percentage (0-100).
	TopicProgress Topic = "progress"
	// TopicResponses carries a human-readable message with severity.
	TopicResponses Topic = "responses"
)

// IsMonitor returns true if events with this topic belong on the monitor
// stream rather than the recorder queue.
func (t Topic) IsMonitor() bool {
	return t == TopicStatus || t == TopicProgress || t == TopicResponses
}

// Level represents log severity for response messages.
type Level string

// Severity constants for TopicResponses payloads.
const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is one element of the monitor stream.
//
// Payload shape by topic:
//   - TopicStatus:   Status
//   - TopicProgress: float64 in [0, 100]
//   - TopicResponses: Response
//
// The monitor stream is terminated by closing the channel; consumers
// range over it and stop when it closes.
type Event struct {
	Topic   Topic
	Payload any
}

// Response is the payload for TopicResponses events.
type Response struct {
	Message string
	Level   Level
}

// Record is one result row emitted by a procedure. Keys are declared
// column names; values are either scalars or ordered sequences ([]any,
// []float64, []string). Keys containing "STEP" and the key
// "COMPLETED TIME" are always scalar.
type Record map[string]any
