// Package metrics provides run metrics collection for the execution core.
//
// The Collector accumulates counters across procedure runs. It is a leaf
// package with no internal dependencies. All increment methods are
// nil-receiver safe so callers never need to guard a missing collector.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of collector counters.
// Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted  int64
	RunsFinished int64
	RunsFailed   int64
	RunsAborted  int64
	RunsLost     int64

	// Event routing
	EventsEmitted   int64
	MonitorEvents   int64
	RecorderRecords int64

	// Persistence
	RowsWritten     int64
	SinkWriteErrors int64
	ReloadedRows    int64
}

// Collector accumulates metrics across runs. Thread-safe via sync.Mutex.
type Collector struct {
	mu sync.Mutex

	runsStarted  int64
	runsFinished int64
	runsFailed   int64
	runsAborted  int64
	runsLost     int64

	eventsEmitted   int64
	monitorEvents   int64
	recorderRecords int64

	rowsWritten     int64
	sinkWriteErrors int64
	reloadedRows    int64
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Nil guards live in the exported methods. Taking a field address on a
// nil receiver faults before any shared helper could check it.

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.add(&c.runsStarted, 1)
}

// IncRunFinished records a normal completion.
func (c *Collector) IncRunFinished() {
	if c == nil {
		return
	}
	c.add(&c.runsFinished, 1)
}

// IncRunFailed records a run that ended with a hook fault.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.add(&c.runsFailed, 1)
}

// IncRunAborted records a cooperatively stopped run.
func (c *Collector) IncRunAborted() {
	if c == nil {
		return
	}
	c.add(&c.runsAborted, 1)
}

// IncRunLost records an attempt to start a lost procedure.
func (c *Collector) IncRunLost() {
	if c == nil {
		return
	}
	c.add(&c.runsLost, 1)
}

// IncEventsEmitted records one emitted event, any topic.
func (c *Collector) IncEventsEmitted() {
	if c == nil {
		return
	}
	c.add(&c.eventsEmitted, 1)
}

// IncMonitorEvents records one event routed to the monitor stream.
func (c *Collector) IncMonitorEvents() {
	if c == nil {
		return
	}
	c.add(&c.monitorEvents, 1)
}

// IncRecorderRecords records one record routed to the recorder queue.
func (c *Collector) IncRecorderRecords() {
	if c == nil {
		return
	}
	c.add(&c.recorderRecords, 1)
}

// IncRowsWritten records n result rows appended to the sink.
func (c *Collector) IncRowsWritten(n int64) {
	if c == nil {
		return
	}
	c.add(&c.rowsWritten, n)
}

// IncSinkWriteErrors records a non-fatal sink write fault.
func (c *Collector) IncSinkWriteErrors() {
	if c == nil {
		return
	}
	c.add(&c.sinkWriteErrors, 1)
}

// IncReloadedRows records n rows reconstructed from an existing sink.
func (c *Collector) IncReloadedRows(n int64) {
	if c == nil {
		return
	}
	c.add(&c.reloadedRows, n)
}

func (c *Collector) add(field *int64, n int64) {
	c.mu.Lock()
	*field += n
	c.mu.Unlock()
}

// Snapshot returns an immutable view of current counters.
// Nil-receiver safe: returns the zero Snapshot.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:     c.runsStarted,
		RunsFinished:    c.runsFinished,
		RunsFailed:      c.runsFailed,
		RunsAborted:     c.runsAborted,
		RunsLost:        c.runsLost,
		EventsEmitted:   c.eventsEmitted,
		MonitorEvents:   c.monitorEvents,
		RecorderRecords: c.recorderRecords,
		RowsWritten:     c.rowsWritten,
		SinkWriteErrors: c.sinkWriteErrors,
		ReloadedRows:    c.reloadedRows,
	}
}
