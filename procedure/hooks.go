package procedure

import (
	"context"

	"github.com/pulseline-io/pulseline/types"
)

// RunContext is the capability interface a worker injects into lifecycle
// hooks. Hooks receive it as an explicit argument rather than having
// capabilities patched onto the procedure after construction; a
// procedure run outside a worker cannot emit or be cancelled.
type RunContext interface {
	// Emit publishes an event. Topic types.TopicResults is routed to the
	// recorder queue; all other topics reach the monitor stream.
	Emit(topic types.Topic, payload any) error

	// ShouldStop reports whether a cooperative stop has been requested.
	// Long-running hooks poll this inside their loops; the worker never
	// forcibly interrupts hook code.
	ShouldStop() bool
}

// Hooks is the lifecycle contract for a procedure implementation.
//
// The worker drives: Startup, metadata evaluation, Execute, Shutdown.
// Shutdown runs exactly once per run regardless of whether Execute
// completed, was aborted, or faulted. Faults raised from any hook are
// contained by the worker and converted to a FAILED status; they never
// propagate to the caller's goroutine.
type Hooks interface {
	// Startup prepares external resources before execution.
	Startup(ctx context.Context, p *Procedure, rc RunContext) error

	// Execute performs the work, emitting result records and progress
	// through rc. Implementations poll rc.ShouldStop in long loops and
	// return promptly when it reports true.
	Execute(ctx context.Context, p *Procedure, rc RunContext) error

	// Shutdown releases resources. Runs on every terminal path.
	Shutdown(ctx context.Context, p *Procedure, rc RunContext) error
}

// Estimate is one (label, estimate) pair for progress display.
type Estimate struct {
	Label string
	Value string
}

// Estimator is an optional extension of Hooks. Implementations provide
// duration estimates for progress display; procedures whose hooks do not
// implement it fail Estimates with ErrNotImplemented.
type Estimator interface {
	Estimates(p *Procedure) ([]Estimate, error)
}

// BaseHooks provides no-op lifecycle hooks. Embed it to implement only
// the hooks a procedure needs.
type BaseHooks struct{}

// Startup is a no-op.
func (BaseHooks) Startup(context.Context, *Procedure, RunContext) error { return nil }

// Execute is a no-op.
func (BaseHooks) Execute(context.Context, *Procedure, RunContext) error { return nil }

// Shutdown is a no-op.
func (BaseHooks) Shutdown(context.Context, *Procedure, RunContext) error { return nil }
