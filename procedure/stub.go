package procedure

import (
	"context"
	"sync"

	"github.com/pulseline-io/pulseline/types"
)

// StubHooks is a scriptable hooks implementation for testing. Each
// lifecycle func may be nil, in which case the hook is a no-op. Call
// counts are tracked for assertions.
type StubHooks struct {
	mu sync.Mutex

	// OnStartup, OnExecute, OnShutdown override the lifecycle hooks.
	OnStartup  func(ctx context.Context, p *Procedure, rc RunContext) error
	OnExecute  func(ctx context.Context, p *Procedure, rc RunContext) error
	OnShutdown func(ctx context.Context, p *Procedure, rc RunContext) error

	// StartupCalls, ExecuteCalls, ShutdownCalls count hook invocations.
	StartupCalls  int
	ExecuteCalls  int
	ShutdownCalls int
}

// Startup implements Hooks.
func (h *StubHooks) Startup(ctx context.Context, p *Procedure, rc RunContext) error {
	h.mu.Lock()
	h.StartupCalls++
	fn := h.OnStartup
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, p, rc)
	}
	return nil
}

// Execute implements Hooks.
func (h *StubHooks) Execute(ctx context.Context, p *Procedure, rc RunContext) error {
	h.mu.Lock()
	h.ExecuteCalls++
	fn := h.OnExecute
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, p, rc)
	}
	return nil
}

// Shutdown implements Hooks.
func (h *StubHooks) Shutdown(ctx context.Context, p *Procedure, rc RunContext) error {
	h.mu.Lock()
	h.ShutdownCalls++
	fn := h.OnShutdown
	h.mu.Unlock()
	if fn != nil {
		return fn(ctx, p, rc)
	}
	return nil
}

// Calls returns a consistent snapshot of the three call counters.
func (h *StubHooks) Calls() (startup, execute, shutdown int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.StartupCalls, h.ExecuteCalls, h.ShutdownCalls
}

// Verify StubHooks implements Hooks.
var _ Hooks = (*StubHooks)(nil)

// StubRunContext records emitted events for testing procedures outside
// a worker.
type StubRunContext struct {
	mu sync.Mutex

	// Stop is returned by ShouldStop.
	Stop bool
	// EmitErr, if non-nil, is returned by Emit.
	EmitErr error

	// Emitted stores all emitted events in order.
	Emitted []types.Event
}

// Emit implements RunContext by recording the event.
func (rc *StubRunContext) Emit(topic types.Topic, payload any) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.EmitErr != nil {
		return rc.EmitErr
	}
	rc.Emitted = append(rc.Emitted, types.Event{Topic: topic, Payload: payload})
	return nil
}

// ShouldStop implements RunContext.
func (rc *StubRunContext) ShouldStop() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.Stop
}

// Events returns a copy of the recorded events.
func (rc *StubRunContext) Events() []types.Event {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]types.Event, len(rc.Emitted))
	copy(out, rc.Emitted)
	return out
}

// Verify StubRunContext implements RunContext.
var _ RunContext = (*StubRunContext)(nil)
