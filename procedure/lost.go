package procedure

import (
	"context"
	"errors"
	"fmt"

	"github.com/pulseline-io/pulseline/types"
)

// ErrProcedureLost indicates an attempt to run a procedure whose
// backing implementation failed to load.
var ErrProcedureLost = errors.New("procedure implementation lost")

// LostInfo carries the load diagnostic for a lost procedure.
type LostInfo struct {
	// Reason is the human-readable load failure description.
	Reason string
	// Err is the underlying load error.
	Err error
}

// NewLost builds the degenerate LOST variant: a procedure whose
// implementation module failed to load. Any attempt to start it fails
// immediately with ErrProcedureLost, but the parameter values recovered
// from a persisted run are preserved so diagnostics remain possible.
func NewLost(name string, loadErr error, recovered map[string]any) *Procedure {
	b := NewSpec(name).
		Describe("implementation failed to load").
		Hooks(func() Hooks { return lostHooks{name: name, err: loadErr} })
	for paramName := range recovered {
		b.Param(paramName, "")
	}
	spec := b.MustBuild()

	p := New(spec)
	// Recovered values bypass exceptMissing: every name was declared above.
	_ = p.SetParameters(recovered, false)
	p.forceStatus(types.StatusLost)
	p.mu.Lock()
	p.lost = &LostInfo{
		Reason: fmt.Sprintf("procedure %q: %v", name, loadErr),
		Err:    loadErr,
	}
	p.mu.Unlock()
	return p
}

// Lost returns the load diagnostic, nil for a healthy procedure.
func (p *Procedure) Lost() *LostInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lost
}

// IsLost reports whether this is the degenerate LOST variant.
func (p *Procedure) IsLost() bool {
	return p.Lost() != nil
}

// lostHooks fails every lifecycle entry point immediately.
type lostHooks struct {
	name string
	err  error
}

func (h lostHooks) Startup(context.Context, *Procedure, RunContext) error {
	return fmt.Errorf("%w: %s: %v", ErrProcedureLost, h.name, h.err)
}

func (h lostHooks) Execute(context.Context, *Procedure, RunContext) error {
	return fmt.Errorf("%w: %s: %v", ErrProcedureLost, h.name, h.err)
}

func (h lostHooks) Shutdown(context.Context, *Procedure, RunContext) error {
	return nil
}
