package procedure

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pulseline-io/pulseline/types"
)

// Sentinel errors for procedure configuration and capability faults.
// Use errors.Is for typed assertions.
var (
	// ErrMissingParameter indicates a declared parameter holds no value.
	ErrMissingParameter = errors.New("missing parameter")

	// ErrUnknownParameter indicates a value for a name the spec does not declare.
	ErrUnknownParameter = errors.New("unknown parameter")

	// ErrNotBound indicates an emit/stop capability used outside a worker run.
	ErrNotBound = errors.New("run capabilities not bound")

	// ErrNotImplemented indicates an optional operation the hooks do not provide.
	ErrNotImplemented = errors.New("not implemented")

	// ErrInvalidTransition indicates an illegal status transition.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Procedure is one unit of processing work: a Spec instantiated with
// its own parameter and metadata copies, a worker-driven status, and
// lifecycle hooks.
//
// The status is externally driven: only the executing worker calls
// SetStatus, and transitions follow types.Status.CanTransition. All
// mutating operations are guarded; the hook methods themselves execute
// on exactly one worker goroutine per run.
type Procedure struct {
	spec  *Spec
	hooks Hooks

	mu         sync.Mutex
	status     types.Status
	params     map[string]*Parameter
	paramOrder []string
	metas      map[string]*Metadata
	metaOrder  []string
	rt         RunContext
	lost       *LostInfo
}

// New instantiates a procedure from its spec. Parameters and metadata
// declarations are deep-copied; declared defaults are applied so those
// parameters start set. Status starts QUEUED.
func New(spec *Spec) *Procedure {
	p := &Procedure{
		spec:   spec,
		hooks:  spec.hooks(),
		status: types.StatusQueued,
		params: make(map[string]*Parameter, len(spec.params)),
		metas:  make(map[string]*Metadata, len(spec.metas)),
	}
	for i := range spec.params {
		decl := spec.params[i].clone()
		if decl.Default != nil {
			decl.value = decl.Default
		}
		p.params[decl.Name] = decl
		p.paramOrder = append(p.paramOrder, decl.Name)
	}
	for i := range spec.metas {
		decl := spec.metas[i].clone()
		p.metas[decl.Name] = decl
		p.metaOrder = append(p.metaOrder, decl.Name)
	}
	return p
}

// Spec returns the backing descriptor table.
func (p *Procedure) Spec() *Spec { return p.spec }

// Name returns the procedure name.
func (p *Procedure) Name() string { return p.spec.name }

// Hooks returns the instance lifecycle hooks. Used by the worker.
func (p *Procedure) Hooks() Hooks { return p.hooks }

// Status returns the current run status.
func (p *Procedure) Status() types.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetStatus applies a worker-driven status transition. Illegal
// transitions fail with ErrInvalidTransition; terminal states absorb.
func (p *Procedure) SetStatus(to types.Status) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.status.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.status, to)
	}
	p.status = to
	return nil
}

// forceStatus assigns a status without transition validation. Reserved
// for reload paths that reconstruct completed runs from disk.
func (p *Procedure) forceStatus(s types.Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// MarkReloaded marks the procedure as a completed run reconstructed
// from an existing sink.
func (p *Procedure) MarkReloaded() {
	p.forceStatus(types.StatusFinished)
}

// CheckParameters fails if any declared parameter holds no value.
// Must pass before a worker starts the lifecycle.
func (p *Procedure) CheckParameters() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var missing []string
	for _, name := range p.paramOrder {
		if !p.params[name].IsSet() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingParameter, strings.Join(missing, ", "))
	}
	return nil
}

// SetParameters assigns a batch of named values. With exceptMissing
// true, any name the spec does not declare fails with
// ErrUnknownParameter and no values are applied; with exceptMissing
// false, unknown names are silently ignored.
//
// Callers must not invoke SetParameters while a worker is running the
// procedure; the parameter map is owned by the worker for the duration
// of a run.
func (p *Procedure) SetParameters(values map[string]any, exceptMissing bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if exceptMissing {
		var unknown []string
		for name := range values {
			if _, ok := p.params[name]; !ok {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			sort.Strings(unknown)
			return fmt.Errorf("%w: %s", ErrUnknownParameter, strings.Join(unknown, ", "))
		}
	}

	for name, v := range values {
		if param, ok := p.params[name]; ok {
			param.Set(v)
		}
	}
	return nil
}

// ParameterValues returns a snapshot of current parameter values.
// Unset parameters appear with a nil value.
func (p *Procedure) ParameterValues() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]any, len(p.params))
	for name, param := range p.params {
		out[name] = param.Value()
	}
	return out
}

// ParameterObjects returns copies of the parameter objects, so callers
// can inspect declarations without racing the worker.
func (p *Procedure) ParameterObjects() map[string]*Parameter {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]*Parameter, len(p.params))
	for name, param := range p.params {
		out[name] = param.clone()
	}
	return out
}

// EvaluateMetadata computes every declared metadata value from current
// state. Re-evaluation without a parameter change is idempotent. The
// worker runs this after startup and before execute.
//
// Evaluators read procedure state through the locked accessors, so the
// lock is not held across evaluation calls.
func (p *Procedure) EvaluateMetadata() error {
	p.mu.Lock()
	metas := make([]*Metadata, 0, len(p.metaOrder))
	for _, name := range p.metaOrder {
		metas = append(metas, p.metas[name])
	}
	p.mu.Unlock()

	for _, m := range metas {
		if m.eval == nil {
			return fmt.Errorf("metadata %q has no evaluator", m.Name)
		}
		v, err := m.eval(p)
		if err != nil {
			return fmt.Errorf("evaluate metadata %q: %w", m.Name, err)
		}
		p.mu.Lock()
		m.value = v
		m.evaluated = true
		p.mu.Unlock()
	}
	return nil
}

// MetadataValues returns a snapshot of computed metadata values.
// Unevaluated metadata appears with a nil value.
func (p *Procedure) MetadataValues() map[string]any {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]any, len(p.metas))
	for name, m := range p.metas {
		out[name] = m.Value()
	}
	return out
}

// Metadata returns a copy of one metadata object.
func (p *Procedure) Metadata(name string) (*Metadata, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	m, ok := p.metas[name]
	if !ok {
		return nil, false
	}
	return m.clone(), true
}

// Estimates returns duration estimates for progress display. Fails
// with ErrNotImplemented when the hooks do not provide them.
func (p *Procedure) Estimates() ([]Estimate, error) {
	if est, ok := p.hooks.(Estimator); ok {
		return est.Estimates(p)
	}
	return nil, fmt.Errorf("%w: %s does not provide estimates", ErrNotImplemented, p.spec.name)
}

// BindRuntime injects the run capabilities. Called by the executing
// worker before the lifecycle starts and cleared when the run ends.
func (p *Procedure) BindRuntime(rc RunContext) {
	p.mu.Lock()
	p.rt = rc
	p.mu.Unlock()
}

// Emit publishes an event through the bound run context. Fails with
// ErrNotBound outside a worker run.
func (p *Procedure) Emit(topic types.Topic, payload any) error {
	p.mu.Lock()
	rt := p.rt
	p.mu.Unlock()

	if rt == nil {
		return fmt.Errorf("%w: emit %q", ErrNotBound, topic)
	}
	return rt.Emit(topic, payload)
}

// ShouldStop reports the cooperative stop flag. Fails with ErrNotBound
// outside a worker run.
func (p *Procedure) ShouldStop() (bool, error) {
	p.mu.Lock()
	rt := p.rt
	p.mu.Unlock()

	if rt == nil {
		return false, fmt.Errorf("%w: shouldStop", ErrNotBound)
	}
	return rt.ShouldStop(), nil
}

// String renders the procedure and its parameter values in declaration
// order. Used for the results header, so the rendering is deterministic.
func (p *Procedure) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	parts := make([]string, 0, len(p.paramOrder))
	for _, name := range p.paramOrder {
		parts = append(parts, p.params[name].String())
	}
	return fmt.Sprintf("%s(%s)", p.spec.name, strings.Join(parts, ", "))
}
