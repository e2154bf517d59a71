// Package procedure defines the unit-of-work model of the execution core:
// declarative procedure specs (parameters, metadata, result columns,
// processing flow), per-run Procedure instances with a worker-driven
// status state machine, lifecycle hooks with injected run capabilities,
// and a loader that degrades missing implementations to a LOST variant.
package procedure

import (
	"errors"
	"fmt"
)

// FlowNode is one named processing stage, reported in result headers
// for human-readable run provenance.
type FlowNode struct {
	// Stage is the stage name as emitted in STEP records.
	Stage string
	// Description is the human-readable stage description.
	Description string
}

// HooksFactory constructs the lifecycle hooks for a new instance.
// A fresh Hooks value per instance keeps concurrent runs independent.
type HooksFactory func() Hooks

// Spec is the immutable descriptor table for one procedure variant:
// declared parameters, metadata, result columns, and processing flow.
// Specs are built once at definition time via the Builder; there is no
// runtime member scanning.
type Spec struct {
	name        string
	description string
	params      []Parameter
	metas       []Metadata
	columns     []string
	flow        []FlowNode
	hooks       HooksFactory
}

// Name returns the procedure name.
func (s *Spec) Name() string { return s.name }

// Description returns the human-readable description.
func (s *Spec) Description() string { return s.description }

// Columns returns the ordered DATA_COLUMNS declaration.
func (s *Spec) Columns() []string {
	out := make([]string, len(s.columns))
	copy(out, s.columns)
	return out
}

// FlowNodes returns the ordered processing stages.
func (s *Spec) FlowNodes() []FlowNode {
	out := make([]FlowNode, len(s.flow))
	copy(out, s.flow)
	return out
}

// ParameterNames returns declared parameter names in declaration order.
func (s *Spec) ParameterNames() []string {
	out := make([]string, len(s.params))
	for i, p := range s.params {
		out[i] = p.Name
	}
	return out
}

// ParameterDecls returns copies of the declared parameters.
func (s *Spec) ParameterDecls() []Parameter {
	out := make([]Parameter, len(s.params))
	copy(out, s.params)
	return out
}

// Builder assembles a Spec. Obtain one via NewSpec, chain declaration
// calls, then Build.
type Builder struct {
	spec Spec
	errs []error
}

// NewSpec starts building a procedure spec with the given name.
func NewSpec(name string) *Builder {
	b := &Builder{spec: Spec{name: name}}
	if name == "" {
		b.errs = append(b.errs, errors.New("procedure name is required"))
	}
	return b
}

// Describe sets the human-readable description.
func (b *Builder) Describe(description string) *Builder {
	b.spec.description = description
	return b
}

// Param declares a required parameter with no default.
func (b *Builder) Param(name, unit string) *Builder {
	return b.ParamDefault(name, unit, nil)
}

// ParamDefault declares a parameter with a default value. Instances
// start with the default applied, so the parameter counts as set.
func (b *Builder) ParamDefault(name, unit string, def any) *Builder {
	if name == "" {
		b.errs = append(b.errs, errors.New("parameter name is required"))
		return b
	}
	for _, p := range b.spec.params {
		if p.Name == name {
			b.errs = append(b.errs, fmt.Errorf("duplicate parameter %q", name))
			return b
		}
	}
	b.spec.params = append(b.spec.params, Parameter{Name: name, Unit: unit, Default: def})
	return b
}

// Meta declares a metadata slot computed by eval.
func (b *Builder) Meta(name, unit string, eval Evaluator) *Builder {
	if name == "" {
		b.errs = append(b.errs, errors.New("metadata name is required"))
		return b
	}
	for _, m := range b.spec.metas {
		if m.Name == name {
			b.errs = append(b.errs, fmt.Errorf("duplicate metadata %q", name))
			return b
		}
	}
	b.spec.metas = append(b.spec.metas, Metadata{Name: name, Unit: unit, eval: eval})
	return b
}

// Columns declares the ordered result columns. Each entry may carry a
// "(unit)" suffix validated when a results formatter is constructed.
func (b *Builder) Columns(cols ...string) *Builder {
	b.spec.columns = append(b.spec.columns, cols...)
	return b
}

// FlowNode declares one named processing stage.
func (b *Builder) FlowNode(stage, description string) *Builder {
	b.spec.flow = append(b.spec.flow, FlowNode{Stage: stage, Description: description})
	return b
}

// Hooks sets the lifecycle hooks factory.
func (b *Builder) Hooks(factory HooksFactory) *Builder {
	b.spec.hooks = factory
	return b
}

// Build finalizes the spec. Declaration errors accumulated during
// building are returned joined; a spec is never partially valid.
func (b *Builder) Build() (*Spec, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("spec %q: %w", b.spec.name, errors.Join(b.errs...))
	}
	spec := b.spec
	if spec.hooks == nil {
		spec.hooks = func() Hooks { return BaseHooks{} }
	}
	return &spec, nil
}

// MustBuild is Build that panics on declaration errors. Intended for
// package-level spec definitions where a bad declaration is a
// programming error.
func (b *Builder) MustBuild() *Spec {
	s, err := b.Build()
	if err != nil {
		panic(err)
	}
	return s
}
