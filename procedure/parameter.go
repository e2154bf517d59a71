package procedure

import "fmt"

// Parameter is a named, typed input slot on a procedure. A parameter is
// "set" iff its value is non-nil; a procedure cannot begin execution
// while any declared parameter is unset.
//
// Parameters are declared once on a Spec and deep-copied into each
// Procedure instance at construction, so instances never share state.
type Parameter struct {
	// Name is the declared parameter name.
	Name string
	// Unit is the unit symbol for the value, empty for dimensionless.
	Unit string
	// Default is the optional default value applied at instantiation.
	Default any

	value any
}

// IsSet returns true if the parameter currently holds a value.
func (p *Parameter) IsSet() bool {
	return p.value != nil
}

// Set assigns the parameter value. Setting nil clears it.
func (p *Parameter) Set(v any) {
	p.value = v
}

// Value returns the current value, nil if unset.
func (p *Parameter) Value() any {
	return p.value
}

// String renders the parameter for headers and diagnostics.
func (p *Parameter) String() string {
	v := "<unset>"
	if p.IsSet() {
		v = fmt.Sprintf("%v", p.value)
	}
	if p.Unit != "" {
		return fmt.Sprintf("%s=%s %s", p.Name, v, p.Unit)
	}
	return fmt.Sprintf("%s=%s", p.Name, v)
}

// clone returns an independent copy with the same declaration and value.
func (p *Parameter) clone() *Parameter {
	c := *p
	return &c
}

// Evaluator computes a metadata value from current procedure state.
// Evaluators must be pure with respect to the procedure: two consecutive
// evaluations without a parameter change yield the same value.
type Evaluator func(p *Procedure) (any, error)

// Metadata is a named derived value computed from procedure state rather
// than supplied by the caller. It must be evaluated before use; the
// worker evaluates all metadata once after startup and before execute.
type Metadata struct {
	// Name is the declared metadata name.
	Name string
	// Unit is the unit symbol for the value, empty for dimensionless.
	Unit string

	eval      Evaluator
	value     any
	evaluated bool
}

// Evaluated returns true once the metadata has been computed.
func (m *Metadata) Evaluated() bool {
	return m.evaluated
}

// Value returns the computed value. Zero until evaluated.
func (m *Metadata) Value() any {
	return m.value
}

// clone returns an independent copy sharing the evaluator function.
func (m *Metadata) clone() *Metadata {
	c := *m
	return &c
}
