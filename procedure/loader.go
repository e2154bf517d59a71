package procedure

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"gopkg.in/yaml.v3"

	"github.com/pulseline-io/pulseline/types"
)

// EnvProcedureOverride names an already-registered spec that substitutes
// for the requested one. Set it to redirect a run at a pre-registered
// implementation without touching the script directory.
const EnvProcedureOverride = "PULSELINE_PROCEDURE"

// specFuncName is the declaration entry point a procedure script must define.
const specFuncName = "ProcedureSpec"

// executeFuncName is the optional execute entry point of a script.
const executeFuncName = "Execute"

// LoadError is the typed load failure returned by Registry.Load.
// Callers convert it into the LOST variant via AsLost rather than
// propagating it; the loader itself never panics.
type LoadError struct {
	// Name is the requested procedure name.
	Name string
	// Path is the script path involved, empty for registry lookups.
	Path string
	// Err is the underlying failure.
	Err error
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("load procedure %q from %s: %v", e.Name, e.Path, e.Err)
	}
	return fmt.Sprintf("load procedure %q: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As traversal.
func (e *LoadError) Unwrap() error { return e.Err }

// AsLost converts the load failure into a runnable LOST procedure,
// preserving recovered parameter values for diagnostics.
func (e *LoadError) AsLost(recovered map[string]any) *Procedure {
	return NewLost(e.Name, e.Err, recovered)
}

// Registry holds procedure specs available to the loader. Specs are
// registered explicitly at startup; there is no package-level registry.
type Registry struct {
	mu        sync.Mutex
	specs     map[string]*Spec
	scriptDir string
}

// NewRegistry creates an empty registry. scriptDir is the optional
// filesystem directory searched for interpreted procedure scripts;
// empty disables script loading.
func NewRegistry(scriptDir string) *Registry {
	return &Registry{
		specs:     make(map[string]*Spec),
		scriptDir: scriptDir,
	}
}

// Register adds a spec. Duplicate names fail fast.
func (r *Registry) Register(spec *Spec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.specs[spec.Name()]; exists {
		return fmt.Errorf("procedure %q already registered", spec.Name())
	}
	r.specs[spec.Name()] = spec
	return nil
}

// MustRegister is Register that panics on duplicates. Intended for
// startup wiring where a duplicate is a programming error.
func (r *Registry) MustRegister(spec *Spec) {
	if err := r.Register(spec); err != nil {
		panic(err)
	}
}

// Names returns registered spec names in sorted order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.specs))
	for n := range r.specs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns a registered spec without consulting scripts or the
// environment override.
func (r *Registry) Get(name string) (*Spec, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.specs[name]
	return s, ok
}

// Load resolves a procedure spec by name. Resolution order:
//
//  1. The PULSELINE_PROCEDURE environment override, when set, redirects
//     the lookup at a registered spec of that name.
//  2. The registry of explicitly registered specs.
//  3. <scriptDir>/<name>.go interpreted via yaegi.
//
// On failure a *LoadError is returned; callers degrade it to the LOST
// variant instead of raising.
func (r *Registry) Load(name string) (*Spec, *LoadError) {
	lookup := name
	if override := os.Getenv(EnvProcedureOverride); override != "" {
		lookup = override
	}

	if spec, ok := r.Get(lookup); ok {
		return spec, nil
	}

	r.mu.Lock()
	dir := r.scriptDir
	r.mu.Unlock()

	if dir == "" {
		return nil, &LoadError{Name: name, Err: fmt.Errorf("procedure %q not registered and no script directory configured", lookup)}
	}

	path := filepath.Join(dir, lookup+".go")
	spec, err := loadScript(path)
	if err != nil {
		return nil, &LoadError{Name: name, Path: path, Err: err}
	}
	return spec, nil
}

// scriptManifest is the declarative shape a script's ProcedureSpec
// function returns, converted through a YAML round trip.
type scriptManifest struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Columns     []string `yaml:"columns"`
	Flow        []struct {
		Stage       string `yaml:"stage"`
		Description string `yaml:"description"`
	} `yaml:"flow"`
	Params []struct {
		Name    string `yaml:"name"`
		Unit    string `yaml:"unit"`
		Default any    `yaml:"default"`
	} `yaml:"params"`
}

// scriptExecuteFunc is the exact signature a script's Execute function
// must have. Parameters and emitted records use plain builtin types so
// the interpreted value type-asserts directly.
type scriptExecuteFunc = func(params map[string]any, emit func(topic string, record map[string]any) error, shouldStop func() bool) error

// loadScript interprets a procedure script and assembles its spec.
//
// The script must define ProcedureSpec() (map[string]any, error)
// describing name, columns, flow, and params, and may define
// Execute(params, emit, shouldStop) error as its execute hook. Startup
// and shutdown stay no-ops for interpreted procedures.
func loadScript(path string) (*Spec, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("script not found: %w", err)
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("interpreter setup: %w", err)
	}
	if _, err := i.EvalPath(path); err != nil {
		return nil, fmt.Errorf("interpret: %w", err)
	}

	specValue, err := i.Eval(specFuncName)
	if err != nil {
		return nil, fmt.Errorf("script must define %s() (map[string]any, error): %w", specFuncName, err)
	}
	specFn, ok := specValue.Interface().(func() (map[string]any, error))
	if !ok {
		return nil, fmt.Errorf("%s has wrong signature: %T", specFuncName, specValue.Interface())
	}
	raw, err := specFn()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", specFuncName, err)
	}

	// YAML round trip turns the loosely typed declaration into the manifest.
	payload, err := yaml.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode declaration: %w", err)
	}
	var manifest scriptManifest
	if err := yaml.Unmarshal(payload, &manifest); err != nil {
		return nil, fmt.Errorf("decode declaration: %w", err)
	}
	if manifest.Name == "" {
		return nil, fmt.Errorf("declaration is missing a name")
	}

	var execute scriptExecuteFunc
	if execValue, evalErr := i.Eval(executeFuncName); evalErr == nil {
		execute, ok = execValue.Interface().(scriptExecuteFunc)
		if !ok {
			return nil, fmt.Errorf("%s has wrong signature: %T", executeFuncName, execValue.Interface())
		}
	}

	b := NewSpec(manifest.Name).
		Describe(manifest.Description).
		Columns(manifest.Columns...)
	for _, f := range manifest.Flow {
		b.FlowNode(f.Stage, f.Description)
	}
	for _, p := range manifest.Params {
		b.ParamDefault(p.Name, p.Unit, p.Default)
	}
	if execute != nil {
		b.Hooks(func() Hooks { return &scriptHooks{execute: execute} })
	}
	return b.Build()
}

// scriptHooks adapts an interpreted Execute function to the Hooks contract.
type scriptHooks struct {
	BaseHooks
	execute scriptExecuteFunc
}

func (h *scriptHooks) Execute(_ context.Context, p *Procedure, rc RunContext) error {
	emit := func(topic string, record map[string]any) error {
		if types.Topic(topic) == types.TopicResults {
			return rc.Emit(types.TopicResults, types.Record(record))
		}
		return rc.Emit(types.Topic(topic), record)
	}
	return h.execute(p.ParameterValues(), emit, rc.ShouldStop)
}
