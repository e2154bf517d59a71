// Package builtin registers the compiled-in processing procedures.
// These run against synthesized trace data derived from their
// parameters, which makes them usable for pipeline self-tests and as
// reference implementations for script authors.
package builtin

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/pulseline-io/pulseline/procedure"
	"github.com/pulseline-io/pulseline/types"
)

// Register adds every builtin procedure spec to the registry.
func Register(reg *procedure.Registry) error {
	for _, spec := range []*procedure.Spec{
		stackingSpec(),
		dewowSpec(),
	} {
		if err := reg.Register(spec); err != nil {
			return err
		}
	}
	return nil
}

// stackingSpec averages blocks of traces to raise signal-to-noise.
// One result row per stacked block.
func stackingSpec() *procedure.Spec {
	return procedure.NewSpec("stacking").
		Describe("Average consecutive trace blocks to improve signal-to-noise").
		ParamDefault("traces", "traces", 4096).
		ParamDefault("window", "traces", 64).
		ParamDefault("seed", "counts", 1).
		Meta("blocks", "counts", func(p *procedure.Procedure) (any, error) {
			v := p.ParameterValues()
			return toInt(v["traces"]) / toInt(v["window"]), nil
		}).
		Columns("STEP", "Power (W)", "Two-way time (ns)", "COMPLETED TIME").
		FlowNode("acquire", "pull raw traces from the survey buffer").
		FlowNode("stack", "average each block of window traces").
		Hooks(func() procedure.Hooks { return &stackingHooks{} }).
		MustBuild()
}

type stackingHooks struct {
	procedure.BaseHooks
	rng *rand.Rand
}

func (h *stackingHooks) Startup(_ context.Context, p *procedure.Procedure, _ procedure.RunContext) error {
	seed := int64(toInt(p.ParameterValues()["seed"]))
	h.rng = rand.New(rand.NewSource(seed))
	return nil
}

func (h *stackingHooks) Execute(_ context.Context, p *procedure.Procedure, rc procedure.RunContext) error {
	v := p.ParameterValues()
	traces := toInt(v["traces"])
	window := toInt(v["window"])
	if window <= 0 || traces <= 0 {
		window, traces = 64, 4096
	}
	blocks := traces / window
	if blocks < 1 {
		blocks = 1
	}

	for step := 1; step <= blocks; step++ {
		if rc.ShouldStop() {
			return nil
		}

		// Stack one block: mean of window synthetic trace peaks.
		var sum float64
		for i := 0; i < window; i++ {
			sum += syntheticPeak(h.rng, step)
		}
		power := sum / float64(window)
		twoWay := 12.0 + 0.25*float64(step)

		if err := rc.Emit(types.TopicResults, types.Record{
			"STEP":              step,
			"Power (W)":         power,
			"Two-way time (ns)": twoWay,
			"COMPLETED TIME":    time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
		if err := rc.Emit(types.TopicProgress, 100*float64(step)/float64(blocks)); err != nil {
			return err
		}
	}
	return nil
}

// syntheticPeak models a reflected pulse peak with additive noise. The
// deterministic part decays with depth so stacked output is testable.
func syntheticPeak(rng *rand.Rand, step int) float64 {
	signal := math.Exp(-float64(step) / 50)
	noise := 0.1 * rng.NormFloat64()
	return signal + noise
}

// dewowSpec removes the low-frequency wow component with a running
// mean. One result row per sample of the corrected trace.
func dewowSpec() *procedure.Spec {
	return procedure.NewSpec("dewow").
		Describe("Subtract a running-mean baseline from each trace").
		ParamDefault("samples", "samples", 512).
		ParamDefault("window", "samples", 32).
		Columns("STEP", "Amplitude (mV)").
		FlowNode("baseline", "estimate the running-mean baseline").
		FlowNode("subtract", "remove the baseline from every sample").
		Hooks(func() procedure.Hooks { return &dewowHooks{} }).
		MustBuild()
}

type dewowHooks struct {
	procedure.BaseHooks
}

func (h *dewowHooks) Execute(_ context.Context, p *procedure.Procedure, rc procedure.RunContext) error {
	v := p.ParameterValues()
	samples := toInt(v["samples"])
	window := toInt(v["window"])
	if samples <= 0 || window <= 0 {
		samples, window = 512, 32
	}

	// Synthetic trace: a carrier plus a slow drift (the wow).
	trace := make([]float64, samples)
	for i := range trace {
		carrier := 40 * math.Sin(2*math.Pi*float64(i)/16)
		drift := 15 * math.Sin(2*math.Pi*float64(i)/float64(samples))
		trace[i] = carrier + drift
	}

	for i := range trace {
		if rc.ShouldStop() {
			return nil
		}

		lo, hi := i-window/2, i+window/2
		if lo < 0 {
			lo = 0
		}
		if hi > samples {
			hi = samples
		}
		var mean float64
		for _, s := range trace[lo:hi] {
			mean += s
		}
		mean /= float64(hi - lo)

		if err := rc.Emit(types.TopicResults, types.Record{
			"STEP":           i,
			"Amplitude (mV)": trace[i] - mean,
		}); err != nil {
			return err
		}
		if i%64 == 0 {
			if err := rc.Emit(types.TopicProgress, 100*float64(i)/float64(samples)); err != nil {
				return err
			}
		}
	}
	return nil
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
