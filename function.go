package iterz

import (
	"context"
	"fmt"
)

// MapFunc is the body of a transformation. It receives one record's
// positional arguments with the bound captured values appended after them,
// and produces the output record.
//
// Returning ErrStopIteration (or an error wrapping it) requests a
// controlled early end-of-sequence instead of reporting a failure.
type MapFunc func(ctx context.Context, args Record) (Record, error)

// PredicateFunc is the body of a filter transformation. It receives the
// same argument layout as MapFunc and reports whether the record passes.
type PredicateFunc func(ctx context.Context, args Record) (bool, error)

// OutputKind classifies one output position of a declared composition.
type OutputKind uint8

const (
	// OutputComputed marks an output produced by running the body.
	OutputComputed OutputKind = iota
	// OutputArgument marks an output that is a direct, unmodified copy of
	// a positional argument.
	OutputArgument
	// OutputCaptured marks an output that is a direct, unmodified copy of
	// a captured value.
	OutputCaptured
)

// OutputSource declares where one output position of a transformation
// comes from. A transformation whose every output is an argument or a
// captured value is a pure projection and is eligible for
// short-circuiting.
type OutputSource struct {
	Kind  OutputKind
	Index int
}

// Computed declares an output position produced by running the body.
func Computed() OutputSource { return OutputSource{Kind: OutputComputed} }

// FromArgument declares an output position that copies positional
// argument i.
func FromArgument(i int) OutputSource {
	return OutputSource{Kind: OutputArgument, Index: i}
}

// FromCaptured declares an output position that copies captured value i.
func FromCaptured(i int) OutputSource {
	return OutputSource{Kind: OutputCaptured, Index: i}
}

// FuncDef describes a transformation bound into a dataset stage: a function
// identity, an optional Go body, the ordered captured values bound at
// construction time and an execution-mode flag.
//
// FuncDef is a value type; the With* methods return modified copies so
// definitions can be built fluently:
//
//	def := iterz.MapDef("scale", scaleBody).
//	    WithCaptured(iterz.Float64Value(2.5)).
//	    WithMode(iterz.IntraParallel)
type FuncDef struct {
	// Identity names the function for diagnostics and graph serialization.
	Identity Name
	// Body is the general execution path. It may be nil only when Outputs
	// declares a pure projection.
	Body MapFunc
	// Outputs optionally declares the output composition, enabling the
	// short-circuit planner. Empty means "always invoke the body".
	Outputs []OutputSource
	// Captured holds the closure values bound at construction time. They
	// are constants, never re-evaluated per record.
	Captured []Value
	// Mode declares whether the body may run across multiple goroutines
	// internally.
	Mode ExecutionMode
}

// MapDef returns a FuncDef with the given identity and body.
func MapDef(identity Name, body MapFunc) FuncDef {
	return FuncDef{Identity: identity, Body: body}
}

// ProjectionDef returns a FuncDef declaring a pure projection: every output
// position copies an argument or a captured value and no body ever runs.
func ProjectionDef(identity Name, outputs ...OutputSource) FuncDef {
	return FuncDef{Identity: identity, Outputs: outputs}
}

// PredicateDef returns a FuncDef whose body wraps pred, producing a single
// scalar bool output. It is the descriptor form consumed by filter stages.
func PredicateDef(identity Name, pred PredicateFunc) FuncDef {
	return FuncDef{
		Identity: identity,
		Body: func(ctx context.Context, args Record) (Record, error) {
			ok, err := pred(ctx, args)
			if err != nil {
				return nil, err
			}
			return Record{BoolValue(ok)}, nil
		},
	}
}

// WithCaptured returns a copy of the definition with the given captured
// values bound. The values are deep-copied so the definition owns them.
func (d FuncDef) WithCaptured(values ...Value) FuncDef {
	d.Captured = CloneValues(values)
	return d
}

// WithOutputs returns a copy of the definition with the given declared
// output composition.
func (d FuncDef) WithOutputs(outputs ...OutputSource) FuncDef {
	d.Outputs = outputs
	return d
}

// WithMode returns a copy of the definition with the given execution mode.
func (d FuncDef) WithMode(mode ExecutionMode) FuncDef {
	d.Mode = mode
	return d
}

// CapturedFunc is the executor built from a FuncDef when a stage dataset is
// constructed. It implements the Executor contract: Instantiate once per
// iterator lifetime, Run once per record. Run appends the captured values
// after the positional arguments and recovers panics in the body into
// errors.
//
// A CapturedFunc carries no per-record state, so a restored iterator can
// re-instantiate it purely from the dataset's descriptor.
type CapturedFunc struct {
	identity     Name
	body         MapFunc
	captured     []Value
	mode         ExecutionMode
	instantiated bool
}

var _ Executor = (*CapturedFunc)(nil)

// newCapturedFunc validates the descriptor and binds its captured values.
func newCapturedFunc(def FuncDef) (*CapturedFunc, error) {
	if def.Identity == "" {
		return nil, fmt.Errorf("iterz: function definition requires an identity")
	}
	return &CapturedFunc{
		identity: def.Identity,
		body:     def.Body,
		captured: CloneValues(def.Captured),
		mode:     def.Mode,
	}, nil
}

// Instantiate prepares the executor for Run. It is called once per
// iterator lifetime, and again after a Restore.
func (f *CapturedFunc) Instantiate(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.instantiated = true
	return nil
}

// Run executes the body on one record's positional arguments plus the
// bound captured values.
func (f *CapturedFunc) Run(ctx context.Context, args Record) (out Record, err error) {
	if !f.instantiated {
		return nil, fmt.Errorf("function %q: %w", f.identity, ErrNotInitialized)
	}
	if f.body == nil {
		return nil, fmt.Errorf("function %q has no body", f.identity)
	}
	defer recoverFromPanic(&out, &err, f.identity)

	full := args
	if len(f.captured) > 0 {
		full = make(Record, 0, len(args)+len(f.captured))
		full = append(full, args...)
		full = append(full, f.captured...)
	}
	return f.body(ctx, full)
}

// Captured returns the ordered closure values bound at construction. The
// returned slice must not be modified.
func (f *CapturedFunc) Captured() []Value { return f.captured }

// Identity returns the function's identity.
func (f *CapturedFunc) Identity() Name { return f.identity }

// Mode returns the declared execution mode.
func (f *CapturedFunc) Mode() ExecutionMode { return f.mode }
