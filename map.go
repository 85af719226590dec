package iterz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys for the Map stage.
const (
	MapRecordsTotal       = metricz.Key("map.records.total")
	MapShortCircuitTotal  = metricz.Key("map.short_circuit.total")
	MapExecutorRunsTotal  = metricz.Key("map.executor.runs.total")
	MapFailuresTotal      = metricz.Key("map.failures.total")
	MapEndOfSequenceTotal = metricz.Key("map.end_of_sequence.total")
	MapGetNextDurationMs  = metricz.Key("map.get_next.duration.ms")
)

// Span names for the Map stage.
const (
	MapGetNextSpan     = tracez.Key("map.get_next")
	MapExecutorRunSpan = tracez.Key("map.executor.run")
)

// Span tags for the Map stage.
const (
	MapTagFunction      = tracez.Tag("map.function")
	MapTagShortCircuit  = tracez.Tag("map.short_circuit")
	MapTagEndOfSequence = tracez.Tag("map.end_of_sequence")
	MapTagSuccess       = tracez.Tag("map.success")
	MapTagError         = tracez.Tag("map.error")
)

// Hook event keys for the Map stage.
const (
	MapEventRecord        = hookz.Key("map.record")
	MapEventEndOfSequence = hookz.Key("map.end_of_sequence")
	MapEventRestored      = hookz.Key("map.restored")
)

// MapEvent represents a map stage event. It is emitted via hookz when a
// record is produced, when the sequence ends and when an iterator is
// restored from a checkpoint.
type MapEvent struct {
	Function      Name          // Function identity
	Prefix        string        // Checkpoint prefix of the emitting iterator
	ShortCircuit  bool          // Whether the short-circuit plan produced the record
	EndOfSequence bool          // Whether the sequence ended
	Stopped       bool          // Whether the function requested early termination
	Records       int64         // Records delivered so far by this iterator
	Duration      time.Duration // Time spent producing this record
	Timestamp     time.Time     // When the event occurred
}

// MapDataset is the immutable description of a map stage: an upstream
// dataset, a transformation descriptor and a declared output schema. It
// wraps the upstream record source and produces transformed records on
// demand through the iterators it builds.
//
// When the transformation's declared output composition is a pure
// projection of arguments and captured values, the stage bypasses general
// execution: construction compiles an index-and-move plan that each pull
// applies directly, transferring ownership of a pulled value when the plan
// uses it exactly once and copying it otherwise.
//
// MapDataset is immutable after construction and safely shared read-only
// by any number of concurrently running iterators.
//
// # Observability
//
// Metrics:
//   - map.records.total: Counter of records produced
//   - map.short_circuit.total: Counter of records produced by the plan
//   - map.executor.runs.total: Counter of executor invocations
//   - map.failures.total: Counter of failed pulls
//   - map.end_of_sequence.total: Counter of end-of-sequence transitions
//   - map.get_next.duration.ms: Gauge of the last pull's duration
//
// Traces:
//   - map.get_next: Span for one pull
//   - map.executor.run: Child span for the executor invocation
//
// Events (via hooks):
//   - map.record: Fired when a record is produced
//   - map.end_of_sequence: Fired when the sequence ends
//   - map.restored: Fired when an iterator restores from a checkpoint
type MapDataset struct {
	input        Dataset
	fn           *CapturedFunc
	strategy     transformStrategy
	outputTypes  []DType
	outputShapes []Shape
	shortCircuit bool

	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[MapEvent]
}

// NewMapDataset creates a map stage over input with the given
// transformation descriptor and declared output schema.
//
// Construction fails when the descriptor or plan is internally
// inconsistent: a projection whose arity differs from the declared output
// arity, an output source referencing a slot that does not exist, or a
// non-projection definition without a body.
func NewMapDataset(input Dataset, def FuncDef, outputTypes []DType, outputShapes []Shape) (*MapDataset, error) {
	if input == nil {
		return nil, fmt.Errorf("iterz: map requires an input dataset")
	}
	if len(outputTypes) == 0 {
		return nil, fmt.Errorf("iterz: map requires at least one output type")
	}
	if len(outputShapes) != len(outputTypes) {
		return nil, fmt.Errorf("iterz: map declares %d output types but %d output shapes", len(outputTypes), len(outputShapes))
	}

	fn, err := newCapturedFunc(def)
	if err != nil {
		return nil, err
	}

	plan, err := planShortCircuit(def.Outputs, len(input.OutputTypes()), len(def.Captured))
	if err != nil {
		return nil, err
	}
	if !plan.empty() && len(plan.indices) != len(outputTypes) {
		return nil, fmt.Errorf("iterz: projection %q produces %d outputs but %d are declared", def.Identity, len(plan.indices), len(outputTypes))
	}
	if plan.empty() && def.Body == nil {
		return nil, fmt.Errorf("iterz: function %q has no body and is not a pure projection", def.Identity)
	}

	// The strategy is selected exactly once here; iterators never branch
	// on an optional plan at pull time.
	var strategy transformStrategy
	if plan.empty() {
		strategy = executorStrategy{fn: fn}
	} else {
		strategy = projectionStrategy{fn: fn, plan: plan}
	}

	metrics := metricz.New()
	metrics.Counter(MapRecordsTotal)
	metrics.Counter(MapShortCircuitTotal)
	metrics.Counter(MapExecutorRunsTotal)
	metrics.Counter(MapFailuresTotal)
	metrics.Counter(MapEndOfSequenceTotal)
	metrics.Gauge(MapGetNextDurationMs)

	return &MapDataset{
		input:        input,
		fn:           fn,
		strategy:     strategy,
		outputTypes:  append([]DType(nil), outputTypes...),
		outputShapes: append([]Shape(nil), outputShapes...),
		shortCircuit: !plan.empty(),
		clock:        clockz.RealClock,
		metrics:      metrics,
		tracer:       tracez.New(),
		hooks:        hookz.New[MapEvent](),
	}, nil
}

// MakeIterator allocates a fresh iterator over this stage. The iterator
// must be initialized before the first pull.
func (d *MapDataset) MakeIterator(prefix string) Iterator {
	return &mapIterator{dataset: d, prefix: StateKey(prefix, "map")}
}

// OutputTypes returns the declared element types of produced records.
func (d *MapDataset) OutputTypes() []DType { return d.outputTypes }

// OutputShapes returns the declared element shapes of produced records.
func (d *MapDataset) OutputShapes() []Shape { return d.outputShapes }

// DebugLabel returns a static discriminator for diagnostics.
func (*MapDataset) DebugLabel() string { return "MapDataset" }

// Input returns the upstream dataset, for graph serialization.
func (d *MapDataset) Input() Dataset { return d.input }

// FunctionIdentity returns the bound function's identity, for graph
// serialization.
func (d *MapDataset) FunctionIdentity() Name { return d.fn.Identity() }

// CapturedValues returns the ordered closure values bound at construction,
// for graph serialization. The returned slice is a deep copy.
func (d *MapDataset) CapturedValues() []Value { return CloneValues(d.fn.Captured()) }

// Mode returns the transformation's execution-mode flag, for graph
// serialization.
func (d *MapDataset) Mode() ExecutionMode { return d.fn.Mode() }

// ShortCircuit reports whether the stage bypasses general execution.
func (d *MapDataset) ShortCircuit() bool { return d.shortCircuit }

// AsGraphNode appends this stage to b, exposing the upstream node, the
// function identity, the captured values and the execution-mode flag.
func (d *MapDataset) AsGraphNode(b *GraphBuilder) (int, error) {
	inputID, err := b.AddInputDataset(d.input)
	if err != nil {
		return 0, err
	}
	return b.AddNode(GraphNode{
		Op:       "Map",
		Inputs:   []int{inputID},
		Function: d.fn.Identity(),
		Captured: CloneValues(d.fn.Captured()),
		Mode:     d.fn.Mode(),
	}), nil
}

// WithClock sets a custom clock for timestamps and durations, primarily
// for testing.
func (d *MapDataset) WithClock(clock clockz.Clock) *MapDataset {
	d.clock = clock
	return d
}

func (d *MapDataset) getClock() clockz.Clock {
	if d.clock == nil {
		return clockz.RealClock
	}
	return d.clock
}

// Metrics returns the metrics registry for this stage.
func (d *MapDataset) Metrics() *metricz.Registry { return d.metrics }

// Tracer returns the tracer for this stage.
func (d *MapDataset) Tracer() *tracez.Tracer { return d.tracer }

// Close gracefully shuts down observability components.
func (d *MapDataset) Close() error {
	if d.tracer != nil {
		d.tracer.Close()
	}
	d.hooks.Close()
	return nil
}

// OnRecord registers a handler for when a record is produced.
// The handler is called asynchronously after each successful pull.
func (d *MapDataset) OnRecord(handler func(context.Context, MapEvent) error) error {
	_, err := d.hooks.Hook(MapEventRecord, handler)
	return err
}

// OnEndOfSequence registers a handler for when the sequence ends, whether
// because the upstream was exhausted or because the function requested
// early termination.
func (d *MapDataset) OnEndOfSequence(handler func(context.Context, MapEvent) error) error {
	_, err := d.hooks.Hook(MapEventEndOfSequence, handler)
	return err
}

// OnRestored registers a handler for when an iterator of this stage
// restores its position from a checkpoint.
func (d *MapDataset) OnRestored(handler func(context.Context, MapEvent) error) error {
	_, err := d.hooks.Hook(MapEventRestored, handler)
	return err
}

// transformStrategy is the per-pull execution policy of a map stage,
// selected exactly once at construction: either run the executor or apply
// the short-circuit plan.
type transformStrategy interface {
	invoke(ctx context.Context, args Record) (Record, error)
}

// executorStrategy routes every pulled record through the executor.
type executorStrategy struct {
	fn *CapturedFunc
}

func (s executorStrategy) invoke(ctx context.Context, args Record) (Record, error) {
	return s.fn.Run(ctx, args)
}

// projectionStrategy assembles the output record directly from the pulled
// arguments and the captured values. A pulled argument used exactly once
// is relocated into the output without duplication; arguments used more
// than once and captured values (owned by the node, reused by later
// pulls) are cloned.
type projectionStrategy struct {
	fn   *CapturedFunc
	plan shortCircuitPlan
}

func (s projectionStrategy) invoke(_ context.Context, args Record) (Record, error) {
	captured := s.fn.Captured()
	out := make(Record, 0, len(s.plan.indices))
	for i, idx := range s.plan.indices {
		switch {
		case idx < len(args) && s.plan.canMove[i]:
			out = append(out, args[idx])
		case idx < len(args):
			out = append(out, args[idx].Clone())
		default:
			out = append(out, captured[idx-len(args)].Clone())
		}
	}
	return out, nil
}

// mapIterator is the stateful cursor realizing a MapDataset. It pulls from
// the exclusively-owned upstream iterator, applies the stage's strategy
// and forwards checkpoint save/restore to the upstream iterator.
//
// The mutex serializes the pull-and-transform sequence, so concurrent
// GetNext callers each receive a distinct upstream record with no
// duplication or loss; cross-caller ordering is unspecified.
type mapIterator struct {
	dataset *MapDataset
	prefix  string

	mu          sync.Mutex
	input       Iterator
	initialized bool
	closed      bool
	exhausted   bool
	failure     error
	records     int64
}

// Initialize opens the upstream iterator and instantiates the executor.
func (it *mapIterator) Initialize(ctx context.Context) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return ErrClosed
	}
	if it.initialized {
		return nil
	}
	input := it.dataset.input.MakeIterator(it.prefix)
	if err := input.Initialize(ctx); err != nil {
		return err
	}
	if err := it.dataset.fn.Instantiate(ctx); err != nil {
		input.Close() //nolint:errcheck
		return err
	}
	it.input = input
	it.initialized = true
	return nil
}

// GetNext pulls one upstream record and applies the transformation.
func (it *mapIterator) GetNext(ctx context.Context) (Record, bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	d := it.dataset
	clock := d.getClock()

	if it.closed {
		return nil, false, ErrClosed
	}
	if !it.initialized {
		return nil, false, ErrNotInitialized
	}
	if it.exhausted {
		return nil, true, nil
	}
	if it.failure != nil {
		// A prior transformation failure poisoned this iterator.
		return nil, false, it.failure
	}

	start := clock.Now()
	ctx, span := d.tracer.StartSpan(ctx, MapGetNextSpan)
	defer span.Finish()
	span.SetTag(MapTagFunction, string(d.fn.Identity()))
	span.SetTag(MapTagShortCircuit, fmt.Sprintf("%t", d.shortCircuit))

	if err := ctx.Err(); err != nil {
		span.SetTag(MapTagSuccess, "false")
		span.SetTag(MapTagError, err.Error())
		return nil, false, stageError(d.DebugLabel(), nil, start, clock.Now(), err)
	}

	args, end, err := it.input.GetNext(ctx)
	if err != nil {
		// Upstream failures propagate verbatim and do not poison: the
		// upstream iterator defines its own state after a failure.
		d.metrics.Counter(MapFailuresTotal).Inc()
		span.SetTag(MapTagSuccess, "false")
		span.SetTag(MapTagError, err.Error())
		return nil, false, stageError(d.DebugLabel(), nil, start, clock.Now(), err)
	}
	if end {
		span.SetTag(MapTagSuccess, "true")
		span.SetTag(MapTagEndOfSequence, "true")
		it.finishLocked(ctx, clock, start, false)
		return nil, true, nil
	}

	var out Record
	if d.shortCircuit {
		out, err = d.strategy.invoke(ctx, args)
	} else {
		runCtx, runSpan := d.tracer.StartSpan(ctx, MapExecutorRunSpan)
		runSpan.SetTag(MapTagFunction, string(d.fn.Identity()))
		out, err = d.strategy.invoke(runCtx, args)
		runSpan.Finish()
		d.metrics.Counter(MapExecutorRunsTotal).Inc()
	}

	if errors.Is(err, ErrStopIteration) {
		// The function deliberately requested early termination.
		span.SetTag(MapTagSuccess, "true")
		span.SetTag(MapTagEndOfSequence, "true")
		it.finishLocked(ctx, clock, start, true)
		return nil, true, nil
	}
	if err != nil {
		d.metrics.Counter(MapFailuresTotal).Inc()
		span.SetTag(MapTagSuccess, "false")
		span.SetTag(MapTagError, err.Error())
		it.failure = stageError(d.DebugLabel(), args, start, clock.Now(), err)
		return nil, false, it.failure
	}

	it.records++
	elapsed := clock.Now().Sub(start)
	d.metrics.Counter(MapRecordsTotal).Inc()
	if d.shortCircuit {
		d.metrics.Counter(MapShortCircuitTotal).Inc()
	}
	d.metrics.Gauge(MapGetNextDurationMs).Set(float64(elapsed.Milliseconds()))
	span.SetTag(MapTagSuccess, "true")

	_ = d.hooks.Emit(ctx, MapEventRecord, MapEvent{ //nolint:errcheck
		Function:     d.fn.Identity(),
		Prefix:       it.prefix,
		ShortCircuit: d.shortCircuit,
		Records:      it.records,
		Duration:     elapsed,
		Timestamp:    clock.Now(),
	})

	return out, false, nil
}

// finishLocked records the transition into the exhausted state. The flag
// is never cleared afterwards, not even by Restore.
func (it *mapIterator) finishLocked(ctx context.Context, clock clockz.Clock, start time.Time, stopped bool) {
	it.exhausted = true
	d := it.dataset
	d.metrics.Counter(MapEndOfSequenceTotal).Inc()

	_ = d.hooks.Emit(ctx, MapEventEndOfSequence, MapEvent{ //nolint:errcheck
		Function:      d.fn.Identity(),
		Prefix:        it.prefix,
		ShortCircuit:  d.shortCircuit,
		EndOfSequence: true,
		Stopped:       stopped,
		Records:       it.records,
		Duration:      clock.Now().Sub(start),
		Timestamp:     clock.Now(),
	})
}

// Save delegates entirely to the upstream iterator: per-record
// transformation carries no state across calls, so the upstream position
// is the whole checkpoint.
func (it *mapIterator) Save(w StateWriter) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return ErrClosed
	}
	if !it.initialized {
		return ErrNotInitialized
	}
	return it.input.Save(w)
}

// Restore repositions the upstream iterator and re-instantiates the
// executor fresh; the executor is derivable purely from the dataset's
// transformation descriptor, never from saved state. A prior poisoning
// failure is cleared, but an exhausted iterator stays exhausted.
func (it *mapIterator) Restore(ctx context.Context, r StateReader) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return ErrClosed
	}
	if !it.initialized {
		return ErrNotInitialized
	}
	if err := it.input.Restore(ctx, r); err != nil {
		return err
	}
	if err := it.dataset.fn.Instantiate(ctx); err != nil {
		return err
	}
	it.failure = nil

	d := it.dataset
	clock := d.getClock()
	_ = d.hooks.Emit(ctx, MapEventRestored, MapEvent{ //nolint:errcheck
		Function:     d.fn.Identity(),
		Prefix:       it.prefix,
		ShortCircuit: d.shortCircuit,
		Records:      it.records,
		Timestamp:    clock.Now(),
	})
	return nil
}

// Close releases the upstream iterator. Close is idempotent.
func (it *mapIterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil
	}
	it.closed = true
	if it.input != nil {
		return it.input.Close()
	}
	return nil
}
