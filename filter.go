package iterz

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/zoobzio/clockz"
	"github.com/zoobzio/hookz"
	"github.com/zoobzio/metricz"
	"github.com/zoobzio/tracez"
)

// Metric keys for the Filter stage.
const (
	FilterEvaluatedTotal = metricz.Key("filter.evaluated.total")
	FilterPassedTotal    = metricz.Key("filter.passed.total")
	FilterSkippedTotal   = metricz.Key("filter.skipped.total")
	FilterFailuresTotal  = metricz.Key("filter.failures.total")
)

// Span names for the Filter stage.
const (
	FilterGetNextSpan = tracez.Key("filter.get_next")
)

// Span tags for the Filter stage.
const (
	FilterTagPredicate = tracez.Tag("filter.predicate")
	FilterTagSkipped   = tracez.Tag("filter.skipped")
	FilterTagSuccess   = tracez.Tag("filter.success")
	FilterTagError     = tracez.Tag("filter.error")
)

// Hook event keys for the Filter stage.
const (
	FilterEventPassed  = hookz.Key("filter.passed")
	FilterEventSkipped = hookz.Key("filter.skipped")
)

// FilterEvent represents a filter decision event. It is emitted via hookz
// each time the predicate evaluates a record, allowing external systems to
// track selectivity.
type FilterEvent struct {
	Predicate Name      // Predicate function identity
	Prefix    string    // Checkpoint prefix of the emitting iterator
	Passed    bool      // Whether the record passed
	Timestamp time.Time // When the event occurred
}

// FilterDataset is the immutable description of a predicate stage: it
// wraps an upstream dataset and yields only the records its predicate
// accepts. The output schema is the upstream schema unchanged.
//
// The predicate is a FuncDef whose body produces a single scalar bool;
// PredicateDef builds that shape from a plain Go predicate. Captured
// values bound on the definition are appended to the predicate's
// arguments, exactly as for map stages.
//
// # Observability
//
// Metrics:
//   - filter.evaluated.total: Counter of predicate evaluations
//   - filter.passed.total: Counter of records that passed
//   - filter.skipped.total: Counter of records that were dropped
//   - filter.failures.total: Counter of failed pulls
//
// Traces:
//   - filter.get_next: Span for one pull (covers all skipped records)
//
// Events (via hooks):
//   - filter.passed: Fired when a record passes
//   - filter.skipped: Fired when a record is dropped
type FilterDataset struct {
	input Dataset
	fn    *CapturedFunc

	clock   clockz.Clock
	metrics *metricz.Registry
	tracer  *tracez.Tracer
	hooks   *hookz.Hooks[FilterEvent]
}

// NewFilterDataset creates a filter stage over input with the given
// predicate descriptor. Construction fails when the descriptor has no
// body; declared output compositions are not meaningful for predicates
// and are rejected.
func NewFilterDataset(input Dataset, def FuncDef) (*FilterDataset, error) {
	if input == nil {
		return nil, fmt.Errorf("iterz: filter requires an input dataset")
	}
	if def.Body == nil {
		return nil, fmt.Errorf("iterz: filter predicate %q has no body", def.Identity)
	}
	if len(def.Outputs) > 0 {
		return nil, fmt.Errorf("iterz: filter predicate %q declares an output composition", def.Identity)
	}

	fn, err := newCapturedFunc(def)
	if err != nil {
		return nil, err
	}

	metrics := metricz.New()
	metrics.Counter(FilterEvaluatedTotal)
	metrics.Counter(FilterPassedTotal)
	metrics.Counter(FilterSkippedTotal)
	metrics.Counter(FilterFailuresTotal)

	return &FilterDataset{
		input:   input,
		fn:      fn,
		clock:   clockz.RealClock,
		metrics: metrics,
		tracer:  tracez.New(),
		hooks:   hookz.New[FilterEvent](),
	}, nil
}

// MakeIterator allocates a fresh iterator over this stage.
func (d *FilterDataset) MakeIterator(prefix string) Iterator {
	return &filterIterator{dataset: d, prefix: StateKey(prefix, "filter")}
}

// OutputTypes returns the upstream element types: filtering never reshapes
// records.
func (d *FilterDataset) OutputTypes() []DType { return d.input.OutputTypes() }

// OutputShapes returns the upstream element shapes.
func (d *FilterDataset) OutputShapes() []Shape { return d.input.OutputShapes() }

// DebugLabel returns a static discriminator for diagnostics.
func (*FilterDataset) DebugLabel() string { return "FilterDataset" }

// Input returns the upstream dataset, for graph serialization.
func (d *FilterDataset) Input() Dataset { return d.input }

// AsGraphNode appends this stage to b.
func (d *FilterDataset) AsGraphNode(b *GraphBuilder) (int, error) {
	inputID, err := b.AddInputDataset(d.input)
	if err != nil {
		return 0, err
	}
	return b.AddNode(GraphNode{
		Op:       "Filter",
		Inputs:   []int{inputID},
		Function: d.fn.Identity(),
		Captured: CloneValues(d.fn.Captured()),
		Mode:     d.fn.Mode(),
	}), nil
}

// WithClock sets a custom clock for event timestamps, primarily for
// testing.
func (d *FilterDataset) WithClock(clock clockz.Clock) *FilterDataset {
	d.clock = clock
	return d
}

func (d *FilterDataset) getClock() clockz.Clock {
	if d.clock == nil {
		return clockz.RealClock
	}
	return d.clock
}

// Metrics returns the metrics registry for this stage.
func (d *FilterDataset) Metrics() *metricz.Registry { return d.metrics }

// Tracer returns the tracer for this stage.
func (d *FilterDataset) Tracer() *tracez.Tracer { return d.tracer }

// Close gracefully shuts down observability components.
func (d *FilterDataset) Close() error {
	if d.tracer != nil {
		d.tracer.Close()
	}
	d.hooks.Close()
	return nil
}

// OnPassed registers a handler for when a record passes the predicate.
func (d *FilterDataset) OnPassed(handler func(context.Context, FilterEvent) error) error {
	_, err := d.hooks.Hook(FilterEventPassed, handler)
	return err
}

// OnSkipped registers a handler for when a record is dropped.
func (d *FilterDataset) OnSkipped(handler func(context.Context, FilterEvent) error) error {
	_, err := d.hooks.Hook(FilterEventSkipped, handler)
	return err
}

// filterIterator pulls upstream records until one passes the predicate.
type filterIterator struct {
	dataset *FilterDataset
	prefix  string

	mu          sync.Mutex
	input       Iterator
	initialized bool
	closed      bool
	exhausted   bool
	failure     error
}

// Initialize opens the upstream iterator and instantiates the predicate.
func (it *filterIterator) Initialize(ctx context.Context) error {
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

// GetNext pulls upstream records until one passes the predicate or the
// upstream is exhausted. The context is checked between pulls so a long
// run of rejected records stays cancelable.
func (it *filterIterator) GetNext(ctx context.Context) (Record, bool, error) {
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
		return nil, false, it.failure
	}

	start := clock.Now()
	ctx, span := d.tracer.StartSpan(ctx, FilterGetNextSpan)
	defer span.Finish()
	span.SetTag(FilterTagPredicate, string(d.fn.Identity()))

	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			span.SetTag(FilterTagSuccess, "false")
			span.SetTag(FilterTagError, err.Error())
			return nil, false, stageError(d.DebugLabel(), nil, start, clock.Now(), err)
		}

		args, end, err := it.input.GetNext(ctx)
		if err != nil {
			d.metrics.Counter(FilterFailuresTotal).Inc()
			span.SetTag(FilterTagSuccess, "false")
			span.SetTag(FilterTagError, err.Error())
			return nil, false, stageError(d.DebugLabel(), nil, start, clock.Now(), err)
		}
		if end {
			it.exhausted = true
			span.SetTag(FilterTagSuccess, "true")
			span.SetTag(FilterTagSkipped, fmt.Sprintf("%d", skipped))
			return nil, true, nil
		}

		d.metrics.Counter(FilterEvaluatedTotal).Inc()
		verdict, err := d.fn.Run(ctx, args)
		if err != nil {
			d.metrics.Counter(FilterFailuresTotal).Inc()
			span.SetTag(FilterTagSuccess, "false")
			span.SetTag(FilterTagError, err.Error())
			it.failure = stageError(d.DebugLabel(), args, start, clock.Now(), err)
			return nil, false, it.failure
		}
		if len(verdict) != 1 || verdict[0].DType() != Bool {
			d.metrics.Counter(FilterFailuresTotal).Inc()
			err = fmt.Errorf("predicate %q must produce a single scalar bool", d.fn.Identity())
			span.SetTag(FilterTagSuccess, "false")
			span.SetTag(FilterTagError, err.Error())
			it.failure = stageError(d.DebugLabel(), args, start, clock.Now(), err)
			return nil, false, it.failure
		}

		if verdict[0].Bool() {
			d.metrics.Counter(FilterPassedTotal).Inc()
			span.SetTag(FilterTagSuccess, "true")
			span.SetTag(FilterTagSkipped, fmt.Sprintf("%d", skipped))

			_ = d.hooks.Emit(ctx, FilterEventPassed, FilterEvent{ //nolint:errcheck
				Predicate: d.fn.Identity(),
				Prefix:    it.prefix,
				Passed:    true,
				Timestamp: clock.Now(),
			})
			return args, false, nil
		}

		skipped++
		d.metrics.Counter(FilterSkippedTotal).Inc()
		_ = d.hooks.Emit(ctx, FilterEventSkipped, FilterEvent{ //nolint:errcheck
			Predicate: d.fn.Identity(),
			Prefix:    it.prefix,
			Passed:    false,
			Timestamp: clock.Now(),
		})
	}
}

// Save delegates entirely to the upstream iterator.
func (it *filterIterator) Save(w StateWriter) error {
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
// predicate fresh.
func (it *filterIterator) Restore(ctx context.Context, r StateReader) error {
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
	return nil
}

// Close releases the upstream iterator. Close is idempotent.
func (it *filterIterator) Close() error {
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
