package iterz

import (
	"context"
	"fmt"
	"sync"

	"github.com/zoobzio/metricz"
)

// Metric keys for the Range source.
const (
	RangeRecordsTotal       = metricz.Key("range.records.total")
	RangeEndOfSequenceTotal = metricz.Key("range.end_of_sequence.total")
)

// RangeDataset is a source producing single-element int64 records from
// start (inclusive) to stop (exclusive) in increments of step. Step may be
// negative for a descending range.
//
// # Observability
//
// Metrics:
//   - range.records.total: Counter of records produced
//   - range.end_of_sequence.total: Counter of end-of-sequence transitions
type RangeDataset struct {
	start   int64
	stop    int64
	step    int64
	metrics *metricz.Registry
}

// NewRangeDataset creates a range source. A zero step fails construction.
func NewRangeDataset(start, stop, step int64) (*RangeDataset, error) {
	if step == 0 {
		return nil, fmt.Errorf("iterz: range step must be non-zero")
	}

	metrics := metricz.New()
	metrics.Counter(RangeRecordsTotal)
	metrics.Counter(RangeEndOfSequenceTotal)

	return &RangeDataset{start: start, stop: stop, step: step, metrics: metrics}, nil
}

// MakeIterator allocates a fresh iterator positioned at start.
func (d *RangeDataset) MakeIterator(prefix string) Iterator {
	return &rangeIterator{dataset: d, prefix: StateKey(prefix, "range"), next: d.start}
}

// OutputTypes returns the single int64 element type.
func (*RangeDataset) OutputTypes() []DType { return []DType{Int64} }

// OutputShapes returns the single scalar shape.
func (*RangeDataset) OutputShapes() []Shape { return []Shape{ScalarShape()} }

// DebugLabel returns a static discriminator for diagnostics.
func (*RangeDataset) DebugLabel() string { return "RangeDataset" }

// Metrics returns the metrics registry for this source.
func (d *RangeDataset) Metrics() *metricz.Registry { return d.metrics }

// AsGraphNode appends this source to b with its range parameters.
func (d *RangeDataset) AsGraphNode(b *GraphBuilder) (int, error) {
	return b.AddNode(GraphNode{
		Op: "Range",
		Attrs: map[Name]int64{
			"start": d.start,
			"stop":  d.stop,
			"step":  d.step,
		},
	}), nil
}

type rangeIterator struct {
	dataset *RangeDataset
	prefix  string

	mu       sync.Mutex
	next     int64
	closed   bool
	finished bool
}

func (it *rangeIterator) Initialize(ctx context.Context) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (it *rangeIterator) GetNext(ctx context.Context) (Record, bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil, false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	d := it.dataset
	if (d.step > 0 && it.next >= d.stop) || (d.step < 0 && it.next <= d.stop) {
		if !it.finished {
			it.finished = true
			d.metrics.Counter(RangeEndOfSequenceTotal).Inc()
		}
		return nil, true, nil
	}
	rec := Record{Int64Value(it.next)}
	it.next += d.step
	d.metrics.Counter(RangeRecordsTotal).Inc()
	return rec, false, nil
}

func (it *rangeIterator) Save(w StateWriter) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return ErrClosed
	}
	return w.WriteInt(StateKey(it.prefix, "next"), it.next)
}

func (it *rangeIterator) Restore(ctx context.Context, r StateReader) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	next, err := r.ReadInt(StateKey(it.prefix, "next"))
	if err != nil {
		return err
	}
	it.next = next
	it.finished = false
	return nil
}

func (it *rangeIterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.closed = true
	return nil
}
