package iterz

import (
	"context"
	"fmt"
	"sync"

	"github.com/zoobzio/metricz"
)

// Metric keys for the Take stage.
const (
	TakeRecordsTotal       = metricz.Key("take.records.total")
	TakeEndOfSequenceTotal = metricz.Key("take.end_of_sequence.total")
)

// TakeDataset bounds an upstream dataset to its first n records. A
// negative n passes the whole upstream through unchanged.
//
// # Observability
//
// Metrics:
//   - take.records.total: Counter of records passed through
//   - take.end_of_sequence.total: Counter of end-of-sequence transitions
type TakeDataset struct {
	input   Dataset
	n       int64
	metrics *metricz.Registry
}

// NewTakeDataset creates a take stage over input.
func NewTakeDataset(input Dataset, n int64) (*TakeDataset, error) {
	if input == nil {
		return nil, fmt.Errorf("iterz: take requires an input dataset")
	}

	metrics := metricz.New()
	metrics.Counter(TakeRecordsTotal)
	metrics.Counter(TakeEndOfSequenceTotal)

	return &TakeDataset{input: input, n: n, metrics: metrics}, nil
}

// MakeIterator allocates a fresh iterator over this stage.
func (d *TakeDataset) MakeIterator(prefix string) Iterator {
	return &takeIterator{dataset: d, prefix: StateKey(prefix, "take")}
}

// OutputTypes returns the upstream element types.
func (d *TakeDataset) OutputTypes() []DType { return d.input.OutputTypes() }

// OutputShapes returns the upstream element shapes.
func (d *TakeDataset) OutputShapes() []Shape { return d.input.OutputShapes() }

// DebugLabel returns a static discriminator for diagnostics.
func (*TakeDataset) DebugLabel() string { return "TakeDataset" }

// Input returns the upstream dataset, for graph serialization.
func (d *TakeDataset) Input() Dataset { return d.input }

// Metrics returns the metrics registry for this stage.
func (d *TakeDataset) Metrics() *metricz.Registry { return d.metrics }

// AsGraphNode appends this stage to b with its count.
func (d *TakeDataset) AsGraphNode(b *GraphBuilder) (int, error) {
	inputID, err := b.AddInputDataset(d.input)
	if err != nil {
		return 0, err
	}
	return b.AddNode(GraphNode{
		Op:     "Take",
		Inputs: []int{inputID},
		Attrs:  map[Name]int64{"count": d.n},
	}), nil
}

type takeIterator struct {
	dataset *TakeDataset
	prefix  string

	mu          sync.Mutex
	input       Iterator
	emitted     int64
	initialized bool
	closed      bool
	exhausted   bool
}

func (it *takeIterator) Initialize(ctx context.Context) error {
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
	it.input = input
	it.initialized = true
	return nil
}

func (it *takeIterator) GetNext(ctx context.Context) (Record, bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil, false, ErrClosed
	}
	if !it.initialized {
		return nil, false, ErrNotInitialized
	}
	if it.exhausted {
		return nil, true, nil
	}

	d := it.dataset
	if d.n >= 0 && it.emitted >= d.n {
		it.exhausted = true
		d.metrics.Counter(TakeEndOfSequenceTotal).Inc()
		return nil, true, nil
	}

	rec, end, err := it.input.GetNext(ctx)
	if err != nil {
		return nil, false, err
	}
	if end {
		it.exhausted = true
		d.metrics.Counter(TakeEndOfSequenceTotal).Inc()
		return nil, true, nil
	}
	it.emitted++
	d.metrics.Counter(TakeRecordsTotal).Inc()
	return rec, false, nil
}

func (it *takeIterator) Save(w StateWriter) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return ErrClosed
	}
	if !it.initialized {
		return ErrNotInitialized
	}
	if err := w.WriteInt(StateKey(it.prefix, "emitted"), it.emitted); err != nil {
		return err
	}
	return it.input.Save(w)
}

func (it *takeIterator) Restore(ctx context.Context, r StateReader) error {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return ErrClosed
	}
	if !it.initialized {
		return ErrNotInitialized
	}
	emitted, err := r.ReadInt(StateKey(it.prefix, "emitted"))
	if err != nil {
		return err
	}
	if err := it.input.Restore(ctx, r); err != nil {
		return err
	}
	it.emitted = emitted
	return nil
}

func (it *takeIterator) Close() error {
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
