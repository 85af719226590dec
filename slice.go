package iterz

import (
	"context"
	"fmt"
	"sync"

	"github.com/zoobzio/metricz"
)

// Metric keys for the Slice source.
const (
	SliceRecordsTotal       = metricz.Key("slice.records.total")
	SliceEndOfSequenceTotal = metricz.Key("slice.end_of_sequence.total")
)

// SliceDataset is a source producing a fixed in-memory sequence of
// records. Every record must match the schema inferred from the first
// one. Each pull returns an independent copy, so consumers may freely
// take ownership of what they receive.
//
// # Observability
//
// Metrics:
//   - slice.records.total: Counter of records produced
//   - slice.end_of_sequence.total: Counter of end-of-sequence transitions
type SliceDataset struct {
	records []Record
	types   []DType
	shapes  []Shape
	metrics *metricz.Registry
}

// NewSliceDataset creates a slice source from one or more records.
func NewSliceDataset(records []Record) (*SliceDataset, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("iterz: slice dataset requires at least one record")
	}

	first := records[0]
	types := make([]DType, len(first))
	shapes := make([]Shape, len(first))
	for i, v := range first {
		types[i] = v.DType()
		shapes[i] = v.Shape()
	}

	owned := make([]Record, len(records))
	for i, rec := range records {
		if len(rec) != len(types) {
			return nil, fmt.Errorf("iterz: record %d has arity %d, want %d", i, len(rec), len(types))
		}
		for j, v := range rec {
			if v.DType() != types[j] {
				return nil, fmt.Errorf("iterz: record %d element %d has type %s, want %s", i, j, v.DType(), types[j])
			}
		}
		owned[i] = rec.Clone()
	}

	metrics := metricz.New()
	metrics.Counter(SliceRecordsTotal)
	metrics.Counter(SliceEndOfSequenceTotal)

	return &SliceDataset{records: owned, types: types, shapes: shapes, metrics: metrics}, nil
}

// MakeIterator allocates a fresh iterator positioned at the first record.
func (d *SliceDataset) MakeIterator(prefix string) Iterator {
	return &sliceIterator{dataset: d, prefix: StateKey(prefix, "slice")}
}

// OutputTypes returns the inferred element types.
func (d *SliceDataset) OutputTypes() []DType { return d.types }

// OutputShapes returns the inferred element shapes.
func (d *SliceDataset) OutputShapes() []Shape { return d.shapes }

// DebugLabel returns a static discriminator for diagnostics.
func (*SliceDataset) DebugLabel() string { return "SliceDataset" }

// Len returns the number of records in the source.
func (d *SliceDataset) Len() int { return len(d.records) }

// Metrics returns the metrics registry for this source.
func (d *SliceDataset) Metrics() *metricz.Registry { return d.metrics }

// AsGraphNode appends this source to b with its record count.
func (d *SliceDataset) AsGraphNode(b *GraphBuilder) (int, error) {
	return b.AddNode(GraphNode{
		Op:    "Slice",
		Attrs: map[Name]int64{"records": int64(len(d.records))},
	}), nil
}

type sliceIterator struct {
	dataset *SliceDataset
	prefix  string

	mu       sync.Mutex
	index    int64
	closed   bool
	finished bool
}

func (it *sliceIterator) Initialize(ctx context.Context) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return ErrClosed
	}
	return ctx.Err()
}

func (it *sliceIterator) GetNext(ctx context.Context) (Record, bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil, false, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if it.index >= int64(len(it.dataset.records)) {
		if !it.finished {
			it.finished = true
			it.dataset.metrics.Counter(SliceEndOfSequenceTotal).Inc()
		}
		return nil, true, nil
	}
	rec := it.dataset.records[it.index].Clone()
	it.index++
	it.dataset.metrics.Counter(SliceRecordsTotal).Inc()
	return rec, false, nil
}

func (it *sliceIterator) Save(w StateWriter) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return ErrClosed
	}
	return w.WriteInt(StateKey(it.prefix, "index"), it.index)
}

func (it *sliceIterator) Restore(ctx context.Context, r StateReader) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if it.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	index, err := r.ReadInt(StateKey(it.prefix, "index"))
	if err != nil {
		return err
	}
	if index < 0 || index > int64(len(it.dataset.records)) {
		return fmt.Errorf("iterz: restored index %d out of range [0,%d]", index, len(it.dataset.records))
	}
	it.index = index
	it.finished = false
	return nil
}

func (it *sliceIterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.closed = true
	return nil
}
