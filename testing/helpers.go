// Package testing provides test utilities and helpers for iterz-based
// applications.
//
// This package includes scripted datasets, mock iterators and assertion
// helpers to make testing dataset pipelines easier.
//
// Example usage:
//
//	func TestMyStage(t *testing.T) {
//		source := testing.NewScriptedDataset(
//			iterz.Record{iterz.Int64Value(1)},
//			iterz.Record{iterz.Int64Value(2)},
//		)
//
//		stage, _ := iterz.NewMapDataset(source, myDef, myTypes, myShapes)
//		it := stage.MakeIterator("test")
//		...
//		testing.AssertPulled(t, source, 2)
//	}
package testing

import (
	"context"
	"sync"
	"testing"

	"github.com/zoobzio/iterz"
)

// ScriptedDataset is a configurable iterz.Dataset for testing. It yields a
// fixed sequence of records, optionally failing at a scripted position,
// and counts every pull made against its iterators.
type ScriptedDataset struct {
	mu        sync.Mutex
	records   []iterz.Record
	types     []iterz.DType
	shapes    []iterz.Shape
	failAt    int
	failErr   error
	pullCount int64
}

// NewScriptedDataset creates a dataset yielding the given records in
// order. The schema is inferred from the first record; at least one
// record is required.
func NewScriptedDataset(records ...iterz.Record) *ScriptedDataset {
	if len(records) == 0 {
		panic("testing: scripted dataset requires at least one record")
	}
	first := records[0]
	types := make([]iterz.DType, len(first))
	shapes := make([]iterz.Shape, len(first))
	for i, v := range first {
		types[i] = v.DType()
		shapes[i] = v.Shape()
	}
	owned := make([]iterz.Record, len(records))
	for i, rec := range records {
		owned[i] = rec.Clone()
	}
	return &ScriptedDataset{records: owned, types: types, shapes: shapes, failAt: -1}
}

// WithErrorAt configures the dataset's iterators to fail with err instead
// of yielding the record at position index.
func (d *ScriptedDataset) WithErrorAt(index int, err error) *ScriptedDataset {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failAt = index
	d.failErr = err
	return d
}

// PullCount returns the total number of GetNext calls across all
// iterators of this dataset, including the end-of-sequence calls.
func (d *ScriptedDataset) PullCount() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pullCount
}

// MakeIterator implements iterz.Dataset.
func (d *ScriptedDataset) MakeIterator(prefix string) iterz.Iterator {
	return &scriptedIterator{dataset: d, prefix: prefix}
}

// OutputTypes implements iterz.Dataset.
func (d *ScriptedDataset) OutputTypes() []iterz.DType { return d.types }

// OutputShapes implements iterz.Dataset.
func (d *ScriptedDataset) OutputShapes() []iterz.Shape { return d.shapes }

// DebugLabel implements iterz.Dataset.
func (*ScriptedDataset) DebugLabel() string { return "ScriptedDataset" }

type scriptedIterator struct {
	dataset *ScriptedDataset
	prefix  string

	mu     sync.Mutex
	index  int64
	closed bool
}

func (it *scriptedIterator) Initialize(ctx context.Context) error {
	return ctx.Err()
}

func (it *scriptedIterator) GetNext(ctx context.Context) (iterz.Record, bool, error) {
	it.mu.Lock()
	defer it.mu.Unlock()

	if it.closed {
		return nil, false, iterz.ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	d := it.dataset
	d.mu.Lock()
	d.pullCount++
	failAt, failErr := d.failAt, d.failErr
	total := int64(len(d.records))
	d.mu.Unlock()

	if failAt >= 0 && it.index == int64(failAt) {
		return nil, false, failErr
	}
	if it.index >= total {
		return nil, true, nil
	}
	rec := d.records[it.index].Clone()
	it.index++
	return rec, false, nil
}

func (it *scriptedIterator) Save(w iterz.StateWriter) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	return w.WriteInt(iterz.StateKey(it.prefix, "scripted.index"), it.index)
}

func (it *scriptedIterator) Restore(ctx context.Context, r iterz.StateReader) error {
	it.mu.Lock()
	defer it.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	index, err := r.ReadInt(iterz.StateKey(it.prefix, "scripted.index"))
	if err != nil {
		return err
	}
	it.index = index
	return nil
}

func (it *scriptedIterator) Close() error {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.closed = true
	return nil
}

// AssertPulled fails the test unless the dataset has seen exactly n
// GetNext calls.
func AssertPulled(t *testing.T, d *ScriptedDataset, n int64) {
	t.Helper()
	if got := d.PullCount(); got != n {
		t.Errorf("Expected %d pulls, got %d", n, got)
	}
}

// CollectInt64s drains an initialized iterator of single-int64 records and
// returns the values in order, failing the test on any error.
func CollectInt64s(t *testing.T, it iterz.Iterator) []int64 {
	t.Helper()
	var out []int64
	for {
		rec, end, err := it.GetNext(context.Background())
		if err != nil {
			t.Fatalf("Expected no error from GetNext, got %v", err)
		}
		if end {
			return out
		}
		out = append(out, rec[0].Int64())
	}
}
