package iterz

import "context"

// Name is a type alias for function identities, stage labels and checkpoint
// keys. Using this type encourages storing names as constants rather than
// using inline strings throughout your code.
//
// Example:
//
//	const (
//	    ParseEventName   Name = "parse-event"
//	    DropHeartbeats   Name = "drop-heartbeats"
//	)
type Name = string

// ExecutionMode declares how a transformation's body may be scheduled while
// it runs. It is carried on the dataset node and exposed to graph
// serialization; the library itself never spawns goroutines on behalf of a
// transformation.
type ExecutionMode uint8

const (
	// SingleThreaded transformations run on the calling goroutine only.
	SingleThreaded ExecutionMode = iota
	// IntraParallel transformations may fan work out across goroutines
	// internally. The iterator still observes a single synchronous call.
	IntraParallel
)

// String returns the mode name for diagnostics.
func (m ExecutionMode) String() string {
	if m == IntraParallel {
		return "intra-parallel"
	}
	return "single-threaded"
}

// Dataset is an immutable, shareable description of a data-producing or
// data-transforming pipeline stage. A Dataset never runs anything itself;
// it is a factory for iterators plus a declared output schema.
//
// Datasets are safe to share read-only between any number of concurrently
// running iterators. A stage dataset holds a reference to its upstream
// dataset for its whole lifetime, so an iterator's existence keeps the
// entire node tree alive.
type Dataset interface {
	// MakeIterator allocates a fresh iterator positioned at the start of
	// the dataset. The prefix is the hierarchical checkpoint path assigned
	// to this iterator; nested iterators extend it with their own segment.
	// MakeIterator is deterministic and has no side effect beyond the
	// allocation. The returned iterator must be initialized before use.
	MakeIterator(prefix string) Iterator

	// OutputTypes returns the declared element types of produced records.
	OutputTypes() []DType

	// OutputShapes returns the declared element shapes of produced records.
	OutputShapes() []Shape

	// DebugLabel returns a static discriminator for diagnostics.
	DebugLabel() string
}

// Iterator is a stateful, exclusively-owned cursor realizing one Dataset at
// runtime. Iterators are created by a dataset's MakeIterator factory and
// must be initialized exactly once before the first pull.
//
// GetNext serializes internally, so an iterator may be shared by multiple
// pulling goroutines: each upstream record maps to exactly one returned
// output, though which caller receives which output is unspecified.
type Iterator interface {
	// Initialize opens upstream resources and prepares the iterator for
	// pulling. It fails if any upstream iterator or executor fails to
	// initialize.
	Initialize(ctx context.Context) error

	// GetNext pulls the next record. The boolean result reports
	// end-of-sequence: once it is true, every subsequent call returns
	// (nil, true, nil) and the returned record is always nil.
	GetNext(ctx context.Context) (Record, bool, error)

	// Save writes the iterator's position to w under its assigned path
	// prefix, recursing into upstream iterators.
	Save(w StateWriter) error

	// Restore repositions the iterator from state previously written by
	// Save on an equivalent iterator tree.
	Restore(ctx context.Context, r StateReader) error

	// Close releases the iterator and its upstream resources. Close is
	// idempotent.
	Close() error
}

// Executor runs a bound transformation on behalf of a map or filter stage.
// One executor instance is exclusively owned by one iterator.
type Executor interface {
	// Instantiate prepares resources needed to run the transformation.
	// It is called once per iterator lifetime, and again after Restore.
	Instantiate(ctx context.Context) error

	// Run executes the transformation on one record's positional
	// arguments. The bound captured values are appended after the
	// positional arguments before the body sees them.
	Run(ctx context.Context, args Record) (Record, error)

	// Captured returns the ordered closure values bound at construction.
	Captured() []Value
}

// StateWriter receives checkpoint state keyed by hierarchical path strings.
// The byte layout behind a writer is implementation-defined.
type StateWriter interface {
	WriteInt(key Name, v int64) error
	WriteValue(key Name, v Value) error
}

// StateReader yields checkpoint state previously written to the matching
// StateWriter.
type StateReader interface {
	ReadInt(key Name) (int64, error)
	ReadValue(key Name) (Value, error)
	Contains(key Name) bool
}

// StateKey joins a path prefix and a leaf name into a checkpoint key.
func StateKey(prefix string, name Name) Name {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
