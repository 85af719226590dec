// Package iterz provides a lightweight library for building lazy, pull-based
// dataset pipelines in Go.
//
// # Overview
//
// iterz models a data pipeline as a tree of immutable dataset nodes. Nothing
// runs at construction time: a dataset only describes a stage. Calling
// MakeIterator produces a stateful cursor that pulls records on demand from
// its upstream iterator, so an arbitrarily long pipeline materializes one
// record at a time. Every iterator supports checkpointing, letting a consumer
// save its exact position and resume later without replaying the stream.
//
// # Core Concepts
//
// The library is built around two interfaces:
//
//	type Dataset interface {
//	    MakeIterator(prefix string) Iterator
//	    OutputTypes() []DType
//	    OutputShapes() []Shape
//	    DebugLabel() string
//	}
//
//	type Iterator interface {
//	    Initialize(ctx context.Context) error
//	    GetNext(ctx context.Context) (Record, bool, error)
//	    Save(w StateWriter) error
//	    Restore(ctx context.Context, r StateReader) error
//	    Close() error
//	}
//
// Key components:
//   - Sources: RangeDataset and SliceDataset produce records from nothing
//   - Stages: MapDataset, FilterDataset and TakeDataset wrap an upstream
//     dataset and transform, select or bound its records
//   - FuncDef: a transformation descriptor binding a function identity, a
//     body, captured values and a declared output composition
//   - Checkpoints: StateWriter/StateReader keyed by hierarchical paths, with
//     MemoryCheckpoint as the in-memory implementation
//
// Datasets are immutable and safely shared by any number of concurrently
// running iterators. Each iterator exclusively owns its upstream iterator and
// executor instance.
//
// # Usage Example
//
// Build a pipeline that doubles the even numbers below twenty:
//
//	source, _ := iterz.NewRangeDataset(0, 20, 1)
//
//	even, _ := iterz.NewFilterDataset(source, iterz.PredicateDef("even",
//	    func(_ context.Context, args iterz.Record) (bool, error) {
//	        return args[0].Int64()%2 == 0, nil
//	    }))
//
//	doubled, _ := iterz.NewMapDataset(even,
//	    iterz.MapDef("double", func(_ context.Context, args iterz.Record) (iterz.Record, error) {
//	        return iterz.Record{iterz.Int64Value(args[0].Int64() * 2)}, nil
//	    }),
//	    []iterz.DType{iterz.Int64}, []iterz.Shape{iterz.ScalarShape()})
//
//	it := doubled.MakeIterator("demo")
//	if err := it.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer it.Close()
//
//	for {
//	    rec, end, err := it.GetNext(ctx)
//	    if err != nil {
//	        return err
//	    }
//	    if end {
//	        break
//	    }
//	    fmt.Println(rec[0].Int64())
//	}
//
// # Short-Circuiting
//
// A map function declared as a pure projection of its inputs and captured
// values never runs through the executor. At construction time the planner
// turns the declared output composition into an index plan, and each pull
// assembles the output record by selecting values directly, transferring
// ownership when a value is used exactly once and copying it otherwise:
//
//	// Emits (arg1, arg0) without invoking any function body.
//	swapped, _ := iterz.NewMapDataset(pairs,
//	    iterz.ProjectionDef("swap", iterz.FromArgument(1), iterz.FromArgument(0)),
//	    pairTypes, pairShapes)
//
// # Early Termination
//
// A map function may return ErrStopIteration (or an error wrapping it) to
// request a controlled early end-of-sequence. The signal is converted into a
// normal end-of-sequence result and never surfaced as an error.
//
// # Checkpointing
//
// Save and Restore walk the iterator tree. Each iterator writes its own
// cursor under its assigned path prefix and forwards the writer to its
// upstream iterator, so a single checkpoint captures the whole pipeline:
//
//	ckpt := iterz.NewMemoryCheckpoint()
//	if err := it.Save(ckpt); err != nil { ... }
//	// later, on a fresh iterator:
//	if err := it2.Restore(ctx, ckpt); err != nil { ... }
//
// # Observability
//
// Map and filter stages expose metrics via metricz, spans via tracez and
// typed events via hookz, following the same layout as other zoobzio
// libraries. Time is read through an injectable clockz.Clock so tests can
// control timestamps.
//
// # Error Handling
//
// Failures surface as *iterz.Error carrying the stage path, the input record
// being processed, timing information and timeout/cancellation flags. There
// are no retries anywhere in the library; resilience belongs to the caller.
package iterz
