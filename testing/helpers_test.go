package testing

import (
	"context"
	"errors"
	"testing"

	"github.com/zoobzio/iterz"
)

func TestScriptedDataset_YieldsScript(t *testing.T) {
	source := NewScriptedDataset(
		iterz.Record{iterz.Int64Value(1)},
		iterz.Record{iterz.Int64Value(2)},
	)

	it := source.MakeIterator("test")
	if err := it.Initialize(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer it.Close()

	got := CollectInt64s(t, it)
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Expected [1 2], got %v", got)
	}
	AssertPulled(t, source, 3) // two records plus the end-of-sequence pull
}

func TestScriptedDataset_InjectsError(t *testing.T) {
	boom := errors.New("boom")
	source := NewScriptedDataset(
		iterz.Record{iterz.Int64Value(1)},
		iterz.Record{iterz.Int64Value(2)},
	).WithErrorAt(1, boom)

	it := source.MakeIterator("test")
	if err := it.Initialize(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer it.Close()

	if _, _, err := it.GetNext(context.Background()); err != nil {
		t.Fatalf("Expected no error on first pull, got %v", err)
	}
	if _, _, err := it.GetNext(context.Background()); !errors.Is(err, boom) {
		t.Errorf("Expected injected error, got %v", err)
	}
}

func TestScriptedDataset_SaveRestore(t *testing.T) {
	source := NewScriptedDataset(
		iterz.Record{iterz.Int64Value(1)},
		iterz.Record{iterz.Int64Value(2)},
		iterz.Record{iterz.Int64Value(3)},
	)

	it := source.MakeIterator("ckpt")
	if err := it.Initialize(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer it.Close()

	if _, _, err := it.GetNext(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	ckpt := iterz.NewMemoryCheckpoint()
	if err := it.Save(ckpt); err != nil {
		t.Fatalf("Expected no error from Save, got %v", err)
	}

	restored := source.MakeIterator("ckpt")
	if err := restored.Initialize(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer restored.Close()
	if err := restored.Restore(context.Background(), ckpt); err != nil {
		t.Fatalf("Expected no error from Restore, got %v", err)
	}

	got := CollectInt64s(t, restored)
	if len(got) != 2 || got[0] != 2 || got[1] != 3 {
		t.Errorf("Expected [2 3], got %v", got)
	}
}

func TestScriptedDataset_WorksUnderMapStage(t *testing.T) {
	source := NewScriptedDataset(
		iterz.Record{iterz.Int64Value(3)},
		iterz.Record{iterz.Int64Value(4)},
	)

	def := iterz.MapDef("square", func(_ context.Context, args iterz.Record) (iterz.Record, error) {
		v := args[0].Int64()
		return iterz.Record{iterz.Int64Value(v * v)}, nil
	})
	mapped, err := iterz.NewMapDataset(source, def,
		[]iterz.DType{iterz.Int64}, []iterz.Shape{iterz.ScalarShape()})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer mapped.Close()

	it := mapped.MakeIterator("test")
	if err := it.Initialize(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	defer it.Close()

	got := CollectInt64s(t, it)
	if len(got) != 2 || got[0] != 9 || got[1] != 16 {
		t.Errorf("Expected [9 16], got %v", got)
	}
}
