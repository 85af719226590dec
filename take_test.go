package iterz

import (
	"context"
	"testing"
)

func TestTakeDataset_BoundsUpstream(t *testing.T) {
	source, _ := NewRangeDataset(0, 100, 1)
	taken, err := NewTakeDataset(source, 3)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	it := openIterator(t, taken, "test")
	defer it.Close()

	got := drainInt64s(t, it)
	if len(got) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(got))
	}
	for i := range got {
		if got[i] != int64(i) {
			t.Errorf("Expected record %d to be %d, got %d", i, i, got[i])
		}
	}
}

func TestTakeDataset_NegativeCountTakesAll(t *testing.T) {
	source, _ := NewRangeDataset(0, 5, 1)
	taken, err := NewTakeDataset(source, -1)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	it := openIterator(t, taken, "test")
	defer it.Close()

	if got := drainInt64s(t, it); len(got) != 5 {
		t.Errorf("Expected 5 records, got %d", len(got))
	}
}

func TestTakeDataset_ZeroCountEndsImmediately(t *testing.T) {
	source, _ := NewRangeDataset(0, 5, 1)
	taken, _ := NewTakeDataset(source, 0)

	it := openIterator(t, taken, "test")
	defer it.Close()

	rec, end, err := it.GetNext(context.Background())
	if err != nil || !end || rec != nil {
		t.Errorf("Expected immediate end-of-sequence, got (%v, %t, %v)", rec, end, err)
	}
}

func TestTakeDataset_ShortUpstreamEndsEarly(t *testing.T) {
	source, _ := NewRangeDataset(0, 2, 1)
	taken, _ := NewTakeDataset(source, 10)

	it := openIterator(t, taken, "test")
	defer it.Close()

	if got := drainInt64s(t, it); len(got) != 2 {
		t.Errorf("Expected 2 records from short upstream, got %d", len(got))
	}
}

func TestTakeDataset_NilInputFailsConstruction(t *testing.T) {
	if _, err := NewTakeDataset(nil, 3); err == nil {
		t.Fatal("Expected error for nil input")
	}
}

func TestTakeDataset_CountsRecordsAndEndOfSequence(t *testing.T) {
	source, _ := NewRangeDataset(0, 100, 1)
	taken, err := NewTakeDataset(source, 4)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	it := openIterator(t, taken, "test")
	defer it.Close()

	drainInt64s(t, it)
	if _, _, err := it.GetNext(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if got := taken.Metrics().Counter(TakeRecordsTotal).Value(); got != 4 {
		t.Errorf("Expected 4 records counted, got %f", got)
	}
	if got := taken.Metrics().Counter(TakeEndOfSequenceTotal).Value(); got != 1 {
		t.Errorf("Expected 1 end-of-sequence transition, got %f", got)
	}
}

func TestTakeDataset_SaveRestoreRoundTrip(t *testing.T) {
	build := func() Dataset {
		source, _ := NewRangeDataset(0, 100, 1)
		taken, err := NewTakeDataset(source, 6)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		return taken
	}

	it := openIterator(t, build(), "ckpt")
	defer it.Close()
	for i := 0; i < 4; i++ {
		if _, _, err := it.GetNext(context.Background()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	ckpt := NewMemoryCheckpoint()
	if err := it.Save(ckpt); err != nil {
		t.Fatalf("Expected no error from Save, got %v", err)
	}

	restored := openIterator(t, build(), "ckpt")
	defer restored.Close()
	if err := restored.Restore(context.Background(), ckpt); err != nil {
		t.Fatalf("Expected no error from Restore, got %v", err)
	}

	got := drainInt64s(t, restored)
	if len(got) != 2 || got[0] != 4 || got[1] != 5 {
		t.Errorf("Expected [4 5], got %v", got)
	}
}
