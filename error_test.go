package iterz

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestError_MessageIncludesPath(t *testing.T) {
	err := &Error{
		Path:     []Name{"MapDataset", "RangeDataset"},
		Err:      errors.New("boom"),
		Duration: time.Millisecond,
	}

	msg := err.Error()
	if !strings.Contains(msg, "MapDataset -> RangeDataset") {
		t.Errorf("Expected path in message, got %q", msg)
	}
	if !strings.Contains(msg, "boom") {
		t.Errorf("Expected cause in message, got %q", msg)
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := &Error{Err: cause}

	if !errors.Is(err, cause) {
		t.Error("Expected errors.Is to find the cause")
	}
}

func TestError_TimeoutAndCancellationDetection(t *testing.T) {
	timeoutErr := &Error{Err: context.DeadlineExceeded}
	if !timeoutErr.IsTimeout() {
		t.Error("Expected IsTimeout for DeadlineExceeded cause")
	}

	canceledErr := &Error{Err: context.Canceled}
	if !canceledErr.IsCanceled() {
		t.Error("Expected IsCanceled for Canceled cause")
	}
}

func TestStageError_PrependsPath(t *testing.T) {
	now := time.Now()
	inner := stageError("RangeDataset", nil, now, now, errors.New("boom"))
	outer := stageError("MapDataset", nil, now, now, inner)

	if len(outer.Path) != 2 || outer.Path[0] != "MapDataset" || outer.Path[1] != "RangeDataset" {
		t.Errorf("Expected path [MapDataset RangeDataset], got %v", outer.Path)
	}
}

func TestStageError_WrappingLeavesInnerErrorIntact(t *testing.T) {
	now := time.Now()
	inner := stageError("RangeDataset", nil, now, now, errors.New("boom"))

	first := stageError("MapDataset", nil, now, now, inner)
	second := stageError("MapDataset", nil, now, now, inner)

	if len(inner.Path) != 1 || inner.Path[0] != "RangeDataset" {
		t.Errorf("Expected inner path [RangeDataset] to be untouched, got %v", inner.Path)
	}
	if len(first.Path) != 2 || len(second.Path) != 2 {
		t.Fatalf("Expected both wrapped paths to have 2 entries, got %v and %v", first.Path, second.Path)
	}
	for i := range first.Path {
		if first.Path[i] != second.Path[i] {
			t.Errorf("Expected identical paths from repeated wrapping, got %v and %v", first.Path, second.Path)
		}
	}
}

func TestStageError_FlagsCancellation(t *testing.T) {
	now := time.Now()
	err := stageError("MapDataset", nil, now, now, context.Canceled)

	if !err.Canceled {
		t.Error("Expected Canceled flag set")
	}
	if err.Timeout {
		t.Error("Expected Timeout flag unset")
	}
}
