package iterz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrStopIteration is the deliberate-termination signal. A map function
// may return it (or an error wrapping it) to request a controlled early
// end-of-sequence. The iterator converts the signal into a normal
// end-of-sequence result; it is never surfaced to the caller as an error.
var ErrStopIteration = errors.New("stop iteration")

// ErrNotInitialized is returned when an iterator or executor is used
// before Initialize/Instantiate.
var ErrNotInitialized = errors.New("iterator not initialized")

// ErrClosed is returned when a closed iterator is used.
var ErrClosed = errors.New("iterator closed")

// Error provides rich context about pipeline execution failures. It wraps
// the underlying error with the path of stage labels the failure crossed,
// the input record being processed, timing information and whether the
// failure was due to timeout or cancellation.
type Error struct {
	InputData Record
	Timestamp time.Time
	Err       error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface, providing a detailed error message.
func (e *Error) Error() string {
	location := strings.Join(e.Path, " -> ")
	if location == "" {
		location = "pipeline"
	}

	if e.Timeout {
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	}
	if e.Canceled {
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	}
	return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
}

// Unwrap returns the underlying error, supporting error wrapping patterns.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTimeout returns true if the error was caused by a timeout.
func (e *Error) IsTimeout() bool {
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled returns true if the error was caused by cancellation.
func (e *Error) IsCanceled() bool {
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

// stageError wraps err with this stage's label, prepending to the path of
// an already-wrapped *Error so the outermost stage appears first. The
// wrapped error is copied, never mutated: poisoned iterators hand out the
// same *Error on every pull, so writing through that pointer would corrupt
// every holder of it.
func stageError(label Name, input Record, start, now time.Time, err error) *Error {
	var pipeErr *Error
	if errors.As(err, &pipeErr) {
		wrapped := *pipeErr
		wrapped.Path = append([]Name{label}, pipeErr.Path...)
		return &wrapped
	}
	return &Error{
		Path:      []Name{label},
		InputData: input,
		Err:       err,
		Timestamp: now,
		Duration:  now.Sub(start),
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// recoverFromPanic converts a panic in a user-supplied function body into
// an error result so a panicking transformation cannot take down the
// pulling goroutine.
func recoverFromPanic(result *Record, err *error, identity Name) {
	if r := recover(); r != nil {
		*result = nil
		*err = fmt.Errorf("function %q panicked: %v", identity, r)
	}
}
