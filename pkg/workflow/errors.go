package workflow

import (
	"errors"
	"fmt"
)

// ErrSuspended is returned from a suspension call (activity, timer, signal
// wait) when the outcome is not yet available. Definition code must propagate
// it unchanged; the runtime parks the instance and re-invokes the definition
// from the top once the outcome has been recorded.
var ErrSuspended = errors.New("workflow suspended")

// ErrCanceled is delivered exactly once from a suspension call after
// cancellation has been requested. The definition may keep invoking
// activities for cleanup afterwards and should finally return ErrCanceled
// (or an error wrapping it) to finish as cancelled.
var ErrCanceled = errors.New("workflow canceled")

// ActivityError is the terminal failure of an activity invocation after its
// retry policy has been exhausted. It is recorded in history and surfaces
// identically on every replay.
type ActivityError struct {
	ActivityID string
	Name       string
	Message    string
	Attempts   int
}

func (e *ActivityError) Error() string {
	return fmt.Sprintf("activity %s failed after %d attempt(s): %s", e.Name, e.Attempts, e.Message)
}

// IsSuspended reports whether err indicates a parked workflow rather than a
// real failure.
func IsSuspended(err error) bool {
	return errors.Is(err, ErrSuspended)
}
