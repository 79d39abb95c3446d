package api

import (
	"encoding/gob"
	"errors"
	"time"
)

func init() {
	gob.Register(SignalDelivery{})
	gob.Register(map[string]string{})
	gob.Register(map[string]any{})
}

// Status represents the lifecycle state of a workflow instance.
type Status string

const (
	StatusRunning   Status = "RUNNING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// Terminal reports whether s is a final status. Terminal instances never
// execute again; signals delivered to them are dropped.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusTimedOut:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when a workflow instance or definition
	// is not known to the runtime.
	ErrNotFound = errors.New("workflow not found")

	// ErrQueryUnavailable is returned when a query handler with the
	// requested name has not (yet) been registered by the definition.
	ErrQueryUnavailable = errors.New("query unavailable")

	// ErrNonDeterministic is returned when replaying a history produces a
	// command that does not match the recorded event at the same position.
	// Instances that hit this are halted for manual inspection and are
	// never retried automatically.
	ErrNonDeterministic = errors.New("non-deterministic workflow execution")

	// ErrAlreadyTerminal is returned when an operation requires a live
	// instance but the instance has already reached a terminal status.
	ErrAlreadyTerminal = errors.New("workflow already in terminal status")

	// ErrExecutionTimeout is the failure recorded when an instance exceeds
	// its execution timeout.
	ErrExecutionTimeout = errors.New("workflow execution timeout exceeded")
)

// WaitKind identifies what a parked instance is suspended on.
type WaitKind string

const (
	WaitActivity WaitKind = "ACTIVITY"
	WaitSignal   WaitKind = "SIGNAL"
	WaitTimer    WaitKind = "TIMER"
	// WaitRace is a signal wait and a timer armed together; the first
	// resolution wins and the loser becomes a structural no-op.
	WaitRace WaitKind = "RACE"
)

// WaitState describes the single suspension point a running instance is
// currently parked on. Exactly one instance-level wait is pending at a time;
// the definition body has no internal parallelism.
type WaitState struct {
	Kind WaitKind

	// For WaitActivity.
	ActivityID   string
	ActivityName string

	// For WaitSignal and WaitRace.
	SignalNames []string

	// For WaitTimer and WaitRace.
	TimerID  string
	Deadline time.Time
}

// Accepts reports whether the wait consumes a signal with the given name.
func (w *WaitState) Accepts(signal string) bool {
	if w == nil {
		return false
	}
	for _, n := range w.SignalNames {
		if n == signal {
			return true
		}
	}
	return false
}

// SignalDelivery is an externally delivered event buffered on an instance
// until a matching wait point consumes it. Signals that are never awaited
// again are dropped when the instance completes; a late approve after the
// decision has resolved is deliberately a no-op.
type SignalDelivery struct {
	Name    string
	Payload any
	At      time.Time
}

// WorkflowInstance is one running execution of a durable process.
// It is owned exclusively by the runtime and mutated only by appending
// history events and replaying them.
type WorkflowInstance struct {
	ID       string
	RunID    string
	Type     string
	TenantID string
	Status   Status

	// Input is the original typed input captured at start; it is part of
	// the deterministic replay contract and never mutated afterwards.
	Input  any
	Output any
	Err    error

	// Waiting is non-nil while the instance is parked on a suspension
	// point. NextSeq is the sequence number the next history event will
	// be assigned.
	Waiting *WaitState
	NextSeq int64

	// BufferedSignals holds deliveries that arrived while no matching
	// wait was pending.
	BufferedSignals []SignalDelivery

	CancelRequested bool

	// ExecutionDeadline, if set, is when the instance times out as a whole.
	ExecutionDeadline time.Time

	SearchAttributes map[string]string

	CreatedAt   time.Time
	CompletedAt time.Time
}

// StartOptions controls how a workflow instance is started.
type StartOptions struct {
	// ID is the workflow ID; generated if empty.
	ID       string
	TenantID string

	// ExecutionTimeout, if positive, bounds the whole instance; when it
	// elapses before completion the instance is force-finished with
	// StatusTimedOut.
	ExecutionTimeout time.Duration

	SearchAttributes map[string]string
}

// ListFilter selects instances. Zero values mean "no filter" for that field.
type ListFilter struct {
	TenantID string
	Status   Status
	Type     string
}

// WorkflowSummary is the listing projection of an instance.
type WorkflowSummary struct {
	ID          string
	RunID       string
	Type        string
	TenantID    string
	Status      Status
	CreatedAt   time.Time
	CompletedAt time.Time
}

// Summary returns the listing projection of the instance.
func (w *WorkflowInstance) Summary() WorkflowSummary {
	return WorkflowSummary{
		ID:          w.ID,
		RunID:       w.RunID,
		Type:        w.Type,
		TenantID:    w.TenantID,
		Status:      w.Status,
		CreatedAt:   w.CreatedAt,
		CompletedAt: w.CompletedAt,
	}
}

// RetryPolicy controls how an activity invocation is retried when it
// returns an error or exceeds its per-attempt timeout.
//
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// Backoff between attempts is exponential: InitialBackoff grows by
// BackoffMultiplier per attempt (default 2.0), capped at MaxBackoff.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// ActivityOptions bundles per-invocation execution settings.
type ActivityOptions struct {
	// Timeout bounds each individual attempt, not the whole invocation.
	Timeout time.Duration
	Retry   *RetryPolicy
}

// DefaultRetryPolicy is applied when an activity is invoked without an
// explicit policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
	}
}
