package api

import "time"

// EventType identifies a recorded history event.
type EventType string

const (
	EventWorkflowStarted EventType = "workflow.started"

	EventActivityScheduled EventType = "activity.scheduled"
	EventActivityCompleted EventType = "activity.completed"
	EventActivityFailed    EventType = "activity.failed"

	EventTimerStarted EventType = "timer.started"
	EventTimerFired   EventType = "timer.fired"

	EventSignalReceived EventType = "signal.received"

	EventWorkflowCancelRequested EventType = "workflow.cancel_requested"

	EventWorkflowCompleted  EventType = "workflow.completed"
	EventWorkflowFailed     EventType = "workflow.failed"
	EventWorkflowCancelled  EventType = "workflow.cancelled"
	EventWorkflowTerminated EventType = "workflow.terminated"
	EventWorkflowTimedOut   EventType = "workflow.timed_out"
)

// HistoryEvent is one entry in an instance's append-only history.
//
// Seq numbers start at 1 and totally order all suspension resolutions of an
// instance. Replaying the history from Seq 1 in order must reproduce the
// identical in-memory workflow state; this is the core correctness contract
// of the runtime.
//
// The struct is a flat tagged union: Type selects which of the optional
// field groups are meaningful. Payload-carrying fields hold gob-encodable
// values.
type HistoryEvent struct {
	Seq  int64
	Type EventType

	// At is the wall-clock time the event was first recorded. During
	// replay it doubles as the deterministic clock: workflow code never
	// reads time.Now directly.
	At time.Time

	// Activity events.
	ActivityID   string
	ActivityName string
	Input        any
	Result       any
	Failure      string
	Attempts     int

	// Timer events.
	TimerID  string
	Duration time.Duration
	Deadline time.Time

	// Signal events.
	SignalName string
	Payload    any

	// Terminal workflow events.
	Output any
	Reason string
}
