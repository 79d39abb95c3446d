package taskqueue

import (
	"context"
	"time"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// TaskType identifies what the worker should do with a dequeued task.
type TaskType string

const (
	// TaskTypeStartWorkflow runs a freshly created instance up to its first
	// suspension point.
	TaskTypeStartWorkflow TaskType = "start-workflow"

	// TaskTypeRunActivity executes one activity invocation and feeds the
	// outcome back into the owning instance.
	TaskTypeRunActivity TaskType = "run-activity"

	// TaskTypeTimerFired resolves a durable timer. The task rides the queue
	// with NotBefore set to the timer's deadline.
	TaskTypeTimerFired TaskType = "timer-fired"

	// TaskTypeDeliverSignal delivers an external signal to an instance.
	TaskTypeDeliverSignal TaskType = "deliver-signal"

	// TaskTypeWorkflowExpiry force-finishes an instance whose execution
	// timeout has elapsed.
	TaskTypeWorkflowExpiry TaskType = "workflow-expiry"
)

// Task is one unit of work for the worker. Fields beyond ID/Type/InstanceID
// are task-type specific; unused fields stay zero.
type Task struct {
	ID   string
	Type TaskType

	// InstanceID is set on every task type; for start-workflow the instance
	// record already exists when the task is enqueued.
	InstanceID string

	// For start-workflow.
	WorkflowType string

	// For run-activity.
	ActivityID   string
	ActivityName string
	Options      *api.ActivityOptions

	// For timer-fired.
	TimerID string

	// For deliver-signal.
	SignalName string

	// Payload carries the workflow input (start-workflow), activity input
	// (run-activity) or signal payload (deliver-signal).
	Payload any

	EnqueuedAt time.Time

	// NotBefore is the earliest time this task is eligible for processing.
	// Zero means immediately. Durable timers and execution timeouts are
	// plain tasks with NotBefore set to their deadline.
	NotBefore time.Time
}

// Queue is the async task queue the runtime and worker communicate over.
type Queue interface {
	// Enqueue adds a task to the queue. It should respect ctx for
	// cancellation.
	Enqueue(ctx context.Context, t Task) error

	// Dequeue removes and returns the next eligible task, blocking until
	// one becomes available or the context is cancelled. A task with a
	// future NotBefore is held back until its time arrives.
	Dequeue(ctx context.Context) (*Task, error)

	// Len returns the approximate number of tasks queued, including tasks
	// not yet eligible.
	Len() int
}
