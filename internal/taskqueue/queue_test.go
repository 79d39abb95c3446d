package taskqueue

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

func TestInMemoryQueue_EnqueueDequeueOrder(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	t1 := Task{ID: "1", Type: TaskTypeStartWorkflow, WorkflowType: "wf1"}
	t2 := Task{ID: "2", Type: TaskTypeStartWorkflow, WorkflowType: "wf2"}
	t3 := Task{ID: "3", Type: TaskTypeStartWorkflow, WorkflowType: "wf3"}

	for _, task := range []Task{t1, t2, t3} {
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue %s failed: %v", task.ID, err)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("expected Len 3, got %d", q.Len())
	}

	got1, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 1 failed: %v", err)
	}
	got2, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 2 failed: %v", err)
	}
	got3, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 3 failed: %v", err)
	}

	if got1.ID != "1" || got2.ID != "2" || got3.ID != "3" {
		t.Fatalf("unexpected dequeue order: %q, %q, %q", got1.ID, got2.ID, got3.ID)
	}
	if q.Len() != 0 {
		t.Fatalf("expected Len 0 after dequeues, got %d", q.Len())
	}
}

func TestInMemoryQueue_NotBeforeHoldsTaskBack(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	delayed := Task{
		ID:        "timer",
		Type:      TaskTypeTimerFired,
		TimerID:   "timer-3",
		NotBefore: time.Now().Add(60 * time.Millisecond),
	}
	immediate := Task{ID: "now", Type: TaskTypeDeliverSignal, SignalName: "approve"}

	if err := q.Enqueue(ctx, delayed); err != nil {
		t.Fatalf("Enqueue delayed: %v", err)
	}
	if err := q.Enqueue(ctx, immediate); err != nil {
		t.Fatalf("Enqueue immediate: %v", err)
	}

	// The immediate task overtakes the delayed one.
	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 1: %v", err)
	}
	if got.ID != "now" {
		t.Fatalf("expected immediate task first, got %q", got.ID)
	}

	start := time.Now()
	got, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 2: %v", err)
	}
	if got.ID != "timer" {
		t.Fatalf("expected timer task, got %q", got.ID)
	}
	if waited := time.Since(start); waited < 30*time.Millisecond {
		t.Fatalf("timer task delivered too early, waited only %v", waited)
	}
}

func TestInMemoryQueue_PendingExposesNotYetDueTasks(t *testing.T) {
	q := NewInMemoryQueue()
	ctx := context.Background()

	timer := Task{
		ID:        "timer",
		Type:      TaskTypeTimerFired,
		TimerID:   "timer-3",
		NotBefore: time.Now().Add(time.Hour),
	}
	immediate := Task{ID: "now", Type: TaskTypeDeliverSignal, SignalName: "approve"}

	if err := q.Enqueue(ctx, timer); err != nil {
		t.Fatalf("Enqueue timer: %v", err)
	}
	if err := q.Enqueue(ctx, immediate); err != nil {
		t.Fatalf("Enqueue immediate: %v", err)
	}

	pending := q.Pending()
	if len(pending) != 2 {
		t.Fatalf("expected 2 pending tasks, got %+v", pending)
	}
	if pending[0].ID != "now" || pending[1].ID != "timer" {
		t.Fatalf("unexpected pending order: %q, %q", pending[0].ID, pending[1].ID)
	}
	if pending[1].TimerID != "timer-3" {
		t.Fatalf("timer task fields not preserved: %+v", pending[1])
	}

	// Inspection does not consume: the due task still dequeues, the future
	// one stays behind.
	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.ID != "now" {
		t.Fatalf("expected immediate task, got %q", got.ID)
	}
	if rest := q.Pending(); len(rest) != 1 || rest[0].ID != "timer" {
		t.Fatalf("expected the future timer to remain pending, got %+v", rest)
	}
}

func TestInMemoryQueue_DequeueHonorsContextCancellation(t *testing.T) {
	q := NewInMemoryQueue()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// No tasks enqueued, Dequeue should return ctx error.
	if _, err := q.Dequeue(ctx); err == nil {
		t.Fatalf("expected Dequeue to fail due to context cancellation")
	}
}

func newSQLiteQueue(t *testing.T) *SQLiteQueue {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	q, err := NewSQLiteQueue(db)
	if err != nil {
		t.Fatalf("NewSQLiteQueue: %v", err)
	}
	return q
}

func TestSQLiteQueue_RoundTripsAllFields(t *testing.T) {
	q := newSQLiteQueue(t)
	ctx := context.Background()

	task := Task{
		ID:           "task-1",
		Type:         TaskTypeRunActivity,
		InstanceID:   "wf-1",
		ActivityID:   "act-2",
		ActivityName: "NotifyApprover",
		Options: &api.ActivityOptions{
			Timeout: 5 * time.Second,
			Retry:   &api.RetryPolicy{MaxAttempts: 2, InitialBackoff: time.Second},
		},
		Payload: "payload",
	}
	if err := q.Enqueue(ctx, task); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if got.ID != "task-1" || got.Type != TaskTypeRunActivity {
		t.Fatalf("unexpected task identity: %+v", got)
	}
	if got.InstanceID != "wf-1" || got.ActivityID != "act-2" || got.ActivityName != "NotifyApprover" {
		t.Fatalf("unexpected routing fields: %+v", got)
	}
	if got.Options == nil || got.Options.Timeout != 5*time.Second {
		t.Fatalf("options not round-tripped: %+v", got.Options)
	}
	if got.Options.Retry == nil || got.Options.Retry.MaxAttempts != 2 {
		t.Fatalf("retry policy not round-tripped: %+v", got.Options.Retry)
	}
	if got.Payload != "payload" {
		t.Fatalf("payload not round-tripped: %v", got.Payload)
	}
}

func TestSQLiteQueue_NotBeforeOrdering(t *testing.T) {
	q := newSQLiteQueue(t)
	ctx := context.Background()

	later := Task{ID: "later", Type: TaskTypeTimerFired, NotBefore: time.Now().Add(80 * time.Millisecond)}
	sooner := Task{ID: "sooner", Type: TaskTypeDeliverSignal}

	if err := q.Enqueue(ctx, later); err != nil {
		t.Fatalf("Enqueue later: %v", err)
	}
	if err := q.Enqueue(ctx, sooner); err != nil {
		t.Fatalf("Enqueue sooner: %v", err)
	}
	if q.Len() != 2 {
		t.Fatalf("expected Len 2, got %d", q.Len())
	}

	got, err := q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 1: %v", err)
	}
	if got.ID != "sooner" {
		t.Fatalf("expected eligible task first, got %q", got.ID)
	}

	got, err = q.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue 2: %v", err)
	}
	if got.ID != "later" {
		t.Fatalf("expected delayed task second, got %q", got.ID)
	}
}
