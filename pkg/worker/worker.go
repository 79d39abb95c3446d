// Package worker pulls tasks from the queue and executes them: it runs
// activities through the executor, resolves durable timers, delivers queued
// signals, and force-finishes expired instances. Any number of workers may
// share one queue; per-instance serialization happens inside the runtime.
package worker

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vextrus/vextrus-erp-sub018/internal/runtime"
	"github.com/vextrus/vextrus-erp-sub018/internal/taskqueue"
	"github.com/vextrus/vextrus-erp-sub018/pkg/activity"
	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

// Config assembles a Worker.
type Config struct {
	Runtime  *runtime.Runtime
	Queue    taskqueue.Queue
	Executor *activity.Executor

	// Observer receives activity completion callbacks; nil means none.
	Observer api.Observer
	Logger   *slog.Logger
}

// Worker processes queue tasks against the runtime.
type Worker struct {
	rt       *runtime.Runtime
	queue    taskqueue.Queue
	executor *activity.Executor
	observer api.Observer
	logger   *slog.Logger
}

// New creates a Worker from the given config.
func New(cfg Config) *Worker {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		rt:       cfg.Runtime,
		queue:    cfg.Queue,
		executor: cfg.Executor,
		observer: obs,
		logger:   logger,
	}
}

// EnqueueStartWorkflow enqueues an asynchronous workflow start. The instance
// is created when the task is processed, not at enqueue time.
func (w *Worker) EnqueueStartWorkflow(ctx context.Context, workflowType string, input any, opts api.StartOptions) error {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
		opts.ID = id
	}
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:           uuid.NewString(),
		Type:         taskqueue.TaskTypeStartWorkflow,
		InstanceID:   id,
		WorkflowType: workflowType,
		Payload:      startPayload{Input: input, Options: opts},
	})
}

// EnqueueSignal enqueues a signal delivery instead of delivering inline.
// Useful when the caller must not block on workflow progress.
func (w *Worker) EnqueueSignal(ctx context.Context, instanceID, name string, payload any) error {
	return w.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeDeliverSignal,
		InstanceID: instanceID,
		SignalName: name,
		Payload:    payload,
	})
}

// ProcessOne pulls a single task and processes it. The bool reports whether a
// task was obtained; err carries the handler outcome.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}
	return true, w.handle(ctx, task)
}

// Run processes tasks until the context is cancelled. Handler errors are
// logged and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			w.logger.Error("task_failed", slog.Any("error", err))
		}
		_ = processed
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

func (w *Worker) handle(ctx context.Context, task *taskqueue.Task) error {
	switch task.Type {
	case taskqueue.TaskTypeStartWorkflow:
		payload, ok := task.Payload.(startPayload)
		if !ok {
			return fmt.Errorf("start-workflow task %s: invalid payload %T", task.ID, task.Payload)
		}
		_, err := w.rt.Start(ctx, task.WorkflowType, payload.Input, payload.Options)
		return err

	case taskqueue.TaskTypeRunActivity:
		return w.runActivity(ctx, task)

	case taskqueue.TaskTypeTimerFired:
		return w.rt.DeliverTimerFired(ctx, task.InstanceID, task.TimerID)

	case taskqueue.TaskTypeDeliverSignal:
		return w.rt.DeliverSignal(ctx, task.InstanceID, task.SignalName, task.Payload)

	case taskqueue.TaskTypeWorkflowExpiry:
		return w.rt.ExpireWorkflow(ctx, task.InstanceID)

	default:
		return fmt.Errorf("unknown task type: %s", task.Type)
	}
}

func (w *Worker) runActivity(ctx context.Context, task *taskqueue.Task) error {
	inv := activity.Invocation{
		ActivityID: task.ActivityID,
		Name:       task.ActivityName,
		Input:      task.Payload,
	}
	if task.Options != nil {
		inv.Options = *task.Options
	}

	started := time.Now()
	res, execErr := w.executor.Execute(ctx, inv)
	w.observer.OnActivityCompleted(ctx, task.InstanceID, task.ActivityName, res.Attempts, execErr, time.Since(started))

	outcome := workflow.ActivityOutcome{
		ActivityID: task.ActivityID,
		Attempts:   res.Attempts,
	}
	if execErr != nil {
		outcome.Failed = true
		outcome.Failure = execErr.Error()
	} else {
		outcome.Result = res.Value
	}
	return w.rt.DeliverActivityOutcome(ctx, task.InstanceID, outcome)
}

// startPayload is the payload of a start-workflow task.
type startPayload struct {
	Input   any
	Options api.StartOptions
}

func init() {
	gob.Register(startPayload{})
}
