// Package runtime is the orchestration core: it owns instance state, drives
// deterministic re-invocation of workflow definitions over their recorded
// histories, and arranges follow-up work (activity tasks, durable timers,
// expiry tasks) on the task queue.
//
// All mutations of a given instance are serialized behind a per-instance
// mutex; the history store is the source of truth and the instance record is
// a queryable snapshot derived from it.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vextrus/vextrus-erp-sub018/internal/persistence"
	"github.com/vextrus/vextrus-erp-sub018/internal/taskqueue"
	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

// ErrExecutionTimeout is the failure recorded when an instance exceeds its
// execution timeout. It lives in pkg/api so persisted snapshots can be
// rehydrated with the same identity.
var ErrExecutionTimeout = api.ErrExecutionTimeout

// Config assembles a Runtime.
type Config struct {
	Definitions *workflow.Registry
	Store       persistence.Persistence
	Queue       taskqueue.Queue

	// Observer receives lifecycle callbacks; nil means none.
	Observer api.Observer
	Logger   *slog.Logger

	// Clock is overridable for tests; nil means time.Now.
	Clock func() time.Time
}

// Runtime drives workflow instances from start to terminal status.
type Runtime struct {
	defs     *workflow.Registry
	store    persistence.Persistence
	queue    taskqueue.Queue
	observer api.Observer
	logger   *slog.Logger
	clock    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a Runtime from the given config.
func New(cfg Config) *Runtime {
	obs := cfg.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Runtime{
		defs:     cfg.Definitions,
		store:    cfg.Store,
		queue:    cfg.Queue,
		observer: obs,
		logger:   logger,
		clock:    clock,
		locks:    make(map[string]*sync.Mutex),
	}
}

// lock serializes access to one instance and returns the unlock func.
func (r *Runtime) lock(instanceID string) func() {
	r.mu.Lock()
	m, ok := r.locks[instanceID]
	if !ok {
		m = &sync.Mutex{}
		r.locks[instanceID] = m
	}
	r.mu.Unlock()
	m.Lock()
	return m.Unlock
}

func (r *Runtime) getInstance(ctx context.Context, id string) (*api.WorkflowInstance, error) {
	inst, err := r.store.Instances.GetInstance(ctx, id)
	if err != nil {
		if errors.Is(err, persistence.ErrInstanceNotFound) {
			return nil, fmt.Errorf("%w: %s", api.ErrNotFound, id)
		}
		return nil, err
	}
	return inst, nil
}

// Start creates a new instance and runs it synchronously up to its first
// suspension point (or straight to completion for a definition that never
// suspends). The returned instance reflects the state after that first run.
func (r *Runtime) Start(ctx context.Context, workflowType string, input any, opts api.StartOptions) (*api.WorkflowInstance, error) {
	if _, ok := r.defs.Get(workflowType); !ok {
		return nil, fmt.Errorf("%w: workflow type %q", api.ErrNotFound, workflowType)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := r.clock()
	inst := &api.WorkflowInstance{
		ID:               id,
		RunID:            uuid.NewString(),
		Type:             workflowType,
		TenantID:         opts.TenantID,
		Status:           api.StatusRunning,
		Input:            input,
		NextSeq:          1,
		SearchAttributes: opts.SearchAttributes,
		CreatedAt:        now,
	}
	if opts.ExecutionTimeout > 0 {
		inst.ExecutionDeadline = now.Add(opts.ExecutionTimeout)
	}

	if err := r.store.Instances.SaveInstance(ctx, inst); err != nil {
		return nil, err
	}

	started := api.HistoryEvent{Seq: 1, Type: api.EventWorkflowStarted, At: now, Input: input}
	if err := r.store.History.AppendEvents(ctx, inst.ID, []api.HistoryEvent{started}); err != nil {
		return nil, err
	}
	inst.NextSeq = 2

	r.observer.OnWorkflowStart(ctx, inst)
	r.observer.OnEventRecorded(ctx, inst, started)

	if !inst.ExecutionDeadline.IsZero() {
		if err := r.enqueueExpiry(ctx, inst); err != nil {
			return nil, err
		}
	}

	unlock := r.lock(inst.ID)
	defer unlock()
	if err := r.advance(ctx, inst, nil); err != nil {
		return nil, err
	}
	return inst, nil
}

// DeliverSignal hands an external signal to an instance. If the instance is
// parked on a wait that accepts the signal, execution continues immediately;
// otherwise the signal is buffered until a matching wait point is reached.
// Signals to terminal instances are dropped.
func (r *Runtime) DeliverSignal(ctx context.Context, instanceID, name string, payload any) error {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		r.observer.OnSignalDropped(ctx, instanceID, name)
		return nil
	}

	inst.BufferedSignals = append(inst.BufferedSignals, api.SignalDelivery{
		Name:    name,
		Payload: payload,
		At:      r.clock(),
	})
	if inst.Waiting.Accepts(name) {
		return r.advance(ctx, inst, nil)
	}
	return r.store.Instances.UpdateInstance(ctx, inst)
}

// DeliverTimerFired resolves a durable timer. If the wait the timer belonged
// to has already been resolved (a signal won the race, or the instance
// finished), the firing is a structural no-op.
func (r *Runtime) DeliverTimerFired(ctx context.Context, instanceID, timerID string) error {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}
	if inst.Waiting == nil || inst.Waiting.TimerID != timerID {
		return nil
	}
	return r.advance(ctx, inst, &workflow.Delivery{TimerID: timerID})
}

// DeliverActivityOutcome feeds a finished activity invocation back into its
// instance. Duplicate deliveries for the same invocation are deduplicated by
// activity ID: only the delivery matching the currently registered wait
// advances the instance.
func (r *Runtime) DeliverActivityOutcome(ctx context.Context, instanceID string, outcome workflow.ActivityOutcome) error {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}
	if inst.Waiting == nil || inst.Waiting.Kind != api.WaitActivity || inst.Waiting.ActivityID != outcome.ActivityID {
		return nil
	}
	return r.advance(ctx, inst, &workflow.Delivery{Activity: &outcome})
}

// Cancel requests cooperative cancellation. The request is recorded in
// history and delivered to the definition exactly once at its current
// suspension point; the definition may run cleanup activities before
// finishing as cancelled.
func (r *Runtime) Cancel(ctx context.Context, instanceID string) error {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return api.ErrAlreadyTerminal
	}
	if inst.CancelRequested {
		return nil
	}
	inst.CancelRequested = true
	return r.advance(ctx, inst, &workflow.Delivery{Canceled: true})
}

// Terminate force-finishes an instance without giving the definition a
// chance to react. The instance ends as failed with the given reason.
func (r *Runtime) Terminate(ctx context.Context, instanceID, reason string) error {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return api.ErrAlreadyTerminal
	}

	termErr := fmt.Errorf("workflow terminated: %s", reason)
	ev := api.HistoryEvent{Type: api.EventWorkflowTerminated, Reason: reason}
	return r.finishForced(ctx, inst, ev, api.StatusFailed, termErr)
}

// ExpireWorkflow force-finishes an instance whose execution timeout elapsed.
// Arriving after the instance finished on its own is a no-op.
func (r *Runtime) ExpireWorkflow(ctx context.Context, instanceID string) error {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.getInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if inst.Status.Terminal() {
		return nil
	}
	if inst.ExecutionDeadline.IsZero() || r.clock().Before(inst.ExecutionDeadline) {
		return nil
	}

	ev := api.HistoryEvent{Type: api.EventWorkflowTimedOut, Reason: ErrExecutionTimeout.Error()}
	return r.finishForced(ctx, inst, ev, api.StatusTimedOut, ErrExecutionTimeout)
}

// finishForced records a terminal event the definition never sees and moves
// the instance to the given terminal status.
func (r *Runtime) finishForced(ctx context.Context, inst *api.WorkflowInstance, ev api.HistoryEvent, status api.Status, cause error) error {
	history, err := r.store.History.LoadHistory(ctx, inst.ID)
	if err != nil {
		return err
	}
	now := r.clock()
	ev.Seq = nextSeq(history, inst)
	ev.At = now
	if err := r.store.History.AppendEvents(ctx, inst.ID, []api.HistoryEvent{ev}); err != nil {
		return err
	}

	for _, s := range inst.BufferedSignals {
		r.observer.OnSignalDropped(ctx, inst.ID, s.Name)
	}
	inst.Status = status
	inst.Err = cause
	inst.Waiting = nil
	inst.BufferedSignals = nil
	inst.NextSeq = ev.Seq + 1
	inst.CompletedAt = now
	if err := r.store.Instances.UpdateInstance(ctx, inst); err != nil {
		return err
	}
	r.observer.OnEventRecorded(ctx, inst, ev)
	r.observer.OnWorkflowFinished(ctx, inst, cause)
	return nil
}

// Query replays the definition over a discarded context copy and invokes the
// named query handler. The replay never persists anything, so queries are
// side-effect free even on parked instances.
func (r *Runtime) Query(ctx context.Context, instanceID, name string, args any) (any, error) {
	unlock := r.lock(instanceID)
	defer unlock()

	inst, err := r.getInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	def, ok := r.defs.Get(inst.Type)
	if !ok {
		return nil, fmt.Errorf("%w: workflow type %q", api.ErrNotFound, inst.Type)
	}
	history, err := r.store.History.LoadHistory(ctx, inst.ID)
	if err != nil {
		return nil, err
	}

	wfctx := workflow.NewContext(workflow.ContextParams{
		InstanceID:   inst.ID,
		WorkflowType: inst.Type,
		Input:        inst.Input,
		History:      history,
		NextSeq:      nextSeq(history, inst),
		Buffered:     inst.BufferedSignals,
		Logger:       r.logger,
		Clock:        r.clock,
		StartedAt:    inst.CreatedAt,
	})
	_, _ = def(wfctx)
	if ndErr := wfctx.NondeterminismError(); ndErr != nil {
		return nil, ndErr
	}

	handler, ok := wfctx.QueryHandlers()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", api.ErrQueryUnavailable, name)
	}
	return handler(args)
}

// GetInstance returns the current instance snapshot.
func (r *Runtime) GetInstance(ctx context.Context, instanceID string) (*api.WorkflowInstance, error) {
	return r.getInstance(ctx, instanceID)
}

// GetHistory returns the recorded history in sequence order.
func (r *Runtime) GetHistory(ctx context.Context, instanceID string) ([]api.HistoryEvent, error) {
	if _, err := r.getInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	return r.store.History.LoadHistory(ctx, instanceID)
}

// List returns instance snapshots matching the filter.
func (r *Runtime) List(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowInstance, error) {
	return r.store.Instances.ListInstances(ctx, filter)
}

// Recover re-arms all running instances after a restart: pending activity and
// timer tasks are re-enqueued and expiry deadlines re-registered, without
// writing new history. Duplicate task deliveries are deduplicated downstream
// by wait token.
func (r *Runtime) Recover(ctx context.Context) error {
	running, err := r.store.Instances.ListInstances(ctx, api.ListFilter{Status: api.StatusRunning})
	if err != nil {
		return err
	}

	var firstErr error
	for _, inst := range running {
		unlock := r.lock(inst.ID)
		if !inst.ExecutionDeadline.IsZero() {
			if err := r.enqueueExpiry(ctx, inst); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		if err := r.advance(ctx, inst, nil); err != nil && firstErr == nil {
			firstErr = err
		}
		unlock()
	}
	return firstErr
}

// advance re-invokes the definition from the top over the recorded history
// plus whatever this continuation delivers, then persists the resulting
// transition: a new park, a terminal outcome, or a nondeterminism halt.
func (r *Runtime) advance(ctx context.Context, inst *api.WorkflowInstance, delivery *workflow.Delivery) error {
	def, ok := r.defs.Get(inst.Type)
	if !ok {
		return fmt.Errorf("%w: workflow type %q", api.ErrNotFound, inst.Type)
	}
	history, err := r.store.History.LoadHistory(ctx, inst.ID)
	if err != nil {
		return err
	}

	wfctx := workflow.NewContext(workflow.ContextParams{
		InstanceID:   inst.ID,
		WorkflowType: inst.Type,
		Input:        inst.Input,
		History:      history,
		NextSeq:      nextSeq(history, inst),
		Buffered:     inst.BufferedSignals,
		Delivery:     delivery,
		Logger:       r.logger,
		Clock:        r.clock,
		StartedAt:    inst.CreatedAt,
	})

	output, derr := def(wfctx)

	if ndErr := wfctx.NondeterminismError(); ndErr != nil {
		// Replay mismatch: halt for manual inspection. No new history is
		// written and the instance is never retried automatically.
		inst.Status = api.StatusFailed
		inst.Err = ndErr
		inst.Waiting = nil
		inst.CompletedAt = r.clock()
		if uerr := r.store.Instances.UpdateInstance(ctx, inst); uerr != nil {
			return uerr
		}
		r.observer.OnWorkflowFinished(ctx, inst, ndErr)
		return nil
	}

	appended := copyEvents(wfctx.AppendedEvents())

	if workflow.IsSuspended(derr) {
		cmd := wfctx.Command()
		if cmd == nil {
			return fmt.Errorf("workflow %s suspended without a park command", inst.ID)
		}
		if len(appended) > 0 {
			if err := r.store.History.AppendEvents(ctx, inst.ID, appended); err != nil {
				return err
			}
		}
		buf, _ := wfctx.RemainingBuffer()
		wait := cmd.Wait
		inst.Waiting = &wait
		inst.BufferedSignals = buf
		inst.NextSeq = wfctx.NextSeq()
		inst.CancelRequested = inst.CancelRequested || wfctx.CancelObserved()
		if err := r.store.Instances.UpdateInstance(ctx, inst); err != nil {
			return err
		}
		for _, ev := range appended {
			r.observer.OnEventRecorded(ctx, inst, ev)
		}
		return r.enqueueWait(ctx, inst, cmd)
	}

	// Terminal outcome.
	now := r.clock()
	term := api.HistoryEvent{Seq: wfctx.NextSeq(), At: now}
	var finishErr error
	switch {
	case derr == nil:
		term.Type = api.EventWorkflowCompleted
		term.Output = output
		inst.Status = api.StatusCompleted
		inst.Output = output
	case errors.Is(derr, workflow.ErrCanceled):
		term.Type = api.EventWorkflowCancelled
		inst.Status = api.StatusCancelled
	default:
		term.Type = api.EventWorkflowFailed
		term.Reason = derr.Error()
		inst.Status = api.StatusFailed
		inst.Err = derr
		finishErr = derr
	}

	events := append(appended, term)
	if err := r.store.History.AppendEvents(ctx, inst.ID, events); err != nil {
		return err
	}

	// Signals never awaited again are dropped; a late approve after the
	// decision resolved is deliberately a no-op.
	buf, _ := wfctx.RemainingBuffer()
	for _, s := range buf {
		r.observer.OnSignalDropped(ctx, inst.ID, s.Name)
	}
	inst.Waiting = nil
	inst.BufferedSignals = nil
	inst.NextSeq = term.Seq + 1
	inst.CompletedAt = now
	inst.CancelRequested = inst.CancelRequested || wfctx.CancelObserved()
	if err := r.store.Instances.UpdateInstance(ctx, inst); err != nil {
		return err
	}
	for _, ev := range events {
		r.observer.OnEventRecorded(ctx, inst, ev)
	}
	r.observer.OnWorkflowFinished(ctx, inst, finishErr)
	return nil
}

// enqueueWait arranges the follow-up work for a park command. Signal waits
// need nothing arranged; they resolve when a delivery arrives.
func (r *Runtime) enqueueWait(ctx context.Context, inst *api.WorkflowInstance, cmd *workflow.Command) error {
	switch cmd.Wait.Kind {
	case api.WaitActivity:
		opts := cmd.ActivityOptions
		return r.queue.Enqueue(ctx, taskqueue.Task{
			ID:           uuid.NewString(),
			Type:         taskqueue.TaskTypeRunActivity,
			InstanceID:   inst.ID,
			ActivityID:   cmd.Wait.ActivityID,
			ActivityName: cmd.Wait.ActivityName,
			Options:      &opts,
			Payload:      cmd.ActivityInput,
		})
	case api.WaitTimer, api.WaitRace:
		return r.queue.Enqueue(ctx, taskqueue.Task{
			ID:         uuid.NewString(),
			Type:       taskqueue.TaskTypeTimerFired,
			InstanceID: inst.ID,
			TimerID:    cmd.Wait.TimerID,
			NotBefore:  cmd.Wait.Deadline,
		})
	}
	return nil
}

func (r *Runtime) enqueueExpiry(ctx context.Context, inst *api.WorkflowInstance) error {
	return r.queue.Enqueue(ctx, taskqueue.Task{
		ID:         uuid.NewString(),
		Type:       taskqueue.TaskTypeWorkflowExpiry,
		InstanceID: inst.ID,
		NotBefore:  inst.ExecutionDeadline,
	})
}

// nextSeq derives the next sequence number from the history tail, falling
// back to the instance snapshot for an empty history.
func nextSeq(history []api.HistoryEvent, inst *api.WorkflowInstance) int64 {
	if len(history) > 0 {
		return history[len(history)-1].Seq + 1
	}
	if inst.NextSeq > 0 {
		return inst.NextSeq
	}
	return 1
}

func copyEvents(events []api.HistoryEvent) []api.HistoryEvent {
	if len(events) == 0 {
		return nil
	}
	out := make([]api.HistoryEvent, len(events))
	copy(out, events)
	return out
}
