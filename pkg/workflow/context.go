package workflow

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// QueryHandler is a read-only accessor into a definition's current state.
// Handlers must not mutate workflow state and never suspend.
type QueryHandler func(args any) (any, error)

// Signal is a consumed external event.
type Signal struct {
	Name    string
	Payload any
}

// Resolution is the outcome of a race between a signal wait and a timer.
// Exactly one of TimedOut / Signal is set; the losing branch is moot and a
// later arrival of it is a structural no-op.
type Resolution struct {
	TimedOut bool
	Signal   *Signal
}

// ActivityOutcome is an activity result handed to a continuation by the
// runtime. Failed selects between the Result and Failure fields.
type ActivityOutcome struct {
	ActivityID string
	Result     any
	Failure    string
	Attempts   int
	Failed     bool
}

// Delivery carries at most one external resolution into a single
// re-invocation of the definition: a fired timer, a finished activity, or a
// pending cancellation. Signals travel separately through the instance's
// buffer.
type Delivery struct {
	TimerID  string
	Activity *ActivityOutcome
	Canceled bool
}

// Command describes what the runtime must arrange after the definition
// parked: the wait to register and, for activities, what to enqueue.
type Command struct {
	Wait api.WaitState

	// Rearm is set when the intent event was recorded by an earlier
	// invocation (crash recovery); the wait must be re-registered and the
	// pending activity or timer task re-enqueued, but no new history is
	// written. Duplicate outcome deliveries are deduplicated by wait token.
	Rearm bool

	// For activity commands.
	ActivityInput   any
	ActivityOptions api.ActivityOptions
}

// Context is the single-threaded deterministic execution context handed to a
// workflow definition. The definition must be a pure function of its input
// and the recorded history: no wall-clock reads, no randomness, no direct
// I/O. All effects go through ExecuteActivity and are recorded once.
//
// Internally the context is a cursor over the recorded history. Suspension
// calls first consume recorded events (replay); at the frontier they record
// an intent event, set the park command, and return ErrSuspended.
type Context struct {
	instanceID   string
	workflowType string
	input        any
	logger       *slog.Logger
	clock        func() time.Time

	history []api.HistoryEvent
	cursor  int
	nextSeq int64
	// appended counts events recorded by this invocation (history tail).
	appended int

	buffer         []api.SignalDelivery
	bufferConsumed bool

	delivery *Delivery
	command  *Command

	queryHandlers map[string]QueryHandler

	cancelConsumed bool
	nondetErr      error

	now time.Time
}

// ContextParams configures a Context for one invocation of a definition.
// It is constructed by the runtime; definition code never sees it.
type ContextParams struct {
	InstanceID   string
	WorkflowType string
	Input        any
	History      []api.HistoryEvent
	NextSeq      int64
	Buffered     []api.SignalDelivery
	Delivery     *Delivery
	Logger       *slog.Logger
	Clock        func() time.Time
	StartedAt    time.Time
}

// NewContext builds a fresh execution context over the recorded history.
func NewContext(p ContextParams) *Context {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	buf := make([]api.SignalDelivery, len(p.Buffered))
	copy(buf, p.Buffered)
	c := &Context{
		instanceID:    p.InstanceID,
		workflowType:  p.WorkflowType,
		input:         p.Input,
		logger:        logger,
		clock:         clock,
		history:       p.History,
		nextSeq:       p.NextSeq,
		buffer:        buf,
		delivery:      p.Delivery,
		queryHandlers: make(map[string]QueryHandler),
		now:           p.StartedAt,
	}
	// The leading start event is bookkeeping, not a suspension outcome; no
	// operation consumes it, so the cursor skips past it.
	if len(c.history) > 0 && c.history[0].Type == api.EventWorkflowStarted {
		c.cursor = 1
		c.now = c.history[0].At
	}
	return c
}

// WorkflowID returns the instance's workflow ID.
func (c *Context) WorkflowID() string { return c.instanceID }

// WorkflowType returns the registered definition name.
func (c *Context) WorkflowType() string { return c.workflowType }

// Input returns the input captured at start.
func (c *Context) Input() any { return c.input }

// Logger returns a logger scoped to the instance. Log output is a side
// channel and carries no replay obligations.
func (c *Context) Logger() *slog.Logger {
	return c.logger.With(slog.String("workflow_id", c.instanceID))
}

// Now returns the deterministic workflow clock: the recording time of the
// most recently consumed history event. It is stable across replays.
func (c *Context) Now() time.Time { return c.now }

// SetQueryHandler registers a read-only accessor invocable at any time via
// the client without affecting execution or history. Registration happens on
// every (re-)invocation, so handlers close over the freshest state.
func (c *Context) SetQueryHandler(name string, fn QueryHandler) {
	c.queryHandlers[name] = fn
}

// ExecuteActivity invokes a named side-effecting operation with at-least-once
// semantics. The invocation appears exactly once in history even though the
// physical operation may run more than once; activities with irreversible
// effects must be idempotent with respect to the supplied invocation key.
//
// The call suspends until the result or terminal failure is recorded. A
// terminal failure surfaces as *ActivityError.
func (c *Context) ExecuteActivity(name string, input any, opts ...api.ActivityOptions) (any, error) {
	if c.command != nil {
		return nil, ErrSuspended
	}
	if c.takeRecordedCancel() {
		return nil, ErrCanceled
	}

	opt := api.ActivityOptions{}
	if len(opts) > 0 {
		opt = opts[0]
	}

	if ev := c.peek(); ev != nil {
		if ev.Type != api.EventActivityScheduled || ev.ActivityName != name {
			return nil, c.nondeterminism(fmt.Sprintf("ExecuteActivity(%q)", name), ev)
		}
		intent := c.take()
		return c.resolveActivity(intent, opt)
	}

	if c.injectCancel() {
		return nil, ErrCanceled
	}

	activityID := fmt.Sprintf("act-%d", c.nextSeq)
	intent := c.record(api.HistoryEvent{
		Type:         api.EventActivityScheduled,
		ActivityID:   activityID,
		ActivityName: name,
		Input:        input,
	})
	c.park(&Command{
		Wait: api.WaitState{
			Kind:         api.WaitActivity,
			ActivityID:   intent.ActivityID,
			ActivityName: name,
		},
		ActivityInput:   input,
		ActivityOptions: opt,
	})
	return nil, ErrSuspended
}

func (c *Context) resolveActivity(intent api.HistoryEvent, opt api.ActivityOptions) (any, error) {
	if c.takeRecordedCancel() {
		return nil, ErrCanceled
	}
	if out := c.peek(); out != nil {
		switch out.Type {
		case api.EventActivityCompleted:
			if out.ActivityID != intent.ActivityID {
				return nil, c.nondeterminism(fmt.Sprintf("activity %q outcome", intent.ActivityName), out)
			}
			o := c.take()
			return o.Result, nil
		case api.EventActivityFailed:
			if out.ActivityID != intent.ActivityID {
				return nil, c.nondeterminism(fmt.Sprintf("activity %q outcome", intent.ActivityName), out)
			}
			o := c.take()
			return nil, &ActivityError{
				ActivityID: o.ActivityID,
				Name:       intent.ActivityName,
				Message:    o.Failure,
				Attempts:   o.Attempts,
			}
		default:
			return nil, c.nondeterminism(fmt.Sprintf("activity %q outcome", intent.ActivityName), out)
		}
	}

	// Intent recorded, outcome missing: either the runtime handed us the
	// outcome in this invocation, or we re-park (crash recovery).
	if d := c.delivery; d != nil && d.Activity != nil && d.Activity.ActivityID == intent.ActivityID {
		out := d.Activity
		c.delivery = nil
		if out.Failed {
			c.record(api.HistoryEvent{
				Type:         api.EventActivityFailed,
				ActivityID:   intent.ActivityID,
				ActivityName: intent.ActivityName,
				Failure:      out.Failure,
				Attempts:     out.Attempts,
			})
			return nil, &ActivityError{
				ActivityID: intent.ActivityID,
				Name:       intent.ActivityName,
				Message:    out.Failure,
				Attempts:   out.Attempts,
			}
		}
		c.record(api.HistoryEvent{
			Type:         api.EventActivityCompleted,
			ActivityID:   intent.ActivityID,
			ActivityName: intent.ActivityName,
			Result:       out.Result,
			Attempts:     out.Attempts,
		})
		return out.Result, nil
	}

	if c.injectCancel() {
		return nil, ErrCanceled
	}

	c.park(&Command{
		Rearm: true,
		Wait: api.WaitState{
			Kind:         api.WaitActivity,
			ActivityID:   intent.ActivityID,
			ActivityName: intent.ActivityName,
		},
		ActivityInput:   intent.Input,
		ActivityOptions: opt,
	})
	return nil, ErrSuspended
}

// Sleep suspends the workflow for the given duration of logical time.
// Replay reproduces the elapsed-time outcome without re-waiting.
func (c *Context) Sleep(d time.Duration) error {
	if c.command != nil {
		return ErrSuspended
	}
	if c.takeRecordedCancel() {
		return ErrCanceled
	}

	if ev := c.peek(); ev != nil {
		if ev.Type != api.EventTimerStarted {
			return c.nondeterminism(fmt.Sprintf("Sleep(%s)", d), ev)
		}
		intent := c.take()
		res, err := c.resolveTimerWait(intent, nil)
		if err != nil {
			return err
		}
		if !res.TimedOut {
			return c.nondeterminism(fmt.Sprintf("Sleep(%s) resolution", d), nil)
		}
		return nil
	}

	if c.injectCancel() {
		return ErrCanceled
	}

	intent := c.startTimer(d)
	c.park(&Command{
		Wait: api.WaitState{
			Kind:     api.WaitTimer,
			TimerID:  intent.TimerID,
			Deadline: intent.Deadline,
		},
	})
	return ErrSuspended
}

// WaitSignal suspends until a signal with any of the given names is
// delivered. A matching buffered signal is consumed immediately without
// suspending. Consumption is recorded as a SignalReceived event, so a given
// delivery resolves at most one wait point.
func (c *Context) WaitSignal(names ...string) (*Signal, error) {
	if c.command != nil {
		return nil, ErrSuspended
	}
	if c.takeRecordedCancel() {
		return nil, ErrCanceled
	}

	if ev := c.peek(); ev != nil {
		if ev.Type != api.EventSignalReceived || !containsName(names, ev.SignalName) {
			return nil, c.nondeterminism(fmt.Sprintf("WaitSignal(%v)", names), ev)
		}
		s := c.take()
		return &Signal{Name: s.SignalName, Payload: s.Payload}, nil
	}

	if s, ok := c.consumeBuffered(names); ok {
		return s, nil
	}
	if c.injectCancel() {
		return nil, ErrCanceled
	}

	c.park(&Command{
		Wait: api.WaitState{
			Kind:        api.WaitSignal,
			SignalNames: names,
		},
	})
	return nil, ErrSuspended
}

// RaceSignalTimer races exactly one signal wait against one timer: the first
// event to resolve determines the transition. The timer is recorded as a
// TimerStarted/TimerFired pair; once one branch resolves the other is moot
// and must not resolve the decision a second time.
func (c *Context) RaceSignalTimer(timeout time.Duration, names ...string) (*Resolution, error) {
	if c.command != nil {
		return nil, ErrSuspended
	}
	if c.takeRecordedCancel() {
		return nil, ErrCanceled
	}

	if ev := c.peek(); ev != nil {
		switch ev.Type {
		case api.EventSignalReceived:
			// Signal won at the frontier before the timer was armed.
			if !containsName(names, ev.SignalName) {
				return nil, c.nondeterminism(fmt.Sprintf("RaceSignalTimer(%v)", names), ev)
			}
			s := c.take()
			return &Resolution{Signal: &Signal{Name: s.SignalName, Payload: s.Payload}}, nil
		case api.EventTimerStarted:
			intent := c.take()
			return c.resolveTimerWait(intent, names)
		default:
			return nil, c.nondeterminism(fmt.Sprintf("RaceSignalTimer(%v)", names), ev)
		}
	}

	if s, ok := c.consumeBuffered(names); ok {
		return &Resolution{Signal: s}, nil
	}
	if c.injectCancel() {
		return nil, ErrCanceled
	}

	intent := c.startTimer(timeout)
	c.park(&Command{
		Wait: api.WaitState{
			Kind:        api.WaitRace,
			SignalNames: names,
			TimerID:     intent.TimerID,
			Deadline:    intent.Deadline,
		},
	})
	return nil, ErrSuspended
}

// DrainSignals consumes and discards every signal with one of the given
// names that is already recorded at the cursor or sitting in the buffer.
// Call it after a wait resolves so stale duplicates (a double-submitted
// approve) cannot satisfy the next wait point. It never suspends and returns
// the number of signals discarded. Drained consumptions are recorded, so
// replay reproduces the same discards.
func (c *Context) DrainSignals(names ...string) int {
	if c.command != nil {
		return 0
	}
	var n int
	for {
		if ev := c.peek(); ev != nil {
			if ev.Type != api.EventSignalReceived || !containsName(names, ev.SignalName) {
				return n
			}
			c.take()
			n++
			continue
		}
		if _, ok := c.consumeBuffered(names); ok {
			n++
			continue
		}
		return n
	}
}

// resolveTimerWait handles the portion of Sleep / RaceSignalTimer after the
// TimerStarted intent has been consumed. names is nil for a pure sleep.
func (c *Context) resolveTimerWait(intent api.HistoryEvent, names []string) (*Resolution, error) {
	if c.takeRecordedCancel() {
		return nil, ErrCanceled
	}
	if out := c.peek(); out != nil {
		switch out.Type {
		case api.EventTimerFired:
			if out.TimerID != intent.TimerID {
				return nil, c.nondeterminism("timer resolution for "+intent.TimerID, out)
			}
			c.take()
			return &Resolution{TimedOut: true}, nil
		case api.EventSignalReceived:
			if !containsName(names, out.SignalName) {
				return nil, c.nondeterminism("race resolution for "+intent.TimerID, out)
			}
			s := c.take()
			return &Resolution{Signal: &Signal{Name: s.SignalName, Payload: s.Payload}}, nil
		default:
			return nil, c.nondeterminism("timer resolution for "+intent.TimerID, out)
		}
	}

	// Armed but unresolved. Buffered signals take priority over a timer
	// delivery in the same continuation; the runtime serializes deliveries
	// per instance, so this ordering is stable.
	if s, ok := c.consumeBuffered(names); ok {
		return &Resolution{Signal: s}, nil
	}
	if d := c.delivery; d != nil && d.TimerID == intent.TimerID {
		c.delivery = nil
		c.record(api.HistoryEvent{
			Type:    api.EventTimerFired,
			TimerID: intent.TimerID,
		})
		return &Resolution{TimedOut: true}, nil
	}
	if c.injectCancel() {
		return nil, ErrCanceled
	}

	kind := api.WaitTimer
	if len(names) > 0 {
		kind = api.WaitRace
	}
	c.park(&Command{
		Rearm: true,
		Wait: api.WaitState{
			Kind:        kind,
			SignalNames: names,
			TimerID:     intent.TimerID,
			Deadline:    intent.Deadline,
		},
	})
	return nil, ErrSuspended
}

// --- cursor internals ---

func (c *Context) peek() *api.HistoryEvent {
	if c.cursor < len(c.history) {
		return &c.history[c.cursor]
	}
	return nil
}

func (c *Context) take() api.HistoryEvent {
	ev := c.history[c.cursor]
	c.cursor++
	c.now = ev.At
	return ev
}

func (c *Context) record(ev api.HistoryEvent) api.HistoryEvent {
	ev.Seq = c.nextSeq
	if ev.At.IsZero() {
		ev.At = c.clock()
	}
	c.nextSeq++
	c.history = append(c.history, ev)
	c.cursor = len(c.history)
	c.appended++
	c.now = ev.At
	return ev
}

func (c *Context) startTimer(d time.Duration) api.HistoryEvent {
	timerID := fmt.Sprintf("timer-%d", c.nextSeq)
	now := c.clock()
	return c.record(api.HistoryEvent{
		Type:     api.EventTimerStarted,
		At:       now,
		TimerID:  timerID,
		Duration: d,
		Deadline: now.Add(d),
	})
}

func (c *Context) park(cmd *Command) {
	c.command = cmd
}

func (c *Context) consumeBuffered(names []string) (*Signal, bool) {
	for i, s := range c.buffer {
		if containsName(names, s.Name) {
			c.buffer = append(c.buffer[:i:i], c.buffer[i+1:]...)
			c.bufferConsumed = true
			ev := c.record(api.HistoryEvent{
				Type:       api.EventSignalReceived,
				At:         s.At,
				SignalName: s.Name,
				Payload:    s.Payload,
			})
			return &Signal{Name: ev.SignalName, Payload: ev.Payload}, true
		}
	}
	return nil, false
}

func (c *Context) takeRecordedCancel() bool {
	if ev := c.peek(); ev != nil && ev.Type == api.EventWorkflowCancelRequested {
		c.take()
		c.cancelConsumed = true
		return true
	}
	return false
}

func (c *Context) injectCancel() bool {
	if c.cancelConsumed {
		return false
	}
	if d := c.delivery; d != nil && d.Canceled {
		d.Canceled = false
		c.cancelConsumed = true
		c.record(api.HistoryEvent{Type: api.EventWorkflowCancelRequested})
		return true
	}
	return false
}

func (c *Context) nondeterminism(op string, got *api.HistoryEvent) error {
	var err error
	if got != nil {
		err = fmt.Errorf("%w: %s does not match recorded event seq=%d type=%s",
			api.ErrNonDeterministic, op, got.Seq, got.Type)
	} else {
		err = fmt.Errorf("%w: %s", api.ErrNonDeterministic, op)
	}
	c.nondetErr = err
	return err
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

// --- runtime-facing accessors ---

// Command returns the park command set by the last suspension call, or nil
// if the definition ran to a terminal outcome.
func (c *Context) Command() *Command { return c.command }

// AppendedEvents returns the history events recorded by this invocation, in
// order. They are the tail of History().
func (c *Context) AppendedEvents() []api.HistoryEvent {
	if c.appended == 0 {
		return nil
	}
	return c.history[len(c.history)-c.appended:]
}

// History returns the full history including events appended by this
// invocation.
func (c *Context) History() []api.HistoryEvent { return c.history }

// NextSeq returns the sequence number the next event would be assigned.
func (c *Context) NextSeq() int64 { return c.nextSeq }

// RemainingBuffer returns the signal buffer after consumption, and whether
// any entry was consumed this invocation.
func (c *Context) RemainingBuffer() ([]api.SignalDelivery, bool) {
	return c.buffer, c.bufferConsumed
}

// QueryHandlers returns the handlers registered by the definition during
// this invocation.
func (c *Context) QueryHandlers() map[string]QueryHandler { return c.queryHandlers }

// NondeterminismError returns the replay-mismatch error, if one occurred.
// The runtime halts the instance when this is non-nil regardless of what the
// definition returned.
func (c *Context) NondeterminismError() error { return c.nondetErr }

// CancelObserved reports whether cancellation has been delivered to the
// definition (in this or any replayed invocation).
func (c *Context) CancelObserved() bool { return c.cancelConsumed }
