package api

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// Observer receives callbacks from the workflow runtime for logging and
// metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay workflow execution. Callbacks may fire
// from any worker goroutine but are serialized per instance.
type Observer interface {
	// OnWorkflowStart is called once when an instance is first started,
	// before the definition body runs.
	OnWorkflowStart(ctx context.Context, inst *WorkflowInstance)

	// OnWorkflowFinished is called when an instance reaches any terminal
	// status. err is non-nil for StatusFailed.
	OnWorkflowFinished(ctx context.Context, inst *WorkflowInstance, err error)

	// OnEventRecorded is called after a history event has been appended
	// and persisted.
	OnEventRecorded(ctx context.Context, inst *WorkflowInstance, ev HistoryEvent)

	// OnActivityCompleted is called after an activity invocation resolves,
	// for both successes and terminal failures (err != nil). duration
	// covers all attempts including backoff.
	OnActivityCompleted(ctx context.Context, instanceID, name string, attempts int, err error, duration time.Duration)

	// OnSignalDropped is called when a delivered signal targets a terminal
	// instance or is discarded unconsumed; late duplicate decisions are
	// expected and land here.
	OnSignalDropped(ctx context.Context, instanceID, name string)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnWorkflowStart(ctx context.Context, inst *WorkflowInstance)                 {}
func (NoopObserver) OnWorkflowFinished(ctx context.Context, inst *WorkflowInstance, err error)   {}
func (NoopObserver) OnEventRecorded(ctx context.Context, inst *WorkflowInstance, ev HistoryEvent) {}
func (NoopObserver) OnActivityCompleted(ctx context.Context, instanceID, name string, attempts int, err error, d time.Duration) {
}
func (NoopObserver) OnSignalDropped(ctx context.Context, instanceID, name string) {}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnWorkflowStart(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnWorkflowStart(ctx, inst)
	}
}

func (c *CompositeObserver) OnWorkflowFinished(ctx context.Context, inst *WorkflowInstance, err error) {
	for _, o := range c.observers {
		o.OnWorkflowFinished(ctx, inst, err)
	}
}

func (c *CompositeObserver) OnEventRecorded(ctx context.Context, inst *WorkflowInstance, ev HistoryEvent) {
	for _, o := range c.observers {
		o.OnEventRecorded(ctx, inst, ev)
	}
}

func (c *CompositeObserver) OnActivityCompleted(ctx context.Context, instanceID, name string, attempts int, err error, d time.Duration) {
	for _, o := range c.observers {
		o.OnActivityCompleted(ctx, instanceID, name, attempts, err, d)
	}
}

func (c *CompositeObserver) OnSignalDropped(ctx context.Context, instanceID, name string) {
	for _, o := range c.observers {
		o.OnSignalDropped(ctx, instanceID, name)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs workflow lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnWorkflowStart(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "workflow_start",
		slog.String("workflow_type", inst.Type),
		slog.String("workflow_id", inst.ID),
		slog.String("run_id", inst.RunID),
	)
}

func (o *LoggingObserver) OnWorkflowFinished(ctx context.Context, inst *WorkflowInstance, err error) {
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "workflow_finished",
		slog.String("workflow_type", inst.Type),
		slog.String("workflow_id", inst.ID),
		slog.String("status", string(inst.Status)),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnEventRecorded(ctx context.Context, inst *WorkflowInstance, ev HistoryEvent) {
	o.Logger.DebugContext(ctx, "history_event",
		slog.String("workflow_id", inst.ID),
		slog.Int64("seq", ev.Seq),
		slog.String("type", string(ev.Type)),
		slog.String("activity", ev.ActivityName),
		slog.String("signal", ev.SignalName),
	)
}

func (o *LoggingObserver) OnActivityCompleted(ctx context.Context, instanceID, name string, attempts int, err error, d time.Duration) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelError
	}
	o.Logger.Log(ctx, level, "activity_completed",
		slog.String("workflow_id", instanceID),
		slog.String("activity", name),
		slog.Int("attempts", attempts),
		slog.Duration("duration", d),
		slog.Any("error", err),
	)
}

func (o *LoggingObserver) OnSignalDropped(ctx context.Context, instanceID, name string) {
	o.Logger.DebugContext(ctx, "signal_dropped",
		slog.String("workflow_id", instanceID),
		slog.String("signal", name),
	)
}

// BasicMetrics collects simple counters and aggregate activity durations.
// It implements Observer and can be combined with LoggingObserver via
// NewCompositeObserver.
type BasicMetrics struct {
	NoopObserver

	workflowsStarted   atomic.Int64
	workflowsCompleted atomic.Int64
	workflowsFailed    atomic.Int64
	signalsDropped     atomic.Int64

	activitiesCompleted   atomic.Int64
	totalActivityDuration atomic.Int64 // nanoseconds
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	WorkflowsStarted   int64
	WorkflowsCompleted int64
	WorkflowsFailed    int64
	InFlightWorkflows  int64
	SignalsDropped     int64

	ActivitiesCompleted int64
	AvgActivityDuration time.Duration
}

func (m *BasicMetrics) OnWorkflowStart(ctx context.Context, inst *WorkflowInstance) {
	m.workflowsStarted.Add(1)
}

func (m *BasicMetrics) OnWorkflowFinished(ctx context.Context, inst *WorkflowInstance, err error) {
	if err != nil {
		m.workflowsFailed.Add(1)
		return
	}
	m.workflowsCompleted.Add(1)
}

func (m *BasicMetrics) OnActivityCompleted(ctx context.Context, instanceID, name string, attempts int, err error, d time.Duration) {
	if err == nil {
		m.activitiesCompleted.Add(1)
		m.totalActivityDuration.Add(d.Nanoseconds())
	}
}

func (m *BasicMetrics) OnSignalDropped(ctx context.Context, instanceID, name string) {
	m.signalsDropped.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	started := m.workflowsStarted.Load()
	completed := m.workflowsCompleted.Load()
	failed := m.workflowsFailed.Load()
	acts := m.activitiesCompleted.Load()
	totalNs := m.totalActivityDuration.Load()

	var avg time.Duration
	if acts > 0 {
		avg = time.Duration(totalNs / acts)
	}

	return BasicMetricsSnapshot{
		WorkflowsStarted:    started,
		WorkflowsCompleted:  completed,
		WorkflowsFailed:     failed,
		InFlightWorkflows:   started - completed - failed,
		SignalsDropped:      m.signalsDropped.Load(),
		ActivitiesCompleted: acts,
		AvgActivityDuration: avg,
	}
}
