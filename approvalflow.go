package approvalflow

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/vextrus/vextrus-erp-sub018/internal/persistence"
	"github.com/vextrus/vextrus-erp-sub018/internal/runtime"
	"github.com/vextrus/vextrus-erp-sub018/internal/taskqueue"
	"github.com/vextrus/vextrus-erp-sub018/pkg/activity"
	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
	"github.com/vextrus/vextrus-erp-sub018/pkg/client"
	"github.com/vextrus/vextrus-erp-sub018/pkg/worker"
	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	WorkflowInstance = api.WorkflowInstance
	HistoryEvent     = api.HistoryEvent
	Status           = api.Status
	StartOptions     = api.StartOptions
	ActivityOptions  = api.ActivityOptions
	RetryPolicy      = api.RetryPolicy
	ListFilter       = api.ListFilter
	Observer         = api.Observer
	NoopObserver     = api.NoopObserver
	Client           = client.Client
	StartResult      = client.StartResult
	Worker           = worker.Worker
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export status values for convenience.

const (
	StatusRunning   = api.StatusRunning
	StatusCompleted = api.StatusCompleted
	StatusFailed    = api.StatusFailed
	StatusCancelled = api.StatusCancelled
	StatusTimedOut  = api.StatusTimedOut
)

// Engine bundles the storage backend, task queue, runtime, worker, and
// client into one value. Register workflow definitions on Definitions and
// activity implementations on Activities before starting workers.
type Engine struct {
	Definitions *workflow.Registry
	Activities  *activity.Registry
	Runtime     *runtime.Runtime
	Queue       taskqueue.Queue
	Worker      *Worker
	Client      *Client
}

// Option customizes an Engine.
type Option func(*engineOptions)

type engineOptions struct {
	observer api.Observer
	logger   *slog.Logger
}

// WithObserver attaches an Observer to the runtime and worker. Compose
// several with NewCompositeObserver.
func WithObserver(obs Observer) Option {
	return func(o *engineOptions) { o.observer = obs }
}

// WithLogger sets the structured logger used by the runtime and worker.
func WithLogger(logger *slog.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

func newEngine(store persistence.Persistence, queue taskqueue.Queue, opts []Option) *Engine {
	var o engineOptions
	for _, opt := range opts {
		opt(&o)
	}

	defs := workflow.NewRegistry()
	acts := activity.NewRegistry()

	rt := runtime.New(runtime.Config{
		Definitions: defs,
		Store:       store,
		Queue:       queue,
		Observer:    o.observer,
		Logger:      o.logger,
	})
	w := worker.New(worker.Config{
		Runtime:  rt,
		Queue:    queue,
		Executor: activity.NewExecutor(acts),
		Observer: o.observer,
		Logger:   o.logger,
	})

	return &Engine{
		Definitions: defs,
		Activities:  acts,
		Runtime:     rt,
		Queue:       queue,
		Worker:      w,
		Client:      client.New(rt),
	}
}

// NewInMemoryEngine returns an Engine backed entirely by in-memory stores.
// It is not crash-durable; use it for tests and local development.
func NewInMemoryEngine(opts ...Option) *Engine {
	mem := persistence.NewInMemoryStore()
	return newEngine(
		persistence.Persistence{Instances: mem, History: mem},
		taskqueue.NewInMemoryQueue(),
		opts,
	)
}

// NewSQLiteEngine returns an Engine whose instance store, history store and
// task queue all persist in the given SQLite database, typically opened with
// the modernc.org/sqlite driver. An instance parked on a timer survives a
// restart because the pending timer task is in the same database.
func NewSQLiteEngine(db *sql.DB, opts ...Option) (*Engine, error) {
	store, err := persistence.NewSQLiteStore(db)
	if err != nil {
		return nil, err
	}
	queue, err := taskqueue.NewSQLiteQueue(db)
	if err != nil {
		return nil, err
	}
	return newEngine(
		persistence.Persistence{Instances: store, History: store},
		queue,
		opts,
	), nil
}

// NewPostgresEngine returns an Engine that persists instances and history in
// PostgreSQL, expecting an *sql.DB using a Postgres driver (typically pgx
// through its database/sql adapter). The task queue stays in-process; run
// Runner.Start after a restart to re-arm pending work from history.
func NewPostgresEngine(db *sql.DB, opts ...Option) (*Engine, error) {
	store, err := persistence.NewPostgresStore(db)
	if err != nil {
		return nil, err
	}
	return newEngine(
		persistence.Persistence{Instances: store, History: store},
		taskqueue.NewInMemoryQueue(),
		opts,
	), nil
}

// NewRedisEngine returns an Engine that persists instances and history in
// Redis under the given key prefix (empty means the default prefix). The
// task queue stays in-process, as with NewPostgresEngine.
func NewRedisEngine(rdb *redis.Client, prefix string, opts ...Option) *Engine {
	store := persistence.NewRedisStore(rdb, prefix)
	return newEngine(
		persistence.Persistence{Instances: store, History: store},
		taskqueue.NewInMemoryQueue(),
		opts,
	)
}

// Convenience helpers that just forward to the engine's client.

// StartWorkflow starts a new instance of a registered workflow type.
func StartWorkflow(ctx context.Context, eng *Engine, workflowType string, input any, opts ...StartOptions) (StartResult, error) {
	return eng.Client.StartWorkflow(ctx, workflowType, input, opts...)
}

// SignalWorkflow delivers an external event to a running instance.
func SignalWorkflow(ctx context.Context, eng *Engine, workflowID, name string, payload any) error {
	return eng.Client.SignalWorkflow(ctx, workflowID, name, payload)
}

// QueryWorkflow invokes a query handler without affecting execution.
func QueryWorkflow(ctx context.Context, eng *Engine, workflowID, name string, args any) (any, error) {
	return eng.Client.QueryWorkflow(ctx, workflowID, name, args)
}

// GetWorkflow fetches an instance snapshot by ID.
func GetWorkflow(ctx context.Context, eng *Engine, workflowID string) (*WorkflowInstance, error) {
	return eng.Client.GetWorkflow(ctx, workflowID)
}

// ListWorkflows lists instance snapshots matching the filter.
func ListWorkflows(ctx context.Context, eng *Engine, filter ListFilter) ([]*WorkflowInstance, error) {
	return eng.Client.ListWorkflows(ctx, filter)
}
