package approvalflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Runner drives an Engine with a pool of worker goroutines. On Start it
// first re-arms instances that were parked when the previous process
// stopped, then begins processing tasks.
//
// Typical usage:
//
//	eng := approvalflow.NewInMemoryEngine()
//	workflows.Register(eng.Definitions, workflows.Config{})
//	acts.Register(eng.Activities)
//
//	runner := approvalflow.NewRunner(eng)
//	_ = runner.Start(ctx, 2)
//	defer runner.Stop()
type Runner struct {
	Engine *Engine

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRunner wraps an existing Engine.
func NewRunner(eng *Engine) *Runner {
	return &Runner{Engine: eng}
}

// NewLocalRunner constructs a Runner over a fresh in-memory Engine. It is
// intended for local development, tests, and simple single-process use.
func NewLocalRunner(opts ...Option) *Runner {
	return NewRunner(NewInMemoryEngine(opts...))
}

// Start recovers parked instances and launches 'concurrency' worker
// goroutines that process tasks until Stop is called. Calling Start on a
// running Runner is an error.
func (r *Runner) Start(ctx context.Context, concurrency int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return errors.New("approvalflow: runner already started")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	if err := r.Engine.Runtime.Recover(ctx); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true

	r.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer r.wg.Done()
			for {
				_, err := r.Engine.Worker.ProcessOne(ctx)
				if err != nil {
					if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
						return
					}
					// A single bad task must not kill the worker loop.
					slog.Error("approvalflow: worker error", slog.Any("error", err))
				}
			}
		}()
	}
	return nil
}

// Stop cancels the worker goroutines and waits for them to exit. Stopping a
// stopped Runner is a no-op.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// StartWorkflowAsync enqueues a workflow start instead of blocking until the
// first suspension point. The instance is created when a worker picks up the
// task.
func (r *Runner) StartWorkflowAsync(ctx context.Context, workflowType string, input any, opts StartOptions) error {
	return r.Engine.Worker.EnqueueStartWorkflow(ctx, workflowType, input, opts)
}

// SignalAsync enqueues a signal delivery; the instance consumes it when a
// worker processes the task.
func (r *Runner) SignalAsync(ctx context.Context, workflowID, name string, payload any) error {
	return r.Engine.Worker.EnqueueSignal(ctx, workflowID, name, payload)
}
