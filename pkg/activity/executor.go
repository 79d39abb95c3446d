package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// ErrNotRegistered is returned when an invocation names an unknown activity.
// It is terminal: there is no point retrying a missing implementation.
var ErrNotRegistered = errors.New("activity not registered")

// Invocation is one logical activity call scheduled by a workflow.
type Invocation struct {
	ActivityID string
	Name       string
	Input      any
	Options    api.ActivityOptions
}

// Result is the resolution of an Invocation after all attempts.
type Result struct {
	Value    any
	Attempts int
}

// Executor invokes registered activities with per-attempt timeouts and a
// bounded exponential-backoff retry policy. Exhausting the policy surfaces
// the last error to the caller; it is never silently swallowed.
type Executor struct {
	registry *Registry

	// DefaultTimeout bounds a single attempt when the invocation carries
	// no explicit timeout. Zero means no attempt deadline.
	DefaultTimeout time.Duration
}

// NewExecutor creates an Executor over the given registry.
func NewExecutor(reg *Registry) *Executor {
	return &Executor{registry: reg}
}

// Execute runs the invocation to resolution. The returned error is the
// terminal failure after the retry budget is spent; the attempt count is
// reported either way.
func (e *Executor) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	fn, ok := e.registry.Get(inv.Name)
	if !ok {
		return &Result{Attempts: 0}, fmt.Errorf("%w: %s", ErrNotRegistered, inv.Name)
	}

	policy := api.DefaultRetryPolicy()
	if inv.Options.Retry != nil {
		policy = *inv.Options.Retry
	}
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	backoff := policy.InitialBackoff
	multiplier := policy.BackoffMultiplier
	if multiplier <= 0 {
		multiplier = 2.0
	}

	timeout := inv.Options.Timeout
	if timeout <= 0 {
		timeout = e.DefaultTimeout
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return &Result{Attempts: attempt - 1}, ctx.Err()
		default:
		}

		out, err := e.runAttempt(ctx, fn, inv.Input, timeout)
		if err == nil {
			return &Result{Value: out, Attempts: attempt}, nil
		}
		lastErr = err

		if attempt == maxAttempts {
			break
		}
		if backoff > 0 {
			delay := backoff
			if policy.MaxBackoff > 0 && delay > policy.MaxBackoff {
				delay = policy.MaxBackoff
			}
			select {
			case <-ctx.Done():
				return &Result{Attempts: attempt}, ctx.Err()
			case <-time.After(delay):
			}
			next := time.Duration(float64(backoff) * multiplier)
			if policy.MaxBackoff > 0 && next > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			} else {
				backoff = next
			}
		}
	}

	return &Result{Attempts: maxAttempts}, lastErr
}

func (e *Executor) runAttempt(ctx context.Context, fn Func, input any, timeout time.Duration) (any, error) {
	attemptCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		value any
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		v, err := fn(attemptCtx, input)
		done <- outcome{value: v, err: err}
	}()

	select {
	case o := <-done:
		return o.value, o.err
	case <-attemptCtx.Done():
		// Attempt abandoned; the goroutine may still finish but its
		// result is discarded.
		return nil, attemptCtx.Err()
	}
}
