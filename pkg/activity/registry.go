package activity

import (
	"context"
	"fmt"
	"sync"
)

// Func is a named, retryable, side-effecting operation invoked by a workflow
// but implemented outside it. It is a pure input -> output operation with no
// knowledge of the workflow runtime; ctx carries the per-attempt deadline.
//
// Because an invocation appears exactly once in history but may physically
// run more than once, implementations with externally visible effects must
// be idempotent with respect to the invocation key carried in their input.
type Func func(ctx context.Context, input any) (any, error)

// Registry maps activity names to implementations.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry creates an empty activity registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds an implementation under the given activity name.
func (r *Registry) Register(name string, fn Func) error {
	if name == "" {
		return fmt.Errorf("activity name is required")
	}
	if fn == nil {
		return fmt.Errorf("activity %q has nil function", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("activity already registered: %s", name)
	}
	r.funcs[name] = fn
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(name string, fn Func) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Get returns the implementation for an activity name.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}
