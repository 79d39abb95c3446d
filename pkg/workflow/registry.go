package workflow

import (
	"fmt"
	"sync"

	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// Definition is a durable workflow body. It is re-invoked from the top on
// every resume with recorded suspension outcomes fed back synchronously, so
// it must be deterministic: same input + same history => same commands.
//
// The returned value becomes the instance output when the definition
// completes. Returning ErrSuspended (propagated from a suspension call)
// parks the instance; ErrCanceled finishes it as cancelled; any other error
// fails it.
type Definition func(ctx *Context) (any, error)

// Registry maps workflow type names to definitions.
type Registry struct {
	mu   sync.RWMutex
	defs map[string]Definition
}

// NewRegistry creates an empty definition registry.
func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

// Register adds a definition under the given workflow type name.
func (r *Registry) Register(name string, def Definition) error {
	if name == "" {
		return fmt.Errorf("workflow type name is required")
	}
	if def == nil {
		return fmt.Errorf("workflow %q has nil definition", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[name]; exists {
		return fmt.Errorf("workflow already registered: %s", name)
	}
	r.defs[name] = def
	return nil
}

// MustRegister is like Register but panics on error. Useful in main().
func (r *Registry) MustRegister(name string, def Definition) {
	if err := r.Register(name, def); err != nil {
		panic(err)
	}
}

// Get returns the definition for a workflow type.
func (r *Registry) Get(name string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered workflow type names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.defs))
	for n := range r.defs {
		out = append(out, n)
	}
	return out
}

// Input decodes the instance input into a concrete type.
func Input[T any](ctx *Context) (T, error) {
	v, ok := ctx.Input().(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("workflow input is %T, want %T", ctx.Input(), zero)
	}
	return v, nil
}

// Call invokes an activity and asserts its result type. Suspension and
// activity errors pass through unchanged.
func Call[T any](ctx *Context, name string, input any, opts ...api.ActivityOptions) (T, error) {
	var zero T
	raw, err := ctx.ExecuteActivity(name, input, opts...)
	if err != nil {
		return zero, err
	}
	if raw == nil {
		return zero, nil
	}
	v, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("activity %s returned %T, want %T", name, raw, zero)
	}
	return v, nil
}
