// Package client is the application-facing surface for starting, signalling,
// querying and inspecting workflow instances. It is a thin veneer over the
// runtime; all durability and determinism guarantees live below it.
package client

import (
	"context"

	"github.com/vextrus/vextrus-erp-sub018/internal/runtime"
	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
)

// StartResult identifies one started execution.
type StartResult struct {
	WorkflowID string
	RunID      string
}

// Client exposes workflow operations to application code.
type Client struct {
	rt *runtime.Runtime
}

// New creates a Client over the given runtime.
func New(rt *runtime.Runtime) *Client {
	return &Client{rt: rt}
}

// StartWorkflow creates and starts a new instance of a registered workflow
// type. The call returns once the instance has reached its first suspension
// point (or completed). Supplying StartOptions.ID makes the start idempotent:
// a second start with the same ID fails instead of spawning a duplicate.
func (c *Client) StartWorkflow(ctx context.Context, workflowType string, input any, opts ...api.StartOptions) (StartResult, error) {
	var opt api.StartOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	inst, err := c.rt.Start(ctx, workflowType, input, opt)
	if err != nil {
		return StartResult{}, err
	}
	return StartResult{WorkflowID: inst.ID, RunID: inst.RunID}, nil
}

// SignalWorkflow delivers an external event to a running instance. Signals to
// terminal instances are silently dropped; unknown instances return
// api.ErrNotFound.
func (c *Client) SignalWorkflow(ctx context.Context, workflowID, name string, payload any) error {
	return c.rt.DeliverSignal(ctx, workflowID, name, payload)
}

// QueryWorkflow invokes a named query handler against the instance's current
// state without affecting execution. Querying a handler the definition has
// not registered returns api.ErrQueryUnavailable.
func (c *Client) QueryWorkflow(ctx context.Context, workflowID, name string, args any) (any, error) {
	return c.rt.Query(ctx, workflowID, name, args)
}

// CancelWorkflow requests cooperative cancellation. The definition observes
// the request at its current suspension point and may run cleanup activities
// before finishing as CANCELLED.
func (c *Client) CancelWorkflow(ctx context.Context, workflowID string) error {
	return c.rt.Cancel(ctx, workflowID)
}

// TerminateWorkflow force-finishes an instance immediately with the given
// reason; the definition gets no chance to react.
func (c *Client) TerminateWorkflow(ctx context.Context, workflowID, reason string) error {
	return c.rt.Terminate(ctx, workflowID, reason)
}

// GetWorkflow returns the current instance snapshot.
func (c *Client) GetWorkflow(ctx context.Context, workflowID string) (*api.WorkflowInstance, error) {
	return c.rt.GetInstance(ctx, workflowID)
}

// GetHistory returns the instance's recorded history in sequence order.
func (c *Client) GetHistory(ctx context.Context, workflowID string) ([]api.HistoryEvent, error) {
	return c.rt.GetHistory(ctx, workflowID)
}

// ListWorkflows returns instance snapshots matching the filter.
func (c *Client) ListWorkflows(ctx context.Context, filter api.ListFilter) ([]*api.WorkflowInstance, error) {
	return c.rt.List(ctx, filter)
}
