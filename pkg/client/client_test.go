package client

import (
	"context"
	"errors"
	"testing"

	"github.com/vextrus/vextrus-erp-sub018/internal/persistence"
	"github.com/vextrus/vextrus-erp-sub018/internal/runtime"
	"github.com/vextrus/vextrus-erp-sub018/internal/taskqueue"
	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

func newClient(t *testing.T) (*Client, *workflow.Registry) {
	t.Helper()
	mem := persistence.NewInMemoryStore()
	defs := workflow.NewRegistry()
	rt := runtime.New(runtime.Config{
		Definitions: defs,
		Store:       persistence.Persistence{Instances: mem, History: mem},
		Queue:       taskqueue.NewInMemoryQueue(),
	})
	return New(rt), defs
}

func registerDecision(defs *workflow.Registry) {
	defs.MustRegister("decision", func(wfctx *workflow.Context) (any, error) {
		state := "pending"
		wfctx.SetQueryHandler("state", func(args any) (any, error) {
			return state, nil
		})
		s, err := wfctx.WaitSignal("approve", "reject")
		if err != nil {
			return nil, err
		}
		state = s.Name + "d"
		return state, nil
	})
}

func TestClient_StartSignalQueryLifecycle(t *testing.T) {
	c, defs := newClient(t)
	registerDecision(defs)
	ctx := context.Background()

	res, err := c.StartWorkflow(ctx, "decision", nil, api.StartOptions{ID: "order-1", TenantID: "acme"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	if res.WorkflowID != "order-1" || res.RunID == "" {
		t.Fatalf("unexpected start result: %+v", res)
	}

	state, err := c.QueryWorkflow(ctx, "order-1", "state", nil)
	if err != nil {
		t.Fatalf("QueryWorkflow: %v", err)
	}
	if state != "pending" {
		t.Fatalf("expected pending, got %v", state)
	}

	if err := c.SignalWorkflow(ctx, "order-1", "approve", nil); err != nil {
		t.Fatalf("SignalWorkflow: %v", err)
	}

	inst, err := c.GetWorkflow(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetWorkflow: %v", err)
	}
	if inst.Status != api.StatusCompleted || inst.Output != "approved" {
		t.Fatalf("expected approved completion, got %v %v", inst.Status, inst.Output)
	}

	history, err := c.GetHistory(ctx, "order-1")
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if len(history) == 0 || history[0].Type != api.EventWorkflowStarted {
		t.Fatalf("unexpected history: %+v", history)
	}

	listed, err := c.ListWorkflows(ctx, api.ListFilter{TenantID: "acme", Status: api.StatusCompleted})
	if err != nil {
		t.Fatalf("ListWorkflows: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != "order-1" {
		t.Fatalf("unexpected listing: %+v", listed)
	}
}

func TestClient_DuplicateStartRejected(t *testing.T) {
	c, defs := newClient(t)
	registerDecision(defs)
	ctx := context.Background()

	if _, err := c.StartWorkflow(ctx, "decision", nil, api.StartOptions{ID: "dup-1"}); err != nil {
		t.Fatalf("first StartWorkflow: %v", err)
	}
	if _, err := c.StartWorkflow(ctx, "decision", nil, api.StartOptions{ID: "dup-1"}); err == nil {
		t.Fatalf("expected duplicate start to fail")
	}
}

func TestClient_CancelAndTerminate(t *testing.T) {
	c, defs := newClient(t)
	registerDecision(defs)
	ctx := context.Background()

	if _, err := c.StartWorkflow(ctx, "decision", nil, api.StartOptions{ID: "c-1"}); err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	if err := c.CancelWorkflow(ctx, "c-1"); err != nil {
		t.Fatalf("CancelWorkflow: %v", err)
	}
	inst, _ := c.GetWorkflow(ctx, "c-1")
	if inst.Status != api.StatusCancelled {
		t.Fatalf("expected CANCELLED, got %v", inst.Status)
	}

	if _, err := c.StartWorkflow(ctx, "decision", nil, api.StartOptions{ID: "t-1"}); err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	if err := c.TerminateWorkflow(ctx, "t-1", "stale order"); err != nil {
		t.Fatalf("TerminateWorkflow: %v", err)
	}
	inst, _ = c.GetWorkflow(ctx, "t-1")
	if inst.Status != api.StatusFailed {
		t.Fatalf("expected FAILED after terminate, got %v", inst.Status)
	}

	if err := c.SignalWorkflow(ctx, "missing", "approve", nil); !errors.Is(err, api.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := c.QueryWorkflow(ctx, "c-1", "nope", nil); !errors.Is(err, api.ErrQueryUnavailable) {
		t.Fatalf("expected ErrQueryUnavailable, got %v", err)
	}
}
