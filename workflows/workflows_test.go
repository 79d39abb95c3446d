package workflows

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vextrus/vextrus-erp-sub018/internal/persistence"
	"github.com/vextrus/vextrus-erp-sub018/internal/runtime"
	"github.com/vextrus/vextrus-erp-sub018/internal/taskqueue"
	"github.com/vextrus/vextrus-erp-sub018/pkg/activity"
	"github.com/vextrus/vextrus-erp-sub018/pkg/api"
	"github.com/vextrus/vextrus-erp-sub018/pkg/client"
	"github.com/vextrus/vextrus-erp-sub018/pkg/hierarchy"
	"github.com/vextrus/vextrus-erp-sub018/pkg/worker"
	"github.com/vextrus/vextrus-erp-sub018/pkg/workflow"
)

type fixture struct {
	cl   *client.Client
	rt   *runtime.Runtime
	acts *ReferenceActivities
}

// testResolver returns the standard ladder with every escalation timeout
// collapsed to d, so tests control whether a signal or the timer wins.
func testResolver(d time.Duration) *hierarchy.Resolver {
	return hierarchy.NewResolver(hierarchy.Config{
		BaseRole:    hierarchy.RoleAccountsPayable,
		BaseTimeout: d,
		Tiers: []hierarchy.Tier{
			{Threshold: 100_000, Role: hierarchy.RoleDepartmentHead, Timeout: d},
			{Threshold: 500_000, Role: hierarchy.RoleFinanceManager, Timeout: d},
			{Threshold: 1_000_000, Role: hierarchy.RoleExecutive, Timeout: d},
		},
		ComplianceVendorTypes: []string{"new", "unverified"},
		ComplianceTimeout:     d,
	})
}

func newFixture(t *testing.T, cfg Config, acts *ReferenceActivities) *fixture {
	t.Helper()

	if acts == nil {
		acts = &ReferenceActivities{}
	}
	mem := persistence.NewInMemoryStore()
	defs := workflow.NewRegistry()
	reg := activity.NewRegistry()
	queue := taskqueue.NewInMemoryQueue()

	Register(defs, cfg)
	acts.Register(reg)

	rt := runtime.New(runtime.Config{
		Definitions: defs,
		Store:       persistence.Persistence{Instances: mem, History: mem},
		Queue:       queue,
	})
	w := worker.New(worker.Config{
		Runtime:  rt,
		Queue:    queue,
		Executor: activity.NewExecutor(reg),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = w.Run(ctx) }()

	return &fixture{cl: client.New(rt), rt: rt, acts: acts}
}

func (f *fixture) waitForTerminal(t *testing.T, id string) *api.WorkflowInstance {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		inst, err := f.cl.GetWorkflow(context.Background(), id)
		if err == nil && inst.Status.Terminal() {
			return inst
		}
		time.Sleep(5 * time.Millisecond)
	}
	inst, err := f.cl.GetWorkflow(context.Background(), id)
	t.Fatalf("instance %s did not finish in time: %+v err=%v", id, inst, err)
	return nil
}

func (f *fixture) waitForLevel(t *testing.T, id string, level int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		raw, err := f.cl.QueryWorkflow(context.Background(), id, QueryStatus, nil)
		if err == nil {
			if view, ok := raw.(StatusView); ok && view.Phase == "approval" && view.CurrentLevel == level {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("instance %s never reached approval level %d", id, level)
}

func approve(t *testing.T, f *fixture, id, approver string) {
	t.Helper()
	if err := f.cl.SignalWorkflow(context.Background(), id, SignalApprove, DecisionSignal{Approver: approver}); err != nil {
		t.Fatalf("SignalWorkflow(approve): %v", err)
	}
}

func outcomeOf(t *testing.T, inst *api.WorkflowInstance) Outcome {
	t.Helper()
	out, ok := inst.Output.(Outcome)
	if !ok {
		t.Fatalf("output is %T, want Outcome", inst.Output)
	}
	return out
}

func TestInvoice_SingleLevelApproval(t *testing.T) {
	acts := &ReferenceActivities{WithholdingRates: map[string]float64{"organization": 0.1}}
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, acts)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:            "inv-1",
		InvoiceNumber: "INV-2026-001",
		VendorID:      "v-1",
		VendorType:    "existing",
		Department:    "engineering",
		PartyType:     "organization",
		Amount:        50_000,
	}, api.StartOptions{ID: "wf-inv-a"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}
	approve(t, f, res.WorkflowID, "ap-clerk")

	inst := f.waitForTerminal(t, res.WorkflowID)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %v err=%v", inst.Status, inst.Err)
	}
	out := outcomeOf(t, inst)
	if out.Decision != DecisionApproved {
		t.Fatalf("expected Approved, got %v (%s)", out.Decision, out.Reason)
	}
	if len(out.Steps) != 1 || out.Steps[0].Role != hierarchy.RoleAccountsPayable || out.Steps[0].Status != StepApproved {
		t.Fatalf("expected one approved accounts-payable step, got %+v", out.Steps)
	}
	if out.Steps[0].Approver != "ap-clerk" {
		t.Fatalf("expected approver recorded, got %+v", out.Steps[0])
	}
	if out.PaymentID == "" {
		t.Fatalf("expected payment id, got %+v", out)
	}
	if out.TaxAmount != 5_000 {
		t.Fatalf("expected 10%% withholding of 5000, got %v", out.TaxAmount)
	}
}

func TestInvoice_RejectionShortCircuitsChain(t *testing.T) {
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:            "inv-2",
		InvoiceNumber: "INV-2026-002",
		VendorID:      "v-1",
		VendorType:    "existing",
		Department:    "operations",
		PartyType:     "organization",
		Amount:        750_000,
	}, api.StartOptions{ID: "wf-inv-b"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	// Level 1 approves; level 2 rejects.
	f.waitForLevel(t, res.WorkflowID, 1)
	approve(t, f, res.WorkflowID, "ap-clerk")
	f.waitForLevel(t, res.WorkflowID, 2)
	if err := f.cl.SignalWorkflow(ctx, res.WorkflowID, SignalReject, DecisionSignal{
		Approver: "dept-head",
		Comments: "budget exceeded",
	}); err != nil {
		t.Fatalf("SignalWorkflow(reject): %v", err)
	}

	inst := f.waitForTerminal(t, res.WorkflowID)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %v err=%v", inst.Status, inst.Err)
	}
	out := outcomeOf(t, inst)
	if out.Decision != DecisionRejected || out.Reason != "budget exceeded" {
		t.Fatalf("expected rejection with comments, got %v (%s)", out.Decision, out.Reason)
	}
	if len(out.Steps) != 2 {
		t.Fatalf("expected chain to stop at level 2, got %+v", out.Steps)
	}
	if out.Steps[1].Status != StepRejected || out.Steps[1].Role != hierarchy.RoleDepartmentHead {
		t.Fatalf("expected department-head rejection, got %+v", out.Steps[1])
	}
	if out.PaymentID != "" {
		t.Fatalf("rejected invoice must not create a payment: %+v", out)
	}
}

func TestInvoice_EscalationTimeoutRejects(t *testing.T) {
	f := newFixture(t, Config{Resolver: testResolver(60 * time.Millisecond)}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:            "inv-3",
		InvoiceNumber: "INV-2026-003",
		VendorID:      "v-1",
		VendorType:    "existing",
		Department:    "operations",
		PartyType:     "organization",
		Amount:        50_000,
	}, api.StartOptions{ID: "wf-inv-c"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	inst := f.waitForTerminal(t, res.WorkflowID)
	out := outcomeOf(t, inst)
	if out.Decision != DecisionRejected {
		t.Fatalf("expected Rejected, got %v", out.Decision)
	}
	if !strings.Contains(out.Reason, "Timeout") {
		t.Fatalf("expected timeout reason, got %q", out.Reason)
	}
	if len(out.Steps) != 1 || out.Steps[0].Status != StepTimedOut {
		t.Fatalf("expected one timed-out step, got %+v", out.Steps)
	}
}

func TestInvoice_DuplicateRejectedBeforeApprovals(t *testing.T) {
	acts := &ReferenceActivities{SeenKeys: map[string]string{"INV-2026-004": "inv-archived-17"}}
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, acts)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:            "inv-4",
		InvoiceNumber: "INV-2026-004",
		VendorID:      "v-1",
		VendorType:    "existing",
		Department:    "operations",
		PartyType:     "organization",
		Amount:        50_000,
	}, api.StartOptions{ID: "wf-inv-d"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	inst := f.waitForTerminal(t, res.WorkflowID)
	out := outcomeOf(t, inst)
	if out.Decision != DecisionRejected || !strings.Contains(out.Reason, "duplicate") {
		t.Fatalf("expected duplicate rejection, got %v (%s)", out.Decision, out.Reason)
	}
	if len(out.Steps) != 0 {
		t.Fatalf("duplicate must reject before any approval step, got %+v", out.Steps)
	}

	audits := acts.Audits()
	if len(audits) != 1 || audits[0].Decision != DecisionRejected {
		t.Fatalf("expected one rejection audit, got %+v", audits)
	}
}

func TestInvoice_POMismatchGoesOnHold(t *testing.T) {
	acts := &ReferenceActivities{ReferenceAmounts: map[string]float64{"po-9": 100_000}}
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, acts)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:              "inv-5",
		InvoiceNumber:   "INV-2026-005",
		VendorID:        "v-1",
		VendorType:      "existing",
		Department:      "operations",
		PartyType:       "organization",
		Amount:          110_000,
		PurchaseOrderID: "po-9",
	}, api.StartOptions{ID: "wf-inv-hold"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	inst := f.waitForTerminal(t, res.WorkflowID)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("OnHold is a business outcome, not an instance failure: %v", inst.Status)
	}
	out := outcomeOf(t, inst)
	if out.Decision != DecisionOnHold {
		t.Fatalf("expected OnHold for 10%% variance, got %v (%s)", out.Decision, out.Reason)
	}
	if len(out.Steps) != 0 || out.PaymentID != "" {
		t.Fatalf("on-hold invoice must skip approvals and payment, got %+v", out)
	}
}

func TestInvoice_POWithinVarianceProceeds(t *testing.T) {
	acts := &ReferenceActivities{ReferenceAmounts: map[string]float64{"po-9": 100_000}}
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, acts)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:              "inv-6",
		InvoiceNumber:   "INV-2026-006",
		VendorID:        "v-1",
		VendorType:      "existing",
		Department:      "operations",
		PartyType:       "organization",
		Amount:          103_000,
		PurchaseOrderID: "po-9",
	}, api.StartOptions{ID: "wf-inv-match"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	// 3% variance is under the 5% cutoff; amount needs AP + department head.
	f.waitForLevel(t, res.WorkflowID, 1)
	approve(t, f, res.WorkflowID, "ap-clerk")
	f.waitForLevel(t, res.WorkflowID, 2)
	approve(t, f, res.WorkflowID, "head-of-ops")

	inst := f.waitForTerminal(t, res.WorkflowID)
	out := outcomeOf(t, inst)
	if out.Decision != DecisionApproved || len(out.Steps) != 2 || out.PaymentID == "" {
		t.Fatalf("expected approval through 2 levels with payment, got %+v", out)
	}
}

func TestInvoice_InactiveVendorRejected(t *testing.T) {
	acts := &ReferenceActivities{InactiveParties: map[string]string{"v-9": "deregistered"}}
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, acts)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:            "inv-7",
		InvoiceNumber: "INV-2026-007",
		VendorID:      "v-9",
		VendorType:    "existing",
		Department:    "operations",
		PartyType:     "organization",
		Amount:        50_000,
	}, api.StartOptions{ID: "wf-inv-vendor"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	inst := f.waitForTerminal(t, res.WorkflowID)
	out := outcomeOf(t, inst)
	if out.Decision != DecisionRejected || !strings.Contains(out.Reason, "deregistered") {
		t.Fatalf("expected vendor rejection, got %v (%s)", out.Decision, out.Reason)
	}
}

func TestInvoice_StatusAndStepsQueries(t *testing.T) {
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:            "inv-8",
		InvoiceNumber: "INV-2026-008",
		VendorID:      "v-1",
		VendorType:    "existing",
		Department:    "operations",
		PartyType:     "organization",
		Amount:        250_000,
	}, api.StartOptions{ID: "wf-inv-query"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	f.waitForLevel(t, res.WorkflowID, 1)
	raw, err := f.cl.QueryWorkflow(ctx, res.WorkflowID, QueryStatus, nil)
	if err != nil {
		t.Fatalf("QueryWorkflow(status): %v", err)
	}
	view := raw.(StatusView)
	if view.TotalLevels != 2 || view.StepsResolved != 0 {
		t.Fatalf("unexpected status view: %+v", view)
	}

	approve(t, f, res.WorkflowID, "ap-clerk")
	f.waitForLevel(t, res.WorkflowID, 2)

	raw, err = f.cl.QueryWorkflow(ctx, res.WorkflowID, QuerySteps, nil)
	if err != nil {
		t.Fatalf("QueryWorkflow(steps): %v", err)
	}
	steps := raw.([]ApprovalStep)
	if len(steps) != 1 || steps[0].Status != StepApproved {
		t.Fatalf("expected one resolved step mid-flight, got %+v", steps)
	}

	approve(t, f, res.WorkflowID, "head-of-ops")
	inst := f.waitForTerminal(t, res.WorkflowID)
	if outcomeOf(t, inst).Decision != DecisionApproved {
		t.Fatalf("expected approval, got %+v", inst.Output)
	}
}

func TestInvoice_DuplicateApproveResolvesExactlyOneLevel(t *testing.T) {
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:            "inv-9",
		InvoiceNumber: "INV-2026-009",
		VendorID:      "v-1",
		VendorType:    "existing",
		Department:    "operations",
		PartyType:     "organization",
		Amount:        250_000,
	}, api.StartOptions{ID: "wf-inv-idem"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	// The clerk double-submits while level 1 is pending. The second approve
	// must be a no-op, not the department head's decision.
	f.waitForLevel(t, res.WorkflowID, 1)
	approve(t, f, res.WorkflowID, "ap-clerk")
	approve(t, f, res.WorkflowID, "ap-clerk")

	f.waitForLevel(t, res.WorkflowID, 2)
	raw, err := f.cl.QueryWorkflow(ctx, res.WorkflowID, QuerySteps, nil)
	if err != nil {
		t.Fatalf("QueryWorkflow(steps): %v", err)
	}
	steps := raw.([]ApprovalStep)
	if len(steps) != 1 {
		t.Fatalf("duplicate approve resolved more than one level: %+v", steps)
	}
	if steps[0].Level != 1 || steps[0].Approver != "ap-clerk" {
		t.Fatalf("unexpected first step: %+v", steps[0])
	}

	approve(t, f, res.WorkflowID, "head-of-ops")
	inst := f.waitForTerminal(t, res.WorkflowID)
	out := outcomeOf(t, inst)
	if out.Decision != DecisionApproved || len(out.Steps) != 2 {
		t.Fatalf("expected two distinct decisions, got %+v", out)
	}
	if out.Steps[1].Approver != "head-of-ops" {
		t.Fatalf("level 2 must be decided by its own approver, got %+v", out.Steps[1])
	}
}

func TestInvoice_LevelScopedDecisionIgnoredOnMismatch(t *testing.T) {
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeInvoiceApproval, Invoice{
		ID:            "inv-10",
		InvoiceNumber: "INV-2026-010",
		VendorID:      "v-1",
		VendorType:    "existing",
		Department:    "operations",
		PartyType:     "organization",
		Amount:        250_000,
	}, api.StartOptions{ID: "wf-inv-scoped"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	f.waitForLevel(t, res.WorkflowID, 1)
	if err := f.cl.SignalWorkflow(ctx, res.WorkflowID, SignalApprove, DecisionSignal{
		Approver: "ap-clerk", Level: 1,
	}); err != nil {
		t.Fatalf("SignalWorkflow(approve level 1): %v", err)
	}
	f.waitForLevel(t, res.WorkflowID, 2)

	// A retransmission addressed to the already resolved level arrives
	// while level 2 is pending; it must not decide level 2.
	if err := f.cl.SignalWorkflow(ctx, res.WorkflowID, SignalApprove, DecisionSignal{
		Approver: "ap-retry", Level: 1,
	}); err != nil {
		t.Fatalf("SignalWorkflow(stale approve): %v", err)
	}
	raw, err := f.cl.QueryWorkflow(ctx, res.WorkflowID, QuerySteps, nil)
	if err != nil {
		t.Fatalf("QueryWorkflow(steps): %v", err)
	}
	if steps := raw.([]ApprovalStep); len(steps) != 1 {
		t.Fatalf("stale scoped approve advanced the chain: %+v", steps)
	}

	if err := f.cl.SignalWorkflow(ctx, res.WorkflowID, SignalApprove, DecisionSignal{
		Approver: "head-of-ops", Level: 2,
	}); err != nil {
		t.Fatalf("SignalWorkflow(approve level 2): %v", err)
	}
	inst := f.waitForTerminal(t, res.WorkflowID)
	out := outcomeOf(t, inst)
	if out.Decision != DecisionApproved || len(out.Steps) != 2 || out.Steps[1].Approver != "head-of-ops" {
		t.Fatalf("expected level 2 decided by head-of-ops, got %+v", out)
	}
}

func TestPurchaseOrder_FullLadder(t *testing.T) {
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypePurchaseOrderApproval, PurchaseOrder{
		ID:         "po-1",
		PONumber:   "PO-2026-001",
		VendorID:   "v-1",
		VendorType: "existing",
		Department: "engineering",
		Amount:     2_000_000,
	}, api.StartOptions{ID: "wf-po-full"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	for i, approver := range []string{"ap-clerk", "head-of-eng", "fin-mgr", "cfo"} {
		f.waitForLevel(t, res.WorkflowID, i+1)
		approve(t, f, res.WorkflowID, approver)
	}

	inst := f.waitForTerminal(t, res.WorkflowID)
	out := outcomeOf(t, inst)
	if out.Decision != DecisionApproved {
		t.Fatalf("expected Approved, got %v (%s)", out.Decision, out.Reason)
	}
	wantRoles := []string{
		hierarchy.RoleAccountsPayable,
		hierarchy.RoleDepartmentHead,
		hierarchy.RoleFinanceManager,
		hierarchy.RoleExecutive,
	}
	if len(out.Steps) != len(wantRoles) {
		t.Fatalf("expected %d steps, got %+v", len(wantRoles), out.Steps)
	}
	for i, role := range wantRoles {
		if out.Steps[i].Role != role || out.Steps[i].Status != StepApproved {
			t.Fatalf("step %d: expected approved %s, got %+v", i, role, out.Steps[i])
		}
	}
}

func TestPurchaseOrder_NewVendorRequiresCompliance(t *testing.T) {
	f := newFixture(t, Config{Resolver: testResolver(2 * time.Second)}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypePurchaseOrderApproval, PurchaseOrder{
		ID:         "po-2",
		PONumber:   "PO-2026-002",
		VendorID:   "v-new",
		VendorType: "new",
		Department: "engineering",
		Amount:     50_000,
	}, api.StartOptions{ID: "wf-po-new"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	f.waitForLevel(t, res.WorkflowID, 1)
	approve(t, f, res.WorkflowID, "ap-clerk")
	f.waitForLevel(t, res.WorkflowID, 2)
	approve(t, f, res.WorkflowID, "compliance-officer")

	inst := f.waitForTerminal(t, res.WorkflowID)
	out := outcomeOf(t, inst)
	if out.Decision != DecisionApproved || len(out.Steps) != 2 {
		t.Fatalf("expected 2-level approval, got %+v", out)
	}
	if out.Steps[1].Role != hierarchy.RoleVendorCompliance {
		t.Fatalf("expected vendor-compliance level for a new vendor, got %+v", out.Steps[1])
	}
}

func TestOnboarding_HappyPath(t *testing.T) {
	f := newFixture(t, Config{
		Resolver:        testResolver(2 * time.Second),
		ApprovalTimeout: 2 * time.Second,
	}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeEmployeeOnboarding, OnboardingRequest{
		EmployeeID: "emp-1",
		Name:       "Robin Mazumder",
		Department: "engineering",
		Role:       "backend engineer",
	}, api.StartOptions{ID: "wf-onb-1"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	approve(t, f, res.WorkflowID, "eng-manager")
	for range onboardingTasks {
		if err := f.cl.SignalWorkflow(ctx, res.WorkflowID, SignalTaskComplete, DecisionSignal{Approver: "it-ops"}); err != nil {
			t.Fatalf("SignalWorkflow(complete-task): %v", err)
		}
	}

	inst := f.waitForTerminal(t, res.WorkflowID)
	if inst.Status != api.StatusCompleted {
		t.Fatalf("expected COMPLETED, got %v err=%v", inst.Status, inst.Err)
	}
	out, ok := inst.Output.(OnboardingOutcome)
	if !ok {
		t.Fatalf("output is %T, want OnboardingOutcome", inst.Output)
	}
	if out.Decision != DecisionApproved || len(out.Tasks) != len(onboardingTasks) {
		t.Fatalf("expected all tasks completed, got %+v", out)
	}
	for i, task := range out.Tasks {
		if task.Name != onboardingTasks[i] || task.Status != StepApproved || task.CompletedBy != "it-ops" {
			t.Fatalf("task %d: %+v", i, task)
		}
	}
}

func TestOnboarding_TaskTimeoutDoesNotBlockSequence(t *testing.T) {
	f := newFixture(t, Config{
		Resolver:              testResolver(2 * time.Second),
		ApprovalTimeout:       2 * time.Second,
		OnboardingTaskTimeout: 60 * time.Millisecond,
	}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeEmployeeOnboarding, OnboardingRequest{
		EmployeeID: "emp-2",
		Name:       "Farhana Akter",
		Department: "operations",
		Role:       "analyst",
	}, api.StartOptions{ID: "wf-onb-2"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	approve(t, f, res.WorkflowID, "ops-manager")

	inst := f.waitForTerminal(t, res.WorkflowID)
	out := inst.Output.(OnboardingOutcome)
	if out.Decision != DecisionApproved {
		t.Fatalf("timed-out tasks must not reject the onboarding: %+v", out)
	}
	if len(out.Tasks) != len(onboardingTasks) {
		t.Fatalf("expected every task recorded, got %+v", out.Tasks)
	}
	for _, task := range out.Tasks {
		if task.Status != StepTimedOut {
			t.Fatalf("expected timed-out task, got %+v", task)
		}
	}
}

func TestOnboarding_ManagerTimeoutRejects(t *testing.T) {
	f := newFixture(t, Config{
		Resolver:        testResolver(2 * time.Second),
		ApprovalTimeout: 60 * time.Millisecond,
	}, nil)
	ctx := context.Background()

	res, err := f.cl.StartWorkflow(ctx, TypeEmployeeOnboarding, OnboardingRequest{
		EmployeeID: "emp-3",
		Name:       "Tanvir Hasan",
		Department: "operations",
		Role:       "analyst",
	}, api.StartOptions{ID: "wf-onb-3"})
	if err != nil {
		t.Fatalf("StartWorkflow: %v", err)
	}

	inst := f.waitForTerminal(t, res.WorkflowID)
	out := inst.Output.(OnboardingOutcome)
	if out.Decision != DecisionRejected || !strings.Contains(out.Reason, "Timeout") {
		t.Fatalf("expected timeout rejection, got %+v", out)
	}
	if len(out.Tasks) != 0 {
		t.Fatalf("no tasks may run without manager approval, got %+v", out.Tasks)
	}
}
