// Package approvalflow provides a durable, embeddable approval-workflow
// engine for Go.
//
// It is designed for backend services that route financial documents
// (purchase orders, invoices) and HR requests through multi-level human
// approval chains: long-running, signal-driven workflows that survive
// process restarts without external orchestration infrastructure.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Engine
//  2. Runtime
//  3. Worker
//  4. Definition
//  5. Runner
//
// # Engine
//
// An Engine bundles the persistence backend, the task queue, the workflow
// runtime, a worker, and a client into one value. Backends:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite (embedded durability, store and queue share one database)
//   - Postgres
//   - Redis
//
// # Runtime
//
// The runtime executes workflow definitions by deterministic replay: a
// definition is re-invoked from the top on every resume, with recorded
// outcomes fed back from history. Every external effect (activity result,
// fired timer, consumed signal, cancellation) is recorded exactly once, so a
// crashed instance resumes mid-flight with no duplicated side effects. A
// definition that diverges from its recorded history is halted as failed
// rather than allowed to corrupt state.
//
// # Worker
//
// A Worker pulls tasks from the queue: it runs activities with retry and
// timeout policies, resolves durable timers, delivers queued signals, and
// expires instances whose execution deadline passed. Workers are stateless
// and can be scaled horizontally over a shared queue.
//
// # Definition
//
// A Definition is plain Go code running against a workflow Context:
//
//	func(ctx *workflow.Context) (any, error) {
//	    res, err := ctx.ExecuteActivity("NotifyApprover", req)
//	    ...
//	    sig, err := ctx.RaceSignalTimer(48*time.Hour, "approve", "reject")
//	    ...
//	}
//
// The workflows package ships three ready definitions: purchase-order
// approval, invoice approval (with PO matching, withholding and payment),
// and employee onboarding. Approval ladders are computed by the hierarchy
// package from amount, department and vendor type.
//
// # Runner
//
// Runner bundles an Engine with a pool of worker goroutines, recovering
// parked instances on start. It is the convenient way to run the system
// inside a single process:
//
//	eng := approvalflow.NewInMemoryEngine()
//	workflows.Register(eng.Definitions, workflows.Config{})
//	runner := approvalflow.NewRunner(eng)
//	_ = runner.Start(ctx, 2)
//	defer runner.Stop()
//
// For complete programs, see the /examples directory.
package approvalflow
