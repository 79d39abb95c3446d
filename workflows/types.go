// Package workflows contains the three durable approval processes
// (purchase-order approval, invoice approval, employee onboarding), their
// domain types, and the activity contracts they consume.
package workflows

import (
	"encoding/gob"
	"time"

	"github.com/vextrus/vextrus-erp-sub018/pkg/hierarchy"
)

// Signal names consumed by the definitions.
const (
	SignalApprove      = "approve"
	SignalReject       = "reject"
	SignalTaskComplete = "complete-task"
	SignalTaskSkip     = "skip"
)

// Query names exposed by the definitions.
const (
	QueryStatus = "status"
	QuerySteps  = "approval-steps"
)

// Decision is the business-level terminal outcome of a process. It is
// distinct from the instance status: a rejected invoice is still a COMPLETED
// workflow whose output records the rejection.
type Decision string

const (
	DecisionApproved Decision = "Approved"
	DecisionRejected Decision = "Rejected"
	DecisionOnHold   Decision = "OnHold"
)

// StepStatus is the state of one approval level.
type StepStatus string

const (
	StepPending  StepStatus = "Pending"
	StepApproved StepStatus = "Approved"
	StepRejected StepStatus = "Rejected"
	StepTimedOut StepStatus = "TimedOut"
	StepSkipped  StepStatus = "Skipped"
)

// ApprovalStep is the recorded decision of one level in the approval chain.
type ApprovalStep struct {
	Level    int
	Role     string
	Status   StepStatus
	Approver string
	Comments string

	// DecidedAt is deterministic workflow time, stable across replays.
	DecidedAt time.Time
	Amount    float64
}

// DecisionSignal is the payload of approve / reject signals.
type DecisionSignal struct {
	Approver string
	Comments string

	// Level, when non-zero, addresses the decision to a specific chain
	// level. A decision carrying a level other than the one currently
	// pending is ignored, so a retransmitted approve can never resolve a
	// later level. Zero leaves the decision unscoped.
	Level int
}

// TaskResult is the recorded completion of one onboarding task.
type TaskResult struct {
	Name        string
	Status      StepStatus
	CompletedBy string
	CompletedAt time.Time
}

// Outcome is the output of the purchase-order and invoice processes.
type Outcome struct {
	Decision Decision
	Reason   string
	Steps    []ApprovalStep

	// PaymentID is set only when an approved invoice reached payment
	// creation.
	PaymentID string
	TaxAmount float64
}

// OnboardingOutcome is the output of the employee-onboarding process.
type OnboardingOutcome struct {
	Decision Decision
	Reason   string
	Steps    []ApprovalStep
	Tasks    []TaskResult
}

// Invoice is the input of the invoice-approval process.
type Invoice struct {
	ID            string
	InvoiceNumber string
	VendorID      string
	VendorType    string
	Department    string
	PartyType     string
	Amount        float64

	// PurchaseOrderID, when set, triggers PO matching before approvals.
	PurchaseOrderID string
}

// PurchaseOrder is the input of the purchase-order approval process.
type PurchaseOrder struct {
	ID          string
	PONumber    string
	VendorID    string
	VendorType  string
	Department  string
	Amount      float64
	Description string
}

// OnboardingRequest is the input of the employee-onboarding process.
type OnboardingRequest struct {
	EmployeeID string
	Name       string
	Department string
	Role       string
}

// StatusView is the response of the "status" query.
type StatusView struct {
	Phase         string
	CurrentLevel  int
	TotalLevels   int
	StepsResolved int
}

// Config tunes the definitions.
type Config struct {
	// Resolver computes the approval ladder; nil means the default ladder.
	Resolver *hierarchy.Resolver

	// MatchVariancePercent is the maximum tolerated PO-match variance before
	// an invoice goes on hold.
	MatchVariancePercent float64

	// OnboardingTaskTimeout bounds each onboarding task before it is
	// escalated. ApprovalTimeout bounds the onboarding manager decision.
	OnboardingTaskTimeout time.Duration
	ApprovalTimeout       time.Duration
}

func (c Config) withDefaults() Config {
	if c.Resolver == nil {
		c.Resolver = hierarchy.NewResolver(hierarchy.DefaultConfig())
	}
	if c.MatchVariancePercent == 0 {
		c.MatchVariancePercent = 5.0
	}
	if c.OnboardingTaskTimeout == 0 {
		c.OnboardingTaskTimeout = 72 * time.Hour
	}
	if c.ApprovalTimeout == 0 {
		c.ApprovalTimeout = 48 * time.Hour
	}
	return c
}

func init() {
	gob.Register(DecisionSignal{})
	gob.Register(ApprovalStep{})
	gob.Register(TaskResult{})
	gob.Register(Outcome{})
	gob.Register(OnboardingOutcome{})
	gob.Register(Invoice{})
	gob.Register(PurchaseOrder{})
	gob.Register(OnboardingRequest{})
	gob.Register(StatusView{})
	gob.Register([]ApprovalStep{})
}
